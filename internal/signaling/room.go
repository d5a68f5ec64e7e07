package signaling

// Capacity is the number of members a room admits. A call is two-party.
const Capacity = 2

// Member is one connected session inside a room.
type Member struct {
	// SessionID is assigned by the server per WebSocket connection.
	SessionID string

	// UserID is supplied by the client and is neither verified nor unique.
	UserID string
}

// Room holds the members of one call, in the order they joined.
type Room struct {
	// ID is the opaque room key chosen by the clients.
	ID string

	members map[string]*Member
	order   []string

	// chatSeq is the last chat sequence number issued in this room.
	chatSeq uint64
}

func newRoom(id string) *Room {
	return &Room{
		ID:      id,
		members: make(map[string]*Member),
	}
}

func (r *Room) has(sessionID string) bool {
	_, ok := r.members[sessionID]
	return ok
}

func (r *Room) add(m *Member) {
	r.members[m.SessionID] = m
	r.order = append(r.order, m.SessionID)
}

func (r *Room) remove(sessionID string) bool {
	if !r.has(sessionID) {
		return false
	}
	delete(r.members, sessionID)
	for i, id := range r.order {
		if id == sessionID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

func (r *Room) size() int {
	return len(r.members)
}

func (r *Room) empty() bool {
	return len(r.members) == 0
}

// others returns every member's session ID except exclude, in join order.
func (r *Room) others(exclude string) []string {
	ids := make([]string, 0, len(r.order))
	for _, id := range r.order {
		if id != exclude {
			ids = append(ids, id)
		}
	}
	return ids
}

func (r *Room) nextChatSeq() uint64 {
	r.chatSeq++
	return r.chatSeq
}
