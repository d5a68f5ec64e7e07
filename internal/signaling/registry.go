package signaling

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/JohanEM99/video-meet/internal/protocol"
)

var (
	ErrInvalidRoom = errors.New("room id is required")
	ErrRoomFull    = errors.New("room is full")
	ErrNotMember   = errors.New("session is not a member of the room")
	ErrEmptyChat   = errors.New("chat message is empty")
)

// Delivery is one outbound message addressed to one session.
type Delivery struct {
	To  string
	Msg *protocol.Message
}

// Registry is the in-memory set of rooms and their members. It performs no
// I/O: every operation returns the deliveries it produced and the caller
// sends them. A Registry is not safe for concurrent use; the Hub owns it
// from a single goroutine.
type Registry struct {
	rooms    map[string]*Room
	capacity int
	now      func() time.Time
}

// NewRegistry creates an empty registry admitting Capacity members per room.
func NewRegistry() *Registry {
	return &Registry{
		rooms:    make(map[string]*Room),
		capacity: Capacity,
		now:      time.Now,
	}
}

// Join adds sessionID to roomID, creating the room if needed. The joiner gets
// room:joined listing the members already present; those members get
// user:joined. A session already in a different room leaves it first.
func (r *Registry) Join(roomID, userID, sessionID string) ([]Delivery, error) {
	if roomID == "" {
		return []Delivery{{To: sessionID, Msg: protocol.NewError(protocol.CodeInvalidRoom, ErrInvalidRoom.Error())}}, ErrInvalidRoom
	}

	var out []Delivery

	if room, ok := r.rooms[roomID]; ok && room.has(sessionID) {
		return []Delivery{r.joinedReply(room, sessionID)}, nil
	}

	// A rejected join leaves the session where it was.
	if room, ok := r.rooms[roomID]; ok && room.size() >= r.capacity {
		slog.Info("join rejected, room full", "room", roomID, "session", sessionID)
		return []Delivery{{To: sessionID, Msg: protocol.NewError(protocol.CodeRoomFull, ErrRoomFull.Error())}}, ErrRoomFull
	}

	if current := r.roomOf(sessionID); current != nil {
		slog.Debug("session switching rooms", "session", sessionID, "from", current.ID, "to", roomID)
		out = append(out, r.Leave(current.ID, sessionID)...)
	}

	room, ok := r.rooms[roomID]
	if !ok {
		room = newRoom(roomID)
		r.rooms[roomID] = room
		slog.Info("room created", "room", roomID)
	}

	room.add(&Member{SessionID: sessionID, UserID: userID})
	slog.Info("session joined room", "room", roomID, "session", sessionID, "user", userID, "members", room.size())

	out = append(out, r.joinedReply(room, sessionID))
	joined := protocol.MustNew(protocol.TypeUserJoined, sessionID)
	for _, id := range room.others(sessionID) {
		out = append(out, Delivery{To: id, Msg: joined})
	}
	return out, nil
}

func (r *Registry) joinedReply(room *Room, sessionID string) Delivery {
	existing := room.others(sessionID)
	return Delivery{
		To: sessionID,
		Msg: protocol.MustNew(protocol.TypeRoomJoined, protocol.RoomJoinedPayload{
			RoomID:        room.ID,
			SessionID:     sessionID,
			ExistingUsers: existing,
			Initiator:     len(existing) > 0,
		}),
	}
}

// Signal relays req.Signal to req.To if, and only if, req.To is currently a
// member of req.RoomID. A miss returns ErrNotMember and no deliveries; the
// sender is not told. The from field is always the sender's own session.
func (r *Registry) Signal(from string, req protocol.SignalRequest) ([]Delivery, error) {
	room, ok := r.rooms[req.RoomID]
	if !ok || !room.has(req.To) {
		return nil, ErrNotMember
	}
	return []Delivery{{
		To:  req.To,
		Msg: protocol.MustNew(protocol.TypeSignal, protocol.SignalDelivery{From: from, Signal: req.Signal}),
	}}, nil
}

// Leave removes sessionID from roomID, tells the remaining members and
// deletes the room once empty. Leaving a room one is not in is a no-op.
func (r *Registry) Leave(roomID, sessionID string) []Delivery {
	room, ok := r.rooms[roomID]
	if !ok || !room.remove(sessionID) {
		return nil
	}
	slog.Info("session left room", "room", roomID, "session", sessionID, "members", room.size())

	if room.empty() {
		delete(r.rooms, roomID)
		slog.Info("room deleted", "room", roomID)
		return nil
	}

	left := protocol.MustNew(protocol.TypeUserLeft, sessionID)
	var out []Delivery
	for _, id := range room.others("") {
		out = append(out, Delivery{To: id, Msg: left})
	}
	return out
}

// Disconnect removes sessionID from every room it belongs to.
func (r *Registry) Disconnect(sessionID string) []Delivery {
	var roomIDs []string
	for id, room := range r.rooms {
		if room.has(sessionID) {
			roomIDs = append(roomIDs, id)
		}
	}

	var out []Delivery
	for _, id := range roomIDs {
		out = append(out, r.Leave(id, sessionID)...)
	}
	return out
}

// Chat broadcasts a chat line to every member of the room, the sender
// included. The sender must be a member.
func (r *Registry) Chat(sessionID string, req protocol.ChatRequest) ([]Delivery, error) {
	room, ok := r.rooms[req.RoomID]
	if !ok || !room.has(sessionID) {
		return nil, ErrNotMember
	}

	text := strings.TrimSpace(req.Message)
	if text == "" {
		return nil, ErrEmptyChat
	}

	msg := protocol.MustNew(protocol.TypeChat, protocol.ChatMessage{
		UserID:    req.UserID,
		Message:   text,
		Timestamp: r.now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Seq:       room.nextChatSeq(),
	})

	out := make([]Delivery, 0, room.size())
	for _, id := range room.others("") {
		out = append(out, Delivery{To: id, Msg: msg})
	}
	return out, nil
}

// Members returns the session IDs in roomID in join order.
func (r *Registry) Members(roomID string) []string {
	room, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	return room.others("")
}

// Member returns the member record for sessionID in roomID.
func (r *Registry) Member(roomID, sessionID string) (Member, bool) {
	room, ok := r.rooms[roomID]
	if !ok {
		return Member{}, false
	}
	m, ok := room.members[sessionID]
	if !ok {
		return Member{}, false
	}
	return *m, true
}

// HasRoom reports whether roomID currently exists.
func (r *Registry) HasRoom(roomID string) bool {
	_, ok := r.rooms[roomID]
	return ok
}

// RoomCount returns the number of live rooms.
func (r *Registry) RoomCount() int {
	return len(r.rooms)
}

// SessionCount returns the number of sessions that are in a room.
func (r *Registry) SessionCount() int {
	n := 0
	for _, room := range r.rooms {
		n += room.size()
	}
	return n
}

func (r *Registry) roomOf(sessionID string) *Room {
	for _, room := range r.rooms {
		if room.has(sessionID) {
			return room
		}
	}
	return nil
}
