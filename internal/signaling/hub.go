package signaling

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/JohanEM99/video-meet/internal/protocol"
)

// Hub is the central brain of the signaling server.
// It owns the room registry and every connected client, and mutates them only
// from the goroutine running Run, so handlers always run to completion.
type Hub struct {
	registry *Registry

	// clients maps session IDs to live connections.
	clients map[string]*Client

	register     chan *Client
	unregisterCh chan *Client
	inbound      chan inbound
	stats        chan chan Stats

	done chan struct{}
}

type inbound struct {
	client *Client
	msg    *protocol.Message
}

// Stats is a point-in-time view of the hub.
type Stats struct {
	Clients  int `json:"clients"`
	Rooms    int `json:"rooms"`
	Sessions int `json:"sessions"`
}

// NewHub creates a new Hub instance.
func NewHub() *Hub {
	return &Hub{
		registry:     NewRegistry(),
		clients:      make(map[string]*Client),
		register:     make(chan *Client),
		unregisterCh: make(chan *Client),
		inbound:      make(chan inbound),
		stats:        make(chan chan Stats),
		done:         make(chan struct{}),
	}
}

// Run starts the hub's main processing loop and returns when ctx is done.
// This is the single goroutine that safely manages all state (rooms, clients).
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			slog.Info("hub shutting down", "clients", len(h.clients))
			for id, client := range h.clients {
				close(client.Send)
				delete(h.clients, id)
			}
			return

		case client := <-h.register:
			h.clients[client.ID] = client
			slog.Info("client registered", "session", client.ID, "remote", client.Conn.RemoteAddr())

		case client := <-h.unregisterCh:
			if _, ok := h.clients[client.ID]; !ok {
				continue
			}
			slog.Info("client unregistered", "session", client.ID)
			h.remove(client)

		case in := <-h.inbound:
			if _, ok := h.clients[in.client.ID]; !ok {
				continue
			}
			h.handle(in.client, in.msg)

		case reply := <-h.stats:
			reply <- Stats{
				Clients:  len(h.clients),
				Rooms:    h.registry.RoomCount(),
				Sessions: h.registry.SessionCount(),
			}
		}
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Register hands a new client to the hub. It returns false once the hub has
// stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Stats asks the hub loop for its current counters.
func (h *Hub) Stats() (Stats, bool) {
	reply := make(chan Stats, 1)
	select {
	case h.stats <- reply:
	case <-h.done:
		return Stats{}, false
	}
	select {
	case s := <-reply:
		return s, true
	case <-h.done:
		return Stats{}, false
	}
}

func (h *Hub) unregister(c *Client) {
	select {
	case h.unregisterCh <- c:
	case <-h.done:
	}
}

// dispatch forwards a frame read by c to the hub loop. It returns false once
// the hub has stopped.
func (h *Hub) dispatch(c *Client, msg *protocol.Message) bool {
	select {
	case h.inbound <- inbound{client: c, msg: msg}:
		return true
	case <-h.done:
		return false
	}
}

// handle processes one frame from one client. A failure here is logged and
// answered to that client only.
func (h *Hub) handle(c *Client, msg *protocol.Message) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("handler panic", "session", c.ID, "type", msg.Type, "panic", r)
		}
	}()

	switch msg.Type {
	case protocol.TypeJoin:
		var p protocol.JoinPayload
		if err := msg.Decode(&p); err != nil {
			h.reject(c, protocol.CodeBadRequest, err)
			return
		}
		out, err := h.registry.Join(p.RoomID, p.UserID, c.ID)
		if err != nil {
			slog.Info("join failed", "session", c.ID, "room", p.RoomID, "error", err)
		}
		h.deliver(out)

	case protocol.TypeSignal:
		var req protocol.SignalRequest
		if err := msg.Decode(&req); err != nil {
			h.reject(c, protocol.CodeBadRequest, err)
			return
		}
		out, err := h.registry.Signal(c.ID, req)
		if errors.Is(err, ErrNotMember) {
			slog.Info("signal dropped, target not in room", "from", c.ID, "to", req.To, "room", req.RoomID)
			return
		}
		slog.Debug("relaying signal", "from", c.ID, "to", req.To, "room", req.RoomID, "kind", protocol.SignalKind(req.Signal))
		h.deliver(out)

	case protocol.TypeLeave:
		var roomID string
		if err := msg.Decode(&roomID); err != nil {
			h.reject(c, protocol.CodeBadRequest, err)
			return
		}
		h.deliver(h.registry.Leave(roomID, c.ID))

	case protocol.TypeChat:
		var req protocol.ChatRequest
		if err := msg.Decode(&req); err != nil {
			h.reject(c, protocol.CodeBadRequest, err)
			return
		}
		out, err := h.registry.Chat(c.ID, req)
		if err != nil {
			slog.Info("chat dropped", "session", c.ID, "room", req.RoomID, "error", err)
			return
		}
		h.deliver(out)

	default:
		slog.Warn("unknown message type", "session", c.ID, "type", msg.Type)
		h.send(c, protocol.NewError(protocol.CodeUnknownMessage, "unknown message type: "+msg.Type))
	}
}

func (h *Hub) reject(c *Client, code string, err error) {
	slog.Info("request rejected", "session", c.ID, "code", code, "error", err)
	h.send(c, protocol.NewError(code, err.Error()))
}

// deliver sends a batch in order. Clients that cannot keep up are skipped for
// the rest of the batch and dropped after it, so their user:left reaches the
// others after everything the batch said about them.
func (h *Hub) deliver(out []Delivery) {
	var stuck []*Client
	for _, d := range out {
		client, ok := h.clients[d.To]
		if !ok || slices.Contains(stuck, client) {
			continue
		}
		if !h.trySend(client, d.Msg) {
			stuck = append(stuck, client)
		}
	}
	for _, c := range stuck {
		h.remove(c)
	}
}

// send queues msg for c without blocking the hub. A client whose buffer is
// full is dropped as if it had disconnected.
func (h *Hub) send(c *Client, msg *protocol.Message) {
	if !h.trySend(c, msg) {
		h.remove(c)
	}
}

func (h *Hub) trySend(c *Client, msg *protocol.Message) bool {
	select {
	case c.Send <- msg:
		return true
	default:
		slog.Warn("send buffer full, dropping client", "session", c.ID)
		return false
	}
}

func (h *Hub) remove(c *Client) {
	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	delete(h.clients, c.ID)
	close(c.Send)
	h.deliver(h.registry.Disconnect(c.ID))
}
