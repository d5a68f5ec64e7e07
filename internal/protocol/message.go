// Package protocol defines the JSON frames exchanged between call clients and
// the signaling server over the WebSocket.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Message is the envelope for every frame, in both directions.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Message type constants.
const (
	// Client to server.
	TypeJoin  = "join"
	TypeLeave = "leave"

	// Server to client.
	TypeRoomJoined = "room:joined"
	TypeUserJoined = "user:joined"
	TypeUserLeft   = "user:left"
	TypeError      = "error"

	// Both directions, different payload shapes.
	TypeSignal = "signal"
	TypeChat   = "chat:message"
)

// Error codes carried in ErrorPayload.Code.
const (
	CodeInvalidRoom    = "invalid_room"
	CodeRoomFull       = "room_full"
	CodeBadRequest     = "bad_request"
	CodeUnknownMessage = "unknown_message"
)

// JoinPayload is sent by a client to enter a room.
type JoinPayload struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

// RoomJoinedPayload answers a join. Initiator is decided by the server: the
// member that joins an occupied room makes the offer.
type RoomJoinedPayload struct {
	RoomID        string   `json:"roomId"`
	SessionID     string   `json:"sessionId"`
	ExistingUsers []string `json:"existingUsers"`
	Initiator     bool     `json:"initiator"`
}

// SignalRequest is a client's request to relay an opaque signal to a peer.
type SignalRequest struct {
	To     string          `json:"to"`
	From   string          `json:"from"`
	Signal json.RawMessage `json:"signal"`
	RoomID string          `json:"roomId"`
}

// SignalDelivery is what the target of a SignalRequest receives.
type SignalDelivery struct {
	From   string          `json:"from"`
	Signal json.RawMessage `json:"signal"`
}

// ChatRequest is a chat line sent by a client.
type ChatRequest struct {
	RoomID    string `json:"roomId"`
	UserID    string `json:"userId"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp,omitempty"`
}

// ChatMessage is a chat line broadcast to the room. Seq is issued by the
// server and increases by one per room.
type ChatMessage struct {
	UserID    string `json:"userId"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Seq       uint64 `json:"seq,omitempty"`
}

// ErrorPayload reports a rejected request to the requesting client only.
type ErrorPayload struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// New builds a Message with payload marshalled to JSON.
func New(msgType string, payload any) (*Message, error) {
	msg := &Message{Type: msgType}
	if payload == nil {
		return msg, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	msg.Payload = b
	return msg, nil
}

// MustNew is New for payloads that cannot fail to marshal (plain structs and
// strings built by this package's callers).
func MustNew(msgType string, payload any) *Message {
	msg, err := New(msgType, payload)
	if err != nil {
		panic(err)
	}
	return msg
}

// Decode unmarshals the payload into v.
func (m *Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("%s: decode payload: %w", m.Type, err)
	}
	return nil
}

// NewError builds an error frame.
func NewError(code, text string) *Message {
	return MustNew(TypeError, ErrorPayload{Code: code, Error: text})
}
