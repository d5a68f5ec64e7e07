package call

import (
	"errors"
	"fmt"
)

var (
	ErrDeviceAccess = errors.New("could not access camera or microphone")
	ErrRoomFull     = errors.New("room is full")
	ErrJoinRejected = errors.New("join rejected by server")
	ErrEmptyMessage = errors.New("message is empty")
	ErrDisconnected = errors.New("signaling connection lost")
	ErrNegotiation  = errors.New("peer negotiation failed")
	ErrPeerCreate   = errors.New("could not create peer connection")
	ErrClosed       = errors.New("call is closed")
)

// Error records the call operation that failed together with its cause.
type Error struct {
	Op      string
	Err     error
	Details string
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

func WrapError(op string, err error, details string) *Error {
	return &Error{Op: op, Err: err, Details: details}
}
