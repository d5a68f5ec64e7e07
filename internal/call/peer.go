package call

import (
	"context"
	"encoding/json"

	"github.com/JohanEM99/video-meet/internal/protocol"
)

// Transport carries frames to the signaling server. It must be safe for
// concurrent use.
type Transport interface {
	Send(msg *protocol.Message) error
}

// Media is the local camera and microphone once acquired.
type Media interface {
	SetAudioEnabled(enabled bool)
	SetVideoEnabled(enabled bool)
	Stop()
}

// MediaDevice acquires local media. A failure means the call cannot start.
type MediaDevice interface {
	Acquire(ctx context.Context) (Media, error)
}

// Peer is one direct media connection to the remote participant.
type Peer interface {
	// Signal applies an offer, answer or candidate received from the remote.
	Signal(sig json.RawMessage) error

	// SendMediaState tells the remote whether our audio and video are on.
	SendMediaState(audio, video bool) error

	Close() error
}

// PeerEvents are the callbacks a Peer invokes. They may be called from any
// goroutine, including synchronously from within Signal.
type PeerEvents struct {
	// OnSignal hands out a local offer, answer or candidate for the remote.
	OnSignal func(sig json.RawMessage)

	// OnConnect fires once the direct connection is established.
	OnConnect func()

	// OnStream fires when a remote track of the given kind arrives.
	OnStream func(kind string)

	// OnClose fires when the connection is gone for good.
	OnClose func()

	OnError func(err error)

	// OnRemoteMedia reports the remote's audio and video state.
	OnRemoteMedia func(audio, video bool)
}

// PeerOptions configure a new Peer.
type PeerOptions struct {
	Initiator bool
	Media     Media
	Events    PeerEvents
}

// PeerFactory builds a Peer. The initiator creates and emits the offer.
type PeerFactory func(opts PeerOptions) (Peer, error)
