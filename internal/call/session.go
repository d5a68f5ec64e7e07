// Package call drives one participant through a two-party call: acquiring
// local media, joining a room, deciding who offers and negotiating the peer
// connection over the signaling server.
package call

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JohanEM99/video-meet/internal/protocol"
)

// State is where a Session is in the call lifecycle.
type State int32

const (
	StateIdle State = iota
	StateAcquiringMedia
	StateJoining
	StateWaitingForPeer
	StateConnecting
	StateConnected
	StateClosed
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiringMedia:
		return "acquiring media"
	case StateJoining:
		return "joining"
	case StateWaitingForPeer:
		return "waiting for peer"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	}
	return "unknown"
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateError
}

// EventKind tells which fields of an Event are set.
type EventKind int

const (
	EventState EventKind = iota
	EventChat
	EventPeerJoined
	EventPeerLeft
	EventStream
	EventRemoteMedia
	EventLocalMedia
	EventError
)

// Event is a notification from the Session to its UI.
type Event struct {
	Kind   EventKind
	State  State
	Chat   ChatEntry
	PeerID string
	Stream string
	Audio  bool
	Video  bool
	Err    error
}

// Config wires a Session to its collaborators.
type Config struct {
	RoomID string
	UserID string

	Transport Transport
	Device    MediaDevice
	NewPeer   PeerFactory

	// OnEvent is called from the Session's loop goroutine and must not block.
	OnEvent func(Event)

	// Now stamps outgoing chat lines; defaults to time.Now.
	Now func() time.Time
}

// Session is the call client. All call state is owned by the goroutine
// running Run; every input (server frames, peer callbacks, user commands)
// is posted to a mailbox and handled there one at a time.
type Session struct {
	cfg Config

	// Loop-owned.
	state      State
	err        error
	sessionID  string
	remoteID   string
	initiator  bool
	media      Media
	peer       Peer
	gen        uint64
	pending    []queuedSignal
	audio      bool
	video      bool
	transcript *Transcript

	current atomic.Int32

	mu      sync.Mutex
	inbox   []func()
	stopped bool
	wake    chan struct{}
}

// queuedSignal is a signal that arrived before its offer.
type queuedSignal struct {
	from string
	sig  json.RawMessage
}

// NewSession creates a Session in StateIdle.
func NewSession(cfg Config) *Session {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Session{
		cfg:        cfg,
		audio:      true,
		video:      true,
		transcript: NewTranscript(),
		wake:       make(chan struct{}, 1),
	}
}

// State returns the current state. Safe from any goroutine.
func (s *Session) State() State {
	return State(s.current.Load())
}

// Transcript returns the call's chat history.
func (s *Session) Transcript() *Transcript {
	return s.transcript
}

// Run acquires local media, joins the room and then processes events until
// the call is closed, fails, or ctx is cancelled. Cancelling ctx leaves the
// room. Run returns the error that ended the call, or nil after a normal
// close.
func (s *Session) Run(ctx context.Context) error {
	if err := s.start(ctx); err != nil {
		return err
	}

	for {
		s.drain()
		if s.state.Terminal() {
			s.stop()
			return s.err
		}

		select {
		case <-s.wake:
		case <-ctx.Done():
			s.drain()
			if !s.state.Terminal() {
				s.leave()
			}
			s.stop()
			return s.err
		}
	}
}

// start acquires media and sends the join. Media acquisition completing is
// what allows a peer to be built; nothing waits on a timer.
func (s *Session) start(ctx context.Context) error {
	s.setState(StateAcquiringMedia)

	media, err := s.cfg.Device.Acquire(ctx)
	if err != nil {
		s.fail(WrapError("acquire media", ErrDeviceAccess, err.Error()))
		return s.err
	}
	s.media = media

	s.setState(StateJoining)
	s.send(protocol.TypeJoin, protocol.JoinPayload{RoomID: s.cfg.RoomID, UserID: s.cfg.UserID})
	return nil
}

// Deliver hands a frame received from the signaling server to the Session.
func (s *Session) Deliver(msg *protocol.Message) {
	s.post(func() { s.handleMessage(msg) })
}

// Disconnected tells the Session the signaling connection is gone.
func (s *Session) Disconnected(cause error) {
	s.post(func() {
		if s.state.Terminal() {
			return
		}
		details := ""
		if cause != nil {
			details = cause.Error()
		}
		s.fail(WrapError("signaling", ErrDisconnected, details))
	})
}

// Leave tells the server we are leaving and closes the call.
func (s *Session) Leave() {
	s.post(func() {
		if !s.state.Terminal() {
			s.leave()
		}
	})
}

// Close ends the call without telling the server. It is idempotent.
func (s *Session) Close() {
	s.post(func() {
		if !s.state.Terminal() {
			s.close()
		}
	})
}

// SendChat sends a chat line to the room. Leading and trailing whitespace is
// trimmed and an empty line is rejected.
func (s *Session) SendChat(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	if s.State().Terminal() {
		return ErrClosed
	}

	msg, err := protocol.New(protocol.TypeChat, protocol.ChatRequest{
		RoomID:    s.cfg.RoomID,
		UserID:    s.cfg.UserID,
		Message:   text,
		Timestamp: s.cfg.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return NewError("send chat", err)
	}
	if err := s.cfg.Transport.Send(msg); err != nil {
		return NewError("send chat", err)
	}
	return nil
}

// ToggleAudio mutes or unmutes the microphone and tells the remote.
func (s *Session) ToggleAudio() {
	s.post(func() {
		s.audio = !s.audio
		if s.media != nil {
			s.media.SetAudioEnabled(s.audio)
		}
		s.announceMedia()
	})
}

// ToggleVideo turns the camera off or on and tells the remote.
func (s *Session) ToggleVideo() {
	s.post(func() {
		s.video = !s.video
		if s.media != nil {
			s.media.SetVideoEnabled(s.video)
		}
		s.announceMedia()
	})
}

func (s *Session) announceMedia() {
	s.emit(Event{Kind: EventLocalMedia, Audio: s.audio, Video: s.video})
	if s.peer == nil {
		return
	}
	if err := s.peer.SendMediaState(s.audio, s.video); err != nil {
		slog.Debug("media state not sent", "error", err)
	}
}

func (s *Session) handleMessage(msg *protocol.Message) {
	if s.state.Terminal() {
		return
	}

	switch msg.Type {
	case protocol.TypeRoomJoined:
		var p protocol.RoomJoinedPayload
		if err := msg.Decode(&p); err != nil {
			slog.Warn("bad room:joined", "error", err)
			return
		}
		s.handleRoomJoined(p)

	case protocol.TypeUserJoined:
		var id string
		if err := msg.Decode(&id); err != nil {
			slog.Warn("bad user:joined", "error", err)
			return
		}
		s.handleUserJoined(id)

	case protocol.TypeSignal:
		var d protocol.SignalDelivery
		if err := msg.Decode(&d); err != nil {
			slog.Warn("bad signal", "error", err)
			return
		}
		s.handleSignal(d)

	case protocol.TypeUserLeft:
		var id string
		if err := msg.Decode(&id); err != nil {
			slog.Warn("bad user:left", "error", err)
			return
		}
		s.handleUserLeft(id)

	case protocol.TypeChat:
		var c protocol.ChatMessage
		if err := msg.Decode(&c); err != nil {
			slog.Warn("bad chat:message", "error", err)
			return
		}
		entry := ChatEntry{Seq: c.Seq, UserID: c.UserID, Message: c.Message, Timestamp: c.Timestamp}
		if s.transcript.Add(entry) {
			s.emit(Event{Kind: EventChat, Chat: entry})
		}

	case protocol.TypeError:
		var p protocol.ErrorPayload
		if err := msg.Decode(&p); err != nil {
			slog.Warn("bad error frame", "error", err)
			return
		}
		s.handleServerError(p)

	default:
		slog.Debug("ignoring frame", "type", msg.Type)
	}
}

func (s *Session) handleRoomJoined(p protocol.RoomJoinedPayload) {
	s.sessionID = p.SessionID
	slog.Info("joined room", "room", p.RoomID, "session", p.SessionID, "existing", p.ExistingUsers, "initiator", p.Initiator)

	if s.peer != nil {
		return
	}

	if p.Initiator && len(p.ExistingUsers) > 0 {
		s.remoteID = p.ExistingUsers[0]
		s.initiator = true
		s.setState(StateConnecting)
		if !s.createPeer(true) {
			s.initiator = false
			s.setState(StateWaitingForPeer)
		}
		return
	}

	s.setState(StateWaitingForPeer)
}

// handleUserJoined records the newcomer. The server made the newcomer the
// initiator, so we wait for its offer.
func (s *Session) handleUserJoined(id string) {
	if id == s.sessionID {
		return
	}
	s.emit(Event{Kind: EventPeerJoined, PeerID: id})
	if s.peer != nil {
		slog.Warn("peer joined while a call is active", "peer", id, "current", s.remoteID)
		return
	}
	s.remoteID = id
}

func (s *Session) handleSignal(d protocol.SignalDelivery) {
	if s.peer != nil {
		if d.From != s.remoteID {
			slog.Warn("signal from unexpected peer dropped", "from", d.From, "current", s.remoteID)
			return
		}
		s.applySignal(d.Signal)
		return
	}

	if protocol.SignalKind(d.Signal) != protocol.SignalOffer {
		s.pending = append(s.pending, queuedSignal{from: d.From, sig: d.Signal})
		slog.Debug("signal queued until offer", "from", d.From, "queued", len(s.pending))
		return
	}

	s.remoteID = d.From
	s.initiator = false
	s.setState(StateConnecting)
	if !s.createPeer(false) {
		s.pending = nil
		s.setState(StateWaitingForPeer)
		return
	}

	s.applySignal(d.Signal)

	queued := s.pending
	s.pending = nil
	for _, q := range queued {
		if s.peer == nil {
			return
		}
		if q.from != d.From {
			slog.Debug("queued signal from another peer dropped", "from", q.from, "current", d.From)
			continue
		}
		s.applySignal(q.sig)
	}
}

func (s *Session) applySignal(sig json.RawMessage) {
	if err := s.peer.Signal(sig); err != nil {
		e := WrapError("apply "+protocol.SignalKind(sig), ErrNegotiation, err.Error())
		slog.Warn("signal failed", "error", e)
		s.emit(Event{Kind: EventError, Err: e})
	}
}

func (s *Session) handleUserLeft(id string) {
	s.pending = slices.DeleteFunc(s.pending, func(q queuedSignal) bool { return q.from == id })
	if id != s.remoteID {
		return
	}
	slog.Info("peer left", "peer", id)
	s.peerGone()
}

func (s *Session) handleServerError(p protocol.ErrorPayload) {
	slog.Warn("server error", "code", p.Code, "error", p.Error)

	if s.state == StateJoining {
		switch p.Code {
		case protocol.CodeRoomFull:
			s.fail(NewError("join "+s.cfg.RoomID, ErrRoomFull))
			return
		case protocol.CodeInvalidRoom, protocol.CodeBadRequest:
			s.fail(WrapError("join "+s.cfg.RoomID, ErrJoinRejected, p.Error))
			return
		}
	}
	s.emit(Event{Kind: EventError, Err: errors.New(p.Error)})
}

// createPeer builds a peer whose callbacks are bound to a new generation, so
// that callbacks from any earlier peer are recognised as stale.
func (s *Session) createPeer(initiator bool) bool {
	s.gen++
	gen := s.gen

	peer, err := s.cfg.NewPeer(PeerOptions{
		Initiator: initiator,
		Media:     s.media,
		Events:    s.peerEvents(gen),
	})
	if err != nil {
		e := WrapError("create peer", ErrPeerCreate, err.Error())
		slog.Error("peer creation failed", "error", e)
		s.emit(Event{Kind: EventError, Err: e})
		return false
	}
	s.peer = peer
	slog.Debug("peer created", "initiator", initiator, "remote", s.remoteID, "gen", gen)
	return true
}

func (s *Session) peerEvents(gen uint64) PeerEvents {
	// live reports whether gen is still the current peer.
	live := func() bool {
		return s.peer != nil && s.gen == gen && !s.state.Terminal()
	}

	return PeerEvents{
		OnSignal: func(sig json.RawMessage) {
			s.post(func() {
				if !live() {
					return
				}
				s.send(protocol.TypeSignal, protocol.SignalRequest{
					To:     s.remoteID,
					From:   s.sessionID,
					Signal: sig,
					RoomID: s.cfg.RoomID,
				})
			})
		},
		OnConnect: func() {
			s.post(func() {
				if !live() {
					return
				}
				s.connected()
				if err := s.peer.SendMediaState(s.audio, s.video); err != nil {
					slog.Debug("media state not sent", "error", err)
				}
			})
		},
		OnStream: func(kind string) {
			s.post(func() {
				if !live() {
					return
				}
				s.emit(Event{Kind: EventStream, Stream: kind, PeerID: s.remoteID})
				s.connected()
			})
		},
		OnClose: func() {
			s.post(func() {
				if !live() {
					return
				}
				slog.Info("peer connection closed", "peer", s.remoteID)
				s.peerGone()
			})
		},
		OnError: func(err error) {
			s.post(func() {
				if !live() {
					return
				}
				slog.Warn("peer error", "error", err)
				s.emit(Event{Kind: EventError, Err: WrapError("peer", ErrNegotiation, err.Error())})
			})
		},
		OnRemoteMedia: func(audio, video bool) {
			s.post(func() {
				if !live() {
					return
				}
				s.emit(Event{Kind: EventRemoteMedia, PeerID: s.remoteID, Audio: audio, Video: video})
			})
		},
	}
}

func (s *Session) connected() {
	if s.state == StateConnecting {
		s.setState(StateConnected)
	}
}

// peerGone returns to waiting after the remote left or the connection died.
// Whoever joins next is the initiator, so our role resets.
func (s *Session) peerGone() {
	id := s.remoteID
	s.destroyPeer()
	s.remoteID = ""
	s.emit(Event{Kind: EventPeerLeft, PeerID: id})
	s.setState(StateWaitingForPeer)
}

func (s *Session) destroyPeer() {
	if s.peer != nil {
		if err := s.peer.Close(); err != nil {
			slog.Debug("peer close", "error", err)
		}
		s.peer = nil
	}
	s.gen++
	s.pending = nil
	s.initiator = false
}

func (s *Session) release() {
	s.destroyPeer()
	if s.media != nil {
		s.media.Stop()
		s.media = nil
	}
}

func (s *Session) leave() {
	s.send(protocol.TypeLeave, s.cfg.RoomID)
	s.close()
}

func (s *Session) close() {
	s.release()
	s.setState(StateClosed)
}

func (s *Session) fail(err error) {
	s.err = err
	s.release()
	s.emit(Event{Kind: EventError, Err: err})
	s.setState(StateError)
}

func (s *Session) send(msgType string, payload any) {
	msg, err := protocol.New(msgType, payload)
	if err != nil {
		slog.Error("encode frame", "type", msgType, "error", err)
		return
	}
	if err := s.cfg.Transport.Send(msg); err != nil {
		slog.Warn("send to signaling server failed", "type", msgType, "error", err)
	}
}

func (s *Session) setState(st State) {
	if s.state == st {
		return
	}
	slog.Debug("call state", "from", s.state, "to", st)
	s.state = st
	s.current.Store(int32(st))
	s.emit(Event{Kind: EventState, State: st})
}

func (s *Session) emit(e Event) {
	if s.cfg.OnEvent != nil {
		s.cfg.OnEvent(e)
	}
}

// post queues fn for the loop. It never blocks.
func (s *Session) post(fn func()) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.inbox = append(s.inbox, fn)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// drain runs queued work until the mailbox is empty, including work queued
// by the work itself.
func (s *Session) drain() {
	for {
		s.mu.Lock()
		batch := s.inbox
		s.inbox = nil
		s.mu.Unlock()

		if len(batch) == 0 {
			return
		}
		for _, fn := range batch {
			fn()
		}
	}
}

func (s *Session) stop() {
	s.mu.Lock()
	s.stopped = true
	s.inbox = nil
	s.mu.Unlock()
}
