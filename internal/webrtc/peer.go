package webrtc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	pion "github.com/pion/webrtc/v4"

	"github.com/JohanEM99/video-meet/internal/call"
	"github.com/JohanEM99/video-meet/internal/config"
	"github.com/JohanEM99/video-meet/internal/protocol"
)

// CallChannelLabel is the label of the data channel carrying call control.
const CallChannelLabel = "call"

var (
	ErrUnexpectedSignal = errors.New("unexpected signal type")
	ErrConnectionFailed = errors.New("connection failed")
)

// Traffic counts bytes received on remote tracks across every peer of a call.
type Traffic struct {
	Audio atomic.Int64
	Video atomic.Int64
}

func (t *Traffic) add(kind pion.RTPCodecType, n int) {
	if t == nil {
		return
	}
	switch kind {
	case pion.RTPCodecTypeAudio:
		t.Audio.Add(int64(n))
	case pion.RTPCodecTypeVideo:
		t.Video.Add(int64(n))
	}
}

// Peer wraps a pion PeerConnection for one side of a two-party call.
//
// Local ICE candidates are held until our offer or answer has been handed
// out, and remote candidates are held until the remote description is set,
// so the signaling order on the wire never matters.
type Peer struct {
	pc      *pion.PeerConnection
	events  call.PeerEvents
	traffic *Traffic

	mu            sync.Mutex
	dc            *pion.DataChannel
	localReady    bool
	localPending  []pion.ICECandidateInit
	remoteReady   bool
	remotePending []pion.ICECandidateInit

	closing   atomic.Bool
	connected atomic.Bool
	closeOnce sync.Once
	goneOnce  sync.Once
}

// Factory returns a call.PeerFactory building pion peers from cfg.
func Factory(cfg *config.Config, forceRelay bool, traffic *Traffic) call.PeerFactory {
	return func(opts call.PeerOptions) (call.Peer, error) {
		return NewPeer(cfg, forceRelay, traffic, opts)
	}
}

// NewPeer creates the connection, attaches local media and, for the
// initiator, opens the call data channel and emits the offer.
func NewPeer(cfg *config.Config, forceRelay bool, traffic *Traffic, opts call.PeerOptions) (*Peer, error) {
	pc, err := NewPeerConnection(cfg, forceRelay)
	if err != nil {
		return nil, err
	}

	p := &Peer{pc: pc, events: opts.Events, traffic: traffic}

	if err := p.attachMedia(opts.Media, opts.Initiator); err != nil {
		pc.Close()
		return nil, err
	}
	p.setupHandlers()

	if opts.Initiator {
		dc, err := pc.CreateDataChannel(CallChannelLabel, &pion.DataChannelInit{Ordered: ptr(true)})
		if err != nil {
			pc.Close()
			return nil, fmt.Errorf("create data channel: %w", err)
		}
		p.setupDataChannel(dc)

		if err := p.offer(); err != nil {
			pc.Close()
			return nil, err
		}
	}

	return p, nil
}

func ptr[T any](v T) *T { return &v }

// attachMedia adds our tracks. Without local media the initiator still asks
// for the remote's audio and video.
func (p *Peer) attachMedia(m call.Media, initiator bool) error {
	local, _ := m.(*LocalMedia)

	var haveAudio, haveVideo bool
	if local != nil {
		for _, track := range local.Tracks() {
			sender, err := p.pc.AddTrack(track)
			if err != nil {
				return fmt.Errorf("add %s track: %w", track.Kind(), err)
			}
			go drainRTCP(sender)
			switch track.Kind() {
			case pion.RTPCodecTypeAudio:
				haveAudio = true
			case pion.RTPCodecTypeVideo:
				haveVideo = true
			}
		}
	}

	if !initiator {
		return nil
	}
	recvonly := pion.RTPTransceiverInit{Direction: pion.RTPTransceiverDirectionRecvonly}
	if !haveAudio {
		if _, err := p.pc.AddTransceiverFromKind(pion.RTPCodecTypeAudio, recvonly); err != nil {
			return fmt.Errorf("add audio transceiver: %w", err)
		}
	}
	if !haveVideo {
		if _, err := p.pc.AddTransceiverFromKind(pion.RTPCodecTypeVideo, recvonly); err != nil {
			return fmt.Errorf("add video transceiver: %w", err)
		}
	}
	return nil
}

// drainRTCP reads incoming RTCP so interceptors such as NACK keep working.
func drainRTCP(sender *pion.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func (p *Peer) setupHandlers() {
	p.pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()

		p.mu.Lock()
		defer p.mu.Unlock()
		if !p.localReady {
			p.localPending = append(p.localPending, init)
			return
		}
		p.emitCandidate(init)
	})

	p.pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		slog.Debug("peer connection state", "state", state.String())
		switch state {
		case pion.PeerConnectionStateConnected:
			if p.connected.CompareAndSwap(false, true) && p.events.OnConnect != nil {
				p.events.OnConnect()
			}
		case pion.PeerConnectionStateFailed:
			if p.events.OnError != nil {
				p.events.OnError(ErrConnectionFailed)
			}
			p.gone()
		case pion.PeerConnectionStateClosed:
			p.gone()
		}
	})

	p.pc.OnTrack(func(track *pion.TrackRemote, _ *pion.RTPReceiver) {
		kind := track.Kind()
		slog.Info("remote track", "kind", kind.String(), "codec", track.Codec().MimeType)
		if p.events.OnStream != nil {
			p.events.OnStream(kind.String())
		}

		buf := make([]byte, 1500)
		for {
			n, _, err := track.Read(buf)
			if err != nil {
				if !errors.Is(err, io.EOF) {
					slog.Debug("remote track ended", "kind", kind.String(), "error", err)
				}
				return
			}
			p.traffic.add(kind, n)
		}
	})

	p.pc.OnDataChannel(func(dc *pion.DataChannel) {
		if dc.Label() != CallChannelLabel {
			slog.Debug("ignoring data channel", "label", dc.Label())
			return
		}
		p.setupDataChannel(dc)
	})
}

// gone reports the end of the connection once, unless we closed it ourselves.
func (p *Peer) gone() {
	if p.closing.Load() {
		return
	}
	p.goneOnce.Do(func() {
		if p.events.OnClose != nil {
			p.events.OnClose()
		}
	})
}

func (p *Peer) setupDataChannel(dc *pion.DataChannel) {
	p.mu.Lock()
	p.dc = dc
	p.mu.Unlock()

	dc.OnOpen(func() {
		if err := sendDeviceInfo(dc); err != nil {
			slog.Debug("device info not sent", "error", err)
		}
	})

	dc.OnMessage(func(msg pion.DataChannelMessage) {
		message, err := ParseMessage(msg.Data)
		if err != nil {
			slog.Debug("bad data channel message", "error", err)
			return
		}

		switch message.Type {
		case MessageTypeMediaState:
			var state MediaStatePayload
			if err := message.DecodePayload(&state); err != nil {
				return
			}
			if p.events.OnRemoteMedia != nil {
				p.events.OnRemoteMedia(state.Audio, state.Video)
			}
		case MessageTypeDeviceInfo:
			var info DeviceInfoPayload
			if err := message.DecodePayload(&info); err != nil {
				return
			}
			slog.Info("remote device", "name", info.DeviceName, "version", info.DeviceVersion)
		}
	})
}

func (p *Peer) offer() error {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	p.emitDescription(*p.pc.LocalDescription())
	return nil
}

func (p *Peer) answer(offer pion.SessionDescription) error {
	if err := p.pc.SetRemoteDescription(offer); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	p.remoteDescriptionSet()

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	p.emitDescription(*p.pc.LocalDescription())
	return nil
}

// emitDescription hands out our offer or answer followed by every candidate
// gathered so far.
func (p *Peer) emitDescription(desc pion.SessionDescription) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.emit(protocol.SignalData{Type: desc.Type.String(), SDP: desc.SDP})
	p.localReady = true
	for _, c := range p.localPending {
		p.emitCandidate(c)
	}
	p.localPending = nil
}

func (p *Peer) emitCandidate(c pion.ICECandidateInit) {
	raw, err := json.Marshal(c)
	if err != nil {
		slog.Warn("encode candidate", "error", err)
		return
	}
	p.emit(protocol.SignalData{Type: protocol.SignalCandidate, Candidate: raw})
}

func (p *Peer) emit(data protocol.SignalData) {
	if p.events.OnSignal == nil {
		return
	}
	raw, err := json.Marshal(data)
	if err != nil {
		slog.Warn("encode signal", "error", err)
		return
	}
	p.events.OnSignal(raw)
}

// Signal applies an offer, answer or candidate from the remote.
func (p *Peer) Signal(raw json.RawMessage) error {
	var data protocol.SignalData
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("decode signal: %w", err)
	}

	switch data.Type {
	case protocol.SignalOffer:
		return p.answer(pion.SessionDescription{Type: pion.SDPTypeOffer, SDP: data.SDP})

	case protocol.SignalAnswer:
		if err := p.pc.SetRemoteDescription(pion.SessionDescription{Type: pion.SDPTypeAnswer, SDP: data.SDP}); err != nil {
			return fmt.Errorf("set remote description: %w", err)
		}
		p.remoteDescriptionSet()
		return nil

	case protocol.SignalCandidate:
		var ice pion.ICECandidateInit
		if err := json.Unmarshal(data.Candidate, &ice); err != nil {
			return fmt.Errorf("parse ICE candidate: %w", err)
		}
		p.mu.Lock()
		if !p.remoteReady {
			p.remotePending = append(p.remotePending, ice)
			p.mu.Unlock()
			return nil
		}
		p.mu.Unlock()
		if err := p.pc.AddICECandidate(ice); err != nil {
			return fmt.Errorf("add ICE candidate: %w", err)
		}
		return nil
	}

	return fmt.Errorf("%w: %q", ErrUnexpectedSignal, data.Type)
}

func (p *Peer) remoteDescriptionSet() {
	p.mu.Lock()
	p.remoteReady = true
	pending := p.remotePending
	p.remotePending = nil
	p.mu.Unlock()

	for _, ice := range pending {
		if err := p.pc.AddICECandidate(ice); err != nil {
			slog.Warn("held candidate rejected", "error", err)
		}
	}
}

// SendMediaState tells the remote whether our audio and video are on.
func (p *Peer) SendMediaState(audio, video bool) error {
	p.mu.Lock()
	dc := p.dc
	p.mu.Unlock()
	return sendTyped(dc, MessageTypeMediaState, MediaStatePayload{Audio: audio, Video: video})
}

// SignalingState exposes the negotiation state.
func (p *Peer) SignalingState() pion.SignalingState {
	return p.pc.SignalingState()
}

// Close tears the connection down. It does not fire OnClose.
func (p *Peer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.closing.Store(true)
		err = p.pc.Close()
	})
	return err
}
