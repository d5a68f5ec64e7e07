package webrtc

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	pion "github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JohanEM99/video-meet/internal/call"
	"github.com/JohanEM99/video-meet/internal/config"
	"github.com/JohanEM99/video-meet/internal/protocol"
)

func TestMediaStateMessage(t *testing.T) {
	data, err := EncodeMessage(MessageTypeMediaState, MediaStatePayload{Audio: false, Video: true})
	require.NoError(t, err)

	msg, err := ParseMessage(data)
	require.NoError(t, err)
	assert.Equal(t, MessageTypeMediaState, msg.Type)

	var state MediaStatePayload
	require.NoError(t, msg.DecodePayload(&state))
	assert.False(t, state.Audio)
	assert.True(t, state.Video)

	_, err = ParseMessage([]byte{0xc1})
	assert.Error(t, err)
}

func TestICEConfiguration(t *testing.T) {
	cfg := &config.Config{STUNServers: config.DefaultSTUNServers}

	ice := ICEConfiguration(cfg, true)
	require.Len(t, ice.ICEServers, 1)
	assert.Equal(t, config.DefaultSTUNServers, ice.ICEServers[0].URLs)
	// Forcing relay without a TURN server would leave no usable candidates.
	assert.Equal(t, pion.ICETransportPolicyAll, ice.ICETransportPolicy)

	cfg.TURNServer = "turn:relay.example.com"
	cfg.TURNUser, cfg.TURNPass = "u", "p"
	ice = ICEConfiguration(cfg, true)
	require.Len(t, ice.ICEServers, 2)
	assert.Equal(t, "u", ice.ICEServers[1].Username)
	assert.Equal(t, pion.ICETransportPolicyRelay, ice.ICETransportPolicy)

	ice = ICEConfiguration(cfg, false)
	assert.Equal(t, pion.ICETransportPolicyAll, ice.ICETransportPolicy)
}

func TestLikelyRelayed(t *testing.T) {
	lan := []net.Addr{&net.IPNet{IP: net.ParseIP("192.168.1.20"), Mask: net.CIDRMask(24, 32)}}
	cgnat := []net.Addr{&net.IPNet{IP: net.ParseIP("100.100.4.2"), Mask: net.CIDRMask(10, 32)}}

	assert.False(t, likelyRelayed([]string{"eth0"}, [][]net.Addr{lan}))
	assert.True(t, likelyRelayed([]string{"wg0"}, [][]net.Addr{lan}))
	assert.True(t, likelyRelayed([]string{"eth0"}, [][]net.Addr{cgnat}))
}

func TestDeviceMissingFile(t *testing.T) {
	d := &Device{VideoFile: filepath.Join(t.TempDir(), "missing.ivf")}
	_, err := d.Acquire(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, call.ErrDeviceAccess)
}

func TestDeviceNotAnIVF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "video.ivf")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a video"), 0o600))

	_, err := (&Device{VideoFile: path}).Acquire(context.Background())
	assert.ErrorIs(t, err, call.ErrDeviceAccess)
}

func TestDeviceReceiveOnly(t *testing.T) {
	m, err := (&Device{}).Acquire(context.Background())
	require.NoError(t, err)

	local := m.(*LocalMedia)
	assert.Empty(t, local.Tracks())
	local.Stop()
	local.Stop()
}

// writeIVF writes a minimal VP8 IVF file with n tiny frames.
func writeIVF(t *testing.T, n int) string {
	t.Helper()

	header := make([]byte, 32)
	copy(header[0:4], "DKIF")
	binary.LittleEndian.PutUint16(header[4:], 0)   // version
	binary.LittleEndian.PutUint16(header[6:], 32)  // header size
	copy(header[8:12], "VP80")                     // fourcc
	binary.LittleEndian.PutUint16(header[12:], 64) // width
	binary.LittleEndian.PutUint16(header[14:], 48) // height
	binary.LittleEndian.PutUint32(header[16:], 30) // timebase denominator
	binary.LittleEndian.PutUint32(header[20:], 1)  // timebase numerator
	binary.LittleEndian.PutUint32(header[24:], uint32(n))

	data := header
	for i := 0; i < n; i++ {
		frame := make([]byte, 12+4)
		binary.LittleEndian.PutUint32(frame[0:], 4)
		binary.LittleEndian.PutUint64(frame[4:], uint64(i))
		copy(frame[12:], []byte{0x10, 0x02, 0x00, 0x9d})
		data = append(data, frame...)
	}

	path := filepath.Join(t.TempDir(), "camera.ivf")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestDeviceVideoFile(t *testing.T) {
	m, err := (&Device{VideoFile: writeIVF(t, 3)}).Acquire(context.Background())
	require.NoError(t, err)
	local := m.(*LocalMedia)
	defer local.Stop()

	require.Len(t, local.Tracks(), 1)
	track := local.Tracks()[0]
	assert.Equal(t, pion.RTPCodecTypeVideo, track.Kind())
	assert.Equal(t, pion.MimeTypeVP8, track.Codec().MimeType)

	local.SetVideoEnabled(false)
	assert.False(t, local.VideoEnabled())
	assert.True(t, local.AudioEnabled())
}

func TestPeerNegotiation(t *testing.T) {
	cfg := &config.Config{}

	aOut := make(chan json.RawMessage, 64)
	bOut := make(chan json.RawMessage, 64)

	a, err := NewPeer(cfg, false, nil, call.PeerOptions{
		Initiator: true,
		Events:    call.PeerEvents{OnSignal: func(sig json.RawMessage) { aOut <- sig }},
	})
	require.NoError(t, err)
	defer a.Close()

	offer := next(t, aOut)
	require.Equal(t, protocol.SignalOffer, protocol.SignalKind(offer))
	assert.Equal(t, pion.SignalingStateHaveLocalOffer, a.SignalingState())

	b, err := NewPeer(cfg, false, nil, call.PeerOptions{
		Events: call.PeerEvents{OnSignal: func(sig json.RawMessage) { bOut <- sig }},
	})
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.Signal(offer))
	answer := next(t, bOut)
	require.Equal(t, protocol.SignalAnswer, protocol.SignalKind(answer))

	require.NoError(t, a.Signal(answer))
	assert.Equal(t, pion.SignalingStateStable, a.SignalingState())
	assert.Equal(t, pion.SignalingStateStable, b.SignalingState())

	assert.ErrorIs(t, a.Signal(json.RawMessage(`{"type":"pranswer"}`)), ErrUnexpectedSignal)
	assert.ErrorIs(t, a.SendMediaState(true, true), ErrChannelNotOpen)
}

func TestRemoteCandidateHeldUntilDescription(t *testing.T) {
	b, err := NewPeer(&config.Config{}, false, nil, call.PeerOptions{})
	require.NoError(t, err)
	defer b.Close()

	sig := json.RawMessage(`{"type":"candidate","candidate":{"candidate":"candidate:1 1 udp 2130706431 192.0.2.1 50000 typ host","sdpMid":"0","sdpMLineIndex":0}}`)
	require.NoError(t, b.Signal(sig))

	b.mu.Lock()
	defer b.mu.Unlock()
	assert.Len(t, b.remotePending, 1)
	assert.False(t, b.remoteReady)
}

func next(t *testing.T, ch <-chan json.RawMessage) json.RawMessage {
	t.Helper()
	select {
	case sig := <-ch:
		return sig
	case <-time.After(5 * time.Second):
		t.Fatal("no signal emitted")
		return nil
	}
}
