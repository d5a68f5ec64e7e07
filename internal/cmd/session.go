package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/JohanEM99/video-meet/internal/call"
	"github.com/JohanEM99/video-meet/internal/config"
	"github.com/JohanEM99/video-meet/internal/files"
	"github.com/JohanEM99/video-meet/internal/names"
	"github.com/JohanEM99/video-meet/internal/ui"
	"github.com/JohanEM99/video-meet/internal/webrtc"
	"github.com/JohanEM99/video-meet/internal/wsclient"
)

// leaveTimeout bounds how long we wait for the call loop after the screen
// has closed.
const leaveTimeout = 5 * time.Second

// callFlags are shared by every command that starts a call.
type callFlags struct {
	server   string
	name     string
	stun     string
	turn     string
	turnUser string
	turnPass string
	relay    bool
	video    string
	audio    string
}

func (f *callFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.server, "server", "", "Signaling server WebSocket URL")
	cmd.Flags().StringVarP(&f.name, "name", "n", "", "Display name shown to the other participant")
	cmd.Flags().StringVarP(&f.stun, "stun", "s", "", "Custom STUN server (comma separated)")
	cmd.Flags().StringVarP(&f.turn, "turn", "t", "", "Custom TURN server")
	cmd.Flags().StringVar(&f.turnUser, "turn-user", "", "TURN username")
	cmd.Flags().StringVar(&f.turnPass, "turn-pass", "", "TURN password")
	cmd.Flags().BoolVarP(&f.relay, "relay", "r", false, "Force relay mode")
	cmd.Flags().StringVar(&f.video, "video", "", "IVF file to send as the camera")
	cmd.Flags().StringVar(&f.audio, "audio", "", "Ogg/Opus file to send as the microphone")
}

func (f *callFlags) options() config.Options {
	return config.Options{
		ServerURL:   f.server,
		DisplayName: f.name,
		STUNServer:  f.stun,
		TURNServer:  f.turn,
		TURNUser:    f.turnUser,
		TURNPass:    f.turnPass,
	}
}

// LoadConfig loads the client config and checks it against the relay flag.
func LoadConfig(opts config.Options, forceRelay bool) (*config.Config, error) {
	cfg, err := config.Load(opts)
	if err != nil {
		return nil, call.NewError("load config", err)
	}

	if forceRelay && cfg.GetTURNServers() == nil {
		return nil, fmt.Errorf("cannot force relay mode without TURN server configured")
	}

	return cfg, nil
}

// relayMode decides whether ICE should be restricted to TURN relays.
func relayMode(cfg *config.Config, forced bool) bool {
	if forced {
		return true
	}
	if cfg.GetTURNServers() != nil && webrtc.ShouldForceRelay() {
		slog.Info("VPN or CGNAT detected, using relay mode")
		return true
	}
	return false
}

func runCall(ctx context.Context, roomID string, f *callFlags) error {
	cfg, err := LoadConfig(f.options(), f.relay)
	if err != nil {
		return err
	}

	media, err := files.ValidateMedia(f.video, f.audio)
	if err != nil {
		return err
	}
	if len(media) == 0 {
		ui.PrintWarning("No --video or --audio file given, joining receive-only")
	}
	for _, m := range media {
		ui.PrintInfof("Sending %s from %s (%s)", m.Kind, m.Name, ui.FormatSize(m.Size))
	}

	userID := cfg.DisplayName
	if userID == "" {
		userID = names.GuestName()
	}

	fmt.Println()
	sp := ui.RunConnectionSpinner("Connecting to server...")
	ws := wsclient.NewClient(cfg.ServerURL)
	if err := ws.Connect(ctx); err != nil {
		sp.Error("Could not reach " + cfg.ServerURL)
		return call.NewError("connect to server", err)
	}
	defer ws.Close()
	sp.Success("Connected to " + cfg.ServerURL)

	fmt.Println(ui.RoomInfoView(roomID, cfg.ServerURL))

	traffic := &webrtc.Traffic{}
	var screen *ui.CallModel

	session := call.NewSession(call.Config{
		RoomID:    roomID,
		UserID:    userID,
		Transport: ws,
		Device:    &webrtc.Device{VideoFile: f.video, AudioFile: f.audio},
		NewPeer:   webrtc.Factory(cfg, relayMode(cfg, f.relay), traffic),
		OnEvent:   func(e call.Event) { screen.Notify(e) },
	})

	screen = ui.NewCallModel(roomID, userID, ui.CallActions{
		SendChat:    session.SendChat,
		ToggleAudio: session.ToggleAudio,
		ToggleVideo: session.ToggleVideo,
		Leave:       session.Leave,
	}).WithRoomLink(ui.RoomLink(cfg.ServerURL, roomID))
	defer screen.Close()

	go func() {
		for msg := range ws.Incoming() {
			session.Deliver(msg)
		}
		session.Disconnected(ws.Err())
	}()

	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	started := time.Now()
	result := make(chan error, 1)
	go func() {
		result <- session.Run(callCtx)
	}()

	_, uiErr := tea.NewProgram(screen, tea.WithContext(ctx)).Run()
	if uiErr != nil && !errors.Is(uiErr, tea.ErrProgramKilled) {
		slog.Error("call screen failed", "error", uiErr)
	}
	screen.Close()

	// The screen may close before the call does (esc, ctrl+c, signal).
	session.Leave()

	var callErr error
	select {
	case callErr = <-result:
	case <-time.After(leaveTimeout):
		cancel()
		callErr = <-result
	}

	ui.RenderCallSummary(ui.CallSummary{
		RoomID:     roomID,
		Status:     session.State().String(),
		Duration:   time.Since(started),
		Messages:   session.Transcript().Len(),
		AudioBytes: traffic.Audio.Load(),
		VideoBytes: traffic.Video.Load(),
	})

	return callErr
}
