package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JohanEM99/video-meet/internal/config"
)

func TestParseRoomInput(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"abc123", "abc123"},
		{"  team_standup  ", "team_standup"},
		{"https://meet.example.com/r/abc123", "abc123"},
		{"https://meet.example.com/r/abc123/", "abc123"},
		{"ws://localhost:9000/ws?room=xyz-9", "xyz-9"},
	}
	for _, tt := range tests {
		got, err := parseRoomInput(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestParseRoomInputRejects(t *testing.T) {
	for _, in := range []string{"", "   ", "has space", "https://meet.example.com/nothing", "https://x/r/bad%20id"} {
		_, err := parseRoomInput(in)
		assert.Error(t, err, in)
	}
}

func TestServerFromLink(t *testing.T) {
	assert.Equal(t, "wss://meet.example.com/ws", serverFromLink("wss://meet.example.com/ws?room=abc123"))
	assert.Equal(t, "ws://localhost:9000/ws", serverFromLink(" ws://localhost:9000/ws?room=abc123#x "))
	assert.Empty(t, serverFromLink("https://meet.example.com/r/abc123"))
	assert.Empty(t, serverFromLink("abc123"))
}

func TestLoadConfigRelayNeedsTURN(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, k := range []string{"SERVER_URL", "STUN_SERVER", "TURN_SERVER", "TURN_USERNAME", "TURN_PASSWORD", "DISPLAY_NAME"} {
		t.Setenv(k, "")
	}

	_, err := LoadConfig(config.Options{}, true)
	require.Error(t, err)

	cfg, err := LoadConfig(config.Options{TURNServer: "turn.example.com:3478"}, true)
	require.NoError(t, err)
	assert.True(t, relayMode(cfg, true))

	cfg, err = LoadConfig(config.Options{}, false)
	require.NoError(t, err)
	assert.False(t, relayMode(cfg, false))
}

func TestCommandsRegistered(t *testing.T) {
	cmd, _, err := rootCmd.Find([]string{"j"})
	require.NoError(t, err)
	assert.Same(t, joinCmd, cmd)

	cmd, _, err = rootCmd.Find([]string{"new"})
	require.NoError(t, err)
	assert.Same(t, newCmd, cmd)

	for _, name := range []string{"server", "name", "stun", "turn", "turn-user", "turn-pass", "relay", "video", "audio"} {
		assert.NotNil(t, joinCmd.Flags().Lookup(name), name)
		assert.NotNil(t, newCmd.Flags().Lookup(name), name)
	}
}
