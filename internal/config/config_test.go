package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	// Run from a directory without a .env so only t.Setenv values apply.
	t.Chdir(t.TempDir())
	for _, k := range []string{
		"SERVER_URL", "DISPLAY_NAME", "STUN_SERVER", "TURN_SERVER", "TURN_USERNAME", "TURN_PASSWORD",
		"PORT", "ORIGIN", "SHUTDOWN_TIMEOUT",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, DefaultServerURL, cfg.ServerURL)
	assert.Equal(t, DefaultSTUNServers, cfg.GetSTUNServers())
	assert.Nil(t, cfg.GetTURNServers())
	assert.Empty(t, cfg.DisplayName)
}

func TestLoadPrecedence(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVER_URL", "wss://env.example.com/ws")
	t.Setenv("DISPLAY_NAME", "env-name")
	t.Setenv("STUN_SERVER", "stun:a.example.com:3478, stun:b.example.com:3478")

	cfg, err := Load(Options{DisplayName: "flag-name"})
	require.NoError(t, err)
	assert.Equal(t, "wss://env.example.com/ws", cfg.ServerURL)
	assert.Equal(t, "flag-name", cfg.DisplayName)
	assert.Equal(t, []string{"stun:a.example.com:3478", "stun:b.example.com:3478"}, cfg.STUNServers)

	cfg, err = Load(Options{ServerURL: "ws://flag.example.com:9000/ws"})
	require.NoError(t, err)
	assert.Equal(t, "ws://flag.example.com:9000/ws", cfg.ServerURL)
}

func TestLoadRejectsBadServerURL(t *testing.T) {
	clearEnv(t)

	_, err := Load(Options{ServerURL: "http://example.com/ws"})
	assert.Error(t, err)

	_, err = Load(Options{ServerURL: "ws:///ws"})
	assert.Error(t, err)
}

func TestTURNServers(t *testing.T) {
	cfg := &Config{TURNServer: "turn:relay.example.com", TURNUser: "u", TURNPass: "p"}
	assert.Equal(t, []string{
		"turn:relay.example.com:3478?transport=udp",
		"turn:relay.example.com:3478?transport=tcp",
		"turns:relay.example.com:5349?transport=tcp",
	}, cfg.GetTURNServers())

	cfg.TURNServer = "relay.example.com:3479"
	assert.Equal(t, []string{
		"turn:relay.example.com:3479?transport=udp",
		"turn:relay.example.com:3479?transport=tcp",
	}, cfg.GetTURNServers())

	cfg.TURNServer = "turn:relay.example.com:443?transport=tcp"
	assert.Equal(t, []string{"turn:relay.example.com:443?transport=tcp"}, cfg.GetTURNServers())

	user, pass := cfg.GetTURNCredentials()
	assert.Equal(t, "u", user)
	assert.Equal(t, "p", pass)
}

func TestLoadServer(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadServer()
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, ":9000", cfg.Addr())
	assert.Empty(t, cfg.AllowedOrigins)
	assert.Equal(t, DefaultShutdownTimeout, cfg.ShutdownTimeout)

	t.Setenv("PORT", "8081")
	t.Setenv("ORIGIN", "http://localhost:5173, https://meet.example.com,")
	t.Setenv("SHUTDOWN_TIMEOUT", "3s")

	cfg, err = LoadServer()
	require.NoError(t, err)
	assert.Equal(t, 8081, cfg.Port)
	assert.Equal(t, []string{"http://localhost:5173", "https://meet.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
}

func TestLoadServerInvalid(t *testing.T) {
	clearEnv(t)

	t.Setenv("PORT", "abc")
	_, err := LoadServer()
	assert.Error(t, err)

	t.Setenv("PORT", "")
	t.Setenv("SHUTDOWN_TIMEOUT", "soon")
	_, err = LoadServer()
	assert.Error(t, err)
}
