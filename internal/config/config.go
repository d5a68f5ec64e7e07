package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Default client configuration values
const (
	DefaultServerURL = "ws://localhost:9000/ws"
	DefaultTURNUser  = ""
	DefaultTURNPass  = ""
)

// DefaultSTUNServers are used when no STUN server is configured.
var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
	"stun:global.stun.twilio.com:3478",
}

// Config holds the call client configuration
type Config struct {
	// ServerURL is the signaling server WebSocket endpoint
	ServerURL string

	// DisplayName is sent as the userId on join and chat; may be empty
	DisplayName string

	// ICE servers for WebRTC
	STUNServers []string
	TURNServer  string
	TURNUser    string
	TURNPass    string
}

// Options for loading config with CLI flag overrides
type Options struct {
	ServerURL   string
	DisplayName string
	STUNServer  string
	TURNServer  string
	TURNUser    string
	TURNPass    string
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. A .env file in the working directory
// 4. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	loadDotEnv()

	serverURL := pick(opts.ServerURL, "SERVER_URL", DefaultServerURL)
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server url %q: %w", serverURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("invalid server url %q: scheme must be ws or wss", serverURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid server url %q: missing host", serverURL)
	}

	stun := DefaultSTUNServers
	if s := pick(opts.STUNServer, "STUN_SERVER", ""); s != "" {
		stun = splitList(s)
	}

	return &Config{
		ServerURL:   serverURL,
		DisplayName: pick(opts.DisplayName, "DISPLAY_NAME", ""),
		STUNServers: stun,
		TURNServer:  pick(opts.TURNServer, "TURN_SERVER", ""),
		TURNUser:    pick(opts.TURNUser, "TURN_USERNAME", DefaultTURNUser),
		TURNPass:    pick(opts.TURNPass, "TURN_PASSWORD", DefaultTURNPass),
	}, nil
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	return c.STUNServers
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	if strings.Contains(c.TURNServer, "?transport=") {
		return []string{c.TURNServer}
	}
	host := strings.TrimPrefix(strings.TrimPrefix(c.TURNServer, "turns:"), "turn:")
	if h, port, err := net.SplitHostPort(host); err == nil {
		return []string{
			fmt.Sprintf("turn:%s:%s?transport=udp", h, port),
			fmt.Sprintf("turn:%s:%s?transport=tcp", h, port),
		}
	}
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", host),
		fmt.Sprintf("turn:%s:3478?transport=tcp", host),
		fmt.Sprintf("turns:%s:5349?transport=tcp", host),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

// pick returns flag, else the environment variable, else def.
func pick(flag, env, def string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv(env); v != "" {
		return v
	}
	return def
}

// loadDotEnv fills unset environment variables from ./.env. A missing file is
// not an error.
func loadDotEnv() {
	_ = godotenv.Load()
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
