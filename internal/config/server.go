package config

import (
	"fmt"
	"strconv"
	"time"
)

// Default server configuration values
const (
	DefaultPort            = 9000
	DefaultShutdownTimeout = 10 * time.Second
)

// Server holds the signaling server configuration
type Server struct {
	// Port is the TCP port the HTTP server listens on
	Port int

	// AllowedOrigins are checked against the Origin header on upgrade.
	// An empty list allows any origin.
	AllowedOrigins []string

	// ShutdownTimeout bounds the graceful shutdown of HTTP and the hub
	ShutdownTimeout time.Duration
}

// LoadServer reads the server configuration from the environment, falling back
// to a .env file and then to defaults.
func LoadServer() (*Server, error) {
	loadDotEnv()

	port := DefaultPort
	if v := pick("", "PORT", ""); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil || p <= 0 || p > 65535 {
			return nil, fmt.Errorf("invalid PORT %q", v)
		}
		port = p
	}

	timeout := DefaultShutdownTimeout
	if v := pick("", "SHUTDOWN_TIMEOUT", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT %q: %w", v, err)
		}
		timeout = d
	}

	return &Server{
		Port:            port,
		AllowedOrigins:  splitList(pick("", "ORIGIN", "")),
		ShutdownTimeout: timeout,
	}, nil
}

// Addr returns the listen address for http.Server.
func (s *Server) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}
