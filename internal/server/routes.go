package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"

	"github.com/gorilla/websocket"

	"github.com/JohanEM99/video-meet/internal/signaling"
)

// NewUpgrader returns a websocket upgrader that accepts only the given
// origins. An empty list allows any origin, as does a request without an
// Origin header (non-browser clients such as the meet CLI).
func NewUpgrader(allowed []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  64 * 1024, // 64 KB
		WriteBufferSize: 64 * 1024, // 64 KB
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if slices.Contains(allowed, origin) {
				return true
			}
			slog.Warn("origin rejected", "origin", origin, "remote", r.RemoteAddr)
			return false
		},
	}
}

// ServeWs returns an http.HandlerFunc that handles websocket requests.
// It takes the hub as a dependency.
func ServeWs(hub *signaling.Hub, upgrader *websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("failed to upgrade connection", "remote", r.RemoteAddr, "error", err)
			return
		}

		client := signaling.NewClient(hub, conn)
		if !hub.Register(client) {
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			conn.Close()
			return
		}

		// These methods will handle the client's lifecycle
		go client.WritePump()
		go client.ReadPump()
	}
}

// Health reports liveness together with the hub's room and session counts.
func Health(hub *signaling.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, ok := hub.Stats()
		w.Header().Set("Content-Type", "application/json")
		if !ok {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "shutting down"})
			return
		}
		json.NewEncoder(w).Encode(struct {
			Status string `json:"status"`
			signaling.Stats
		}{Status: "ok", Stats: stats})
	}
}

// NewMux wires the signaling routes.
func NewMux(hub *signaling.Hub, allowedOrigins []string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", Health(hub))
	mux.HandleFunc("/ws", ServeWs(hub, NewUpgrader(allowedOrigins)))
	return mux
}
