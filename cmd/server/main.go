package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"

	"github.com/JohanEM99/video-meet/internal/config"
	"github.com/JohanEM99/video-meet/internal/logging"
	"github.com/JohanEM99/video-meet/internal/server"
	"github.com/JohanEM99/video-meet/internal/signaling"
	"github.com/JohanEM99/video-meet/internal/version"
)

func main() {
	logging.Init(slog.LevelInfo)

	cfg, err := config.LoadServer()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// The hub runs until hubCtx is cancelled by the shutdown hook below.
	hubCtx, stopHub := context.WithCancel(context.Background())
	hub := signaling.NewHub()
	go hub.Run(hubCtx)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.NewMux(hub, cfg.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("signaling server listening", "addr", srv.Addr, "version", version.Version, "origins", cfg.AllowedOrigins)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"http": func(ctx context.Context) error {
				// Shutdown does not wait for hijacked websocket connections;
				// the hub closes those.
				return srv.Shutdown(ctx)
			},
			"hub": func(ctx context.Context) error {
				stopHub()
				select {
				case <-hub.Done():
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			},
		},
	)

	exitCode := <-wait
	slog.Info("signaling server exited", "code", exitCode)
	os.Exit(exitCode)
}
