package main

import (
	"log/slog"

	"github.com/JohanEM99/video-meet/internal/cmd"
	"github.com/JohanEM99/video-meet/internal/logging"
)

func main() {
	// Errors only by default; the call screen owns the terminal.
	logging.Init(slog.LevelError)
	cmd.Execute()
}
