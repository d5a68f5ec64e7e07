package version

// Version is the current version of the meet client and signaling server.
// This value can be overridden at build time using:
//   go build -ldflags="-X 'github.com/JohanEM99/video-meet/internal/version.Version=v1.0.0'"
var Version = "dev"
