package cmd

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JohanEM99/video-meet/internal/names"
	"github.com/JohanEM99/video-meet/internal/ui"
)

var joinFlags callFlags

var joinCmd = &cobra.Command{
	Use:     "join [room-id|url]",
	Aliases: []string{"j"},
	Short:   "Join a call room",
	Long: `Join a call room and connect to whoever else is in it.

Without a room ID a new one is generated. A room holds at most two people.

Examples:
  meet join abc123
  meet join ws://meet.example.com/ws?room=abc123
  meet join abc123 --name alice --video cam.ivf --audio mic.ogg
  meet join abc123 --relay --turn turn.example.com:3478`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var roomID string
		var err error
		if len(args) == 1 {
			roomID, err = parseRoomInput(args[0])
			if joinFlags.server == "" {
				joinFlags.server = serverFromLink(args[0])
			}
		} else {
			roomID, err = names.RoomID()
		}
		if err != nil {
			return err
		}
		return runCall(cmd.Context(), roomID, &joinFlags)
	},
}

// parseRoomInput accepts a bare room ID or a link carrying one, either as a
// room query parameter or as the last path segment after /r/.
func parseRoomInput(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("room ID cannot be empty")
	}

	if strings.Contains(input, "://") {
		roomID, err := extractRoomIDFromURL(input)
		if err != nil {
			return "", err
		}
		ui.PrintSuccessf("Extracted room ID: %s", roomID)
		input = roomID
	}

	if !names.ValidRoomID(input) {
		return "", fmt.Errorf("invalid room ID %q: use letters, digits, '-' or '_' (max 64)", input)
	}
	return input, nil
}

// serverFromLink returns the signaling URL of a ws or wss room link, or ""
// for anything else.
func serverFromLink(input string) string {
	u, err := url.Parse(strings.TrimSpace(input))
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return ""
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

func extractRoomIDFromURL(urlStr string) (string, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return "", fmt.Errorf("parse URL: %w", err)
	}

	if id := parsedURL.Query().Get("room"); id != "" {
		return id, nil
	}

	path := strings.TrimSuffix(parsedURL.Path, "/")
	parts := strings.Split(path, "/")

	for i, part := range parts {
		if part == "r" && i+1 < len(parts) && parts[i+1] != "" {
			return parts[i+1], nil
		}
	}

	return "", fmt.Errorf("could not extract room ID from URL: %s", urlStr)
}

func init() {
	rootCmd.AddCommand(joinCmd)
	joinFlags.register(joinCmd)
}
