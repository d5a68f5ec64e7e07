package ui

import (
	"fmt"
	"net/url"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// CallSummary is printed after the call screen closes.
type CallSummary struct {
	RoomID     string
	Status     string
	Duration   time.Duration
	Messages   int
	AudioBytes int64
	VideoBytes int64
}

// CallSummaryView renders the summary as a rounded table.
func CallSummaryView(s CallSummary) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.Style().Color.Header = text.Colors{text.FgCyan, text.Bold}
	t.Style().Format.Header = text.FormatDefault

	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Room", s.RoomID},
		{"Status", s.Status},
		{"Duration", FormatDuration(s.Duration)},
		{"Chat messages", s.Messages},
		{"Audio received", FormatSize(s.AudioBytes)},
		{"Video received", FormatSize(s.VideoBytes)},
	})
	return t.Render()
}

func RenderCallSummary(s CallSummary) {
	fmt.Println(TitleStyle.Render(IconTime + " Call summary"))
	fmt.Println(CallSummaryView(s))
}

// RoomLink is the server URL carrying the room, which join accepts as-is.
func RoomLink(serverURL, roomID string) string {
	u, err := url.Parse(serverURL)
	if err != nil {
		return serverURL + "?room=" + url.QueryEscape(roomID)
	}
	q := u.Query()
	q.Set("room", roomID)
	u.RawQuery = q.Encode()
	return u.String()
}

// RoomInfoView is the box shown when a room is ready to share.
func RoomInfoView(roomID, serverURL string) string {
	content := fmt.Sprintf("%s Room ready!\n\n%s Room ID:  %s\n%s Join:     %s\n\n%s",
		IconRoom,
		IconCopy, BoldStyle.Foreground(Primary).Render(roomID),
		IconConnect, MutedStyle.Render("meet join "+RoomLink(serverURL, roomID)),
		MutedStyle.Render("Press ctrl+l during the call to copy the link"),
	)

	return SuccessBoxStyle.Render(content)
}

// FormatSize formats bytes to human readable string
func FormatSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// FormatDuration formats duration to human readable string
func FormatDuration(d time.Duration) string {
	seconds := int(d.Seconds()) % 60
	minutes := int(d.Minutes()) % 60
	hours := int(d.Hours())

	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}
