package cmd

import (
	"github.com/spf13/cobra"

	"github.com/JohanEM99/video-meet/internal/names"
)

var newFlags callFlags

var newCmd = &cobra.Command{
	Use:     "new",
	Aliases: []string{"n"},
	Short:   "Start a call in a fresh room",
	Long: `Generate a new room ID, print it so it can be shared, and wait in the
room for the other participant.

Examples:
  meet new
  meet new --server wss://meet.example.com/ws --name alice`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID, err := names.RoomID()
		if err != nil {
			return err
		}
		return runCall(cmd.Context(), roomID, &newFlags)
	},
}

func init() {
	rootCmd.AddCommand(newCmd)
	newFlags.register(newCmd)
}
