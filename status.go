package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kra-mo/filen-desktop/internal/state"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show client state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := buildLogger()

			store, err := openStore(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()

			loggedIn := state.APIKey(store) != ""
			fmt.Fprintf(out, "Logged in:           %v\n", loggedIn)
			fmt.Fprintf(out, "Paused:              %v\n", state.Bool(store, state.KeyPaused))
			fmt.Fprintf(out, "Upload paused:       %v\n", state.Bool(store, state.KeyUploadPaused))
			fmt.Fprintf(out, "Download paused:     %v\n", state.Bool(store, state.KeyDownloadPaused))
			fmt.Fprintf(out, "Storage exhausted:   %v\n", state.Bool(store, state.KeyMaxStorageReached))

			settings := state.Networking(store)
			fmt.Fprintf(out, "Upload limit Kbps:   %s\n", formatKbps(settings.UploadKbps))
			fmt.Fprintf(out, "Download limit Kbps: %s\n", formatKbps(settings.DownloadKbps))

			return nil
		},
	}
}

// formatKbps renders a Kbps limit, with 0 meaning unlimited.
func formatKbps(kbps int64) string {
	if kbps <= 0 {
		return "unlimited"
	}

	return fmt.Sprintf("%d", kbps)
}
