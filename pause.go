package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kra-mo/filen-desktop/internal/state"
)

// pauseFlags maps the --direction flag to the store key it toggles.
var pauseFlags = map[string]string{
	"all":      state.KeyPaused,
	"upload":   state.KeyUploadPaused,
	"download": state.KeyDownloadPaused,
}

func newPauseCmd() *cobra.Command {
	var direction string

	cmd := &cobra.Command{
		Use:   "pause",
		Short: "Pause transfers",
		Long: `Pause transfers. Running transfers suspend before their next attempt
and resume automatically when the flag is cleared.

Examples:
  filen-desktop pause
  filen-desktop pause --direction upload`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return setPauseFlag(cmd, direction, true)
		},
	}

	cmd.Flags().StringVar(&direction, "direction", "all", "all, upload, or download")

	return cmd
}

func newResumeCmd() *cobra.Command {
	var direction string

	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume transfers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return setPauseFlag(cmd, direction, false)
		},
	}

	cmd.Flags().StringVar(&direction, "direction", "all", "all, upload, or download")

	return cmd
}

// setPauseFlag writes the pause flag for a direction. Waiting transfers
// notice within one poll interval.
func setPauseFlag(cmd *cobra.Command, direction string, paused bool) error {
	key, ok := pauseFlags[direction]
	if !ok {
		return fmt.Errorf("unknown direction %q (want all, upload, or download)", direction)
	}

	logger := buildLogger()

	store, err := openStore(cmd.Context(), logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := state.SetBool(store, key, paused); err != nil {
		return fmt.Errorf("writing pause flag: %w", err)
	}

	verb := "paused"
	if !paused {
		verb = "resumed"
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Transfers (%s) %s\n", direction, verb)

	return nil
}
