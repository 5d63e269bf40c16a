package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kra-mo/filen-desktop/internal/state"
)

func newBandwidthCmd() *cobra.Command {
	var upload, download int64

	cmd := &cobra.Command{
		Use:   "bandwidth",
		Short: "Set transfer bandwidth limits",
		Long: `Set per-direction bandwidth limits in Kbps. Zero means unlimited.
Limits apply to sync transfers; manual transfers are unthrottled.

Examples:
  filen-desktop bandwidth --upload 4096 --download 16384
  filen-desktop bandwidth --upload 0`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if upload < 0 || download < 0 {
				return fmt.Errorf("limits must be non-negative, got upload=%s download=%s",
					strconv.FormatInt(upload, 10), strconv.FormatInt(download, 10))
			}

			logger := buildLogger()

			store, err := openStore(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer store.Close()

			settings := state.Networking(store)

			if cmd.Flags().Changed("upload") {
				settings.UploadKbps = upload
			}

			if cmd.Flags().Changed("download") {
				settings.DownloadKbps = download
			}

			if err := state.SetNetworking(store, settings); err != nil {
				return fmt.Errorf("writing networking settings: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Upload limit: %s Kbps, download limit: %s Kbps\n",
				formatKbps(settings.UploadKbps), formatKbps(settings.DownloadKbps))

			return nil
		},
	}

	cmd.Flags().Int64Var(&upload, "upload", 0, "upload limit in Kbps (0 = unlimited)")
	cmd.Flags().Int64Var(&download, "download", 0, "download limit in Kbps (0 = unlimited)")

	return cmd
}
