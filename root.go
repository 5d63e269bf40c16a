package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/kra-mo/filen-desktop/internal/api"
	"github.com/kra-mo/filen-desktop/internal/state"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagStatePath string
	flagJSON      bool
	flagVerbose   bool
)

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "filen-desktop",
		Short:   "Encrypted cloud storage client",
		Long:    "Client core for end-to-end-encrypted cloud file synchronization.",
		Version: version,
		// Silence Cobra's default error/usage printing — we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(*cobra.Command, []string) {
			api.SetVersion(version)
		},
	}

	cmd.PersistentFlags().StringVar(&flagStatePath, "state", "", "state database path")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "log in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newPauseCmd())
	cmd.AddCommand(newResumeCmd())
	cmd.AddCommand(newBandwidthCmd())

	return cmd
}

// buildLogger creates an slog.Logger for CLI use. Terminals get text
// output; pipes and --json get JSON.
func buildLogger() *slog.Logger {
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}

	if flagJSON || !isatty.IsTerminal(os.Stderr.Fd()) {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}

	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// statePath resolves the state database location: the --state flag, or
// the default under the user config directory.
func statePath() (string, error) {
	if flagStatePath != "" {
		return flagStatePath, nil
	}

	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolving config directory: %w", err)
	}

	dir := filepath.Join(base, "filen-desktop")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}

	return filepath.Join(dir, "state.db"), nil
}

// openStore opens the persistent client state.
func openStore(ctx context.Context, logger *slog.Logger) (*state.SQLiteStore, error) {
	path, err := statePath()
	if err != nil {
		return nil, err
	}

	store, err := state.OpenSQLite(ctx, path, logger)
	if err != nil {
		return nil, fmt.Errorf("opening state store: %w", err)
	}

	return store, nil
}
