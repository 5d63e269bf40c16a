// Package pause implements the cooperative wait loop transfers pass through
// before every attempt. The gate polls the pause flags rather than being
// notified, so flag writers need not know about waiters.
package pause

import (
	"context"
	"log/slog"
	"time"

	"github.com/kra-mo/filen-desktop/internal/state"
)

// pollInterval is the cadence at which waiters re-check the flags.
const pollInterval = 1 * time.Second

// Source identifies where a transfer originated, which determines the
// flags consulted.
type Source string

// Transfer sources.
const (
	SourceSync     Source = "sync"
	SourceDownload Source = "download"
	SourceUpload   Source = "upload"
	SourceOther    Source = "other"
)

// LocationPauser reports whether a specific sync location is paused. The
// local sync engine provides the implementation.
type LocationPauser interface {
	IsSyncLocationPaused(locationUUID string) bool
}

// Gate blocks transfers while any applicable pause flag is set.
type Gate struct {
	store     state.Store
	locations LocationPauser
	logger    *slog.Logger

	// sleepFunc is overridden in tests to avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewGate creates a gate over the given store. locations may be nil when
// no sync engine is attached.
func NewGate(store state.Store, locations LocationPauser, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}

	return &Gate{
		store:     store,
		locations: locations,
		logger:    logger,
		sleepFunc: timeSleep,
	}
}

// Wait blocks until no applicable pause flag is set, polling at 1 s
// cadence. It returns early only if ctx is canceled.
func (g *Gate) Wait(ctx context.Context, source Source, locationUUID string) error {
	logged := false

	for g.paused(source, locationUUID) {
		if !logged {
			g.logger.Debug("transfer paused, waiting",
				slog.String("source", string(source)),
				slog.String("location", locationUUID),
			)

			logged = true
		}

		if err := g.sleepFunc(ctx, pollInterval); err != nil {
			return err
		}
	}

	if logged {
		g.logger.Debug("transfer resumed",
			slog.String("source", string(source)),
			slog.String("location", locationUUID),
		)
	}

	return nil
}

// paused evaluates the flags that apply to the given source.
func (g *Gate) paused(source Source, locationUUID string) bool {
	switch source {
	case SourceSync:
		if state.Bool(g.store, state.KeyPaused) {
			return true
		}

		if locationUUID != "" && g.locations != nil {
			return g.locations.IsSyncLocationPaused(locationUUID)
		}

		return false

	case SourceDownload:
		return state.Bool(g.store, state.KeyDownloadPaused)

	case SourceUpload:
		return state.Bool(g.store, state.KeyUploadPaused)

	default:
		return state.Bool(g.store, state.KeyPaused)
	}
}

// timeSleep waits for d or until ctx is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
