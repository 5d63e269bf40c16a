// Package transfer is the chunk transfer engine: throttled, pausable
// uploads and downloads on top of the transport, plus the metadata
// operations (create, rename, move, trash, public links) that feed the
// metadata propagator.
package transfer

import (
	"context"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/kra-mo/filen-desktop/internal/api"
	"github.com/kra-mo/filen-desktop/internal/config"
	"github.com/kra-mo/filen-desktop/internal/crypto"
	"github.com/kra-mo/filen-desktop/internal/events"
	"github.com/kra-mo/filen-desktop/internal/pause"
	"github.com/kra-mo/filen-desktop/internal/state"
	"github.com/kra-mo/filen-desktop/internal/throttle"
)

// Item kinds as the wire protocol names them.
const (
	KindFile   = "file"
	KindFolder = "folder"
)

// Propagator pushes metadata changes to share recipients and public links.
// Both methods are best-effort and never report failure to the engine.
type Propagator interface {
	ItemAdded(ctx context.Context, kind, parentUUID, itemUUID string, meta crypto.Metadata)
	ItemRenamed(ctx context.Context, kind, itemUUID string, meta crypto.Metadata)
}

// noopPropagator is used when no propagator is attached.
type noopPropagator struct{}

func (noopPropagator) ItemAdded(context.Context, string, string, string, crypto.Metadata) {}
func (noopPropagator) ItemRenamed(context.Context, string, string, crypto.Metadata)       {}

// Engine coordinates chunk transfers and metadata operations. One engine
// serves the whole process; the directory-create gate and the two throttle
// groups it holds are process-global state.
type Engine struct {
	api        *api.Client
	cfg        config.Config
	store      state.Store
	bus        *events.Bus
	gate       *pause.Gate
	upGroup    *throttle.Group
	downGroup  *throttle.Group
	propagator Propagator
	logger     *slog.Logger

	// dirGate serializes createFolder across the process so the name-hash
	// check and create are atomic with respect to concurrent producers.
	dirGate *semaphore.Weighted

	// sleepFunc is overridden in tests to avoid real retry delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewEngine creates the transfer engine. propagator may be nil; metadata
// changes are then not fanned out.
func NewEngine(
	client *api.Client, cfg config.Config, store state.Store, bus *events.Bus,
	gate *pause.Gate, propagator Propagator, logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	if propagator == nil {
		propagator = noopPropagator{}
	}

	if bus == nil {
		bus = events.NewBus()
	}

	return &Engine{
		api:        client,
		cfg:        cfg,
		store:      store,
		bus:        bus,
		gate:       gate,
		upGroup:    throttle.NewGroup(throttle.UnlimitedRate),
		downGroup:  throttle.NewGroup(throttle.UnlimitedRate),
		propagator: propagator,
		logger:     logger,
		dirGate:    semaphore.NewWeighted(1),
		sleepFunc:  timeSleep,
	}
}

// UploadGroup returns the process-wide upload rate governor.
func (e *Engine) UploadGroup() *throttle.Group { return e.upGroup }

// DownloadGroup returns the process-wide download rate governor.
func (e *Engine) DownloadGroup() *throttle.Group { return e.downGroup }

// directionRate resolves the effective rate for one attempt: sync
// transfers honor the user's Kbps settings, everything else is effectively
// unlimited.
func directionRate(source pause.Source, kbps int64) int64 {
	if source == pause.SourceSync {
		return throttle.KbpsToBytes(kbps)
	}

	return throttle.UnlimitedRate
}

// progressReader emits byte deltas to the event bus as data flows through.
type progressReader struct {
	r     io.Reader
	bus   *events.Bus
	event string
	uuid  string
	from  string
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	if n > 0 {
		pr.bus.Emit(pr.event, events.Progress{UUID: pr.uuid, Bytes: int64(n), From: pr.from})
	}

	return n, err
}

// progressEvent picks the event name for a transfer source. Sync transfers
// use the aggregate progress event; everything else the per-item one.
func progressEvent(source pause.Source, upload bool) string {
	if upload {
		if source == pause.SourceSync {
			return events.UploadProgress
		}

		return events.UploadProgressSeperate
	}

	if source == pause.SourceSync {
		return events.DownloadProgress
	}

	return events.DownloadProgressSeperate
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
