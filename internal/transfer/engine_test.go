package transfer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kra-mo/filen-desktop/internal/api"
	"github.com/kra-mo/filen-desktop/internal/config"
	"github.com/kra-mo/filen-desktop/internal/crypto"
	"github.com/kra-mo/filen-desktop/internal/events"
	"github.com/kra-mo/filen-desktop/internal/pause"
	"github.com/kra-mo/filen-desktop/internal/state"
)

// noopSleep is a sleep function that returns immediately, for fast tests.
func noopSleep(_ context.Context, _ time.Duration) error {
	return nil
}

// recordingPropagator captures propagation calls for assertions.
type recordingPropagator struct {
	mu      sync.Mutex
	added   []propagationCall
	renamed []propagationCall
}

type propagationCall struct {
	kind   string
	parent string
	uuid   string
	meta   crypto.Metadata
}

func (r *recordingPropagator) ItemAdded(_ context.Context, kind, parentUUID, itemUUID string, meta crypto.Metadata) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.added = append(r.added, propagationCall{kind: kind, parent: parentUUID, uuid: itemUUID, meta: meta})
}

func (r *recordingPropagator) ItemRenamed(_ context.Context, kind, itemUUID string, meta crypto.Metadata) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.renamed = append(r.renamed, propagationCall{kind: kind, uuid: itemUUID, meta: meta})
}

func (r *recordingPropagator) addedCalls() []propagationCall {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]propagationCall(nil), r.added...)
}

func (r *recordingPropagator) renamedCalls() []propagationCall {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]propagationCall(nil), r.renamed...)
}

// testEnv wires an Engine against an httptest server with instant sleeps.
type testEnv struct {
	engine     *Engine
	store      *state.MemoryStore
	bus        *events.Bus
	propagator *recordingPropagator
}

// newTestEnv builds a full engine against the given handler.
func newTestEnv(t *testing.T, handler http.Handler) *testEnv {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.DefaultConfig()
	cfg.APIGateways = []string{srv.URL}
	cfg.UploadGateways = []string{srv.URL}
	cfg.DownloadGateways = []string{srv.URL}
	cfg.MaxRetryAPI = 3
	cfg.MaxRetryUpload = 3
	cfg.MaxRetryDownload = 3
	// Instant retry sleeps keep the tests fast.
	cfg.RetryAPITimeoutSec = 0
	cfg.RetryUploadTimeoutSec = 0
	cfg.RetryDownloadTimeoutSec = 0

	store := state.NewMemoryStore()
	require.NoError(t, store.Set(state.KeyAPIKey, "test-api-key"))
	require.NoError(t, state.SetMasterKeys(store, []string{"old-master", "current-master"}))

	client := api.NewClient(cfg, store, nil, nil)

	bus := events.NewBus()
	gate := pause.NewGate(store, nil, nil)
	propagator := &recordingPropagator{}

	engine := NewEngine(client, cfg, store, bus, gate, propagator, nil)
	engine.sleepFunc = noopSleep

	return &testEnv{engine: engine, store: store, bus: bus, propagator: propagator}
}
