package pause

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kra-mo/filen-desktop/internal/state"
)

// stubLocations is a LocationPauser with a fixed paused set.
type stubLocations map[string]bool

func (s stubLocations) IsSyncLocationPaused(uuid string) bool {
	return s[uuid]
}

// newTestGate builds a gate whose sleepFunc counts polls and runs a hook,
// so tests can clear flags after N polls without real delays.
func newTestGate(store state.Store, locations LocationPauser, onPoll func(polls int)) *Gate {
	gate := NewGate(store, locations, nil)

	polls := 0
	gate.sleepFunc = func(ctx context.Context, _ time.Duration) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		polls++
		if onPoll != nil {
			onPoll(polls)
		}

		return nil
	}

	return gate
}

func TestWait_NotPausedReturnsImmediately(t *testing.T) {
	store := state.NewMemoryStore()
	gate := newTestGate(store, nil, func(int) {
		t.Fatal("should not poll when nothing is paused")
	})

	require.NoError(t, gate.Wait(context.Background(), SourceSync, ""))
}

func TestWait_FlagTable(t *testing.T) {
	tests := []struct {
		name     string
		flag     string
		source   Source
		location string
		applies  bool
	}{
		{"sync blocked by global pause", state.KeyPaused, SourceSync, "", true},
		{"sync ignores download pause", state.KeyDownloadPaused, SourceSync, "", false},
		{"download blocked by download pause", state.KeyDownloadPaused, SourceDownload, "", true},
		{"download ignores global pause", state.KeyPaused, SourceDownload, "", false},
		{"upload blocked by upload pause", state.KeyUploadPaused, SourceUpload, "", true},
		{"upload ignores download pause", state.KeyDownloadPaused, SourceUpload, "", false},
		{"other blocked by global pause", state.KeyPaused, SourceOther, "", true},
		{"other ignores upload pause", state.KeyUploadPaused, SourceOther, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := state.NewMemoryStore()
			require.NoError(t, state.SetBool(store, tt.flag, true))

			var polled bool

			gate := newTestGate(store, nil, func(int) {
				polled = true
				// Release the gate so Wait terminates.
				require.NoError(t, state.SetBool(store, tt.flag, false))
			})

			require.NoError(t, gate.Wait(context.Background(), tt.source, tt.location))
			assert.Equal(t, tt.applies, polled)
		})
	}
}

func TestWait_SyncLocationPause(t *testing.T) {
	store := state.NewMemoryStore()
	locations := stubLocations{"loc-1": true}

	gate := newTestGate(store, locations, func(polls int) {
		if polls >= 3 {
			locations["loc-1"] = false
		}
	})

	require.NoError(t, gate.Wait(context.Background(), SourceSync, "loc-1"))

	// A different location is unaffected.
	gate2 := newTestGate(store, locations, func(int) {
		t.Fatal("should not poll for an unpaused location")
	})
	require.NoError(t, gate2.Wait(context.Background(), SourceSync, "loc-2"))
}

func TestWait_ResumesWhenFlagCleared(t *testing.T) {
	store := state.NewMemoryStore()
	require.NoError(t, state.SetBool(store, state.KeyPaused, true))

	var sawPolls int

	gate := newTestGate(store, nil, func(polls int) {
		sawPolls = polls
		if polls == 5 {
			require.NoError(t, state.SetBool(store, state.KeyPaused, false))
		}
	})

	require.NoError(t, gate.Wait(context.Background(), SourceSync, ""))
	assert.Equal(t, 5, sawPolls)
}

func TestWait_ContextCancelation(t *testing.T) {
	store := state.NewMemoryStore()
	require.NoError(t, state.SetBool(store, state.KeyPaused, true))

	gate := NewGate(store, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := gate.Wait(ctx, SourceSync, "")
	assert.ErrorIs(t, err, context.Canceled)
}
