// Package throttle provides the two process-wide transfer rate governors.
// All live handles of one direction share a single token bucket, so the
// aggregate throughput of concurrent transfers stays within the configured
// rate, and a rate change applies to every live handle from its next
// token wait on; a wait already in progress keeps the delay it was given.
package throttle

import (
	"context"
	"fmt"
	"io"
	"sync"

	"golang.org/x/time/rate"
)

// UnlimitedRate is the effective rate used when no user limit applies
// (128 MiB/s, far above any realistic link).
const UnlimitedRate = 128 * 1024 * 1024

// burstMultiplier controls the token bucket burst size relative to the
// per-second rate. A 2x burst lets short savings be spent on the next read
// without reducing sustained throughput below the limit.
const burstMultiplier = 2

// KbpsToBytes converts a user-facing Kbps setting to bytes/sec. Zero or
// negative means unlimited.
func KbpsToBytes(kbps int64) int64 {
	if kbps <= 0 {
		return UnlimitedRate
	}

	return kbps * 1024 / 8
}

// Group is a shared rate governor for one transfer direction.
type Group struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	rateBps int64
}

// NewGroup creates a group at the given rate in bytes/sec.
func NewGroup(bytesPerSec int64) *Group {
	if bytesPerSec <= 0 {
		bytesPerSec = UnlimitedRate
	}

	return &Group{
		limiter: rate.NewLimiter(rate.Limit(bytesPerSec), int(bytesPerSec)*burstMultiplier),
		rateBps: bytesPerSec,
	}
}

// SetRate changes the group rate. Idempotent; takes effect on all existing
// and future handles because they share the limiter.
func (g *Group) SetRate(bytesPerSec int64) {
	if bytesPerSec <= 0 {
		bytesPerSec = UnlimitedRate
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if bytesPerSec == g.rateBps {
		return
	}

	g.rateBps = bytesPerSec
	g.limiter.SetLimit(rate.Limit(bytesPerSec))
	g.limiter.SetBurst(int(bytesPerSec) * burstMultiplier)
}

// Rate returns the current rate in bytes/sec.
func (g *Group) Rate() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.rateBps
}

// Handle shapes one transfer attempt's byte stream to the group rate. A
// handle lives for a single attempt; Close releases it.
type Handle struct {
	group  *Group
	ctx    context.Context
	closed bool
}

// Handle returns a new stream-shaping handle bound to ctx.
func (g *Group) Handle(ctx context.Context) *Handle {
	return &Handle{group: g, ctx: ctx}
}

// Reader wraps r so reads are paced to the group rate.
func (h *Handle) Reader(r io.Reader) io.Reader {
	return &throttledReader{h: h, r: r}
}

// Close releases the handle. Bytes already admitted are unaffected.
func (h *Handle) Close() {
	h.closed = true
}

// wait blocks until the limiter admits n bytes. Reservations larger than
// the burst are split.
func (h *Handle) wait(n int) error {
	if h.closed {
		return fmt.Errorf("throttle: handle closed")
	}

	limiter := h.group.limiter

	for n > 0 {
		chunk := n
		if burst := limiter.Burst(); chunk > burst {
			chunk = burst
		}

		if err := limiter.WaitN(h.ctx, chunk); err != nil {
			return fmt.Errorf("throttle: waiting for tokens: %w", err)
		}

		n -= chunk
	}

	return nil
}

// throttledReader blocks after each successful read until the limiter
// admits the bytes consumed.
type throttledReader struct {
	h *Handle
	r io.Reader
}

func (tr *throttledReader) Read(p []byte) (int, error) {
	n, err := tr.r.Read(p)
	if n > 0 {
		if waitErr := tr.h.wait(n); waitErr != nil {
			return n, waitErr
		}
	}

	return n, err
}
