// Package realtime maintains the websocket connection the server pushes
// account events over: password changes (which invalidate the session) and
// remote pause requests. The listener reconnects with exponential backoff
// and never fails the process.
package realtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/kra-mo/filen-desktop/internal/state"
)

// Reconnect backoff bounds.
const (
	initialBackoff    = 5 * time.Second
	backoffMultiplier = 2
	maxBackoff        = 5 * time.Minute
)

// Event is one server push message.
type Event struct {
	Type string `json:"type"`
	Data struct {
		UUID string `json:"uuid"`
	} `json:"data"`
}

// Event types the listener reacts to.
const (
	eventPasswordChanged = "passwordChanged"
	eventPause           = "pause"
	eventResume          = "resume"
)

// Listener consumes server push events and applies them to the client
// state.
type Listener struct {
	url      string
	store    state.Store
	onLogout func()
	logger   *slog.Logger

	// dialFunc and sleepFunc are overridden in tests.
	dialFunc  func(ctx context.Context, url string) (*websocket.Conn, error)
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewListener creates a listener for the given websocket gateway. onLogout
// is invoked when the server signals a password change.
func NewListener(url string, store state.Store, onLogout func(), logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}

	if onLogout == nil {
		onLogout = func() {}
	}

	return &Listener{
		url:      url,
		store:    store,
		onLogout: onLogout,
		logger:   logger,
		dialFunc: func(ctx context.Context, url string) (*websocket.Conn, error) {
			conn, _, err := websocket.Dial(ctx, url, nil)
			return conn, err
		},
		sleepFunc: timeSleep,
	}
}

// Run connects and consumes events until ctx is canceled, reconnecting
// with exponential backoff on every failure. It always returns nil once
// the context ends.
func (l *Listener) Run(ctx context.Context) error {
	backoff := initialBackoff

	for {
		if ctx.Err() != nil {
			return nil
		}

		err := l.consume(ctx)
		if err == nil || ctx.Err() != nil {
			return nil
		}

		l.logger.Warn("realtime connection lost, reconnecting",
			slog.Duration("backoff", backoff),
			slog.String("error", err.Error()),
		)

		if sleepErr := l.sleepFunc(ctx, backoff); sleepErr != nil {
			return nil
		}

		backoff *= backoffMultiplier
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// consume runs one connection until it drops.
func (l *Listener) consume(ctx context.Context) error {
	conn, err := l.dialFunc(ctx, l.url)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	l.logger.Info("realtime connected", slog.String("url", l.url))

	for {
		var event Event
		if err := wsjson.Read(ctx, conn, &event); err != nil {
			return err
		}

		l.handle(event)
	}
}

// handle applies one event to the client state.
func (l *Listener) handle(event Event) {
	switch event.Type {
	case eventPasswordChanged:
		l.logger.Warn("password changed remotely, logging out")
		l.onLogout()

	case eventPause:
		if err := state.SetBool(l.store, state.KeyPaused, true); err != nil {
			l.logger.Error("persisting remote pause", slog.String("error", err.Error()))
		}

	case eventResume:
		if err := state.SetBool(l.store, state.KeyPaused, false); err != nil {
			l.logger.Error("persisting remote resume", slog.String("error", err.Error()))
		}

	default:
		l.logger.Debug("ignoring realtime event", slog.String("type", event.Type))
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
