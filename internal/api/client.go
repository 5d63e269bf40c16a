package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/kra-mo/filen-desktop/internal/config"
	"github.com/kra-mo/filen-desktop/internal/crypto"
	"github.com/kra-mo/filen-desktop/internal/state"
)

// version is stamped at build time via ldflags on the main package and
// threaded through SetVersion.
var productVersion = "dev"

// SetVersion overrides the version reported in the User-Agent header.
func SetVersion(v string) {
	productVersion = v
}

// userAgent builds the product identification header value.
func userAgent() string {
	return fmt.Sprintf("filen-desktop/%s-desktop-%s", productVersion, runtime.GOOS)
}

// OnlineFunc reports whether the network is currently reachable. Offline
// periods suspend the retry loop without consuming attempts.
type OnlineFunc func() bool

// Client issues authenticated, checksummed JSON requests and raw chunk
// transfers. It owns three connection pools (API, upload, download), each
// with its own concurrency cap and socket timeout.
type Client struct {
	cfg    config.Config
	store  state.Store
	logger *slog.Logger

	httpAPI      *http.Client
	httpUpload   *http.Client
	httpDownload *http.Client

	semAPI      *semaphore.Weighted
	semUpload   *semaphore.Weighted
	semDownload *semaphore.Weighted

	online   OnlineFunc
	onLogout func()

	// logoutOnce makes session invalidation a one-shot signal even when
	// many in-flight requests fail at the same time.
	logoutOnce sync.Once

	// sleepFunc is called to wait between retries. Tests override it to
	// avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error

	// pickGateway selects an index into a gateway list. Tests override it
	// for determinism.
	pickGateway func(n int) int
}

// NewClient creates a transport client. onLogout is invoked exactly once if
// the server ever rejects the bearer token; it may be nil.
func NewClient(cfg config.Config, store state.Store, onLogout func(), logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if onLogout == nil {
		onLogout = func() {}
	}

	return &Client{
		cfg:          cfg,
		store:        store,
		logger:       logger,
		httpAPI:      &http.Client{Timeout: cfg.APITimeout()},
		httpUpload:   &http.Client{Timeout: cfg.UploadTimeout()},
		httpDownload: &http.Client{Timeout: cfg.DownloadTimeout()},
		semAPI:       semaphore.NewWeighted(cfg.MaxAPIConns),
		semUpload:    semaphore.NewWeighted(cfg.MaxUploadConns),
		semDownload:  semaphore.NewWeighted(cfg.MaxDownloadConns),
		online:       func() bool { return true },
		onLogout:     onLogout,
		sleepFunc:    timeSleep,
		pickGateway:  rand.IntN,
	}
}

// SetOnlineCheck installs the network reachability collaborator.
func (c *Client) SetOnlineCheck(f OnlineFunc) {
	if f != nil {
		c.online = f
	}
}

// Request issues an API request and returns the decoded envelope.
// Method defaults to POST when empty. The body is marshaled once; the
// Checksum header covers exactly the bytes sent on the wire. Retries on
// connection errors, non-200 statuses, and internal_error responses, up to
// maxRetryAPI attempts; offline periods wait without consuming attempts.
func (c *Client) Request(ctx context.Context, method, endpoint string, body any) (*Response, error) {
	resp, _, err := c.RequestRaw(ctx, method, endpoint, body)
	return resp, err
}

// RequestRaw is Request but also returns the raw response body bytes.
func (c *Client) RequestRaw(ctx context.Context, method, endpoint string, body any) (*Response, []byte, error) {
	if method == "" {
		method = http.MethodPost
	}

	if body == nil {
		body = struct{}{}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, nil, fmt.Errorf("api: marshaling request body: %w", err)
	}

	checksum := crypto.BufferToHash(payload)

	var attempt int
	for {
		// Offline periods do not consume attempts.
		if !c.online() {
			c.logger.Debug("network offline, deferring request",
				slog.String("endpoint", endpoint),
			)

			if err := c.sleepFunc(ctx, c.cfg.RetryAPITimeout()); err != nil {
				return nil, nil, fmt.Errorf("api: request canceled: %w", err)
			}

			continue
		}

		if attempt >= c.cfg.MaxRetryAPI {
			return nil, nil, fmt.Errorf("api: %s %s with body %s failed after %d attempts: %w",
				method, endpoint, payload, attempt, ErrMaxRetries)
		}

		attempt++

		resp, raw, retryable, err := c.doAPIOnce(ctx, method, endpoint, payload, checksum)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, fmt.Errorf("api: request canceled: %w", ctx.Err())
			}

			if !retryable {
				return nil, nil, err
			}

			c.logger.Warn("retrying API request",
				slog.String("method", method),
				slog.String("endpoint", endpoint),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)

			if sleepErr := c.sleepFunc(ctx, c.cfg.RetryAPITimeout()); sleepErr != nil {
				return nil, nil, fmt.Errorf("api: request canceled: %w", sleepErr)
			}

			continue
		}

		return resp, raw, nil
	}
}

// doAPIOnce performs a single API attempt. retryable reports whether a
// returned error should consume another attempt.
func (c *Client) doAPIOnce(
	ctx context.Context, method, endpoint string, payload []byte, checksum string,
) (_ *Response, _ []byte, retryable bool, _ error) {
	if err := c.semAPI.Acquire(ctx, 1); err != nil {
		return nil, nil, false, fmt.Errorf("api: acquiring connection slot: %w", err)
	}
	defer c.semAPI.Release(1)

	gateway := c.cfg.APIGateways[c.pickGateway(len(c.cfg.APIGateways))]

	req, err := http.NewRequestWithContext(ctx, method, gateway+endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, nil, false, fmt.Errorf("api: creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent())
	req.Header.Set("Authorization", "Bearer "+state.APIKey(c.store))
	req.Header.Set("Checksum", checksum)

	httpResp, err := c.httpAPI.Do(req)
	if err != nil {
		return nil, nil, true, fmt.Errorf("api: sending request: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, nil, true, fmt.Errorf("api: reading response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, nil, true, fmt.Errorf("api: %s %s: HTTP %d: %w",
			method, endpoint, httpResp.StatusCode, ErrBadStatus)
	}

	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, nil, false, fmt.Errorf("api: %s %s: %w: %v", method, endpoint, ErrDecode, err)
	}

	// Server-side transient failure.
	if resp.Code == "internal_error" {
		return nil, nil, true, fmt.Errorf("api: %s %s: %w",
			method, endpoint, &Error{Code: resp.Code, Message: resp.Message})
	}

	if invalidSession(&resp) {
		c.logoutOnce.Do(c.onLogout)
		return nil, nil, false, fmt.Errorf("api: %s %s: %w", method, endpoint, ErrSessionInvalidated)
	}

	return &resp, raw, false, nil
}

// invalidSession reports whether the response signals a rejected bearer
// token.
func invalidSession(resp *Response) bool {
	if resp.Code == "api_key_not_found" {
		return true
	}

	msg := strings.ToLower(resp.Message)

	return strings.Contains(msg, "api key not found") || strings.Contains(msg, "invalid api key")
}

// timeSleep waits for the given duration or until the context is canceled.
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
