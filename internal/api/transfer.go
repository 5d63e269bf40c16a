package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/kra-mo/filen-desktop/internal/crypto"
	"github.com/kra-mo/filen-desktop/internal/state"
)

// UploadChunk performs a single chunk upload attempt on the upload pool:
// one POST to /v3/upload on a randomly chosen ingest gateway. Retrying is
// the transfer engine's responsibility. The Checksum header covers the
// canonical JSON form of the parsed query parameters.
func (c *Client) UploadChunk(ctx context.Context, query url.Values, body io.Reader) (*Response, error) {
	if err := c.semUpload.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("api: acquiring upload slot: %w", err)
	}
	defer c.semUpload.Release(1)

	params := make(map[string]string, len(query))
	for key := range query {
		params[key] = query.Get(key)
	}

	// json.Marshal sorts map keys, so this form is canonical.
	paramJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("api: marshaling query parameters: %w", err)
	}

	gateway := c.cfg.UploadGateways[c.pickGateway(len(c.cfg.UploadGateways))]

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, gateway+"/v3/upload?"+query.Encode(), body)
	if err != nil {
		return nil, fmt.Errorf("api: creating upload request: %w", err)
	}

	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("User-Agent", userAgent())
	req.Header.Set("Authorization", "Bearer "+state.APIKey(c.store))
	req.Header.Set("Checksum", crypto.BufferToHash(paramJSON))

	httpResp, err := c.httpUpload.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("api: upload canceled: %w", ctx.Err())
		}

		return nil, fmt.Errorf("api: upload request: %w: %v", ErrTransport, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("api: reading upload response: %w: %v", ErrTransport, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("api: upload: HTTP %d: %w", httpResp.StatusCode, ErrBadStatus)
	}

	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("api: upload: %w: %v", ErrDecode, err)
	}

	return &resp, nil
}

// DownloadChunk opens a single chunk download on the download pool and
// returns the body stream. Closing the returned reader releases the pool
// slot; callers must always close it.
func (c *Client) DownloadChunk(ctx context.Context, region, bucket, uuid string, index int64) (io.ReadCloser, error) {
	if err := c.semDownload.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("api: acquiring download slot: %w", err)
	}

	release := func() { c.semDownload.Release(1) }

	gateway := c.cfg.DownloadGateways[c.pickGateway(len(c.cfg.DownloadGateways))]
	chunkURL := fmt.Sprintf("%s/%s/%s/%s/%d", gateway, region, bucket, uuid, index)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, chunkURL, http.NoBody)
	if err != nil {
		release()
		return nil, fmt.Errorf("api: creating download request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent())

	httpResp, err := c.httpDownload.Do(req)
	if err != nil {
		release()

		if ctx.Err() != nil {
			return nil, fmt.Errorf("api: download canceled: %w", ctx.Err())
		}

		return nil, fmt.Errorf("api: download request: %w: %v", ErrTransport, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		httpResp.Body.Close()
		release()

		return nil, fmt.Errorf("api: download %s/%s/%s/%d: HTTP %d: %w",
			region, bucket, uuid, index, httpResp.StatusCode, ErrBadStatus)
	}

	return &releasingBody{ReadCloser: httpResp.Body, release: release}, nil
}

// releasingBody returns the download pool slot when the stream is closed.
type releasingBody struct {
	io.ReadCloser
	release func()
}

func (b *releasingBody) Close() error {
	err := b.ReadCloser.Close()
	if b.release != nil {
		b.release()
		b.release = nil
	}

	return err
}
