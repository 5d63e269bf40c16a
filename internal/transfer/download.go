package transfer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/kra-mo/filen-desktop/internal/api"
	"github.com/kra-mo/filen-desktop/internal/pause"
	"github.com/kra-mo/filen-desktop/internal/state"
)

// DownloadChunk fetches one encrypted chunk and returns its bytes. The
// call blocks in the pause gate before every attempt and retries any
// failure (bad status, transport error, truncated stream), making at most
// maxRetryDownload attempts.
func (e *Engine) DownloadChunk(
	ctx context.Context, region, bucket, uuid string, index int64,
	source pause.Source, locationUUID string,
) ([]byte, error) {
	settings := state.Networking(e.store)

	if err := e.gate.Wait(ctx, source, locationUUID); err != nil {
		return nil, fmt.Errorf("transfer: waiting for pause gate: %w", err)
	}

	e.downGroup.SetRate(directionRate(source, settings.DownloadKbps))

	event := progressEvent(source, false)

	for attempt := 0; attempt < e.cfg.MaxRetryDownload; attempt++ {
		if err := e.gate.Wait(ctx, source, locationUUID); err != nil {
			return nil, fmt.Errorf("transfer: waiting for pause gate: %w", err)
		}

		data, err := e.downloadOnce(ctx, region, bucket, uuid, index, event, source)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("transfer: download canceled: %w", ctx.Err())
			}

			e.logger.Warn("retrying chunk download",
				slog.String("uuid", uuid),
				slog.Int64("index", index),
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()),
			)

			if sleepErr := e.sleepFunc(ctx, e.cfg.RetryDownloadTimeout()); sleepErr != nil {
				return nil, fmt.Errorf("transfer: download canceled: %w", sleepErr)
			}

			continue
		}

		return data, nil
	}

	return nil, fmt.Errorf("transfer: downloading chunk %s/%s/%s/%d failed after %d attempts: %w",
		region, bucket, uuid, index, e.cfg.MaxRetryDownload, api.ErrMaxRetries)
}

// downloadOnce performs a single download attempt: open the stream, pipe
// it through a fresh throttle handle and the progress meter, and
// accumulate the bytes.
func (e *Engine) downloadOnce(
	ctx context.Context, region, bucket, uuid string, index int64,
	event string, source pause.Source,
) ([]byte, error) {
	body, err := e.api.DownloadChunk(ctx, region, bucket, uuid, index)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	handle := e.downGroup.Handle(ctx)
	defer handle.Close()

	reader := &progressReader{
		r:     handle.Reader(body),
		bus:   e.bus,
		event: event,
		uuid:  uuid,
		from:  string(source),
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return nil, fmt.Errorf("transfer: streaming chunk: %w", err)
	}

	return buf.Bytes(), nil
}
