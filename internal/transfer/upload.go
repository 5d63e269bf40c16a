package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/kra-mo/filen-desktop/internal/api"
	"github.com/kra-mo/filen-desktop/internal/crypto"
	"github.com/kra-mo/filen-desktop/internal/pause"
	"github.com/kra-mo/filen-desktop/internal/state"
)

// UploadChunk uploads one encrypted chunk. query must carry at least the
// uuid and index parameters; the chunk hash is appended here. The call
// blocks in the pause gate before every attempt and makes at most
// maxRetryUpload attempts, retrying non-200 responses. Hard transport
// errors fail immediately.
func (e *Engine) UploadChunk(
	ctx context.Context, query url.Values, data []byte, source pause.Source, locationUUID string,
) (*api.Response, error) {
	settings := state.Networking(e.store)

	if state.Bool(e.store, state.KeyMaxStorageReached) {
		return nil, api.ErrMaxStorageReached
	}

	if err := e.gate.Wait(ctx, source, locationUUID); err != nil {
		return nil, fmt.Errorf("transfer: waiting for pause gate: %w", err)
	}

	chunkHash := crypto.BufferToHash(data)
	query.Set("hash", chunkHash)

	e.upGroup.SetRate(directionRate(source, settings.UploadKbps))

	uuid := query.Get("uuid")
	event := progressEvent(source, true)

	for attempt := 0; attempt < e.cfg.MaxRetryUpload; attempt++ {
		if err := e.gate.Wait(ctx, source, locationUUID); err != nil {
			return nil, fmt.Errorf("transfer: waiting for pause gate: %w", err)
		}

		handle := e.upGroup.Handle(ctx)

		reader := handle.Reader(&progressReader{
			r:     bytes.NewReader(data),
			bus:   e.bus,
			event: event,
			uuid:  uuid,
			from:  string(source),
		})

		resp, err := e.api.UploadChunk(ctx, query, reader)

		handle.Close()

		if err != nil {
			// Non-200 statuses are retried; hard transport failures are
			// not (the server may have partial state for this chunk).
			if errors.Is(err, api.ErrBadStatus) {
				e.logger.Warn("retrying chunk upload",
					slog.String("uuid", uuid),
					slog.Int("attempt", attempt+1),
					slog.String("error", err.Error()),
				)

				if sleepErr := e.sleepFunc(ctx, e.cfg.RetryUploadTimeout()); sleepErr != nil {
					return nil, fmt.Errorf("transfer: upload canceled: %w", sleepErr)
				}

				continue
			}

			return nil, fmt.Errorf("transfer: uploading chunk %s: %w", uuid, err)
		}

		if !resp.Status {
			return nil, e.uploadRejected(uuid, resp)
		}

		return resp, nil
	}

	return nil, fmt.Errorf("transfer: uploading chunk %s failed after %d attempts: %w",
		uuid, e.cfg.MaxRetryUpload, api.ErrMaxRetries)
}

// uploadRejected handles a status == false upload response. A message
// mentioning storage means the account quota is exhausted: transfers are
// paused globally and the flag is persisted before the error surfaces.
func (e *Engine) uploadRejected(uuid string, resp *api.Response) error {
	if strings.Contains(strings.ToLower(resp.Message), "storage") {
		if err := state.SetBool(e.store, state.KeyPaused, true); err != nil {
			e.logger.Error("persisting pause flag", slog.String("error", err.Error()))
		}

		if err := state.SetBool(e.store, state.KeyMaxStorageReached, true); err != nil {
			e.logger.Error("persisting storage flag", slog.String("error", err.Error()))
		}

		e.logger.Warn("upload rejected: storage quota exhausted", slog.String("uuid", uuid))

		return fmt.Errorf("transfer: %s: %w", resp.Message, api.ErrMaxStorageReached)
	}

	return fmt.Errorf("transfer: uploading chunk %s: %w",
		uuid, &api.Error{Code: resp.Code, Message: resp.Message})
}

// MarkUploadAsDone finalizes a chunked upload. record is the upload
// completion payload (uuid, uploadKey, name/size/metadata material).
func (e *Engine) MarkUploadAsDone(ctx context.Context, record any) (*api.UploadDone, error) {
	resp, err := e.api.Request(ctx, "", "/v3/upload/done", record)
	if err != nil {
		return nil, fmt.Errorf("transfer: marking upload done: %w", err)
	}

	if !resp.Status {
		return nil, fmt.Errorf("transfer: marking upload done: %w",
			&api.Error{Code: resp.Code, Message: resp.Message})
	}

	var done api.UploadDone
	if err := resp.DecodeData(&done); err != nil {
		return nil, fmt.Errorf("transfer: marking upload done: %w", err)
	}

	return &done, nil
}
