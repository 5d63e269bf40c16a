// Package api is the HTTP transport for the remote storage protocol. It
// issues checksummed, authenticated JSON requests against a randomly chosen
// gateway, with bounded retry, offline awareness, and session-invalidation
// detection, plus the raw chunk upload/download operations.
package api

import (
	"errors"
	"fmt"
)

// Sentinel errors. Use errors.Is to classify.
var (
	// ErrMaxRetries means the per-operation retry budget was exhausted.
	ErrMaxRetries = errors.New("api: max retries exceeded")

	// ErrSessionInvalidated means the server rejected the bearer token.
	// The logout collaborator has already been invoked when this surfaces.
	ErrSessionInvalidated = errors.New("api: session invalidated")

	// ErrMaxStorageReached means the server refused an upload because the
	// account's storage quota is exhausted.
	ErrMaxStorageReached = errors.New("api: max storage reached")

	// ErrTransport means a hard network failure on a chunk upload or
	// download attempt.
	ErrTransport = errors.New("api: transport error")

	// ErrDecode means a 200 response body was not valid JSON.
	ErrDecode = errors.New("api: undecodable response")

	// ErrBadStatus means a non-200 HTTP status on a transfer attempt.
	ErrBadStatus = errors.New("api: unexpected HTTP status")

	// ErrNotImplemented marks operations the protocol defines but the
	// client does not support.
	ErrNotImplemented = errors.New("api: not implemented")
)

// Error wraps a server-reported failure (status == false) with its code
// and message.
type Error struct {
	Code    string
	Message string
	Err     error // sentinel, for errors.Is()
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api: server error %s: %s", e.Code, e.Message)
	}

	return fmt.Sprintf("api: server error: %s", e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a server error for an already-absent
// item. Trash, move, and rename treat these as success.
func IsNotFound(err error) bool {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return false
	}

	return apiErr.Code == "folder_not_found" || apiErr.Code == "file_not_found"
}
