package api

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kra-mo/filen-desktop/internal/state"
)

func TestUploadChunk_ChecksumCoversQueryParams(t *testing.T) {
	var gotChecksum, gotQuery string
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotChecksum = r.Header.Get("Checksum")
		gotQuery = r.URL.RawQuery
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"status":true,"data":{"bucket":"b"}}`))
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL, nil)

	query := url.Values{}
	query.Set("uuid", "u-1")
	query.Set("index", "0")
	query.Set("hash", "h")

	resp, err := client.UploadChunk(context.Background(), query, strings.NewReader("chunk-bytes"))
	require.NoError(t, err)
	assert.True(t, resp.Status)
	assert.Equal(t, "chunk-bytes", string(gotBody))
	assert.Contains(t, gotQuery, "uuid=u-1")

	// The checksum covers the canonical JSON form of the parsed params.
	canonical, err := json.Marshal(map[string]string{"uuid": "u-1", "index": "0", "hash": "h"})
	require.NoError(t, err)

	sum := sha512.Sum512(canonical)
	assert.Equal(t, hex.EncodeToString(sum[:]), gotChecksum)
}

func TestUploadChunk_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL, nil)

	_, err := client.UploadChunk(context.Background(), url.Values{"uuid": {"u"}}, strings.NewReader("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadStatus)
}

func TestUploadChunk_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	srv.Close() // connection refused

	client, _ := newTestClient(t, srv.URL, nil)

	_, err := client.UploadChunk(context.Background(), url.Values{"uuid": {"u"}}, strings.NewReader("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
}

func TestDownloadChunk_StreamsBody(t *testing.T) {
	var gotPath string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte("encrypted-chunk"))
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL, nil)

	body, err := client.DownloadChunk(context.Background(), "de-1", "bucket", "file-uuid", 3)
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "encrypted-chunk", string(data))
	assert.Equal(t, "/de-1/bucket/file-uuid/3", gotPath)
}

func TestDownloadChunk_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL, nil)

	_, err := client.DownloadChunk(context.Background(), "de-1", "bucket", "file-uuid", 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadStatus)
	// The error identifies the chunk path.
	assert.Contains(t, err.Error(), "de-1/bucket/file-uuid/0")
}

func TestDownloadChunk_ReleasesPoolSlotOnClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.MaxDownloadConns = 1

	store := state.NewMemoryStore()
	require.NoError(t, store.Set(state.KeyAPIKey, "k"))

	client := NewClient(cfg, store, nil, nil)

	// With a 1-slot pool, later downloads only proceed if each prior
	// stream's Close released the slot.
	for range 3 {
		body, err := client.DownloadChunk(context.Background(), "r", "b", "u", 0)
		require.NoError(t, err)
		_, _ = io.ReadAll(body)
		require.NoError(t, body.Close())
	}
}
