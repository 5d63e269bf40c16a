package transfer

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	googleuuid "github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kra-mo/filen-desktop/internal/api"
)

func TestEnableItemPublicLink_File(t *testing.T) {
	var gotBody map[string]string

	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v3/file/link/edit", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"status":true}`))
	}))

	linkUUID, err := env.engine.EnableItemPublicLink(context.Background(), "file-1", KindFile)
	require.NoError(t, err)
	require.NoError(t, googleuuid.Validate(linkUUID))

	assert.Equal(t, linkUUID, gotBody["uuid"])
	assert.Equal(t, "file-1", gotBody["fileUUID"])
	assert.Equal(t, "enable", gotBody["type"])
	assert.Equal(t, "empty", gotBody["password"])
	assert.Len(t, gotBody["passwordHashed"], 64)
	assert.Len(t, gotBody["salt"], 32)
}

func TestEnableItemPublicLink_FolderNotImplemented(t *testing.T) {
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("no request expected")
		w.Write([]byte(`{"status":true}`))
	}))

	_, err := env.engine.EnableItemPublicLink(context.Background(), "folder-1", KindFolder)
	assert.ErrorIs(t, err, api.ErrNotImplemented)
}

func TestDisableItemPublicLink_File(t *testing.T) {
	var gotBody map[string]string

	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v3/file/link/edit", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"status":true}`))
	}))

	linkUUID := googleuuid.NewString()
	require.NoError(t, env.engine.DisableItemPublicLink(context.Background(), "file-1", KindFile, linkUUID))

	assert.Equal(t, linkUUID, gotBody["uuid"])
	assert.Equal(t, "disable", gotBody["type"])
}

func TestDisableItemPublicLink_FileRejectsInvalidLinkUUID(t *testing.T) {
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("no request expected")
		w.Write([]byte(`{"status":true}`))
	}))

	err := env.engine.DisableItemPublicLink(context.Background(), "file-1", KindFile, "not-a-uuid")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid link UUID")
}

func TestDisableItemPublicLink_Folder(t *testing.T) {
	var gotPath string
	var gotBody map[string]string

	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"status":true}`))
	}))

	require.NoError(t, env.engine.DisableItemPublicLink(context.Background(), "folder-1", KindFolder, ""))
	assert.Equal(t, "/v3/dir/link/remove", gotPath)
	assert.Equal(t, "folder-1", gotBody["uuid"])
}

func TestFileLinkStatus(t *testing.T) {
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v3/file/link/status", r.URL.Path)
		w.Write([]byte(`{"status":true,"data":{"enabled":true,"uuid":"link-1"}}`))
	}))

	status, err := env.engine.FileLinkStatus(context.Background(), "file-1")
	require.NoError(t, err)
	assert.True(t, status.Enabled)
	assert.Equal(t, "link-1", status.UUID)
}
