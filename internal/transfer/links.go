package transfer

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/kra-mo/filen-desktop/internal/api"
	"github.com/kra-mo/filen-desktop/internal/crypto"
)

// saltLen is the length of the password salt sent with link edits.
const saltLen = 32

// EnableItemPublicLink enables a public link on a file and returns the new
// link UUID. Links are created without a password: the server stores the
// literal placeholder plus its hashed form. Folder links are managed by a
// different flow and are not supported here.
func (e *Engine) EnableItemPublicLink(ctx context.Context, itemUUID, kind string) (string, error) {
	if kind != KindFile {
		return "", fmt.Errorf("transfer: enabling %s link: %w", kind, api.ErrNotImplemented)
	}

	linkUUID := uuid.NewString()

	salt, err := crypto.RandomString(saltLen)
	if err != nil {
		return "", fmt.Errorf("transfer: enabling link: %w", err)
	}

	err = e.linkEdit(ctx, map[string]string{
		"uuid":           linkUUID,
		"fileUUID":       itemUUID,
		"type":           "enable",
		"expiration":     "never",
		"password":       "empty",
		"passwordHashed": crypto.HashName("empty"),
		"salt":           salt,
	})
	if err != nil {
		return "", fmt.Errorf("transfer: enabling link on %s: %w", itemUUID, err)
	}

	return linkUUID, nil
}

// DisableItemPublicLink disables a public link. Files go through the link
// edit endpoint and require the existing link UUID; folders use the link
// removal endpoint.
func (e *Engine) DisableItemPublicLink(ctx context.Context, itemUUID, kind, linkUUID string) error {
	if kind == KindFolder {
		if err := e.mutate(ctx, "/v3/dir/link/remove", map[string]string{"uuid": itemUUID}); err != nil {
			return fmt.Errorf("transfer: disabling folder link on %s: %w", itemUUID, err)
		}

		return nil
	}

	if err := uuid.Validate(linkUUID); err != nil {
		return fmt.Errorf("transfer: disabling link: invalid link UUID %q: %w", linkUUID, err)
	}

	salt, err := crypto.RandomString(saltLen)
	if err != nil {
		return fmt.Errorf("transfer: disabling link: %w", err)
	}

	err = e.linkEdit(ctx, map[string]string{
		"uuid":           linkUUID,
		"fileUUID":       itemUUID,
		"type":           "disable",
		"expiration":     "never",
		"password":       "empty",
		"passwordHashed": crypto.HashName("empty"),
		"salt":           salt,
	})
	if err != nil {
		return fmt.Errorf("transfer: disabling link on %s: %w", itemUUID, err)
	}

	return nil
}

// linkEdit posts a link state change.
func (e *Engine) linkEdit(ctx context.Context, body map[string]string) error {
	resp, err := e.api.Request(ctx, "", "/v3/file/link/edit", body)
	if err != nil {
		return err
	}

	if !resp.Status {
		return &api.Error{Code: resp.Code, Message: resp.Message}
	}

	return nil
}

// FileLinkStatus queries whether a file has an enabled public link.
func (e *Engine) FileLinkStatus(ctx context.Context, fileUUID string) (*api.LinkStatus, error) {
	return e.linkStatus(ctx, "/v3/file/link/status", fileUUID)
}

// DirLinkStatus queries whether a folder has an enabled public link.
func (e *Engine) DirLinkStatus(ctx context.Context, folderUUID string) (*api.LinkStatus, error) {
	return e.linkStatus(ctx, "/v3/dir/link/status", folderUUID)
}

func (e *Engine) linkStatus(ctx context.Context, endpoint, itemUUID string) (*api.LinkStatus, error) {
	resp, err := e.api.Request(ctx, "", endpoint, map[string]string{"uuid": itemUUID})
	if err != nil {
		return nil, fmt.Errorf("transfer: querying link status: %w", err)
	}

	if !resp.Status {
		return nil, fmt.Errorf("transfer: querying link status: %w",
			&api.Error{Code: resp.Code, Message: resp.Message})
	}

	var status api.LinkStatus
	if err := resp.DecodeData(&status); err != nil {
		return nil, fmt.Errorf("transfer: querying link status: %w", err)
	}

	return &status, nil
}
