package transfer

import (
	"context"
	"fmt"

	"github.com/kra-mo/filen-desktop/internal/api"
	"github.com/kra-mo/filen-desktop/internal/crypto"
)

// BaseFolder returns the UUID of the account's root folder.
func (e *Engine) BaseFolder(ctx context.Context) (string, error) {
	resp, err := e.api.Request(ctx, "", "/v3/user/baseFolder", nil)
	if err != nil {
		return "", fmt.Errorf("transfer: fetching base folder: %w", err)
	}

	if !resp.Status {
		return "", fmt.Errorf("transfer: fetching base folder: %w",
			&api.Error{Code: resp.Code, Message: resp.Message})
	}

	var base api.BaseFolder
	if err := resp.DecodeData(&base); err != nil {
		return "", fmt.Errorf("transfer: fetching base folder: %w", err)
	}

	return base.UUID, nil
}

// DirExists checks whether parentUUID already has a folder with the given
// name, returning the existing folder's UUID if so.
func (e *Engine) DirExists(ctx context.Context, parentUUID, name string) (*api.ExistsResult, error) {
	return e.existsCheck(ctx, "/v3/dir/exists", parentUUID, name)
}

// FileExists checks whether parentUUID already has a file with the given
// name, returning the existing file's UUID if so.
func (e *Engine) FileExists(ctx context.Context, parentUUID, name string) (*api.ExistsResult, error) {
	return e.existsCheck(ctx, "/v3/file/exists", parentUUID, name)
}

func (e *Engine) existsCheck(ctx context.Context, endpoint, parentUUID, name string) (*api.ExistsResult, error) {
	resp, err := e.api.Request(ctx, "", endpoint, map[string]string{
		"parent":     parentUUID,
		"nameHashed": crypto.HashName(name),
	})
	if err != nil {
		return nil, fmt.Errorf("transfer: checking name at %s: %w", endpoint, err)
	}

	if !resp.Status {
		return nil, fmt.Errorf("transfer: checking name at %s: %w",
			endpoint, &api.Error{Code: resp.Code, Message: resp.Message})
	}

	var result api.ExistsResult
	if err := resp.DecodeData(&result); err != nil {
		return nil, fmt.Errorf("transfer: checking name at %s: %w", endpoint, err)
	}

	return &result, nil
}

// DirPresent reports whether a folder UUID exists server-side (and whether
// it sits in the trash).
func (e *Engine) DirPresent(ctx context.Context, folderUUID string) (*api.PresentResult, error) {
	return e.presentCheck(ctx, "/v3/dir/present", folderUUID)
}

// FilePresent reports whether a file UUID exists server-side.
func (e *Engine) FilePresent(ctx context.Context, fileUUID string) (*api.PresentResult, error) {
	return e.presentCheck(ctx, "/v3/file/present", fileUUID)
}

func (e *Engine) presentCheck(ctx context.Context, endpoint, itemUUID string) (*api.PresentResult, error) {
	resp, err := e.api.Request(ctx, "", endpoint, map[string]string{"uuid": itemUUID})
	if err != nil {
		return nil, fmt.Errorf("transfer: presence check at %s: %w", endpoint, err)
	}

	if !resp.Status {
		return nil, fmt.Errorf("transfer: presence check at %s: %w",
			endpoint, &api.Error{Code: resp.Code, Message: resp.Message})
	}

	var result api.PresentResult
	if err := resp.DecodeData(&result); err != nil {
		return nil, fmt.Errorf("transfer: presence check at %s: %w", endpoint, err)
	}

	return &result, nil
}

// DirContent fetches the encrypted listing of one folder level.
func (e *Engine) DirContent(ctx context.Context, folderUUID string) (*api.DirDownload, error) {
	resp, err := e.api.Request(ctx, "", "/v3/dir/content", map[string]string{"uuid": folderUUID})
	if err != nil {
		return nil, fmt.Errorf("transfer: listing folder %s: %w", folderUUID, err)
	}

	if !resp.Status {
		return nil, fmt.Errorf("transfer: listing folder %s: %w",
			folderUUID, &api.Error{Code: resp.Code, Message: resp.Message})
	}

	var content api.DirDownload
	if err := resp.DecodeData(&content); err != nil {
		return nil, fmt.Errorf("transfer: listing folder %s: %w", folderUUID, err)
	}

	return &content, nil
}
