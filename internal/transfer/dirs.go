package transfer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/kra-mo/filen-desktop/internal/api"
	"github.com/kra-mo/filen-desktop/internal/crypto"
	"github.com/kra-mo/filen-desktop/internal/state"
)

// keyring loads the master key list from the store.
func (e *Engine) keyring() (crypto.Keyring, error) {
	keys, err := state.MasterKeys(e.store)
	if err != nil {
		return nil, err
	}

	return crypto.Keyring(keys), nil
}

// CreateFolder creates a folder under parentUUID and returns the folder's
// UUID. The name-hash check and create are serialized through a
// process-global 1-permit gate so concurrent producers cannot create
// duplicate siblings. When the server reports the name already exists, the
// existing folder's UUID is returned (idempotent create by name).
func (e *Engine) CreateFolder(ctx context.Context, folderUUID, name, parentUUID string) (string, error) {
	createdUUID, created, err := e.createFolderLocked(ctx, folderUUID, name, parentUUID)
	if err != nil {
		return "", err
	}

	if created {
		e.propagator.ItemAdded(ctx, KindFolder, parentUUID, createdUUID, crypto.FolderMetadata{Name: name})
	}

	return createdUUID, nil
}

// createFolderLocked runs the serialized portion of CreateFolder. created
// reports whether a new folder was made (and so needs propagation).
func (e *Engine) createFolderLocked(ctx context.Context, folderUUID, name, parentUUID string) (string, bool, error) {
	if err := e.dirGate.Acquire(ctx, 1); err != nil {
		return "", false, fmt.Errorf("transfer: acquiring create gate: %w", err)
	}
	defer e.dirGate.Release(1)

	ring, err := e.keyring()
	if err != nil {
		return "", false, fmt.Errorf("transfer: creating folder: %w", err)
	}

	masterKey, err := ring.Current()
	if err != nil {
		return "", false, fmt.Errorf("transfer: creating folder: %w", err)
	}

	plain, err := crypto.EncodeMetadata(crypto.FolderMetadata{Name: name})
	if err != nil {
		return "", false, fmt.Errorf("transfer: creating folder: %w", err)
	}

	encrypted, err := crypto.EncryptMetadata(plain, masterKey)
	if err != nil {
		return "", false, fmt.Errorf("transfer: creating folder: %w", err)
	}

	resp, err := e.api.Request(ctx, "", "/v3/dir/create", map[string]string{
		"uuid":       folderUUID,
		"name":       encrypted,
		"nameHashed": crypto.HashName(name),
		"parent":     parentUUID,
	})
	if err != nil {
		return "", false, fmt.Errorf("transfer: creating folder: %w", err)
	}

	if !resp.Status {
		// A sibling with the same name already exists; adopt its UUID.
		var data struct {
			ExistsUUID string `json:"existsUUID"`
		}

		if len(resp.Data) > 0 && json.Unmarshal(resp.Data, &data) == nil && data.ExistsUUID != "" {
			e.logger.Debug("folder already exists",
				slog.String("name_hashed", crypto.HashName(name)),
				slog.String("uuid", data.ExistsUUID),
			)

			return data.ExistsUUID, false, nil
		}

		return "", false, fmt.Errorf("transfer: creating folder: %w",
			&api.Error{Code: resp.Code, Message: resp.Message})
	}

	return folderUUID, true, nil
}

// RenameFile renames a file. meta must carry the new name and the file's
// content key. Renaming an already-absent file succeeds.
func (e *Engine) RenameFile(ctx context.Context, fileUUID string, meta crypto.FileMetadata) error {
	ring, err := e.keyring()
	if err != nil {
		return fmt.Errorf("transfer: renaming file: %w", err)
	}

	masterKey, err := ring.Current()
	if err != nil {
		return fmt.Errorf("transfer: renaming file: %w", err)
	}

	plain, err := crypto.EncodeMetadata(meta)
	if err != nil {
		return fmt.Errorf("transfer: renaming file: %w", err)
	}

	metadata, err := crypto.EncryptMetadata(plain, masterKey)
	if err != nil {
		return fmt.Errorf("transfer: renaming file: %w", err)
	}

	// The bare name travels encrypted under the file's own content key so
	// public link consumers can decrypt it without the master keys.
	nameJSON, err := json.Marshal(map[string]string{"name": meta.Name})
	if err != nil {
		return fmt.Errorf("transfer: renaming file: %w", err)
	}

	encryptedName, err := crypto.EncryptMetadata(string(nameJSON), meta.Key)
	if err != nil {
		return fmt.Errorf("transfer: renaming file: %w", err)
	}

	err = e.mutate(ctx, "/v3/file/rename", map[string]string{
		"uuid":       fileUUID,
		"name":       encryptedName,
		"nameHashed": crypto.HashName(meta.Name),
		"metadata":   metadata,
	})
	if err != nil {
		return fmt.Errorf("transfer: renaming file %s: %w", fileUUID, err)
	}

	e.propagator.ItemRenamed(ctx, KindFile, fileUUID, meta)

	return nil
}

// RenameFolder renames a folder. Renaming an already-absent folder
// succeeds.
func (e *Engine) RenameFolder(ctx context.Context, folderUUID, newName string) error {
	ring, err := e.keyring()
	if err != nil {
		return fmt.Errorf("transfer: renaming folder: %w", err)
	}

	masterKey, err := ring.Current()
	if err != nil {
		return fmt.Errorf("transfer: renaming folder: %w", err)
	}

	plain, err := crypto.EncodeMetadata(crypto.FolderMetadata{Name: newName})
	if err != nil {
		return fmt.Errorf("transfer: renaming folder: %w", err)
	}

	encrypted, err := crypto.EncryptMetadata(plain, masterKey)
	if err != nil {
		return fmt.Errorf("transfer: renaming folder: %w", err)
	}

	err = e.mutate(ctx, "/v3/dir/rename", map[string]string{
		"uuid":       folderUUID,
		"name":       encrypted,
		"nameHashed": crypto.HashName(newName),
	})
	if err != nil {
		return fmt.Errorf("transfer: renaming folder %s: %w", folderUUID, err)
	}

	e.propagator.ItemRenamed(ctx, KindFolder, folderUUID, crypto.FolderMetadata{Name: newName})

	return nil
}

// MoveFile moves a file into a new parent folder. Moving an already-absent
// file succeeds.
func (e *Engine) MoveFile(ctx context.Context, fileUUID, newParentUUID string, meta crypto.FileMetadata) error {
	err := e.mutate(ctx, "/v3/file/move", map[string]string{
		"uuid": fileUUID,
		"to":   newParentUUID,
	})
	if err != nil {
		return fmt.Errorf("transfer: moving file %s: %w", fileUUID, err)
	}

	e.propagator.ItemAdded(ctx, KindFile, newParentUUID, fileUUID, meta)

	return nil
}

// MoveFolder moves a folder into a new parent folder. Moving an
// already-absent folder succeeds.
func (e *Engine) MoveFolder(ctx context.Context, folderUUID, newParentUUID, name string) error {
	err := e.mutate(ctx, "/v3/dir/move", map[string]string{
		"uuid": folderUUID,
		"to":   newParentUUID,
	})
	if err != nil {
		return fmt.Errorf("transfer: moving folder %s: %w", folderUUID, err)
	}

	e.propagator.ItemAdded(ctx, KindFolder, newParentUUID, folderUUID, crypto.FolderMetadata{Name: name})

	return nil
}

// TrashItem moves a file or folder to the trash. Trashing an
// already-absent item succeeds.
func (e *Engine) TrashItem(ctx context.Context, kind, itemUUID string) error {
	endpoint := "/v3/file/trash"
	if kind == KindFolder {
		endpoint = "/v3/dir/trash"
	}

	if err := e.mutate(ctx, endpoint, map[string]string{"uuid": itemUUID}); err != nil {
		return fmt.Errorf("transfer: trashing %s %s: %w", kind, itemUUID, err)
	}

	return nil
}

// mutate issues a mutating API request, treating folder_not_found and
// file_not_found as success.
func (e *Engine) mutate(ctx context.Context, endpoint string, body any) error {
	resp, err := e.api.Request(ctx, "", endpoint, body)
	if err != nil {
		return err
	}

	if !resp.Status {
		serverErr := &api.Error{Code: resp.Code, Message: resp.Message}
		if api.IsNotFound(serverErr) {
			e.logger.Debug("item already absent",
				slog.String("endpoint", endpoint),
				slog.String("code", resp.Code),
			)

			return nil
		}

		return serverErr
	}

	return nil
}
