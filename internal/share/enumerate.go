package share

import (
	"context"
	"fmt"
	"regexp"

	"github.com/kra-mo/filen-desktop/internal/api"
	"github.com/kra-mo/filen-desktop/internal/crypto"
)

// htmlTagPattern matches HTML tags in decrypted names and MIME strings.
// Stripping them guards against corrupted metadata written by legacy
// clients or a misbehaving server.
var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// stripHTML removes HTML tags from a recovered string.
func stripHTML(s string) string {
	return htmlTagPattern.ReplaceAllString(s, "")
}

// enumerateFolder fetches a folder's full encrypted subtree and returns
// the propagation work list: the folder itself first (under its real
// parent), then every descendant. Entries that cannot be decrypted with
// the master keys are skipped.
//
// The first descendant folder's parent is rewritten to the "none"
// sentinel, which the server resolves to the share root. The server
// returns folders in tree order with the subtree root first, so the entry
// at index 0 of the descendant walk is the root's immediate child.
func (p *Propagator) enumerateFolder(
	ctx context.Context, folderUUID, realParent string, meta crypto.Metadata,
) ([]item, error) {
	tree, err := p.dirDownload(ctx, folderUUID)
	if err != nil {
		return nil, err
	}

	ring, err := p.keyring()
	if err != nil {
		return nil, err
	}

	items := []item{{uuid: folderUUID, parent: realParent, kind: kindFolder, meta: meta}}

	descendantIndex := 0

	for _, folder := range tree.Folders {
		if folder.UUID == folderUUID {
			continue
		}

		name, err := crypto.DecryptFolderName(folder.Name, ring)
		if err != nil {
			continue
		}

		parent := folder.Parent
		if descendantIndex == 0 {
			parent = shareRootParent
		}

		items = append(items, item{
			uuid:   folder.UUID,
			parent: parent,
			kind:   kindFolder,
			meta:   crypto.FolderMetadata{Name: stripHTML(name)},
		})

		descendantIndex++
	}

	for _, file := range tree.Files {
		fileMeta, err := crypto.DecryptFileMetadata(file.Metadata, ring)
		if err != nil {
			continue
		}

		fileMeta.Name = stripHTML(fileMeta.Name)
		fileMeta.Mime = stripHTML(fileMeta.Mime)

		items = append(items, item{
			uuid:   file.UUID,
			parent: file.Parent,
			kind:   kindFile,
			meta:   fileMeta,
		})
	}

	return items, nil
}

// dirDownload fetches the encrypted subtree of a folder.
func (p *Propagator) dirDownload(ctx context.Context, folderUUID string) (*api.DirDownload, error) {
	var tree api.DirDownload

	err := p.query(ctx, "/v3/dir/download", folderUUID, &tree)
	if err != nil {
		return nil, err
	}

	return &tree, nil
}

// dirShared queries the share status of a folder.
func (p *Propagator) dirShared(ctx context.Context, folderUUID string) (*api.SharedStatus, error) {
	var status api.SharedStatus

	if err := p.query(ctx, "/v3/dir/shared", folderUUID, &status); err != nil {
		return nil, err
	}

	return &status, nil
}

// dirLinked queries the public link status of a folder.
func (p *Propagator) dirLinked(ctx context.Context, folderUUID string) (*api.LinkedStatus, error) {
	var status api.LinkedStatus

	if err := p.query(ctx, "/v3/dir/linked", folderUUID, &status); err != nil {
		return nil, err
	}

	return &status, nil
}

// itemShared queries who an item is shared with.
func (p *Propagator) itemShared(ctx context.Context, itemUUID string) (*api.SharedStatus, error) {
	var status api.SharedStatus

	if err := p.query(ctx, "/v3/item/shared", itemUUID, &status); err != nil {
		return nil, err
	}

	return &status, nil
}

// itemLinked queries which links an item appears in.
func (p *Propagator) itemLinked(ctx context.Context, itemUUID string) (*api.LinkedStatus, error) {
	var status api.LinkedStatus

	if err := p.query(ctx, "/v3/item/linked", itemUUID, &status); err != nil {
		return nil, err
	}

	return &status, nil
}

// query posts a single-UUID request and decodes the data payload into out.
func (p *Propagator) query(ctx context.Context, endpoint, itemUUID string, out any) error {
	resp, err := p.api.Request(ctx, "", endpoint, map[string]string{"uuid": itemUUID})
	if err != nil {
		return err
	}

	if !resp.Status {
		return fmt.Errorf("share: %s: %w", endpoint, &api.Error{Code: resp.Code, Message: resp.Message})
	}

	return resp.DecodeData(out)
}
