// Package share propagates metadata changes to share recipients and public
// links. After every create, move, or rename the affected item's metadata
// is re-encrypted for each recipient's key material and pushed to the
// server, so shared users and link consumers keep a consistent view.
//
// Propagation is best-effort by design: the server's authoritative state
// was already updated by the primary operation, so per-target failures are
// logged and swallowed. Neither entry point returns an error.
package share

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/kra-mo/filen-desktop/internal/api"
	"github.com/kra-mo/filen-desktop/internal/crypto"
	"github.com/kra-mo/filen-desktop/internal/state"
)

// Item kinds as the wire protocol names them.
const (
	kindFile   = "file"
	kindFolder = "folder"
)

// shareRootParent is the server-recognized sentinel meaning "attach under
// the new share root".
const shareRootParent = "none"

// Propagator fans metadata updates out to share grantees and link
// consumers.
type Propagator struct {
	api    *api.Client
	store  state.Store
	logger *slog.Logger
}

// NewPropagator creates a propagator.
func NewPropagator(client *api.Client, store state.Store, logger *slog.Logger) *Propagator {
	if logger == nil {
		logger = slog.Default()
	}

	return &Propagator{api: client, store: store, logger: logger}
}

// item is one entry in the propagation work list.
type item struct {
	uuid   string
	parent string
	kind   string
	meta   crypto.Metadata
}

// ItemAdded propagates a new item in parentUUID (after create or move) to
// the parent's share recipients and public links. The share and link
// fan-outs run in parallel; the call returns when both have completed.
func (p *Propagator) ItemAdded(ctx context.Context, kind, parentUUID, itemUUID string, meta crypto.Metadata) {
	var g errgroup.Group

	g.Go(func() error {
		p.fanOutShares(ctx, kind, parentUUID, itemUUID, meta)
		return nil
	})

	g.Go(func() error {
		p.fanOutLinks(ctx, kind, parentUUID, itemUUID, meta)
		return nil
	})

	_ = g.Wait()
}

// ItemRenamed propagates an item's new metadata (after rename) to the
// recipients and links attached to the item itself.
func (p *Propagator) ItemRenamed(ctx context.Context, kind, itemUUID string, meta crypto.Metadata) {
	var g errgroup.Group

	g.Go(func() error {
		p.renameShares(ctx, itemUUID, meta)
		return nil
	})

	g.Go(func() error {
		p.renameLinks(ctx, itemUUID, meta)
		return nil
	})

	_ = g.Wait()
}

// keyring loads the master key list from the store.
func (p *Propagator) keyring() (crypto.Keyring, error) {
	keys, err := state.MasterKeys(p.store)
	if err != nil {
		return nil, err
	}

	return crypto.Keyring(keys), nil
}

// workList builds the items to propagate for one mutation: the item itself
// for files, the whole subtree for folders.
func (p *Propagator) workList(ctx context.Context, kind, parentUUID, itemUUID string, meta crypto.Metadata) []item {
	if kind != kindFolder {
		return []item{{uuid: itemUUID, parent: parentUUID, kind: kind, meta: meta}}
	}

	items, err := p.enumerateFolder(ctx, itemUUID, parentUUID, meta)
	if err != nil {
		p.logger.Warn("enumerating folder for propagation",
			slog.String("uuid", itemUUID),
			slog.String("error", err.Error()),
		)

		// Fall back to propagating the folder itself.
		return []item{{uuid: itemUUID, parent: parentUUID, kind: kindFolder, meta: meta}}
	}

	return items
}

// fanOutShares pushes the mutated item (and, for folders, every
// descendant) to each share recipient of the parent folder.
func (p *Propagator) fanOutShares(ctx context.Context, kind, parentUUID, itemUUID string, meta crypto.Metadata) {
	status, err := p.dirShared(ctx, parentUUID)
	if err != nil {
		p.logger.Warn("querying share status",
			slog.String("parent", parentUUID),
			slog.String("error", err.Error()),
		)

		return
	}

	if !status.Sharing || len(status.Users) == 0 {
		return
	}

	items := p.workList(ctx, kind, parentUUID, itemUUID, meta)

	var g errgroup.Group

	for _, it := range items {
		for _, recipient := range status.Users {
			g.Go(func() error {
				p.shareItem(ctx, it, recipient)
				return nil
			})
		}
	}

	_ = g.Wait()
}

// shareItem encrypts one item's metadata for one recipient and posts it.
// Failures are logged and swallowed.
func (p *Propagator) shareItem(ctx context.Context, it item, recipient api.ShareRecipient) {
	plain, err := crypto.EncodeMetadata(it.meta)
	if err != nil {
		p.logItemError("encoding metadata for share", it.uuid, err)
		return
	}

	encrypted, err := crypto.EncryptMetadataPublicKey(plain, recipient.PublicKey)
	if err != nil {
		p.logItemError("encrypting metadata for recipient", it.uuid, err)
		return
	}

	resp, err := p.api.Request(ctx, "", "/v3/item/share", map[string]any{
		"uuid":     it.uuid,
		"parent":   it.parent,
		"email":    recipient.Email,
		"type":     it.kind,
		"metadata": encrypted,
	})
	if err != nil {
		p.logItemError("sharing item", it.uuid, err)
		return
	}

	if !resp.Status {
		p.logItemError("sharing item", it.uuid, &api.Error{Code: resp.Code, Message: resp.Message})
	}
}

// fanOutLinks pushes the mutated item (and, for folders, every descendant)
// into each public link of the parent folder.
func (p *Propagator) fanOutLinks(ctx context.Context, kind, parentUUID, itemUUID string, meta crypto.Metadata) {
	status, err := p.dirLinked(ctx, parentUUID)
	if err != nil {
		p.logger.Warn("querying link status",
			slog.String("parent", parentUUID),
			slog.String("error", err.Error()),
		)

		return
	}

	if !status.Link || len(status.Links) == 0 {
		return
	}

	ring, err := p.keyring()
	if err != nil {
		p.logger.Warn("loading master keys for link fan-out", slog.String("error", err.Error()))
		return
	}

	items := p.workList(ctx, kind, parentUUID, itemUUID, meta)

	var g errgroup.Group

	for _, link := range status.Links {
		linkKey, err := crypto.DecryptFolderLinkKey(link.LinkKey, ring)
		if err != nil {
			// A link whose key does not recover belongs to another key
			// epoch; skip it.
			p.logger.Warn("skipping link with unrecoverable key",
				slog.String("link", link.LinkUUID),
			)

			continue
		}

		for _, it := range items {
			g.Go(func() error {
				p.linkItem(ctx, it, link, linkKey)
				return nil
			})
		}
	}

	_ = g.Wait()
}

// linkItem encrypts one item's metadata under one link key and posts it.
// Failures are logged and swallowed.
func (p *Propagator) linkItem(ctx context.Context, it item, link api.Link, linkKey string) {
	plain, err := crypto.EncodeMetadata(it.meta)
	if err != nil {
		p.logItemError("encoding metadata for link", it.uuid, err)
		return
	}

	encrypted, err := crypto.EncryptMetadata(plain, linkKey)
	if err != nil {
		p.logItemError("encrypting metadata for link", it.uuid, err)
		return
	}

	resp, err := p.api.Request(ctx, "", "/v3/dir/link/add", map[string]any{
		"uuid":       it.uuid,
		"parent":     it.parent,
		"linkUUID":   link.LinkUUID,
		"type":       it.kind,
		"metadata":   encrypted,
		"key":        link.LinkKey,
		"expiration": "never",
	})
	if err != nil {
		p.logItemError("adding item to link", it.uuid, err)
		return
	}

	if !resp.Status {
		p.logItemError("adding item to link", it.uuid, &api.Error{Code: resp.Code, Message: resp.Message})
	}
}

// renameShares pushes an item's new metadata to everyone it is shared
// with.
func (p *Propagator) renameShares(ctx context.Context, itemUUID string, meta crypto.Metadata) {
	status, err := p.itemShared(ctx, itemUUID)
	if err != nil {
		p.logItemError("querying item share status", itemUUID, err)
		return
	}

	if !status.Sharing || len(status.Users) == 0 {
		return
	}

	plain, err := crypto.EncodeMetadata(meta)
	if err != nil {
		p.logItemError("encoding renamed metadata", itemUUID, err)
		return
	}

	var g errgroup.Group

	for _, recipient := range status.Users {
		g.Go(func() error {
			encrypted, err := crypto.EncryptMetadataPublicKey(plain, recipient.PublicKey)
			if err != nil {
				p.logItemError("encrypting renamed metadata", itemUUID, err)
				return nil
			}

			resp, err := p.api.Request(ctx, "", "/v3/item/shared/rename", map[string]any{
				"uuid":       itemUUID,
				"receiverId": recipient.ID,
				"metadata":   encrypted,
			})
			if err != nil {
				p.logItemError("renaming shared item", itemUUID, err)
				return nil
			}

			if !resp.Status {
				p.logItemError("renaming shared item", itemUUID,
					&api.Error{Code: resp.Code, Message: resp.Message})
			}

			return nil
		})
	}

	_ = g.Wait()
}

// renameLinks pushes an item's new metadata into every link it appears in.
func (p *Propagator) renameLinks(ctx context.Context, itemUUID string, meta crypto.Metadata) {
	status, err := p.itemLinked(ctx, itemUUID)
	if err != nil {
		p.logItemError("querying item link status", itemUUID, err)
		return
	}

	if !status.Link || len(status.Links) == 0 {
		return
	}

	ring, err := p.keyring()
	if err != nil {
		p.logger.Warn("loading master keys for link rename", slog.String("error", err.Error()))
		return
	}

	plain, err := crypto.EncodeMetadata(meta)
	if err != nil {
		p.logItemError("encoding renamed metadata", itemUUID, err)
		return
	}

	var g errgroup.Group

	for _, link := range status.Links {
		linkKey, err := crypto.DecryptFolderLinkKey(link.LinkKey, ring)
		if err != nil {
			p.logger.Warn("skipping link with unrecoverable key",
				slog.String("link", link.LinkUUID),
			)

			continue
		}

		g.Go(func() error {
			encrypted, err := crypto.EncryptMetadata(plain, linkKey)
			if err != nil {
				p.logItemError("encrypting renamed metadata for link", itemUUID, err)
				return nil
			}

			resp, err := p.api.Request(ctx, "", "/v3/item/linked/rename", map[string]any{
				"uuid":     itemUUID,
				"linkUUID": link.LinkUUID,
				"metadata": encrypted,
			})
			if err != nil {
				p.logItemError("renaming linked item", itemUUID, err)
				return nil
			}

			if !resp.Status {
				p.logItemError("renaming linked item", itemUUID,
					&api.Error{Code: resp.Code, Message: resp.Message})
			}

			return nil
		})
	}

	_ = g.Wait()
}

// logItemError records a best-effort failure for one item.
func (p *Propagator) logItemError(msg, itemUUID string, err error) {
	p.logger.Warn(msg,
		slog.String("uuid", itemUUID),
		slog.String("error", err.Error()),
	)
}
