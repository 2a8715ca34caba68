package format

import (
	"context"
	"strings"

	"github.com/zerovault/zerovault/internal/changelog"
	"github.com/zerovault/zerovault/internal/clock"
	"github.com/zerovault/zerovault/internal/storage"
	"github.com/zerovault/zerovault/internal/zverrors"
)

const changesPrefix = "changes/"

// Basic is the one-file-per-entry changelog layout (spec 4.7): every
// change_id becomes an immutable object at changes/<change_id>.bin, and
// the remote's own List under that prefix doubles as the index of
// everything a replica has ever pushed. Simple and robust, at the cost
// of one round trip per entry on both push and pull — Batched (C8)
// trades that away for higher-volume replicas.
type Basic struct {
	backend storage.Backend
}

// NewBasic wraps backend with the one-file-per-entry layout.
func NewBasic(backend storage.Backend) *Basic {
	return &Basic{backend: backend}
}

func (b *Basic) key(id clock.ID) string {
	return changesPrefix + id.String() + ".bin"
}

// Write publishes e as an immutable object. Re-writing the same
// change_id is harmless (content is deterministic given the entry) and
// satisfies the idempotent-push requirement (spec P3) without any
// extra bookkeeping.
func (b *Basic) Write(ctx context.Context, e changelog.Entry) error {
	data, err := EncodeEntry(e)
	if err != nil {
		return err
	}
	return b.backend.Put(ctx, b.key(e.ChangeID), data)
}

// List returns every change_id currently published on the remote.
func (b *Basic) List(ctx context.Context) ([]clock.ID, error) {
	keys, err := b.backend.List(ctx, changesPrefix)
	if err != nil {
		return nil, err
	}

	ids := make([]clock.ID, 0, len(keys))
	for _, k := range keys {
		name := strings.TrimSuffix(strings.TrimPrefix(k, changesPrefix), ".bin")
		id, err := clock.ParseID(name)
		if err != nil {
			return nil, zverrors.New(zverrors.Integrity, "list changes", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Read fetches and decodes a single published entry.
func (b *Basic) Read(ctx context.Context, id clock.ID) (changelog.Entry, error) {
	data, err := b.backend.Get(ctx, b.key(id))
	if err != nil {
		return changelog.Entry{}, err
	}
	return DecodeEntry(data)
}

// Push publishes every one of local's entries authored by authorID
// that isn't already present remotely, so the sync orchestrator can
// drive Basic and Batched through the same interface. One object Put
// per new entry — the round trip Batched exists to amortize away.
func (b *Basic) Push(ctx context.Context, authorID clock.ID, local []changelog.Entry) (PushResult, error) {
	var result PushResult

	remote, err := b.List(ctx)
	if err != nil {
		return result, err
	}
	haveRemote := make(map[string]struct{}, len(remote))
	for _, id := range remote {
		haveRemote[id.String()] = struct{}{}
	}

	for _, e := range local {
		if e.AuthorID != authorID {
			continue
		}
		if _, ok := haveRemote[e.ChangeID.String()]; ok {
			continue
		}
		if err := b.Write(ctx, e); err != nil {
			return result, err
		}
		result.EntriesPushed++
		result.BatchesWritten++
		result.BytesPushed += int64(estimateSize(e))
	}
	return result, nil
}

// Pull fetches every remote entry not authored by self and not
// already known locally, then hands them to merge in one call.
func (b *Basic) Pull(ctx context.Context, self clock.ID, isKnown IsKnown, merge Merge) error {
	ids, err := b.List(ctx)
	if err != nil {
		return err
	}

	var toMerge []changelog.Entry
	for _, id := range ids {
		e, err := b.Read(ctx, id)
		if err != nil {
			return err
		}
		if e.AuthorID == self {
			continue
		}
		if isKnown(e.AuthorID.String(), e.ChangeID.String()) {
			continue
		}
		toMerge = append(toMerge, e)
	}
	if len(toMerge) == 0 {
		return nil
	}
	return merge(toMerge)
}
