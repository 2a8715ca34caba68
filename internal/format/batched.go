package format

import (
	"context"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/zerovault/zerovault/internal/changelog"
	"github.com/zerovault/zerovault/internal/clock"
	"github.com/zerovault/zerovault/internal/storage"
	"github.com/zerovault/zerovault/internal/zverrors"
	"github.com/zerovault/zerovault/internal/zvlog"
)

const (
	manifestsPrefix = "manifests/"
	batchesPrefix   = "batches/"

	// DefaultMaxBatchBytes bounds a single batch blob's encoded size
	// (spec 4.8's "default 100 MiB" size cap).
	DefaultMaxBatchBytes int64 = 100 * 1024 * 1024
)

var formatLog = zvlog.WithComponent("format")

// BatchedOptions configures a Batched layout.
type BatchedOptions struct {
	// MaxBatchBytes caps the encoded size of one batch blob. Zero means
	// DefaultMaxBatchBytes.
	MaxBatchBytes int64
}

// Batched is the manifest-plus-blob changelog layout (spec 4.8): each
// author owns one manifest object (manifests/<author_id>.bin) mapping
// change_id -> batch_id, and entries are grouped into size-capped
// immutable batch blobs (batches/<batch_id>.bin). A replica with many
// small changes pays one round trip per batch instead of one per
// entry.
type Batched struct {
	backend storage.Backend
	clock   *clock.Source
	opts    BatchedOptions
}

// NewBatched wraps backend with the batched layout. clockSrc mints
// batch_id values; it may be the same Source a Writer uses to mint
// change_id values, since batch ids live in a disjoint namespace
// (batches/ vs changes/ path prefixes) and only need to be globally
// unique, not causally ordered against entries.
func NewBatched(backend storage.Backend, clockSrc *clock.Source, opts BatchedOptions) *Batched {
	if opts.MaxBatchBytes <= 0 {
		opts.MaxBatchBytes = DefaultMaxBatchBytes
	}
	return &Batched{backend: backend, clock: clockSrc, opts: opts}
}

func manifestKey(authorID string) string { return manifestsPrefix + authorID + ".bin" }
func batchKey(batchID string) string     { return batchesPrefix + batchID + ".bin" }

func (b *Batched) fetchManifest(ctx context.Context, authorID string) (map[string]string, error) {
	data, err := b.backend.Get(ctx, manifestKey(authorID))
	if err == storage.ErrNotFound {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, err
	}
	return DecodeManifest(data)
}

func (b *Batched) writeManifest(ctx context.Context, authorID string, m map[string]string) error {
	data, err := EncodeManifest(m)
	if err != nil {
		return err
	}
	return b.backend.Put(ctx, manifestKey(authorID), data)
}

func (b *Batched) fetchBatch(ctx context.Context, batchID string) ([]changelog.Entry, error) {
	data, err := b.backend.Get(ctx, batchKey(batchID))
	if err == storage.ErrNotFound {
		return nil, zverrors.New(zverrors.Integrity, "fetch batch",
			errMissingBatch{batchID: batchID})
	}
	if err != nil {
		return nil, err
	}
	return DecodeEntries(data)
}

func (b *Batched) writeBatch(ctx context.Context, batchID string, entries []changelog.Entry) error {
	data, err := EncodeEntries(entries)
	if err != nil {
		return err
	}
	return b.backend.Put(ctx, batchKey(batchID), data)
}

// PushResult summarizes a Push call for the caller to log (spec's
// ambient-stack logging, not format's concern).
type PushResult struct {
	EntriesPushed   int
	BatchesWritten  int
	BytesPushed     int64
	OversizeEntries []string
}

// Push publishes local's changes for authorID (every locally-known
// entry authored by authorID, regardless of whether it was already
// pushed), partitioning the entries the remote manifest doesn't
// already reference into size-capped batches and rewriting the
// author's manifest in full. Push itself computes Unew = local \
// manifest.keys (spec 4.8 push step 2), so callers never need to
// inspect the manifest.
//
// Batches are written before the manifest (spec 4.8 push step 4): a
// crash between those two writes leaves an orphan batch blob, which is
// harmless, rather than a manifest entry pointing at a batch that was
// never written, which would be a fatal integrity error on pull.
func (b *Batched) Push(ctx context.Context, authorID clock.ID, local []changelog.Entry) (PushResult, error) {
	var result PushResult

	manifest, err := b.fetchManifest(ctx, authorID.String())
	if err != nil {
		return result, err
	}

	pending := make([]changelog.Entry, 0, len(local))
	for _, e := range local {
		if _, already := manifest[e.ChangeID.String()]; !already {
			pending = append(pending, e)
		}
	}
	if len(pending) == 0 {
		return result, nil
	}

	sorted := pending
	sort.Slice(sorted, func(i, j int) bool {
		return clock.Less(sorted[i].ChangeID, sorted[j].ChangeID)
	})

	batches := b.partition(sorted, &result)

	for _, batch := range batches {
		batchID := b.clock.Next().String()
		if err := b.writeBatch(ctx, batchID, batch); err != nil {
			return result, err
		}
		result.BatchesWritten++
		for _, e := range batch {
			manifest[e.ChangeID.String()] = batchID
		}
	}

	if err := b.writeManifest(ctx, authorID.String(), manifest); err != nil {
		return result, err
	}
	return result, nil
}

// partition groups sorted entries into batches no larger than
// MaxBatchBytes. An entry that alone exceeds the cap is a soft
// violation (spec 4.8): it still gets published, alone in its own
// batch, rather than being rejected or split.
func (b *Batched) partition(sorted []changelog.Entry, result *PushResult) [][]changelog.Entry {
	var batches [][]changelog.Entry
	var current []changelog.Entry
	var currentSize int64

	flush := func() {
		if len(current) > 0 {
			batches = append(batches, current)
			current = nil
			currentSize = 0
		}
	}

	for _, e := range sorted {
		size := int64(estimateSize(e))
		result.EntriesPushed++
		result.BytesPushed += size

		if size > b.opts.MaxBatchBytes {
			flush()
			batches = append(batches, []changelog.Entry{e})
			result.OversizeEntries = append(result.OversizeEntries, e.ChangeID.String())
			formatLog.Warn().
				Str("change_id", e.ChangeID.String()).
				Str("entry_size", humanize.Bytes(uint64(size))).
				Str("batch_cap", humanize.Bytes(uint64(b.opts.MaxBatchBytes))).
				Msg("entry exceeds batch size cap, publishing alone")
			continue
		}
		if currentSize+size > b.opts.MaxBatchBytes {
			flush()
		}
		current = append(current, e)
		currentSize += size
	}
	flush()
	return batches
}

func estimateSize(e changelog.Entry) int {
	data, err := EncodeEntry(e)
	if err != nil {
		return 0
	}
	return len(data)
}

// IsKnown reports whether the local replica already has changeID from
// authorID. The sync orchestrator supplies this (backed by a ZV_CHANGE
// lookup) so Pull never has to reach into the engine directly.
type IsKnown func(authorID, changeID string) bool

// Merge applies one batch's worth of newly-pulled entries. The sync
// orchestrator supplies this, backed by changelog.Merger.Apply.
type Merge func(entries []changelog.Entry) error

// Layout is the common push/pull surface of Basic and Batched, letting
// the sync orchestrator (C9) drive either on-disk format identically.
type Layout interface {
	Push(ctx context.Context, authorID clock.ID, local []changelog.Entry) (PushResult, error)
	Pull(ctx context.Context, self clock.ID, isKnown IsKnown, merge Merge) error
}

var (
	_ Layout = (*Basic)(nil)
	_ Layout = (*Batched)(nil)
)

// Pull discovers every remote author other than self, diffs their
// manifest against what isKnown already has locally, and fetches each
// needed batch exactly once (spec 4.8 pull steps 1-3), regardless of
// how many of its entries are wanted.
func (b *Batched) Pull(ctx context.Context, self clock.ID, isKnown IsKnown, merge Merge) error {
	keys, err := b.backend.List(ctx, manifestsPrefix)
	if err != nil {
		return err
	}

	selfName := self.String()
	for _, k := range keys {
		authorID := strings.TrimSuffix(strings.TrimPrefix(k, manifestsPrefix), ".bin")
		if authorID == selfName {
			continue
		}

		manifest, err := b.fetchManifest(ctx, authorID)
		if err != nil {
			return err
		}

		wantByBatch := make(map[string][]string)
		for changeID, batchID := range manifest {
			if isKnown(authorID, changeID) {
				continue
			}
			wantByBatch[batchID] = append(wantByBatch[batchID], changeID)
		}
		if len(wantByBatch) == 0 {
			continue
		}

		for batchID, wantedIDs := range wantByBatch {
			entries, err := b.fetchBatch(ctx, batchID)
			if err != nil {
				return err
			}

			wanted := make(map[string]struct{}, len(wantedIDs))
			for _, id := range wantedIDs {
				wanted[id] = struct{}{}
			}

			filtered := make([]changelog.Entry, 0, len(wanted))
			for _, e := range entries {
				if _, ok := wanted[e.ChangeID.String()]; ok {
					filtered = append(filtered, e)
				}
			}
			if len(filtered) == 0 {
				continue
			}
			if err := merge(filtered); err != nil {
				return err
			}
		}
	}
	return nil
}

type errMissingBatch struct{ batchID string }

func (e errMissingBatch) Error() string {
	return "format: manifest refers to missing batch " + e.batchID
}
