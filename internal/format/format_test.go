package format

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zerovault/zerovault/internal/changelog"
	"github.com/zerovault/zerovault/internal/clock"
	"github.com/zerovault/zerovault/internal/storage"
	"github.com/zerovault/zerovault/internal/value"
)

func makeEntry(src *clock.Source, author clock.ID, field string, v value.Value) changelog.Entry {
	return changelog.Entry{
		ChangeID:   src.Next(),
		AuthorID:   author,
		EntityType: "todos",
		EntityID:   "t1",
		Fields:     []changelog.Field{{Name: field, Value: v}},
		Merged:     true,
	}
}

func TestWireEncodeDecodeEntryRoundTrip(t *testing.T) {
	src := clock.NewSource()
	author := src.Next()
	e := makeEntry(src, author, "title", value.Text("buy milk"))

	data, err := EncodeEntry(e)
	require.NoError(t, err)

	got, err := DecodeEntry(data)
	require.NoError(t, err)
	require.Equal(t, e.ChangeID, got.ChangeID)
	require.Equal(t, e.AuthorID, got.AuthorID)
	require.Equal(t, e.EntityType, got.EntityType)
	require.Equal(t, e.EntityID, got.EntityID)
	require.True(t, value.Equal(e.Fields[0].Value, got.Fields[0].Value))
}

func TestBasicWriteListRead(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory()
	basic := NewBasic(backend)

	src := clock.NewSource()
	author := src.Next()
	e1 := makeEntry(src, author, "title", value.Text("a"))
	e2 := makeEntry(src, author, "title", value.Text("b"))

	require.NoError(t, basic.Write(ctx, e1))
	require.NoError(t, basic.Write(ctx, e2))

	ids, err := basic.List(ctx)
	require.NoError(t, err)
	require.Len(t, ids, 2)

	got, err := basic.Read(ctx, e1.ChangeID)
	require.NoError(t, err)
	require.Equal(t, e1.EntityID, got.EntityID)
}

func TestBasicWriteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory()
	basic := NewBasic(backend)

	src := clock.NewSource()
	author := src.Next()
	e := makeEntry(src, author, "title", value.Text("a"))

	require.NoError(t, basic.Write(ctx, e))
	require.NoError(t, basic.Write(ctx, e))

	ids, err := basic.List(ctx)
	require.NoError(t, err)
	require.Len(t, ids, 1)
}

func TestBasicPushAndPullRoundTrip(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory()
	basic := NewBasic(backend)

	src := clock.NewSource()
	author := src.Next()
	self := src.Next()

	entries := []changelog.Entry{
		makeEntry(src, author, "title", value.Text("a")),
		makeEntry(src, author, "title", value.Text("b")),
	}

	result, err := basic.Push(ctx, author, entries)
	require.NoError(t, err)
	require.Equal(t, 2, result.EntriesPushed)

	// Re-pushing the same set is a no-op (already remote).
	result, err = basic.Push(ctx, author, entries)
	require.NoError(t, err)
	require.Equal(t, 0, result.EntriesPushed)

	var merged []changelog.Entry
	merge := func(es []changelog.Entry) error { merged = append(merged, es...); return nil }
	isKnown := func(authorID, changeID string) bool { return false }

	require.NoError(t, basic.Pull(ctx, self, isKnown, merge))
	require.Len(t, merged, 2)
}

func TestBasicPullSkipsAlreadyKnown(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory()
	basic := NewBasic(backend)

	src := clock.NewSource()
	author := src.Next()
	self := src.Next()

	entries := []changelog.Entry{
		makeEntry(src, author, "title", value.Text("a")),
		makeEntry(src, author, "title", value.Text("b")),
	}
	_, err := basic.Push(ctx, author, entries)
	require.NoError(t, err)

	known := map[string]bool{entries[0].ChangeID.String(): true}
	isKnown := func(authorID, changeID string) bool { return known[changeID] }

	var merged []changelog.Entry
	merge := func(es []changelog.Entry) error { merged = append(merged, es...); return nil }

	require.NoError(t, basic.Pull(ctx, self, isKnown, merge))
	require.Len(t, merged, 1)
	require.Equal(t, entries[1].ChangeID, merged[0].ChangeID)
}

func TestBatchedPushWritesBatchesThenManifest(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory()
	src := clock.NewSource()
	author := src.Next()

	batched := NewBatched(backend, src, BatchedOptions{})

	entries := []changelog.Entry{
		makeEntry(src, author, "title", value.Text("a")),
		makeEntry(src, author, "title", value.Text("b")),
		makeEntry(src, author, "title", value.Text("c")),
	}

	result, err := batched.Push(ctx, author, entries)
	require.NoError(t, err)
	require.Equal(t, 3, result.EntriesPushed)
	require.Equal(t, 1, result.BatchesWritten)
	require.Empty(t, result.OversizeEntries)

	manifest, err := batched.fetchManifest(ctx, author.String())
	require.NoError(t, err)
	require.Len(t, manifest, 3)
	for _, e := range entries {
		_, ok := manifest[e.ChangeID.String()]
		require.True(t, ok)
	}
}

func TestBatchedPushOversizeEntryGetsOwnBatch(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory()
	src := clock.NewSource()
	author := src.Next()

	batched := NewBatched(backend, src, BatchedOptions{MaxBatchBytes: 1})

	entries := []changelog.Entry{
		makeEntry(src, author, "title", value.Text("this entry exceeds the tiny cap")),
	}

	result, err := batched.Push(ctx, author, entries)
	require.NoError(t, err)
	require.Equal(t, 1, result.BatchesWritten)
	require.Len(t, result.OversizeEntries, 1)
}

func TestBatchedPullFetchesOnlyNeededBatchesOnce(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory()
	src := clock.NewSource()
	remoteAuthor := src.Next()
	self := src.Next()

	batched := NewBatched(backend, src, BatchedOptions{})

	entries := []changelog.Entry{
		makeEntry(src, remoteAuthor, "title", value.Text("a")),
		makeEntry(src, remoteAuthor, "title", value.Text("b")),
	}
	_, err := batched.Push(ctx, remoteAuthor, entries)
	require.NoError(t, err)

	known := map[string]bool{entries[0].ChangeID.String(): true}
	isKnown := func(authorID, changeID string) bool { return known[changeID] }

	var merged []changelog.Entry
	fetchCount := 0
	merge := func(es []changelog.Entry) error {
		fetchCount++
		merged = append(merged, es...)
		return nil
	}

	err = batched.Pull(ctx, self, isKnown, merge)
	require.NoError(t, err)
	require.Equal(t, 1, fetchCount)
	require.Len(t, merged, 1)
	require.Equal(t, entries[1].ChangeID, merged[0].ChangeID)
}

func TestBatchedPullSkipsSelfManifest(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory()
	src := clock.NewSource()
	self := src.Next()

	batched := NewBatched(backend, src, BatchedOptions{})
	_, err := batched.Push(ctx, self, []changelog.Entry{
		makeEntry(src, self, "title", value.Text("mine")),
	})
	require.NoError(t, err)

	calls := 0
	merge := func(es []changelog.Entry) error { calls++; return nil }
	isKnown := func(authorID, changeID string) bool { return false }

	require.NoError(t, batched.Pull(ctx, self, isKnown, merge))
	require.Equal(t, 0, calls)
}

func TestBatchedPullMissingBatchIsIntegrityError(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory()
	src := clock.NewSource()
	remoteAuthor := src.Next()
	self := src.Next()

	// Hand-craft a manifest pointing at a batch that was never written.
	batched := NewBatched(backend, src, BatchedOptions{})
	require.NoError(t, batched.writeManifest(ctx, remoteAuthor.String(), map[string]string{
		src.Next().String(): "nonexistent-batch",
	}))

	isKnown := func(authorID, changeID string) bool { return false }
	merge := func(es []changelog.Entry) error { return nil }

	err := batched.Pull(ctx, self, isKnown, merge)
	require.Error(t, err)
}
