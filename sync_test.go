package zerovault

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func newSyncPair(t *testing.T) (*DB, *DB) {
	t.Helper()
	a := newTestDB(t)
	b := newTestDB(t)
	return a, b
}

func TestSyncPropagatesWritesBetweenTwoDatabases(t *testing.T) {
	remote := "file://" + t.TempDir()
	a, b := newSyncPair(t)

	syncA, err := NewSync(remote)
	require.NoError(t, err)
	syncB, err := NewSync(remote)
	require.NoError(t, err)

	ctx := context.Background()

	saved, err := Save(a, todo{Title: "from replica A"})
	require.NoError(t, err)

	require.NoError(t, syncA.Sync(ctx, a))
	require.NoError(t, syncB.Sync(ctx, b))

	rows, err := Query[todo](b, "SELECT id, title, done FROM todos WHERE id = ?", saved.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "from replica A", rows[0].Title)
}

func TestSyncWithBatchedLayoutPropagatesWrites(t *testing.T) {
	remote := "file://" + t.TempDir()
	a, b := newSyncPair(t)

	syncA, err := NewSync(remote, WithBatched(true), WithMaxBatchBytes(4096))
	require.NoError(t, err)
	syncB, err := NewSync(remote, WithBatched(true), WithMaxBatchBytes(4096))
	require.NoError(t, err)

	ctx := context.Background()
	saved, err := Save(a, todo{Title: "batched write"})
	require.NoError(t, err)

	require.NoError(t, syncA.Sync(ctx, a))
	require.NoError(t, syncB.Sync(ctx, b))

	rows, err := Query[todo](b, "SELECT id, title, done FROM todos WHERE id = ?", saved.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "batched write", rows[0].Title)
}

func TestSyncWithEncryptedRemoteRoundTrips(t *testing.T) {
	remote := "file://" + t.TempDir()
	a, b := newSyncPair(t)

	syncA, err := NewSync(remote, WithPassphrase("correct horse battery staple"))
	require.NoError(t, err)
	syncB, err := NewSync(remote, WithPassphrase("correct horse battery staple"))
	require.NoError(t, err)

	ctx := context.Background()
	saved, err := Save(a, todo{Title: "secret todo"})
	require.NoError(t, err)

	require.NoError(t, syncA.Sync(ctx, a))
	require.NoError(t, syncB.Sync(ctx, b))

	rows, err := Query[todo](b, "SELECT id, title, done FROM todos WHERE id = ?", saved.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "secret todo", rows[0].Title)
}

func TestLastSyncedAtIsRecordedAfterASyncCycle(t *testing.T) {
	remote := "file://" + t.TempDir()
	a, _ := newSyncPair(t)

	_, ok, err := a.LastSyncedAt()
	require.NoError(t, err)
	require.False(t, ok)

	syncA, err := NewSync(remote)
	require.NoError(t, err)

	require.NoError(t, syncA.Sync(context.Background(), a))

	_, ok, err = a.LastSyncedAt()
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSyncRetriesFromIdleAfterTransientRemoteFailure(t *testing.T) {
	remote := "file://" + t.TempDir()
	a, b := newSyncPair(t)

	flaky, err := NewSync(remote, WithChaos(0, 0, 1.0))
	require.NoError(t, err)

	ctx := context.Background()
	saved, err := Save(a, todo{Title: "resilient write"})
	require.NoError(t, err)

	require.Error(t, flaky.Sync(ctx, a))

	syncA, err := NewSync(remote)
	require.NoError(t, err)
	syncB, err := NewSync(remote)
	require.NoError(t, err)
	require.NoError(t, syncA.Sync(ctx, a))
	require.NoError(t, syncB.Sync(ctx, b))

	rows, err := Query[todo](b, "SELECT id, title, done FROM todos WHERE id = ?", saved.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "resilient write", rows[0].Title)
}

func TestSyncIsIdempotentWhenNothingChanged(t *testing.T) {
	remote := "file://" + t.TempDir()
	a, _ := newSyncPair(t)

	syncA, err := NewSync(remote)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, syncA.Sync(ctx, a))
	require.NoError(t, syncA.Sync(ctx, a))
	require.NoError(t, syncA.Sync(ctx, a))
}
