package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryBackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.Put(ctx, "changes/a", []byte("hello")))
	data, err := m.Get(ctx, "changes/a")
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), data)

	keys, err := m.List(ctx, "changes/")
	require.NoError(t, err)
	require.Contains(t, keys, "changes/a")

	require.NoError(t, m.Delete(ctx, "changes/a"))
	_, err = m.Get(ctx, "changes/a")
	require.ErrorIs(t, err, ErrNotFound)

	// Deleting an absent key is success (spec 4.6 "idempotent").
	require.NoError(t, m.Delete(ctx, "changes/a"))
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, fs.Put(ctx, "batches/b1.bin", []byte("payload")))
	data, err := fs.Get(ctx, "batches/b1.bin")
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), data)

	keys, err := fs.List(ctx, "batches/")
	require.NoError(t, err)
	require.Contains(t, keys, "batches/b1.bin")

	_, err = fs.Get(ctx, "batches/missing.bin")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestEncryptedRoundTripAndWrongKeyFails(t *testing.T) {
	ctx := context.Background()
	inner := NewMemory()

	a := NewEncrypted(inner, "correct horse battery staple")
	require.NoError(t, a.Put(ctx, "k", []byte("secret data")))

	plain, err := a.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("secret data"), plain)

	b := NewEncrypted(inner, "wrong passphrase")
	_, err = b.Get(ctx, "k")
	require.Error(t, err)
}

func TestRegistryOpensByScheme(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()

	mem, err := reg.Open(ctx, "memory://test")
	require.NoError(t, err)
	require.IsType(t, &Memory{}, mem)

	dir := t.TempDir()
	file, err := reg.Open(ctx, "file://"+filepath.ToSlash(dir))
	require.NoError(t, err)
	require.IsType(t, &FileStore{}, file)

	_, err = reg.Open(ctx, "bogus://x")
	require.Error(t, err)
}

func TestThrottledPropagatesInjectedFailures(t *testing.T) {
	ctx := context.Background()
	inner := NewMemory()
	th := NewThrottled(inner, 0, 0, 1.0) // always fail

	err := th.Put(ctx, "k", []byte("v"))
	require.Error(t, err)
}
