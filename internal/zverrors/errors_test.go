package zverrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewNilPassthrough(t *testing.T) {
	require.NoError(t, New(Engine, "query", nil))
}

func TestWrapAndIs(t *testing.T) {
	base := errors.New("boom")
	err := New(Transport, "put", base)

	require.True(t, Is(err, Transport))
	require.False(t, Is(err, Cryptographic))
	require.ErrorIs(t, err, base)
}

func TestErrorMessageIncludesOp(t *testing.T) {
	err := New(Integrity, "manifest lookup", errors.New("missing batch"))
	require.Contains(t, err.Error(), "manifest lookup")
	require.Contains(t, err.Error(), "missing batch")
}
