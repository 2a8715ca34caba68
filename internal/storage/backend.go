// Package storage implements the storage backend abstraction (C6): a
// flat key-to-bytes contract with in-memory, filesystem, and
// S3-compatible implementations, plus throttled and encrypted
// decorators.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when key does not exist.
var ErrNotFound = errors.New("storage: key not found")

// Backend is the minimal contract of spec 4.6.
type Backend interface {
	// List returns all keys under prefix. Lazy/finite, order unspecified.
	List(ctx context.Context, prefix string) ([]string, error)
	// Get fetches key's bytes, or ErrNotFound if absent.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put creates or replaces key atomically from the reader's view.
	Put(ctx context.Context, key string, data []byte) error
	// Delete removes key. Idempotent: deleting an absent key succeeds.
	Delete(ctx context.Context, key string) error
}
