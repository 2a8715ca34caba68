package zerovault

import (
	"context"
	"time"

	"github.com/zerovault/zerovault/internal/clock"
	"github.com/zerovault/zerovault/internal/format"
	"github.com/zerovault/zerovault/internal/storage"
	zvsync "github.com/zerovault/zerovault/internal/sync"
)

// syncOptions collects SyncOption settings before NewSync builds a Sync.
type syncOptions struct {
	passphrase    string
	batched       bool
	maxBatchBytes int64

	chaos           bool
	chaosMinLatency time.Duration
	chaosMaxLatency time.Duration
	chaosFailRate   float64
}

// SyncOption configures NewSync.
type SyncOption func(*syncOptions)

// WithPassphrase wraps the remote's storage backend in encryption
// (storage.Encrypted), deriving a key from passphrase.
func WithPassphrase(passphrase string) SyncOption {
	return func(o *syncOptions) { o.passphrase = passphrase }
}

// WithBatched selects the manifest+batch changelog layout (C8) over
// the default one-file-per-entry layout (C7).
func WithBatched(batched bool) SyncOption {
	return func(o *syncOptions) { o.batched = batched }
}

// WithMaxBatchBytes overrides format.DefaultMaxBatchBytes. Only takes
// effect when WithBatched is also set.
func WithMaxBatchBytes(n int64) SyncOption {
	return func(o *syncOptions) { o.maxBatchBytes = n }
}

// WithChaos wraps the remote in storage.Throttled, injecting latency
// and a transient failure rate. Meant for testing the sync cycle's
// retry-from-IDLE contract against an unreliable remote, not for
// production use.
func WithChaos(minLatency, maxLatency time.Duration, failureRate float64) SyncOption {
	return func(o *syncOptions) {
		o.chaos = true
		o.chaosMinLatency = minLatency
		o.chaosMaxLatency = maxLatency
		o.chaosFailRate = failureRate
	}
}

// Sync is a reusable client for one remote: a storage.Backend plus the
// changelog wire layout (basic or batched) chosen to read and write it.
type Sync struct {
	layout format.Layout
}

// NewSync opens storageURL (memory://, file://, or s3://, per
// internal/storage's registry) and builds a Sync ready to run against
// any number of *DB databases.
func NewSync(storageURL string, opts ...SyncOption) (*Sync, error) {
	var o syncOptions
	for _, opt := range opts {
		opt(&o)
	}

	ctx := context.Background()
	backend, err := storage.NewRegistry().Open(ctx, storageURL)
	if err != nil {
		return nil, err
	}
	if o.chaos {
		backend = storage.NewThrottled(backend, o.chaosMinLatency, o.chaosMaxLatency, o.chaosFailRate)
	}
	if o.passphrase != "" {
		backend = storage.NewEncrypted(backend, o.passphrase)
	}

	var layout format.Layout
	if o.batched {
		layout = format.NewBatched(backend, clock.NewSource(), format.BatchedOptions{MaxBatchBytes: o.maxBatchBytes})
	} else {
		layout = format.NewBasic(backend)
	}

	return &Sync{layout: layout}, nil
}

// Sync runs one full pull-merge-push cycle against db (spec §4.9).
func (s *Sync) Sync(ctx context.Context, db *DB) error {
	orch := zvsync.New(db.eng, s.layout, db.merger, db.identity)
	return orch.Sync(ctx)
}
