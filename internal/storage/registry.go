package storage

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/zerovault/zerovault/internal/zverrors"
)

// Constructor builds a Backend from a parsed storage URL.
type Constructor func(ctx context.Context, u *url.URL) (Backend, error)

// Registry maps a storage URL scheme to the Backend constructor that
// handles it. Adapted from the teacher's provider registry (a
// mutex-guarded map with Get/Register), repurposed from looking up LLM
// providers by id to looking up backend constructors by URL scheme.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

// NewRegistry returns a Registry pre-populated with memory://,
// file://, and s3:// constructors. Callers may Register additional
// schemes (for example a test double) before calling Open.
func NewRegistry() *Registry {
	r := &Registry{ctors: make(map[string]Constructor)}

	r.Register("memory", func(_ context.Context, u *url.URL) (Backend, error) {
		return NewMemory(), nil
	})
	r.Register("file", func(_ context.Context, u *url.URL) (Backend, error) {
		return NewFileStore(ParseFileURL(u))
	})
	r.Register("s3", func(ctx context.Context, u *url.URL) (Backend, error) {
		cfg, err := ParseS3URL(u)
		if err != nil {
			return nil, err
		}
		return NewS3Store(ctx, cfg)
	})

	return r
}

// Register installs (or replaces) the constructor for scheme.
func (r *Registry) Register(scheme string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[scheme] = ctor
}

// Open parses rawURL and builds the corresponding Backend.
func (r *Registry) Open(ctx context.Context, rawURL string) (Backend, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, zverrors.New(zverrors.Configuration, "parse storage url", err)
	}

	r.mu.RLock()
	ctor, ok := r.ctors[u.Scheme]
	r.mu.RUnlock()
	if !ok {
		return nil, zverrors.New(zverrors.Configuration, "open storage", fmt.Errorf("unknown storage scheme %q", u.Scheme))
	}

	backend, err := ctor(ctx, u)
	if err != nil {
		return nil, err
	}
	return backend, nil
}
