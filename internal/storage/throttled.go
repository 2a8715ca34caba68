package storage

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// Throttled wraps a Backend with injected latency and failures, for
// exercising C9's resumable, retry-free sync contract under adverse
// conditions the way a chaos-testing fault injector would.
type Throttled struct {
	inner       Backend
	minLatency  time.Duration
	maxLatency  time.Duration
	failureRate float64
	rng         *rand.Rand
}

// NewThrottled wraps inner. failureRate is in [0,1]: the fraction of
// calls that fail with a transient error before being attempted.
func NewThrottled(inner Backend, minLatency, maxLatency time.Duration, failureRate float64) *Throttled {
	return &Throttled{
		inner:       inner,
		minLatency:  minLatency,
		maxLatency:  maxLatency,
		failureRate: failureRate,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (t *Throttled) delay(ctx context.Context) error {
	d := t.minLatency
	if t.maxLatency > t.minLatency {
		d += time.Duration(t.rng.Int63n(int64(t.maxLatency - t.minLatency)))
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Throttled) maybeFail(op, key string) error {
	if t.failureRate > 0 && t.rng.Float64() < t.failureRate {
		return fmt.Errorf("storage: throttled injected failure on %s %q", op, key)
	}
	return nil
}

func (t *Throttled) List(ctx context.Context, prefix string) ([]string, error) {
	if err := t.delay(ctx); err != nil {
		return nil, err
	}
	if err := t.maybeFail("list", prefix); err != nil {
		return nil, err
	}
	return t.inner.List(ctx, prefix)
}

func (t *Throttled) Get(ctx context.Context, key string) ([]byte, error) {
	if err := t.delay(ctx); err != nil {
		return nil, err
	}
	if err := t.maybeFail("get", key); err != nil {
		return nil, err
	}
	return t.inner.Get(ctx, key)
}

func (t *Throttled) Put(ctx context.Context, key string, data []byte) error {
	if err := t.delay(ctx); err != nil {
		return err
	}
	if err := t.maybeFail("put", key); err != nil {
		return err
	}
	return t.inner.Put(ctx, key, data)
}

func (t *Throttled) Delete(ctx context.Context, key string) error {
	if err := t.delay(ctx); err != nil {
		return err
	}
	if err := t.maybeFail("delete", key); err != nil {
		return err
	}
	return t.inner.Delete(ctx, key)
}
