package broker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestSubscribeDeliversInitialResult(t *testing.T) {
	b := New(2)
	defer b.Close()

	var mu sync.Mutex
	var delivered []any

	recompute := func() (any, uint64, error) { return "v1", 1, nil }
	deliver := func(result any, err error) {
		mu.Lock()
		defer mu.Unlock()
		delivered = append(delivered, result)
	}

	b.Subscribe([]string{"todos"}, recompute, deliver)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []any{"v1"}, delivered)
}

func TestPublishOnlyNotifiesIntersectingSubscriptions(t *testing.T) {
	b := New(2)
	defer b.Close()

	var mu sync.Mutex
	calls := 0
	recompute := func() (any, uint64, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		return n, uint64(n), nil
	}
	b.Subscribe([]string{"todos"}, recompute, func(any, error) {})

	b.Publish([]string{"unrelated_table"})
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	require.Equal(t, 1, calls, "unrelated publish must not trigger recompute")
	mu.Unlock()

	b.Publish([]string{"todos"})
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 2
	})
}

func TestHashGatingSkipsIdenticalDeliveries(t *testing.T) {
	b := New(2)
	defer b.Close()

	var mu sync.Mutex
	deliveries := 0
	recompute := func() (any, uint64, error) { return "same", 42, nil }
	b.Subscribe([]string{"todos"}, recompute, func(any, error) {
		mu.Lock()
		deliveries++
		mu.Unlock()
	})

	for i := 0; i < 5; i++ {
		b.Publish([]string{"todos"})
	}
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, deliveries, "unchanged hash must not redeliver")
}

func TestErrorDeliveredToSinkNotRaised(t *testing.T) {
	b := New(1)
	defer b.Close()

	var mu sync.Mutex
	var lastErr error
	recompute := func() (any, uint64, error) { return nil, 0, assertErr }
	b.Subscribe([]string{"todos"}, recompute, func(result any, err error) {
		mu.Lock()
		lastErr = err
		mu.Unlock()
	})

	mu.Lock()
	defer mu.Unlock()
	require.ErrorIs(t, lastErr, assertErr)
}

func TestCloseDiscardsFurtherDeliveries(t *testing.T) {
	b := New(1)
	defer b.Close()

	var mu sync.Mutex
	deliveries := 0
	recompute := func() (any, uint64, error) { return time.Now().UnixNano(), uint64(time.Now().UnixNano()), nil }
	h := b.Subscribe([]string{"todos"}, recompute, func(any, error) {
		mu.Lock()
		deliveries++
		mu.Unlock()
	})

	h.Close()
	require.Equal(t, 0, b.Count())

	b.Publish([]string{"todos"})
	time.Sleep(50 * time.Millisecond)
	// deliveries stays at 1 (the initial synchronous delivery only).
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, deliveries)
}

var assertErr = &testError{"recompute failed"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
