package zerovault

import (
	"context"
	"hash/maphash"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/zerovault/zerovault/internal/broker"
	"github.com/zerovault/zerovault/internal/zverrors"
)

// hashSeed is shared across every Subscribe call in the process: two
// hashes are only comparable (same content -> same hash) when computed
// with the same maphash.Seed, so this must be fixed once rather than
// re-rolled per subscription.
var hashSeed = maphash.MakeSeed()

// Subscription is a live query registered with the broker. Close stops
// further deliveries.
type Subscription struct {
	handle *broker.Handle
}

// Close cancels the subscription. No further sink calls follow.
func (s *Subscription) Close() {
	s.handle.Close()
}

// Subscribe registers query as a live result set: sink is called once
// immediately with the current result, and again every time a
// committed write (local or merged in from sync) touches one of the
// tables query depends on and the result actually changes (spec §4.5
// "at-least-once, coalesced, hash-gated"). Errors recomputing the
// query are delivered through sink, never raised to the caller of
// Subscribe itself, except for the one-time dependency analysis below.
func Subscribe[T any](db *DB, query string, sink func([]T, error), args ...any) (*Subscription, error) {
	ctx := context.Background()
	tables, err := db.eng.DependenciesOf(ctx, query, args...)
	if err != nil {
		return nil, zverrors.New(zverrors.Engine, "subscribe dependencies", err)
	}

	recompute := func() (any, uint64, error) {
		rows, err := Query[T](db, query, args...)
		if err != nil {
			return nil, 0, err
		}
		h, err := hashRows(rows)
		if err != nil {
			return nil, 0, err
		}
		return rows, h, nil
	}

	deliver := func(result any, err error) {
		if err != nil {
			sink(nil, err)
			return
		}
		rows, _ := result.([]T)
		sink(rows, nil)
	}

	handle := db.broker.Subscribe(tables, recompute, deliver)
	return &Subscription{handle: handle}, nil
}

// SubscribeRaw is Subscribe's untyped counterpart: it decodes results
// into column-name-keyed maps via QueryRaw instead of a generic T, for
// callers (the REPL's `watch` command) with no static row type.
func SubscribeRaw(db *DB, query string, sink func([]map[string]any, error), args ...any) (*Subscription, error) {
	ctx := context.Background()
	tables, err := db.eng.DependenciesOf(ctx, query, args...)
	if err != nil {
		return nil, zverrors.New(zverrors.Engine, "subscribe dependencies", err)
	}

	recompute := func() (any, uint64, error) {
		rows, err := QueryRaw(db, query, args...)
		if err != nil {
			return nil, 0, err
		}
		h, err := hashMapRows(rows)
		if err != nil {
			return nil, 0, err
		}
		return rows, h, nil
	}

	deliver := func(result any, err error) {
		if err != nil {
			sink(nil, err)
			return
		}
		rows, _ := result.([]map[string]any)
		sink(rows, nil)
	}

	handle := db.broker.Subscribe(tables, recompute, deliver)
	return &Subscription{handle: handle}, nil
}

func hashMapRows(rows []map[string]any) (uint64, error) {
	buf, err := msgpack.Marshal(rows)
	if err != nil {
		return 0, zverrors.New(zverrors.Serialization, "hash subscription result", err)
	}
	var h maphash.Hash
	h.SetSeed(hashSeed)
	h.Write(buf)
	return h.Sum64(), nil
}

func hashRows[T any](rows []T) (uint64, error) {
	buf, err := msgpack.Marshal(rows)
	if err != nil {
		return 0, zverrors.New(zverrors.Serialization, "hash subscription result", err)
	}
	var h maphash.Hash
	h.SetSeed(hashSeed)
	h.Write(buf)
	return h.Sum64(), nil
}
