// Package sync implements the sync orchestrator (C9): the
// pull-merge-push cycle that exchanges changelog entries with a remote
// object store. It composes internal/format (the wire layout),
// internal/changelog (the merge discipline), and internal/replica (the
// local author identity) behind one observable state machine.
package sync

import (
	"context"
	"database/sql"
	"sort"
	"sync/atomic"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/zerovault/zerovault/internal/changelog"
	"github.com/zerovault/zerovault/internal/clock"
	"github.com/zerovault/zerovault/internal/engine"
	"github.com/zerovault/zerovault/internal/format"
	"github.com/zerovault/zerovault/internal/metrics"
	"github.com/zerovault/zerovault/internal/replica"
	"github.com/zerovault/zerovault/internal/value"
	"github.com/zerovault/zerovault/internal/zverrors"
	"github.com/zerovault/zerovault/internal/zvlog"
)

// lastSyncedMetaKey is an observability-only watermark (Open Question
// (b), DESIGN.md): it has no bearing on merge correctness, which is
// driven entirely by the manifest diff, not by this timestamp.
const lastSyncedMetaKey = "last_synced_at"

// State is one node of the sync cycle's state machine (spec 4.9).
type State int32

const (
	StateIdle State = iota
	StatePulling
	StateMerging
	StatePushing
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePulling:
		return "pulling"
	case StateMerging:
		return "merging"
	case StatePushing:
		return "pushing"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Orchestrator drives one full sync cycle: pull every remote author's
// new entries, merge them in, then push the local author's new
// entries. Both phases are independently resumable and the whole cycle
// is idempotent when nothing has changed on either side (spec P3).
type Orchestrator struct {
	eng      *engine.Engine
	layout   format.Layout
	merger   *changelog.Merger
	identity *replica.Identity
	state    atomic.Int32
}

// New builds an Orchestrator. layout is typically a *format.Basic or
// *format.Batched wrapping the storage.Backend the caller opened for
// the configured remote URL.
func New(eng *engine.Engine, layout format.Layout, merger *changelog.Merger, identity *replica.Identity) *Orchestrator {
	return &Orchestrator{eng: eng, layout: layout, merger: merger, identity: identity}
}

// State reports the orchestrator's current state. Safe for concurrent
// reads while a Sync call is in flight.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

func (o *Orchestrator) setState(s State) {
	o.state.Store(int32(s))
	metrics.SyncState.Set(float64(s))
}

// Sync performs one IDLE → PULLING → MERGING → PUSHING → IDLE cycle.
// On any failure the state is left at FAILED and a single wrapped
// error is returned; the caller's next Sync call starts again from
// IDLE (spec 4.9 "failures surfaced as a single error... retries from
// IDLE"). ctx is checked once, after the pull phase; the Layout
// implementations pass ctx to each storage call but do not check it
// between batches or entries, and the push phase does not check it.
func (o *Orchestrator) Sync(ctx context.Context) error {
	log := zvlog.WithComponent("sync").With().Str("replica_id", o.identity.ID().String()).Logger()
	timer := metrics.NewTimer()
	self := o.identity.ID()

	o.setState(StatePulling)
	log.Debug().Msg("pull starting")

	isKnown := func(authorID, changeID string) bool {
		return o.isKnownChange(ctx, authorID, changeID)
	}
	merge := func(entries []changelog.Entry) error {
		o.setState(StateMerging)
		if err := o.merger.Apply(ctx, entries); err != nil {
			return err
		}
		metrics.SyncEntriesPulled.Add(float64(len(entries)))
		o.setState(StatePulling)
		return nil
	}

	if err := o.layout.Pull(ctx, self, isKnown, merge); err != nil {
		return o.fail(timer, "sync pull", err)
	}
	if err := ctx.Err(); err != nil {
		return o.fail(timer, "sync pull", err)
	}

	o.setState(StatePushing)
	log.Debug().Msg("push starting")

	local, err := o.loadLocalEntries(ctx, self)
	if err != nil {
		return o.fail(timer, "sync load local entries", err)
	}

	result, err := o.layout.Push(ctx, self, local)
	if err != nil {
		return o.fail(timer, "sync push", err)
	}
	metrics.SyncEntriesPushed.Add(float64(result.EntriesPushed))
	metrics.SyncBytesPushed.Add(float64(result.BytesPushed))
	if len(result.OversizeEntries) > 0 {
		log.Warn().Strs("change_ids", result.OversizeEntries).Msg("entry exceeded batch size cap, published alone")
	}

	if err := o.identity.SetMeta(ctx, lastSyncedMetaKey, time.Now().UTC().Format(time.RFC3339)); err != nil {
		log.Warn().Err(err).Msg("failed to record last_synced_at watermark")
	}

	o.setState(StateIdle)
	metrics.SyncCyclesTotal.WithLabelValues("ok").Inc()
	timer.ObserveDuration(metrics.SyncCycleDuration)
	log.Info().
		Int("entries_pushed", int(result.EntriesPushed)).
		Int("batches_written", result.BatchesWritten).
		Msg("sync cycle completed")
	return nil
}

func (o *Orchestrator) fail(timer *metrics.Timer, op string, err error) error {
	o.setState(StateFailed)
	metrics.SyncCyclesTotal.WithLabelValues("failed").Inc()
	timer.ObserveDuration(metrics.SyncCycleDuration)
	return zverrors.New(zverrors.Transport, op, err)
}

func (o *Orchestrator) isKnownChange(ctx context.Context, authorID, changeID string) bool {
	var exists int
	err := o.eng.Get(ctx, &exists,
		`SELECT 1 FROM ZV_CHANGE WHERE id = ? AND author_id = ?`, changeID, authorID)
	return err == nil
}

type changeRow struct {
	ID         string `db:"id"`
	AuthorID   string `db:"author_id"`
	EntityType string `db:"entity_type"`
	EntityID   string `db:"entity_id"`
}

type fieldRow struct {
	FieldName  string `db:"field_name"`
	FieldValue []byte `db:"field_value"`
}

// loadLocalEntries reconstructs every changelog entry this replica has
// authored, for Push to diff against the remote manifest.
func (o *Orchestrator) loadLocalEntries(ctx context.Context, self clock.ID) ([]changelog.Entry, error) {
	var rows []changeRow
	if err := o.eng.Select(ctx, &rows,
		`SELECT id, author_id, entity_type, entity_id FROM ZV_CHANGE WHERE author_id = ? ORDER BY id ASC`,
		self.String(),
	); err != nil {
		return nil, zverrors.New(zverrors.Engine, "load local changes", err)
	}

	entries := make([]changelog.Entry, 0, len(rows))
	for _, r := range rows {
		changeID, err := clock.ParseID(r.ID)
		if err != nil {
			return nil, zverrors.New(zverrors.Integrity, "parse change_id", err)
		}
		authorID, err := clock.ParseID(r.AuthorID)
		if err != nil {
			return nil, zverrors.New(zverrors.Integrity, "parse author_id", err)
		}

		fields, err := o.loadFields(ctx, r.ID)
		if err != nil {
			return nil, err
		}

		entries = append(entries, changelog.Entry{
			ChangeID:   changeID,
			AuthorID:   authorID,
			EntityType: r.EntityType,
			EntityID:   r.EntityID,
			Fields:     fields,
			Merged:     true,
		})
	}

	sort.Slice(entries, func(i, j int) bool { return clock.Less(entries[i].ChangeID, entries[j].ChangeID) })
	return entries, nil
}

func (o *Orchestrator) loadFields(ctx context.Context, changeID string) ([]changelog.Field, error) {
	var rows []fieldRow
	if err := o.eng.Select(ctx, &rows,
		`SELECT field_name, field_value FROM ZV_CHANGE_FIELD WHERE change_id = ? ORDER BY field_name ASC`,
		changeID,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, zverrors.New(zverrors.Engine, "load change fields", err)
	}

	fields := make([]changelog.Field, 0, len(rows))
	for _, r := range rows {
		var v value.Value
		if err := msgpack.Unmarshal(r.FieldValue, &v); err != nil {
			return nil, zverrors.New(zverrors.Serialization, "decode field value", err)
		}
		fields = append(fields, changelog.Field{Name: r.FieldName, Value: v})
	}
	return fields, nil
}
