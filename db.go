package zerovault

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"runtime"
	"time"

	"github.com/zerovault/zerovault/internal/broker"
	"github.com/zerovault/zerovault/internal/changelog"
	"github.com/zerovault/zerovault/internal/clock"
	"github.com/zerovault/zerovault/internal/engine"
	"github.com/zerovault/zerovault/internal/replica"
	"github.com/zerovault/zerovault/internal/zverrors"
	"github.com/zerovault/zerovault/internal/zvlog"
)

// lastSyncedMetaKey mirrors internal/sync's watermark key name; kept
// in sync by hand since the two packages intentionally don't share an
// import for a single string constant.
const lastSyncedMetaKey = "last_synced_at"

// DB is an open zerovault database: an embedded SQL engine, its
// changelog writer/merger, and the reactive subscription broker that
// sits on top of it.
type DB struct {
	eng      *engine.Engine
	identity *replica.Identity
	registry *changelog.Registry
	clockSrc *clock.Source
	writer   *changelog.Writer
	merger   *changelog.Merger
	broker   *broker.Broker
}

// Open opens (creating if absent) a zerovault database at path.
func Open(path string) (*DB, error) {
	eng, err := engine.Open(path)
	if err != nil {
		return nil, err
	}
	return newDB(eng)
}

// OpenMemory opens a fresh, process-private in-memory database. Each
// call gets its own isolated database, unlike internal/engine.OpenMemory
// which shares state across handles given the same name.
func OpenMemory() (*DB, error) {
	name, err := randomName()
	if err != nil {
		return nil, zverrors.New(zverrors.Configuration, "open memory db", err)
	}
	eng, err := engine.OpenMemory(name)
	if err != nil {
		return nil, err
	}
	return newDB(eng)
}

func randomName() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func newDB(eng *engine.Engine) (*DB, error) {
	ctx := context.Background()

	if err := changelog.EnsureSchema(ctx, eng); err != nil {
		return nil, err
	}

	identity, err := replica.Bootstrap(ctx, eng)
	if err != nil {
		return nil, err
	}

	registry := changelog.NewRegistry()

	clockSrc := clock.NewSource()
	clockLog := zvlog.WithComponent("clock")
	clockSrc.OnRegression(func(msg string) { clockLog.Warn().Msg(msg) })

	brk := broker.New(runtime.GOMAXPROCS(0))

	writer := changelog.NewWriter(eng, clockSrc, identity.ID(), registry, brk.Publish)
	merger := changelog.NewMerger(eng, registry, brk.Publish)

	return &DB{
		eng:      eng,
		identity: identity,
		registry: registry,
		clockSrc: clockSrc,
		writer:   writer,
		merger:   merger,
		broker:   brk,
	}, nil
}

// Migrate runs caller-supplied DDL statements against the database.
// Statements run after the reserved ZV_* schema already exists (spec §6
// "reserved tables created before any caller migration").
func (db *DB) Migrate(statements ...string) error {
	ctx := context.Background()
	for _, stmt := range statements {
		if _, err := db.eng.Exec(ctx, stmt); err != nil {
			return zverrors.New(zverrors.Engine, "migrate", err)
		}
	}
	return nil
}

// ReplicaID returns this database's stable author_id.
func (db *DB) ReplicaID() clock.ID {
	return db.identity.ID()
}

// LastSyncedAt reports when this database last completed a sync
// cycle (observability only; ok is false if it has never synced).
func (db *DB) LastSyncedAt() (t time.Time, ok bool, err error) {
	raw, found, err := db.identity.GetMeta(context.Background(), lastSyncedMetaKey)
	if err != nil || !found {
		return time.Time{}, false, err
	}
	t, err = time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false, zverrors.New(zverrors.Integrity, "parse last_synced_at", err)
	}
	return t, true, nil
}

// Close releases the broker's worker pool and the underlying engine's
// connections.
func (db *DB) Close() error {
	db.broker.Close()
	return db.eng.Close()
}
