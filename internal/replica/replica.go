// Package replica bootstraps and persists a database's replica
// identity, adapted from the teacher's session.Manager: where the
// teacher minted a uuid.UUID session id and stashed it in a sessions
// row, Identity mints a uuid.UUID once per database, persists it in
// ZV_METADATA, and hands it out as a clock.ID so the rest of zerovault
// never has to know two different 128-bit id formats exist — a
// uuid.UUID and a clock.ID (ulid.ULID) are both plain [16]byte arrays,
// so the conversion between them is exact and lossless.
package replica

import (
	"context"
	"database/sql"
	"sync"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/zerovault/zerovault/internal/clock"
	"github.com/zerovault/zerovault/internal/engine"
	"github.com/zerovault/zerovault/internal/zverrors"
)

const replicaIDKey = "replica_id"

// Identity is a database's durable author_id, stable across restarts.
type Identity struct {
	eng *engine.Engine
	mu  sync.RWMutex
	id  clock.ID
}

// Bootstrap loads the persisted replica_id from ZV_METADATA, minting
// and storing a fresh one on first open.
func Bootstrap(ctx context.Context, eng *engine.Engine) (*Identity, error) {
	existing, found, err := getMeta(ctx, eng, replicaIDKey)
	if err != nil {
		return nil, err
	}
	if found {
		id, err := clock.ParseID(existing)
		if err != nil {
			return nil, zverrors.New(zverrors.Integrity, "parse replica_id", err)
		}
		return &Identity{eng: eng, id: id}, nil
	}

	id := clock.ID(uuid.New())
	if err := setMeta(ctx, eng, replicaIDKey, id.String()); err != nil {
		return nil, err
	}
	return &Identity{eng: eng, id: id}, nil
}

// ID returns the replica's stable author_id.
func (i *Identity) ID() clock.ID {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.id
}

// SetMeta stores an arbitrary key/value pair in ZV_METADATA, for
// bookkeeping that doesn't warrant its own reserved table (e.g. the
// timestamp of the last completed sync cycle, used only for
// observability and never consulted for merge correctness).
func (i *Identity) SetMeta(ctx context.Context, key, value string) error {
	return setMeta(ctx, i.eng, key, value)
}

// GetMeta reads a ZV_METADATA value, reporting found=false if absent.
func (i *Identity) GetMeta(ctx context.Context, key string) (string, bool, error) {
	return getMeta(ctx, i.eng, key)
}

func getMeta(ctx context.Context, eng *engine.Engine, key string) (string, bool, error) {
	var value string
	err := eng.Get(ctx, &value, `SELECT value FROM ZV_METADATA WHERE key = ?`, key)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, zverrors.New(zverrors.Engine, "get metadata", err)
	}
	return value, true, nil
}

func setMeta(ctx context.Context, eng *engine.Engine, key, value string) error {
	return eng.WithWriteTxn(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO ZV_METADATA (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, key, value)
		if err != nil {
			return zverrors.New(zverrors.Engine, "set metadata", err)
		}
		return nil
	})
}
