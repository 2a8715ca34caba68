package changelog

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/zerovault/zerovault/internal/clock"
	"github.com/zerovault/zerovault/internal/engine"
	"github.com/zerovault/zerovault/internal/zverrors"
)

// Merger is C4: it applies batches of foreign changelog entries into
// user tables under the LWW discipline of spec 4.4.
type Merger struct {
	eng      *engine.Engine
	registry *Registry
	publish  func(tables []string)
}

func NewMerger(eng *engine.Engine, registry *Registry, publish func([]string)) *Merger {
	return &Merger{eng: eng, registry: registry, publish: publish}
}

// Apply ingests entries (sorted by change_id ascending first), inside
// one write transaction. Re-applying an already-known entry is a
// no-op (spec P3): the ZV_CHANGE primary key rejects the duplicate
// insert and the entry is skipped entirely, including its fields.
func (m *Merger) Apply(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return clock.Less(sorted[i].ChangeID, sorted[j].ChangeID) })

	touchedSet := make(map[string]struct{})

	err := m.eng.WithWriteTxn(ctx, func(tx *sqlx.Tx) error {
		for _, e := range sorted {
			inserted, err := insertChangeIfAbsent(tx, e)
			if err != nil {
				return err
			}
			if !inserted {
				continue
			}

			for _, f := range e.Fields {
				buf, err := msgpack.Marshal(f.Value)
				if err != nil {
					return zverrors.New(zverrors.Serialization, "encode field", err)
				}
				if _, err := tx.Exec(
					`INSERT OR IGNORE INTO ZV_CHANGE_FIELD (change_id, entity_type, entity_id, field_name, field_value) VALUES (?, ?, ?, ?, ?)`,
					e.ChangeID.String(), e.EntityType, e.EntityID, f.Name, buf,
				); err != nil {
					return zverrors.New(zverrors.Engine, "insert change field", err)
				}
			}

			pkColumn := m.registry.PKColumn(e.EntityType)
			for _, f := range e.Fields {
				won, err := fieldWins(tx, e.EntityType, e.EntityID, f.Name, e.ChangeID)
				if err != nil {
					return err
				}
				if !won {
					continue
				}
				if err := upsertField(tx, e.EntityType, pkColumn, e.EntityID, f); err != nil {
					return err
				}
				touchedSet[e.EntityType] = struct{}{}
			}

			if _, err := tx.Exec(`UPDATE ZV_CHANGE SET merged = 1 WHERE id = ?`, e.ChangeID.String()); err != nil {
				return zverrors.New(zverrors.Engine, "mark merged", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if m.publish != nil && len(touchedSet) > 0 {
		touched := make([]string, 0, len(touchedSet))
		for t := range touchedSet {
			touched = append(touched, t)
		}
		m.publish(touched)
	}
	return nil
}

func insertChangeIfAbsent(tx *sqlx.Tx, e Entry) (bool, error) {
	res, err := tx.Exec(
		`INSERT OR IGNORE INTO ZV_CHANGE (id, author_id, entity_type, entity_id, merged) VALUES (?, ?, ?, ?, 0)`,
		e.ChangeID.String(), e.AuthorID.String(), e.EntityType, e.EntityID,
	)
	if err != nil {
		return false, zverrors.New(zverrors.Engine, "insert change", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, zverrors.New(zverrors.Engine, "rows affected", err)
	}
	return n == 1, nil
}

// fieldWins reports whether changeID is the greatest change_id among
// all entries (including itself, already inserted by the caller) that
// touch (entityType, entityID, fieldName). change_id strings are
// fixed-width Crockford base32, so SQL's MAX(TEXT) agrees with
// bit-lexicographic ULID ordering.
func fieldWins(tx *sqlx.Tx, entityType, entityID, fieldName string, changeID clock.ID) (bool, error) {
	var maxID sql.NullString
	row := tx.QueryRow(
		`SELECT MAX(change_id) FROM ZV_CHANGE_FIELD WHERE entity_type = ? AND entity_id = ? AND field_name = ?`,
		entityType, entityID, fieldName,
	)
	if err := row.Scan(&maxID); err != nil {
		return false, zverrors.New(zverrors.Engine, "field winner lookup", err)
	}
	return maxID.Valid && maxID.String == changeID.String(), nil
}

func upsertField(tx *sqlx.Tx, table, pkColumn, pkValue string, f Field) error {
	query := fmt.Sprintf(
		"INSERT INTO %s (%s, %s) VALUES (?, ?) ON CONFLICT(%s) DO UPDATE SET %s = excluded.%s",
		table, pkColumn, f.Name, pkColumn, f.Name, f.Name,
	)
	if _, err := tx.Exec(query, pkValue, f.Value.Any()); err != nil {
		return zverrors.New(zverrors.Engine, "upsert field", err)
	}
	return nil
}
