package changelog

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/zerovault/zerovault/internal/clock"
	"github.com/zerovault/zerovault/internal/engine"
	"github.com/zerovault/zerovault/internal/value"
	"github.com/zerovault/zerovault/internal/zverrors"
)

// Writer is C3: it intercepts user writes, diffs them against the
// current row, and appends changelog rows atomically with the user
// write.
type Writer struct {
	eng      *engine.Engine
	clock    *clock.Source
	authorID clock.ID
	registry *Registry
	publish  func(tables []string)
}

// NewWriter builds a Writer. publish is called after a successful
// commit with the set of user tables the write touched (may be nil
// when the write was a no-op); it is how C5 learns what to
// recompute.
func NewWriter(eng *engine.Engine, src *clock.Source, authorID clock.ID, registry *Registry, publish func([]string)) *Writer {
	return &Writer{eng: eng, clock: src, authorID: authorID, registry: registry, publish: publish}
}

// Save diffs fields against the current row (if any) and, if anything
// changed, writes the user row and a changelog entry in one
// transaction. pkValue may be empty, in which case a fresh id is
// minted from the clock source. Returns the row's primary key and the
// change id minted (clock.Zero if the write was a no-op).
func (w *Writer) Save(ctx context.Context, table, pkColumn, pkValue string, fields map[string]value.Value) (string, clock.ID, error) {
	w.registry.Register(table, pkColumn)

	if pkValue == "" {
		pkValue = w.clock.Next().String()
	}

	var changeID clock.ID
	var touched []string

	err := w.eng.WithWriteTxn(ctx, func(tx *sqlx.Tx) error {
		existing, found, err := currentFields(tx, table, pkColumn, pkValue, fields)
		if err != nil {
			return err
		}

		changed := make(map[string]value.Value, len(fields))
		for name, v := range fields {
			if !found {
				changed[name] = v
				continue
			}
			old, ok := existing[name]
			if ok && value.Equal(old, v) {
				continue
			}
			// SQLite has no boolean storage class: a bool is written as
			// INTEGER 0/1 and reads back as an int64.
			if ok && v.Kind() == value.KindBool && old.Kind() == value.KindInt64 {
				if (old.Any().(int64) != 0) == v.Any().(bool) {
					continue
				}
			}
			changed[name] = v
		}
		if len(changed) == 0 {
			return nil
		}

		if err := upsertRow(tx, table, pkColumn, pkValue, fields); err != nil {
			return err
		}

		cid := w.clock.Next()
		if _, err := tx.Exec(
			`INSERT INTO ZV_CHANGE (id, author_id, entity_type, entity_id, merged) VALUES (?, ?, ?, ?, 1)`,
			cid.String(), w.authorID.String(), table, pkValue,
		); err != nil {
			return zverrors.New(zverrors.Engine, "insert change", err)
		}

		names := make([]string, 0, len(changed))
		for name := range changed {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			buf, err := msgpack.Marshal(changed[name])
			if err != nil {
				return zverrors.New(zverrors.Serialization, "encode field", err)
			}
			if _, err := tx.Exec(
				`INSERT INTO ZV_CHANGE_FIELD (change_id, entity_type, entity_id, field_name, field_value) VALUES (?, ?, ?, ?, ?)`,
				cid.String(), table, pkValue, name, buf,
			); err != nil {
				return zverrors.New(zverrors.Engine, "insert change field", err)
			}
		}

		changeID = cid
		touched = []string{table}
		return nil
	})
	if err != nil {
		return "", clock.Zero, err
	}

	if w.publish != nil && len(touched) > 0 {
		w.publish(touched)
	}
	return pkValue, changeID, nil
}

// Delete removes a user row. Per the resolved open question on
// tombstones (DESIGN.md), this is a local-only operation: no
// changelog entry is written, so a delete does not propagate through
// sync.
func (w *Writer) Delete(ctx context.Context, table, pkColumn, pkValue string) error {
	var touched []string

	err := w.eng.WithWriteTxn(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE %s = ?", table, pkColumn), pkValue)
		if err != nil {
			return zverrors.New(zverrors.Engine, "delete row", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			touched = []string{table}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if w.publish != nil && len(touched) > 0 {
		w.publish(touched)
	}
	return nil
}

func currentFields(tx *sqlx.Tx, table, pkColumn, pkValue string, fields map[string]value.Value) (map[string]value.Value, bool, error) {
	cols := make([]string, 0, len(fields))
	for name := range fields {
		cols = append(cols, name)
	}
	sort.Strings(cols)

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", strings.Join(cols, ", "), table, pkColumn)
	rows, err := tx.Queryx(query, pkValue)
	if err != nil {
		return nil, false, zverrors.New(zverrors.Engine, "read current row", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, false, nil
	}

	raw := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, false, zverrors.New(zverrors.Engine, "scan current row", err)
	}

	existing := make(map[string]value.Value, len(cols))
	for i, name := range cols {
		v, err := value.FromAny(raw[i])
		if err != nil {
			return nil, false, zverrors.New(zverrors.Serialization, "decode current field", err)
		}
		existing[name] = v
	}
	return existing, true, nil
}

func upsertRow(tx *sqlx.Tx, table, pkColumn, pkValue string, fields map[string]value.Value) error {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	cols := make([]string, 0, len(names)+1)
	args := make([]any, 0, len(names)+1)
	cols = append(cols, pkColumn)
	args = append(args, pkValue)
	for _, name := range names {
		cols = append(cols, name)
		args = append(args, fields[name].Any())
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	query := fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), placeholders)

	if _, err := tx.Exec(query, args...); err != nil {
		return zverrors.New(zverrors.Engine, "upsert row", err)
	}
	return nil
}
