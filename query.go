package zerovault

import (
	"context"

	"github.com/zerovault/zerovault/internal/zverrors"
)

// Query runs a one-shot read, decoding rows into T via `db:"..."`
// struct tags (the same tags Save/Delete use for their columns).
func Query[T any](db *DB, query string, args ...any) ([]T, error) {
	ctx := context.Background()
	rows := make([]T, 0)
	if err := db.eng.Select(ctx, &rows, query, args...); err != nil {
		return nil, zverrors.New(zverrors.Engine, "query", err)
	}
	return rows, nil
}
