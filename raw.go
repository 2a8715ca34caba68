package zerovault

import (
	"context"
)

// QueryRaw runs query and returns its rows as column-name-keyed maps,
// for ad hoc SQL (the REPL's `watch`/one-shot path) where no static
// row type exists to pass to Query.
func QueryRaw(db *DB, query string, args ...any) ([]map[string]any, error) {
	return db.eng.SelectMap(context.Background(), query, args...)
}
