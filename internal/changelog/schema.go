package changelog

import (
	"context"

	"github.com/zerovault/zerovault/internal/engine"
	"github.com/zerovault/zerovault/internal/zverrors"
)

// reservedSchema creates the ZV_* tables spec 4.3 reserves. It is
// denormalized slightly beyond the conceptual spec schema:
// ZV_CHANGE_FIELD carries entity_type/entity_id alongside change_id so
// the merger's LWW lookup (spec 4.4 step 2) is a single indexed query
// instead of a join followed by a table scan.
const reservedSchema = `
CREATE TABLE IF NOT EXISTS ZV_METADATA (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS ZV_CHANGE (
	id TEXT PRIMARY KEY,
	author_id TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	merged INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_zv_change_entity ON ZV_CHANGE(entity_type, entity_id);
CREATE INDEX IF NOT EXISTS idx_zv_change_author ON ZV_CHANGE(author_id, id);

CREATE TABLE IF NOT EXISTS ZV_CHANGE_FIELD (
	change_id TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	field_name TEXT NOT NULL,
	field_value BLOB,
	PRIMARY KEY (change_id, field_name),
	FOREIGN KEY (change_id) REFERENCES ZV_CHANGE(id)
);

CREATE INDEX IF NOT EXISTS idx_zv_change_field_lookup
	ON ZV_CHANGE_FIELD(entity_type, entity_id, field_name, change_id);
`

// EnsureSchema creates the reserved ZV_* tables if absent. Spec 6
// requires reserved tables to be created before any caller-supplied
// migration statements run.
func EnsureSchema(ctx context.Context, eng *engine.Engine) error {
	if _, err := eng.Exec(ctx, reservedSchema); err != nil {
		return zverrors.New(zverrors.Engine, "ensure reserved schema", err)
	}
	return nil
}
