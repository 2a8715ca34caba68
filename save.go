package zerovault

import (
	"context"
)

// Save diffs rec against its current row (if any) and, if anything
// changed, writes the row and a changelog entry atomically. The
// returned value has its primary key populated — generated from the
// replica's clock source when rec's was empty.
func Save[T Record](db *DB, rec T) (T, error) {
	shape, err := parseRecord(rec)
	if err != nil {
		return rec, err
	}

	ctx := context.Background()
	pkValue, _, err := db.writer.Save(ctx, shape.table, shape.pkColumn, shape.pkValue, shape.fields)
	if err != nil {
		return rec, err
	}

	return setPK(rec, pkValue), nil
}

// Delete removes rec's row. Per spec this is a local-only operation:
// no changelog entry is written, and the delete does not propagate to
// other replicas via sync.
func Delete[T Record](db *DB, rec T) error {
	shape, err := parseRecord(rec)
	if err != nil {
		return err
	}
	ctx := context.Background()
	return db.writer.Delete(ctx, shape.table, shape.pkColumn, shape.pkValue)
}

// setPK returns a copy of rec with its zv:"id" field set to pkValue,
// used when Save minted a fresh primary key on an empty one.
func setPK[T Record](rec T, pkValue string) T {
	return setPKReflect(rec, pkValue).(T)
}
