package zerovault

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSaveThenQueryRoundTrips(t *testing.T) {
	db := newTestDB(t)

	saved, err := Save(db, todo{Title: "buy milk"})
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID)

	rows, err := Query[todo](db, "SELECT id, title, done FROM todos WHERE id = ?", saved.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "buy milk", rows[0].Title)
}

func TestQueryOnEmptyTableReturnsEmptySliceNotNil(t *testing.T) {
	db := newTestDB(t)

	rows, err := Query[todo](db, "SELECT id, title, done FROM todos")
	require.NoError(t, err)
	require.NotNil(t, rows)
	require.Len(t, rows, 0)
}

func TestDeleteRemovesRowWithoutChangelogPropagation(t *testing.T) {
	db := newTestDB(t)

	saved, err := Save(db, todo{Title: "temporary"})
	require.NoError(t, err)

	require.NoError(t, Delete(db, saved))

	rows, err := Query[todo](db, "SELECT id, title, done FROM todos WHERE id = ?", saved.ID)
	require.NoError(t, err)
	require.Len(t, rows, 0)

	// Only the Save recorded a changelog entry; the delete added none.
	var changes int
	require.NoError(t, db.eng.Get(context.Background(), &changes, `SELECT COUNT(*) FROM ZV_CHANGE`))
	require.Equal(t, 1, changes)
}
