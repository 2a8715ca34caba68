package zerovault

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRecordExtractsPKAndFields(t *testing.T) {
	rec := todo{ID: "t1", Title: "write tests", Done: false}
	shape, err := parseRecord(rec)
	require.NoError(t, err)
	require.Equal(t, "todos", shape.table)
	require.Equal(t, "id", shape.pkColumn)
	require.Equal(t, "t1", shape.pkValue)
	require.Contains(t, shape.fields, "title")
	require.NotContains(t, shape.fields, "id")
}

func TestParseRecordRejectsMissingIDTag(t *testing.T) {
	_, err := parseRecord(untaggedRecord{Name: "no pk here"})
	require.Error(t, err)
}

type untaggedRecord struct {
	Name string `db:"name"`
}

func (untaggedRecord) TableName() string { return "nothing" }

func TestSetPKReflectSetsOnlyTheTaggedField(t *testing.T) {
	rec := todo{Title: "untitled"}
	out := setPKReflect(rec, "minted-id").(todo)
	require.Equal(t, "minted-id", out.ID)
	require.Equal(t, "untitled", out.Title)
}
