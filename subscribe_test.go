package zerovault

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSubscribeDeliversInitialResultSynchronously(t *testing.T) {
	db := newTestDB(t)
	_, err := Save(db, todo{Title: "seeded"})
	require.NoError(t, err)

	deliveries := make(chan []todo, 4)
	sub, err := Subscribe[todo](db, "SELECT id, title, done FROM todos", func(rows []todo, err error) {
		require.NoError(t, err)
		deliveries <- rows
	})
	require.NoError(t, err)
	defer sub.Close()

	select {
	case rows := <-deliveries:
		require.Len(t, rows, 1)
		require.Equal(t, "seeded", rows[0].Title)
	case <-time.After(time.Second):
		t.Fatal("initial delivery never arrived")
	}
}

func TestSubscribeRedeliversOnMatchingWrite(t *testing.T) {
	db := newTestDB(t)

	deliveries := make(chan []todo, 4)
	sub, err := Subscribe[todo](db, "SELECT id, title, done FROM todos", func(rows []todo, err error) {
		require.NoError(t, err)
		deliveries <- rows
	})
	require.NoError(t, err)
	defer sub.Close()

	require.Len(t, <-deliveries, 0) // initial, empty table

	_, err = Save(db, todo{Title: "new item"})
	require.NoError(t, err)

	select {
	case rows := <-deliveries:
		require.Len(t, rows, 1)
	case <-time.After(time.Second):
		t.Fatal("redelivery after write never arrived")
	}
}

func TestSubscribeSkipsRedeliveryWhenWriteIsANoOp(t *testing.T) {
	db := newTestDB(t)
	saved, err := Save(db, todo{Title: "unchanged"})
	require.NoError(t, err)

	deliveries := make(chan []todo, 4)
	sub, err := Subscribe[todo](db, "SELECT id, title, done FROM todos", func(rows []todo, err error) {
		require.NoError(t, err)
		deliveries <- rows
	})
	require.NoError(t, err)
	defer sub.Close()

	initial := <-deliveries
	require.Len(t, initial, 1)

	// Re-saving identical field values is a no-op at the changelog
	// writer (no row or changelog change, so publish never fires) —
	// no second delivery should ever be queued.
	_, err = Save(db, saved)
	require.NoError(t, err)

	select {
	case <-deliveries:
		t.Fatal("unexpected redelivery from a no-op write")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestSubscriptionCloseStopsFurtherDeliveries(t *testing.T) {
	db := newTestDB(t)

	deliveries := make(chan []todo, 8)
	sub, err := Subscribe[todo](db, "SELECT id, title, done FROM todos", func(rows []todo, err error) {
		deliveries <- rows
	})
	require.NoError(t, err)
	<-deliveries // initial

	sub.Close()

	_, err = Save(db, todo{Title: "after close"})
	require.NoError(t, err)

	select {
	case <-deliveries:
		t.Fatal("closed subscription must not receive further deliveries")
	case <-time.After(150 * time.Millisecond):
	}
}
