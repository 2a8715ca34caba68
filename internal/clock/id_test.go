package clock

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSourceMonotone(t *testing.T) {
	s := NewSource()

	prev := s.Next()
	for i := 0; i < 10_000; i++ {
		next := s.Next()
		require.True(t, Less(prev, next) || prev == next, "id[%d] did not increase", i)
		require.NotEqual(t, prev, next)
		prev = next
	}
}

func TestParseIDRoundTrip(t *testing.T) {
	s := NewSource()
	id := s.Next()

	parsed, err := ParseID(id.String())
	require.NoError(t, err)
	require.Equal(t, id, parsed)
}

func TestConcurrentMintingStaysUnique(t *testing.T) {
	s := NewSource()
	const n = 2000
	ids := make(chan ID, n)

	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < n/10; j++ {
				ids <- s.Next()
			}
		}()
	}

	seen := make(map[ID]bool, n)
	for i := 0; i < n; i++ {
		id := <-ids
		require.False(t, seen[id], "duplicate id minted")
		seen[id] = true
	}
}
