// Package clock produces the 128-bit hybrid-logical-clock IDs used as
// change_id and replica/author_id throughout zerovault: a 48-bit
// Unix-millisecond prefix followed by 80 bits of monotonic entropy.
package clock

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ID is a 128-bit globally sortable identifier. Its bit layout is
// exactly ulid.ULID's: 48-bit millisecond timestamp, 80-bit entropy.
// Lexicographic byte comparison is the global ordering used for LWW
// tie-breaks (spec invariant I1).
type ID = ulid.ULID

// Zero is the all-zero ID, used as a sentinel for "no value yet".
var Zero ID

// ParseID decodes the Crockford base32 text form produced by ID.String.
func ParseID(s string) (ID, error) {
	return ulid.Parse(s)
}

// Less reports whether a sorts strictly before b under the bit-lexicographic
// order spec 4.1/I1 mandates.
func Less(a, b ID) bool {
	return a.Compare(b) < 0
}

// Source mints monotone, process-wide IDs. A single process must funnel
// all ID generation through one Source so IDs are monotone non-decreasing
// (spec 4.1); Source is safe for concurrent use via an internal mutex.
type Source struct {
	mu      sync.Mutex
	entropy io.Reader
	onRegression func(string)
	lastMS  uint64
}

// NewSource builds a Source seeded from crypto/rand, wrapping
// ulid.Monotonic so that IDs minted within the same millisecond bump
// their entropy tail instead of colliding.
func NewSource() *Source {
	return &Source{
		entropy:      ulid.Monotonic(rand.Reader, 0),
		onRegression: func(string) {},
	}
}

// OnRegression installs a callback invoked on the rare path where the
// entropy counter overflows within one millisecond and the clock has to
// be bumped forward to mint the next ID. Zerovault wires this to
// internal/zvlog; clock itself stays free of a logging dependency.
func (s *Source) OnRegression(fn func(string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.onRegression = fn
	}
}

// Next mints the next ID. It is strictly monotone with respect to every
// previous ID minted by this Source (spec P1).
func (s *Source) Next() ID {
	s.mu.Lock()
	defer s.mu.Unlock()

	ms := ulid.Timestamp(time.Now())
	if ms < s.lastMS {
		// The wall clock went backwards: reuse the last emitted prefix so
		// the monotonic entropy tail keeps IDs increasing.
		ms = s.lastMS
	}
	id, err := ulid.New(ms, s.entropy)
	if err != nil {
		// ulid.Monotonic returns ErrMonotonicOverflow when the 80-bit
		// entropy tail would wrap within the same millisecond. Bump the
		// timestamp by one and retry, which is the library's documented
		// way of reseeding the random suffix on the next tick.
		s.onRegression("clock: entropy overflow, bumping timestamp by 1ms")
		ms++
		id, err = ulid.New(ms, s.entropy)
		if err != nil {
			panic("clock: entropy source exhausted: " + err.Error())
		}
	}
	s.lastMS = ms
	return id
}
