package entry

import (
	"strconv"
	"sync/atomic"
	"time"
)

// ID identifies one measured operation. IDs are issued by a Sequencer and
// never reused while the Sequencer lives. The counter wraps after 2^64 ids.
type ID uint64

func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Sequencer issues operation ids and tracks the nesting depth of open
// entries. One Sequencer is shared by every strategy of an engine so ids stay
// unique across strategy swaps.
//
// Depth is a single counter incremented on open and decremented on close. It
// approximates call depth across all goroutines, it is not a per-goroutine
// stack.
type Sequencer struct {
	ids   atomic.Uint64
	depth atomic.Int64
	now   func() time.Time
}

// NewSequencer creates a sequencer stamping entries with time.Now
func NewSequencer() *Sequencer {
	return &Sequencer{now: time.Now}
}

// NewSequencerWithClock creates a sequencer with a custom clock (tests)
func NewSequencerWithClock(now func() time.Time) *Sequencer {
	return &Sequencer{now: now}
}

// Next returns an id strictly greater than every id returned before
func (s *Sequencer) Next() ID {
	return ID(s.ids.Add(1))
}

// Depth returns the current nesting depth
func (s *Sequencer) Depth() int {
	return int(s.depth.Load())
}

// Open issues a new id, increments the depth and stamps the start time
func (s *Sequencer) Open(label string, isGroup bool) Open {
	level := s.depth.Add(1)
	return Open{
		ID:      s.Next(),
		Label:   label,
		IsGroup: isGroup,
		Level:   int(level),
		Start:   s.now(),
	}
}

// Close decrements the depth and stamps the end time for id
func (s *Sequencer) Close(id ID) Close {
	s.Release()
	return Close{ID: id, End: s.now()}
}

// Release decrements the depth without stamping a close. The depth never
// goes below zero.
func (s *Sequencer) Release() {
	for {
		d := s.depth.Load()
		if d <= 0 || s.depth.CompareAndSwap(d, d-1) {
			return
		}
	}
}

// Now returns the sequencer clock reading
func (s *Sequencer) Now() time.Time {
	return s.now()
}
