package entry

import (
	"cmp"
	"fmt"
	"strings"
	"time"
)

// TimeLayout is the layout used for start timestamps in rendered lines
const TimeLayout = "15:04:05.0000"

// Open is recorded when an operation starts
type Open struct {
	ID      ID
	Label   string
	IsGroup bool
	Level   int
	Start   time.Time
}

// Close is recorded when an operation ends
type Close struct {
	ID  ID
	End time.Time
}

// Completed combines an Open with its matching Close
type Completed struct {
	ID      ID
	Label   string
	IsGroup bool
	Level   int
	Start   time.Time
	Elapsed time.Duration
}

// Complete resolves o with c. Negative elapsed times (clock steps) are
// clamped to zero.
func Complete(o Open, c Close) Completed {
	elapsed := c.End.Sub(o.Start)
	if elapsed < 0 {
		elapsed = 0
	}
	return Completed{
		ID:      o.ID,
		Label:   o.Label,
		IsGroup: o.IsGroup,
		Level:   o.Level,
		Start:   o.Start,
		Elapsed: elapsed,
	}
}

// End returns the end time of the entry
func (c Completed) End() time.Time {
	return c.Start.Add(c.Elapsed)
}

// String renders the single-entry report line
func (c Completed) String() string {
	level := c.Level
	if level < 0 {
		level = 0
	}
	return fmt.Sprintf("%s%d.[%s] - elapsed '%s' > '%s'",
		strings.Repeat(" ", level), c.Level, c.Start.Format(TimeLayout), c.Elapsed, c.Label)
}

// Compare orders completed entries by start time, then by id
func Compare(a, b Completed) int {
	if n := a.Start.Compare(b.Start); n != 0 {
		return n
	}
	return cmp.Compare(a.ID, b.ID)
}
