// Package stats keeps streaming statistics for grouped entries.
//
// A Group never stores raw samples: count, sum, running mean, running M2
// (Welford) and max are updated in O(1) per sample under the group's own
// lock, so independent groups never contend.
package stats

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
)

// Group accumulates the durations recorded for one group name
type Group struct {
	name string

	mu         sync.Mutex
	hits       int64
	cumulative time.Duration
	max        time.Duration
	mean       float64 // nanoseconds
	m2         float64 // sum of squared deviations, nanoseconds^2
	trace      strings.Builder
}

// NewGroup creates an empty group
func NewGroup(name string) *Group {
	return &Group{name: name}
}

// Record adds one duration and returns the cumulative duration before and
// after the update. When keepTrace is set the duration is also appended to
// the per-hit trace.
func (g *Group) Record(d time.Duration, keepTrace bool) (before, after time.Duration) {
	x := float64(d)

	g.mu.Lock()
	defer g.mu.Unlock()

	before = g.cumulative

	g.hits++
	oldMean := g.mean
	g.mean = oldMean + (x-oldMean)/float64(g.hits)
	g.m2 += (x - oldMean) * (x - g.mean)
	g.cumulative += d
	if d > g.max {
		g.max = d
	}
	if keepTrace {
		fmt.Fprintf(&g.trace, "[%s]", d)
	}

	return before, g.cumulative
}

// Stats returns a consistent copy of the group statistics
func (g *Group) Stats() GroupStats {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := GroupStats{
		Name:       g.name,
		Hits:       g.hits,
		Cumulative: g.cumulative,
		Max:        g.max,
		Mean:       time.Duration(math.Round(g.mean)),
		Trace:      g.trace.String(),
	}
	if g.hits > 0 {
		s.Variance = g.m2 / float64(g.hits)
		s.StdDev = time.Duration(math.Round(math.Sqrt(s.Variance)))
	}
	return s
}

// GroupStats is an immutable view of a Group
type GroupStats struct {
	Name       string
	Hits       int64
	Cumulative time.Duration
	Mean       time.Duration
	StdDev     time.Duration
	Max        time.Duration
	// Variance is the population variance in nanoseconds^2
	Variance float64
	Trace    string
}

// String renders the group report line. showTrace appends the per-hit trace.
func (s GroupStats) String(showTrace bool) string {
	line := fmt.Sprintf("[GROUP] %s -> took '%s' with '%d' hits  mean[%s] stdev[%s] max[%s]",
		s.Name, s.Cumulative, s.Hits, s.Mean, s.StdDev, s.Max)
	if showTrace {
		line += fmt.Sprintf(" entries[%s]", s.Trace)
	}
	return line
}
