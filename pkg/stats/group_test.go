package stats

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupRecordSequential(t *testing.T) {
	g := NewGroup("g1")

	g.Record(100*time.Millisecond, false)
	g.Record(200*time.Millisecond, false)
	before, after := g.Record(300*time.Millisecond, false)

	assert.Equal(t, 300*time.Millisecond, before)
	assert.Equal(t, 600*time.Millisecond, after)

	s := g.Stats()
	assert.Equal(t, int64(3), s.Hits)
	assert.Equal(t, 600*time.Millisecond, s.Cumulative)
	assert.Equal(t, 200*time.Millisecond, s.Mean)
	assert.Equal(t, 300*time.Millisecond, s.Max)
	// population stdev of 100/200/300ms is sqrt(20000/3) ms
	assert.InDelta(t, float64(81649658), float64(s.StdDev), 1)
}

func TestGroupMatchesBatchComputation(t *testing.T) {
	samples := []time.Duration{
		3 * time.Millisecond, 17 * time.Millisecond, 4 * time.Millisecond,
		250 * time.Microsecond, 90 * time.Millisecond, 12 * time.Millisecond,
		12 * time.Millisecond, 1 * time.Second,
	}

	g := NewGroup("batch")
	var sum float64
	for _, d := range samples {
		g.Record(d, false)
		sum += float64(d)
	}
	mean := sum / float64(len(samples))
	var sq float64
	for _, d := range samples {
		sq += (float64(d) - mean) * (float64(d) - mean)
	}
	variance := sq / float64(len(samples))

	s := g.Stats()
	assert.InDelta(t, mean, float64(s.Mean), 1)
	assert.InEpsilon(t, variance, s.Variance, 1e-9)
	assert.InDelta(t, math.Sqrt(variance), float64(s.StdDev), 1)
}

func TestGroupSingleHitHasZeroStdDev(t *testing.T) {
	g := NewGroup("one")
	g.Record(42*time.Millisecond, false)

	s := g.Stats()
	assert.Equal(t, time.Duration(0), s.StdDev)
	assert.Equal(t, 42*time.Millisecond, s.Mean)
}

func TestGroupTrace(t *testing.T) {
	g := NewGroup("traced")
	g.Record(time.Millisecond, true)
	g.Record(2*time.Millisecond, false)
	g.Record(3*time.Millisecond, true)

	s := g.Stats()
	assert.Equal(t, "[1ms][3ms]", s.Trace)
	assert.Contains(t, s.String(true), " entries[[1ms][3ms]]")
	assert.NotContains(t, s.String(false), "entries[")
}

func TestGroupStatsString(t *testing.T) {
	g := NewGroup("db")
	g.Record(100*time.Millisecond, false)
	g.Record(300*time.Millisecond, false)

	expected := "[GROUP] db -> took '400ms' with '2' hits  mean[200ms] stdev[100ms] max[300ms]"
	assert.Equal(t, expected, g.Stats().String(false))
}

func TestGroupConcurrentRecord(t *testing.T) {
	g := NewGroup("hot")

	const workers = 16
	const perWorker = 1000

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				g.Record(time.Millisecond, false)
			}
		}()
	}
	wg.Wait()

	s := g.Stats()
	require.Equal(t, int64(workers*perWorker), s.Hits)
	assert.Equal(t, time.Duration(workers*perWorker)*time.Millisecond, s.Cumulative)
	assert.Equal(t, time.Millisecond, s.Mean)
	assert.Equal(t, time.Duration(0), s.StdDev)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	g, created := r.GetOrCreate("b")
	require.True(t, created)
	g.Record(time.Second, false)

	again, created := r.GetOrCreate("b")
	assert.False(t, created)
	assert.Same(t, g, again)

	a, _ := r.GetOrCreate("a")
	a.Record(time.Millisecond, false)

	// created but never recorded
	r.GetOrCreate("empty")

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "a", snap[0].Name)
	assert.Equal(t, "b", snap[1].Name)
	_, created = r.GetOrCreate("empty")
	assert.False(t, created, "groups without hits stay registered")

	r.Reset()
	assert.Empty(t, r.Snapshot())
	_, created = r.GetOrCreate("a")
	assert.True(t, created)
}

func TestRegistryCreatesOnceUnderConcurrency(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	var mu sync.Mutex
	creations := 0
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, created := r.GetOrCreate("shared"); created {
				mu.Lock()
				creations++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, creations)
}
