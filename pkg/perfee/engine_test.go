package perfee

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psantana5/perfee/pkg/config"
	"github.com/psantana5/perfee/pkg/entry"
	"github.com/psantana5/perfee/pkg/sink"
	"github.com/psantana5/perfee/pkg/strategy"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type lines struct {
	mu  sync.Mutex
	out []string
}

func (l *lines) log(line string) {
	l.mu.Lock()
	l.out = append(l.out, line)
	l.mu.Unlock()
}

func (l *lines) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.out...)
}

func newTestEngine(t *testing.T, kind config.StrategyKind) (*Engine, *clock, *lines) {
	t.Helper()

	c := &clock{now: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}
	out := &lines{}
	cfg := config.New()
	require.NoError(t, cfg.SetStrategy(kind))
	require.NoError(t, cfg.AddLogger(out.log))

	e, err := New(cfg, WithSequencer(entry.NewSequencerWithClock(c.Now)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Shutdown() })
	return e, c, out
}

func TestNewDefaults(t *testing.T) {
	e, err := New(nil)
	require.NoError(t, err)
	defer e.Shutdown()

	assert.Equal(t, config.StrategyOnDemand, e.Strategy())
	assert.NotEmpty(t, e.ID())
	assert.NotNil(t, e.Config())

	other, err := New(nil)
	require.NoError(t, err)
	defer other.Shutdown()
	assert.NotEqual(t, e.ID(), other.ID())
}

func TestUseStrategyValidation(t *testing.T) {
	e, _, _ := newTestEngine(t, config.StrategyOnDemand)

	err := e.UseStrategy("bogus")
	assert.True(t, errors.Is(err, config.ErrUnknownStrategy))
	err = e.UseStrategy("")
	assert.True(t, errors.Is(err, config.ErrNilStrategy))
	assert.True(t, errors.Is(e.Use(nil), config.ErrNilStrategy))

	assert.Equal(t, config.StrategyOnDemand, e.Strategy(), "failed swaps keep the active strategy")
}

func TestGetLogsWritesReport(t *testing.T) {
	e, c, out := newTestEngine(t, config.StrategyOnDemand)

	id := e.OpenSingle("load")
	c.Advance(25 * time.Millisecond)
	e.Close(id)

	logs := e.GetLogs()
	assert.Contains(t, logs, "[load] - elapsed '25ms'")

	got := out.get()
	require.Len(t, got, 1)
	assert.Equal(t, strategy.LinePrefix+logs, got[0])
}

func TestGetLogsReachesRateLimitedLogger(t *testing.T) {
	out := &lines{}
	limiter := sink.RateLimited(out.log, 0.001, 1, sink.GroupKey)
	cfg := config.New()
	require.NoError(t, cfg.SetStrategy(config.StrategyAutoFlushKeep))
	require.NoError(t, cfg.AddLogger(limiter.Logger()))

	e, err := New(cfg)
	require.NoError(t, err)
	defer e.Shutdown()

	e.MeasureGroup("g", func() {})
	e.MeasureGroup("g", func() {})
	logs := e.GetLogs()

	got := out.get()
	require.NotEmpty(t, got)
	assert.Equal(t, strategy.LinePrefix+logs, got[len(got)-1])
	assert.Equal(t, uint64(1), limiter.Dropped(), "only the second group line is dropped")
}

func TestAutoFlushWritesOnClose(t *testing.T) {
	e, c, out := newTestEngine(t, config.StrategyAutoFlush)

	id := e.OpenSingle("step")
	c.Advance(5 * time.Millisecond)
	e.Close(id)

	got := out.get()
	require.Len(t, got, 1)
	assert.True(t, strings.HasPrefix(got[0], strategy.LinePrefix))
	assert.Contains(t, got[0], "[step] - elapsed '5ms'")

	assert.Equal(t, strategy.AutoFlushPlaceholder, e.GetLogs())
}

func TestUseStrategyDisposesPrevious(t *testing.T) {
	e, c, _ := newTestEngine(t, config.StrategyOnDemand)

	stale := e.OpenSingle("stale")
	done := e.OpenSingle("done")
	c.Advance(time.Millisecond)
	e.Close(done)

	require.NoError(t, e.UseStrategy(config.StrategyAutoFlushKeep))
	assert.Equal(t, config.StrategyAutoFlushKeep, e.Strategy())
	assert.Equal(t, config.StrategyAutoFlushKeep, e.Config().Strategy())

	// entries of the previous strategy are gone
	e.Close(stale)
	snap := e.Snapshot()
	assert.Empty(t, snap.Entries)
	assert.Zero(t, snap.OpenSingle)

	e.Measure("fresh", func() { c.Advance(2 * time.Millisecond) })
	snap = e.Snapshot()
	require.Len(t, snap.Entries, 1)
	assert.Equal(t, "fresh", snap.Entries[0].Label)
}

func TestUseStrategyReleasesOpenDepth(t *testing.T) {
	seq := entry.NewSequencer()
	e, err := New(config.New(), WithSequencer(seq))
	require.NoError(t, err)
	defer e.Shutdown()

	stale := e.OpenSingle("stale")
	require.NoError(t, e.UseStrategy(config.StrategyAutoFlushKeep))
	e.Close(stale)
	assert.Zero(t, seq.Depth())

	e.Measure("fresh", func() {})
	snap := e.Snapshot()
	require.Len(t, snap.Entries, 1)
	assert.Equal(t, 1, snap.Entries[0].Level)
}

func TestUseCustomStrategy(t *testing.T) {
	e, _, _ := newTestEngine(t, config.StrategyOnDemand)

	custom := strategy.NewOnDemand(entry.NewSequencer(), e.Config())
	require.NoError(t, e.Use(custom))
	assert.Equal(t, config.StrategyKind(""), e.Strategy())

	e.Measure("x", func() {})
	assert.Len(t, custom.Snapshot().Entries, 1)
}

func TestShutdown(t *testing.T) {
	e, _, out := newTestEngine(t, config.StrategyOnDemand)

	require.NoError(t, e.Shutdown())
	require.NoError(t, e.Shutdown(), "second shutdown is a no-op")

	assert.Equal(t, entry.ID(0), e.OpenSingle("late"))
	e.Close(1)
	e.Cancel(1)
	e.Reset()
	assert.Equal(t, strategy.ClosedNotice, e.GetLogs())
	assert.Equal(t, []string{strategy.LinePrefix + strategy.ClosedNotice}, out.get())

	assert.True(t, errors.Is(e.UseStrategy(config.StrategyAutoFlush), ErrClosed))
}

func TestScopeEndsOnce(t *testing.T) {
	e, c, _ := newTestEngine(t, config.StrategyOnDemand)

	s := e.StartGroup("g")
	c.Advance(10 * time.Millisecond)
	s.End()
	s.End()
	s.Discard()

	snap := e.Snapshot()
	require.Len(t, snap.Groups, 1)
	assert.Equal(t, int64(1), snap.Groups[0].Hits)
	assert.Equal(t, 10*time.Millisecond, snap.Groups[0].Cumulative)
}

func TestScopeDiscard(t *testing.T) {
	e, _, _ := newTestEngine(t, config.StrategyOnDemand)

	s := e.Start("abandoned")
	s.Discard()
	s.End()

	snap := e.Snapshot()
	assert.Empty(t, snap.Entries)
	assert.Zero(t, snap.OpenSingle)
}

func TestMeasureHelpers(t *testing.T) {
	e, c, _ := newTestEngine(t, config.StrategyOnDemand)

	e.Measure("single", func() { c.Advance(3 * time.Millisecond) })
	for i := 0; i < 3; i++ {
		e.MeasureGroup("loop", func() { c.Advance(time.Millisecond) })
	}
	v := MeasureValue(e, "value", func() int { return 42 })
	assert.Equal(t, 42, v)
	n := MeasureGroupValue(e, "loop", func() string { return "ok" })
	assert.Equal(t, "ok", n)

	boom := errors.New("boom")
	assert.ErrorIs(t, e.MeasureErr("failing", func() error { return boom }), boom)
	assert.NoError(t, e.MeasureErr("working", func() error { return nil }))

	assert.Panics(t, func() {
		e.Measure("panicking", func() { panic("x") })
	})

	snap := e.Snapshot()
	labels := make([]string, 0, len(snap.Entries))
	for _, done := range snap.Entries {
		labels = append(labels, done.Label)
	}
	assert.ElementsMatch(t, []string{"single", "loop", "value", "working", "panicking"}, labels)
	require.Len(t, snap.Groups, 1)
	assert.Equal(t, int64(4), snap.Groups[0].Hits)
	assert.Zero(t, snap.OpenSingle+snap.OpenGroup)
}

func TestConcurrentOpenClose(t *testing.T) {
	for _, kind := range []config.StrategyKind{config.StrategyOnDemand, config.StrategyAutoFlushKeep} {
		t.Run(string(kind), func(t *testing.T) {
			e, _, _ := newTestEngine(t, kind)

			var wg sync.WaitGroup
			for i := 0; i < 1000; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					if i%2 == 0 {
						e.Close(e.OpenGroup("g"))
					} else {
						e.Close(e.OpenSingle("s"))
					}
				}(i)
			}
			wg.Wait()

			snap := e.Snapshot()
			assert.Zero(t, snap.OpenSingle)
			assert.Zero(t, snap.OpenGroup)
			require.Len(t, snap.Groups, 1)
			assert.Equal(t, int64(500), snap.Groups[0].Hits)
			// 500 singles plus the first group entry
			assert.Len(t, snap.Entries, 501)
		})
	}
}

func TestConcurrentSwap(t *testing.T) {
	e, _, _ := newTestEngine(t, config.StrategyOnDemand)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				e.Measure("w", func() {})
			}
		}()
	}
	kinds := []config.StrategyKind{config.StrategyAutoFlushKeep, config.StrategyOnDemand, config.StrategyAutoFlush}
	for _, k := range kinds {
		require.NoError(t, e.UseStrategy(k))
		_ = e.GetLogs()
	}
	wg.Wait()

	assert.Equal(t, config.StrategyAutoFlush, e.Strategy())
}
