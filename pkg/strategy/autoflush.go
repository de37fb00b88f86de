package strategy

import (
	"slices"
	"sync"
	"time"

	"github.com/psantana5/perfee/pkg/config"
	"github.com/psantana5/perfee/pkg/entry"
	"github.com/psantana5/perfee/pkg/stats"
)

// AutoFlush resolves an entry as soon as it is closed and emits its line to
// the loggers when it passes the threshold. With keepHistory the resolved
// entries are also retained for GetLogs.
type AutoFlush struct {
	base
	keepHistory bool

	open   sync.Map // entry.ID -> entry.Open
	groups *stats.Registry

	mu      sync.Mutex
	history []entry.Completed
}

// NewAutoFlush creates an immediate-flush strategy
func NewAutoFlush(seq *entry.Sequencer, cfg *config.Config, keepHistory bool, opts ...Option) *AutoFlush {
	return &AutoFlush{
		base:        newBase(seq, cfg, opts),
		keepHistory: keepHistory,
		groups:      stats.NewRegistry(),
	}
}

// OpenEntry records a new open entry and returns its id
func (a *AutoFlush) OpenEntry(label string, isGroup bool) entry.ID {
	if a.closed.Load() {
		return 0
	}
	o := a.seq.Open(label, isGroup)
	a.open.Store(o.ID, o)
	return o.ID
}

// CloseEntry resolves the entry for id. Only the first close has effect.
func (a *AutoFlush) CloseEntry(id entry.ID) {
	if a.closed.Load() {
		return
	}
	end := a.now()
	v, ok := a.open.LoadAndDelete(id)
	if !ok {
		return
	}
	a.seq.Release()
	a.resolve(entry.Complete(v.(entry.Open), entry.Close{ID: id, End: end}))
}

// CancelEntry drops the open entry for id without resolving it
func (a *AutoFlush) CancelEntry(id entry.ID) {
	if a.closed.Load() {
		return
	}
	if _, ok := a.open.LoadAndDelete(id); ok {
		a.seq.Release()
	}
}

func (a *AutoFlush) resolve(c entry.Completed) {
	a.observe(c)

	threshold := a.cfg.Threshold()
	if !c.IsGroup {
		a.logSingle(c, threshold)
		return
	}

	g, created := a.groups.GetOrCreate(c.Label)
	if created && a.cfg.FirstGroupEntryAsLogEntry() {
		a.logSingle(c, threshold)
	}

	showTrace := a.cfg.ShowGroupIndividualEntries()
	before, after := g.Record(c.Elapsed, showTrace)
	if crossed(before, after, threshold) {
		a.emit(g.Stats().String(showTrace))
	}
}

func (a *AutoFlush) logSingle(c entry.Completed, threshold time.Duration) {
	if a.keepHistory {
		a.mu.Lock()
		a.history = append(a.history, c)
		a.mu.Unlock()
	}
	if exceeds(c.Elapsed, threshold) {
		a.emit(c.String())
	}
}

// Snapshot returns the retained history, every group aggregate and the
// number of entries still open. History is not filtered by the threshold:
// the threshold already gated what was emitted.
func (a *AutoFlush) Snapshot() Snapshot {
	if a.closed.Load() {
		return Snapshot{}
	}
	start := a.now()

	s := Snapshot{
		Threshold:      a.cfg.Threshold(),
		ShowGroupTrace: a.cfg.ShowGroupIndividualEntries(),
		GeneratedAt:    start,
	}

	a.open.Range(func(_, v any) bool {
		if v.(entry.Open).IsGroup {
			s.OpenGroup++
		} else {
			s.OpenSingle++
		}
		return true
	})

	a.mu.Lock()
	s.Entries = slices.Clone(a.history)
	a.mu.Unlock()
	slices.SortFunc(s.Entries, entry.Compare)

	s.Groups = a.groups.Snapshot()
	s.Took = a.now().Sub(start)
	return s
}

// GetLogs renders the snapshot, or a placeholder when no history is kept
func (a *AutoFlush) GetLogs() string {
	if a.closed.Load() {
		return ClosedNotice
	}
	if !a.keepHistory {
		return AutoFlushPlaceholder
	}
	return Render(a.Snapshot())
}

// Reset clears history and aggregates. Open entries are kept.
func (a *AutoFlush) Reset() {
	a.mu.Lock()
	a.history = nil
	a.mu.Unlock()
	a.groups.Reset()
}

// Close releases every entry and aggregate, and the nesting depth of entries
// still open. It is safe to call twice.
func (a *AutoFlush) Close() error {
	if a.closed.Swap(true) {
		return nil
	}
	a.open.Range(func(k, _ any) bool {
		if _, ok := a.open.LoadAndDelete(k); ok {
			a.seq.Release()
		}
		return true
	})
	a.Reset()
	return nil
}
