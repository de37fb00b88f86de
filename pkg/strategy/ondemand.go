package strategy

import (
	"cmp"
	"slices"
	"sync"

	"github.com/psantana5/perfee/pkg/config"
	"github.com/psantana5/perfee/pkg/entry"
	"github.com/psantana5/perfee/pkg/stats"
)

// OnDemand records opens, closes and cancels in append-only buffers and only
// correlates them when a snapshot is requested. Opening and closing never
// wait on a snapshot in progress.
type OnDemand struct {
	base

	opens   *buffer[entry.Open]
	closes  *buffer[entry.Close]
	cancels *buffer[entry.ID]

	// mu serializes Snapshot, Reset and Close
	mu      sync.Mutex
	history []entry.Completed
	groups  *stats.Registry
}

// NewOnDemand creates an on-demand strategy
func NewOnDemand(seq *entry.Sequencer, cfg *config.Config, opts ...Option) *OnDemand {
	return &OnDemand{
		base:    newBase(seq, cfg, opts),
		opens:   newBuffer[entry.Open](),
		closes:  newBuffer[entry.Close](),
		cancels: newBuffer[entry.ID](),
		groups:  stats.NewRegistry(),
	}
}

// OpenEntry buffers a new open entry and returns its id
func (o *OnDemand) OpenEntry(label string, isGroup bool) entry.ID {
	if o.closed.Load() {
		return 0
	}
	op := o.seq.Open(label, isGroup)
	o.opens.append(uint64(op.ID), op)
	return op.ID
}

// CloseEntry buffers a close for id
func (o *OnDemand) CloseEntry(id entry.ID) {
	if o.closed.Load() {
		return
	}
	o.closes.append(uint64(id), o.seq.Close(id))
}

// CancelEntry buffers a cancellation for id. A cancelled entry never
// produces a completion, even when its close was already buffered. The
// nesting depth is released when the next snapshot matches the cancel with a
// pending open; unknown and repeated cancels leave it untouched.
func (o *OnDemand) CancelEntry(id entry.ID) {
	if o.closed.Load() {
		return
	}
	o.cancels.append(uint64(id), id)
}

// Snapshot correlates everything buffered so far and returns the entries
// and groups passing the threshold.
func (o *OnDemand) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed.Load() {
		return Snapshot{}
	}
	start := o.now()

	openSingle, openGroup := o.correlate()

	threshold := o.cfg.Threshold()
	s := Snapshot{
		Threshold:      threshold,
		OpenSingle:     openSingle,
		OpenGroup:      openGroup,
		ShowGroupTrace: o.cfg.ShowGroupIndividualEntries(),
		GeneratedAt:    start,
	}

	for _, c := range o.history {
		if exceeds(c.Elapsed, threshold) {
			s.Entries = append(s.Entries, c)
		}
	}
	slices.SortFunc(s.Entries, entry.Compare)

	for _, g := range o.groups.Snapshot() {
		if exceeds(g.Cumulative, threshold) {
			s.Groups = append(s.Groups, g)
		}
	}

	s.Took = o.now().Sub(start)
	return s
}

// correlate must be called with mu held. Closes are drained before cancels
// and cancels before opens: the open of any drained close or cancel was
// appended earlier, so it is always part of the drained opens.
func (o *OnDemand) correlate() (openSingle, openGroup int) {
	closes := o.closes.drain()
	cancels := o.cancels.drain()
	opens := o.opens.drain()

	ended := make(map[entry.ID]entry.Close, len(closes))
	for _, c := range closes {
		if _, dup := ended[c.ID]; !dup {
			ended[c.ID] = c
		}
	}
	cancelled := make(map[entry.ID]struct{}, len(cancels))
	for _, id := range cancels {
		cancelled[id] = struct{}{}
	}

	// ids follow open order
	slices.SortFunc(opens, func(a, b entry.Open) int {
		return cmp.Compare(a.ID, b.ID)
	})

	for _, op := range opens {
		c, ok := ended[op.ID]
		if _, dropped := cancelled[op.ID]; dropped {
			// a buffered close already released the depth
			if !ok {
				o.seq.Release()
			}
			continue
		}
		if !ok {
			o.opens.append(uint64(op.ID), op)
			if op.IsGroup {
				openGroup++
			} else {
				openSingle++
			}
			continue
		}
		o.resolve(entry.Complete(op, c))
	}
	return openSingle, openGroup
}

// releasePending gives back the depth of every buffered open without a
// buffered close. Nothing is resolved.
func (o *OnDemand) releasePending() {
	closes := o.closes.drain()
	o.cancels.drain()
	opens := o.opens.drain()

	ended := make(map[entry.ID]struct{}, len(closes))
	for _, c := range closes {
		ended[c.ID] = struct{}{}
	}
	for _, op := range opens {
		if _, ok := ended[op.ID]; !ok {
			o.seq.Release()
		}
	}
}

func (o *OnDemand) resolve(c entry.Completed) {
	o.observe(c)

	if !c.IsGroup {
		o.history = append(o.history, c)
		return
	}

	g, created := o.groups.GetOrCreate(c.Label)
	if created && o.cfg.FirstGroupEntryAsLogEntry() {
		o.history = append(o.history, c)
	}
	g.Record(c.Elapsed, o.cfg.ShowGroupIndividualEntries())
}

// GetLogs correlates buffered entries and renders the report
func (o *OnDemand) GetLogs() string {
	if o.closed.Load() {
		return ClosedNotice
	}
	return Render(o.Snapshot())
}

// Reset clears resolved history and aggregates. Buffered entries are kept.
func (o *OnDemand) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.history = nil
	o.groups.Reset()
}

// Close releases every buffer and aggregate, and the nesting depth of entries
// still open. It is safe to call twice.
func (o *OnDemand) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed.Swap(true) {
		return nil
	}
	o.releasePending()
	o.opens.close()
	o.closes.close()
	o.cancels.close()
	o.history = nil
	o.groups.Reset()
	return nil
}
