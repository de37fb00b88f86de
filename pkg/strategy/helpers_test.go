package strategy

import (
	"sync"
	"time"

	"github.com/psantana5/perfee/pkg/config"
	"github.com/psantana5/perfee/pkg/entry"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *recorder) log(line string) {
	r.mu.Lock()
	r.lines = append(r.lines, line)
	r.mu.Unlock()
}

func (r *recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

type fixture struct {
	clock *fakeClock
	seq   *entry.Sequencer
	cfg   *config.Config
	out   *recorder
}

func newFixture() *fixture {
	clock := newFakeClock()
	f := &fixture{
		clock: clock,
		seq:   entry.NewSequencerWithClock(clock.Now),
		cfg:   config.New(),
		out:   &recorder{},
	}
	if err := f.cfg.AddLogger(f.out.log); err != nil {
		panic(err)
	}
	return f
}

// measure opens an entry, advances the clock by d and closes it
func (f *fixture) measure(s Strategy, label string, isGroup bool, d time.Duration) entry.ID {
	id := s.OpenEntry(label, isGroup)
	f.clock.Advance(d)
	s.CloseEntry(id)
	return id
}
