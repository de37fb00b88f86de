// Package strategy resolves timing entries into completed entries and group
// aggregates, and renders the perfee report.
//
// Two strategies exist. AutoFlush correlates a close with its open as soon as
// the close arrives and hands lines to the loggers immediately. OnDemand only
// appends opens and closes to buffers and correlates them when a snapshot is
// requested.
//
// Entries that are opened and never closed stay open forever and keep their
// memory: callers must close or cancel what they open.
package strategy

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/psantana5/perfee/pkg/config"
	"github.com/psantana5/perfee/pkg/entry"
	"github.com/psantana5/perfee/pkg/logging"
)

const (
	// LinePrefix is prepended to every line handed to a logger
	LinePrefix = "[Perfee] "
	// AutoFlushPlaceholder is returned by GetLogs when no history is kept
	AutoFlushPlaceholder = "Autoflush: logs are written as they are created."
	// ClosedNotice is returned by GetLogs once the strategy is closed
	ClosedNotice = "Perfee: log strategy closed."
)

// Strategy is implemented by AutoFlush and OnDemand.
//
// Closing or cancelling an unknown id is a no-op. Once Close has been called
// every method is a no-op and OpenEntry returns the zero ID.
type Strategy interface {
	OpenEntry(label string, isGroup bool) entry.ID
	CloseEntry(id entry.ID)
	CancelEntry(id entry.ID)
	Snapshot() Snapshot
	GetLogs() string
	Reset()
	Close() error
}

// Option configures a strategy
type Option func(*base)

// WithLogger sets the diagnostics logger
func WithLogger(l *logging.Logger) Option {
	return func(b *base) {
		if l != nil {
			b.log = l
		}
	}
}

type base struct {
	seq    *entry.Sequencer
	cfg    *config.Config
	log    *logging.Logger
	closed atomic.Bool
}

func newBase(seq *entry.Sequencer, cfg *config.Config, opts []Option) base {
	b := base{seq: seq, cfg: cfg, log: logging.Discard()}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

func (b *base) now() time.Time {
	return b.seq.Now()
}

func (b *base) emit(line string) {
	Emit(b.cfg, b.log, line)
}

func (b *base) observe(c entry.Completed) {
	for i, o := range b.cfg.Observers() {
		notify(b.log, i, o, c)
	}
}

// Emit hands line, prefixed with LinePrefix, to every logger of cfg. A
// panicking logger is recovered and reported on log at debug level.
func Emit(cfg *config.Config, log *logging.Logger, line string) {
	for i, l := range cfg.Loggers() {
		callLogger(log, i, l, LinePrefix+line)
	}
}

func callLogger(log *logging.Logger, i int, l config.Logger, line string) {
	defer func() {
		if r := recover(); r != nil {
			log.Debug("perfee logger panicked", map[string]interface{}{
				"logger": i,
				"panic":  fmt.Sprint(r),
			})
		}
	}()
	l(line)
}

func notify(log *logging.Logger, i int, o config.Observer, c entry.Completed) {
	defer func() {
		if r := recover(); r != nil {
			log.Debug("perfee observer panicked", map[string]interface{}{
				"observer": i,
				"panic":    fmt.Sprint(r),
			})
		}
	}()
	o.ObserveCompletion(c)
}

// exceeds reports whether d passes the threshold. A zero threshold lets
// everything through.
func exceeds(d, threshold time.Duration) bool {
	return d >= threshold
}

// crossed reports whether a group cumulative duration just reached threshold
func crossed(before, after, threshold time.Duration) bool {
	if threshold == 0 {
		return true
	}
	return before < threshold && after >= threshold
}
