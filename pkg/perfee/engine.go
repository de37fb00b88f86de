// Package perfee measures the time spent in named operations.
//
// Entries are either single, reported one by one, or grouped, aggregated
// into count, total, mean, standard deviation and max per group name.
//
//	e, _ := perfee.New(config.New())
//	defer e.Shutdown()
//
//	scope := e.Start("load config")
//	// ...
//	scope.End()
//
//	e.MeasureGroup("db query", func() { /* ... */ })
//
//	fmt.Print(e.GetLogs())
//
// The active strategy decides when entries are resolved: on demand when the
// logs are requested (default), or immediately on close with lines written
// to the configured loggers as they happen.
package perfee

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/psantana5/perfee/pkg/config"
	"github.com/psantana5/perfee/pkg/entry"
	"github.com/psantana5/perfee/pkg/logging"
	"github.com/psantana5/perfee/pkg/strategy"
)

// ErrClosed is returned once the engine has been shut down
var ErrClosed = errors.New("perfee engine closed")

// Engine owns one active strategy and the sequencer shared by every
// strategy it activates
type Engine struct {
	id  string
	cfg *config.Config
	seq *entry.Sequencer
	log *logging.Logger

	mu     sync.RWMutex
	active strategy.Strategy
	kind   config.StrategyKind
	closed bool
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the diagnostics logger
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithSequencer shares seq with the engine, e.g. to use a custom clock
func WithSequencer(seq *entry.Sequencer) Option {
	return func(e *Engine) {
		if seq != nil {
			e.seq = seq
		}
	}
}

// New creates an engine running the strategy named by cfg. A nil cfg uses
// the defaults.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.New()
	}
	e := &Engine{
		id:  uuid.NewString(),
		cfg: cfg,
		seq: entry.NewSequencer(),
		log: logging.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.WithField("engine", e.id)

	kind := cfg.Strategy()
	s, err := e.build(kind)
	if err != nil {
		return nil, err
	}
	e.active = s
	e.kind = kind
	return e, nil
}

func (e *Engine) build(kind config.StrategyKind) (strategy.Strategy, error) {
	opt := strategy.WithLogger(e.log)
	switch kind {
	case config.StrategyOnDemand:
		return strategy.NewOnDemand(e.seq, e.cfg, opt), nil
	case config.StrategyAutoFlush:
		return strategy.NewAutoFlush(e.seq, e.cfg, false, opt), nil
	case config.StrategyAutoFlushKeep:
		return strategy.NewAutoFlush(e.seq, e.cfg, true, opt), nil
	case "":
		return nil, config.ErrNilStrategy
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownStrategy, kind)
	}
}

// ID returns the engine identifier
func (e *Engine) ID() string {
	return e.id
}

// Config returns the configuration read by the engine
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// Strategy returns the kind of the active strategy. It is empty when a
// custom strategy was installed with Use.
func (e *Engine) Strategy() config.StrategyKind {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.kind
}

func (e *Engine) current() strategy.Strategy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.active
}

// UseStrategy replaces the active strategy. The previous strategy is closed
// before the new one becomes active; entries still open in it are lost.
func (e *Engine) UseStrategy(kind config.StrategyKind) error {
	s, err := e.build(kind)
	if err != nil {
		return err
	}
	if err := e.swap(s, kind); err != nil {
		return err
	}
	return e.cfg.SetStrategy(kind)
}

// Use installs a custom strategy
func (e *Engine) Use(s strategy.Strategy) error {
	if s == nil {
		return config.ErrNilStrategy
	}
	return e.swap(s, "")
}

func (e *Engine) swap(s strategy.Strategy, kind config.StrategyKind) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		s.Close()
		return ErrClosed
	}
	if err := e.active.Close(); err != nil {
		e.log.Warn("closing previous strategy failed", map[string]interface{}{"error": err.Error()})
	}
	e.active = s
	e.kind = kind
	e.log.Debug("strategy activated", map[string]interface{}{"strategy": string(kind)})
	return nil
}

// OpenSingle starts a single entry
func (e *Engine) OpenSingle(label string) entry.ID {
	return e.current().OpenEntry(label, false)
}

// OpenGroup starts an entry aggregated under name
func (e *Engine) OpenGroup(name string) entry.ID {
	return e.current().OpenEntry(name, true)
}

// Close ends the entry for id. Unknown ids are ignored.
func (e *Engine) Close(id entry.ID) {
	e.current().CloseEntry(id)
}

// Cancel abandons the entry for id: it will never be reported
func (e *Engine) Cancel(id entry.ID) {
	e.current().CancelEntry(id)
}

// Snapshot returns the structured report of the active strategy
func (e *Engine) Snapshot() strategy.Snapshot {
	return e.current().Snapshot()
}

// GetLogs builds the report, writes it to the loggers and returns it
func (e *Engine) GetLogs() string {
	logs := e.current().GetLogs()
	strategy.Emit(e.cfg, e.log, logs)
	return logs
}

// Reset clears reported entries and aggregates; open entries are kept
func (e *Engine) Reset() {
	e.current().Reset()
}

// Shutdown closes the active strategy and releases its memory. Calls made
// after Shutdown are no-ops.
func (e *Engine) Shutdown() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	return e.active.Close()
}
