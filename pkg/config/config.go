// Package config holds the settings the perfee core reads at call time.
//
// Values are never cached by the strategies: changing the threshold or a flag
// takes effect on the next open, close or snapshot.
package config

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/psantana5/perfee/pkg/entry"
)

var (
	ErrNilLogger         = errors.New("logger must not be nil")
	ErrNilObserver       = errors.New("observer must not be nil")
	ErrNilStrategy       = errors.New("strategy must not be empty")
	ErrUnknownStrategy   = errors.New("unknown strategy")
	ErrNegativeThreshold = errors.New("threshold must not be negative")
)

// StrategyKind selects how entries are resolved and logs emitted
type StrategyKind string

const (
	// StrategyOnDemand buffers entries and resolves them when logs are requested
	StrategyOnDemand StrategyKind = "on_demand"
	// StrategyAutoFlush emits each entry when it closes and keeps nothing
	StrategyAutoFlush StrategyKind = "auto_flush"
	// StrategyAutoFlushKeep emits each entry when it closes and keeps the history
	StrategyAutoFlushKeep StrategyKind = "auto_flush_keep"
)

// ParseStrategy validates a strategy name
func ParseStrategy(s string) (StrategyKind, error) {
	switch k := StrategyKind(s); k {
	case StrategyOnDemand, StrategyAutoFlush, StrategyAutoFlushKeep:
		return k, nil
	case "":
		return "", ErrNilStrategy
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}

// Logger receives rendered log lines. Loggers are best effort: a panicking
// logger is recovered and the remaining loggers still run.
type Logger func(line string)

// Observer is notified of every resolved entry, single or grouped
type Observer interface {
	ObserveCompletion(c entry.Completed)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(c entry.Completed)

// ObserveCompletion calls f(c)
func (f ObserverFunc) ObserveCompletion(c entry.Completed) {
	f(c)
}

// Config is safe for concurrent use
type Config struct {
	mu                         sync.RWMutex
	threshold                  time.Duration
	showGroupIndividualEntries bool
	firstGroupEntryAsLogEntry  bool
	strategy                   StrategyKind
	loggers                    []Logger
	observers                  []Observer
}

// New creates a configuration with the defaults: no threshold, no
// individual group durations, first group entry logged standalone, on-demand
// strategy.
func New() *Config {
	return &Config{
		firstGroupEntryAsLogEntry: true,
		strategy:                  StrategyOnDemand,
	}
}

// Threshold returns the minimum elapsed time for an entry to be logged.
// Zero disables filtering.
func (c *Config) Threshold() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.threshold
}

// SetThreshold sets the elapsed time threshold
func (c *Config) SetThreshold(d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("%w: %s", ErrNegativeThreshold, d)
	}
	c.mu.Lock()
	c.threshold = d
	c.mu.Unlock()
	return nil
}

// ShowGroupIndividualEntries reports whether group lines list every duration
func (c *Config) ShowGroupIndividualEntries() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.showGroupIndividualEntries
}

// SetShowGroupIndividualEntries toggles the per-hit trace of group lines
func (c *Config) SetShowGroupIndividualEntries(show bool) {
	c.mu.Lock()
	c.showGroupIndividualEntries = show
	c.mu.Unlock()
}

// FirstGroupEntryAsLogEntry reports whether the first completion of a group
// is also reported as a single entry
func (c *Config) FirstGroupEntryAsLogEntry() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.firstGroupEntryAsLogEntry
}

// SetFirstGroupEntryAsLogEntry toggles the standalone first group entry
func (c *Config) SetFirstGroupEntryAsLogEntry(enabled bool) {
	c.mu.Lock()
	c.firstGroupEntryAsLogEntry = enabled
	c.mu.Unlock()
}

// Strategy returns the configured strategy kind
func (c *Config) Strategy() StrategyKind {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.strategy
}

// SetStrategy validates and stores the strategy kind
func (c *Config) SetStrategy(kind StrategyKind) error {
	k, err := ParseStrategy(string(kind))
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.strategy = k
	c.mu.Unlock()
	return nil
}

// AddLogger registers a logger callback
func (c *Config) AddLogger(l Logger) error {
	if l == nil {
		return ErrNilLogger
	}
	c.mu.Lock()
	c.loggers = append(c.loggers, l)
	c.mu.Unlock()
	return nil
}

// ClearLoggers removes every logger
func (c *Config) ClearLoggers() {
	c.mu.Lock()
	c.loggers = nil
	c.mu.Unlock()
}

// Loggers returns a copy of the registered loggers in registration order
func (c *Config) Loggers() []Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Logger(nil), c.loggers...)
}

// AddObserver registers a completion observer
func (c *Config) AddObserver(o Observer) error {
	if o == nil {
		return ErrNilObserver
	}
	c.mu.Lock()
	c.observers = append(c.observers, o)
	c.mu.Unlock()
	return nil
}

// ClearObservers removes every observer
func (c *Config) ClearObservers() {
	c.mu.Lock()
	c.observers = nil
	c.mu.Unlock()
}

// Observers returns a copy of the registered observers
func (c *Config) Observers() []Observer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Observer(nil), c.observers...)
}

// Settings is the serializable part of a Config
type Settings struct {
	Threshold                  string       `json:"threshold" yaml:"threshold"`
	ShowGroupIndividualEntries bool         `json:"show_group_individual_entries" yaml:"show_group_individual_entries"`
	FirstGroupEntryAsLogEntry  bool         `json:"first_group_entry_as_log_entry" yaml:"first_group_entry_as_log_entry"`
	Strategy                   StrategyKind `json:"strategy" yaml:"strategy"`
	Loggers                    int          `json:"loggers" yaml:"loggers"`
	Observers                  int          `json:"observers" yaml:"observers"`
}

// Settings returns the current values
func (c *Config) Settings() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Settings{
		Threshold:                  c.threshold.String(),
		ShowGroupIndividualEntries: c.showGroupIndividualEntries,
		FirstGroupEntryAsLogEntry:  c.firstGroupEntryAsLogEntry,
		Strategy:                   c.strategy,
		Loggers:                    len(c.loggers),
		Observers:                  len(c.observers),
	}
}
