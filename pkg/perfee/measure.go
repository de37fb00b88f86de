package perfee

import (
	"sync"

	"github.com/psantana5/perfee/pkg/entry"
)

// Scope is an open measurement ended by End or abandoned by Discard. Only
// the first of the two calls has effect.
type Scope struct {
	engine *Engine
	id     entry.ID
	once   sync.Once
}

// Start opens a single entry scope
func (e *Engine) Start(label string) *Scope {
	return &Scope{engine: e, id: e.OpenSingle(label)}
}

// StartGroup opens a grouped entry scope
func (e *Engine) StartGroup(name string) *Scope {
	return &Scope{engine: e, id: e.OpenGroup(name)}
}

// ID returns the entry id of the scope
func (s *Scope) ID() entry.ID {
	return s.id
}

// End closes the entry
func (s *Scope) End() {
	s.once.Do(func() { s.engine.Close(s.id) })
}

// Discard cancels the entry
func (s *Scope) Discard() {
	s.once.Do(func() { s.engine.Cancel(s.id) })
}

// Measure times fn as a single entry. The entry is closed even if fn panics.
func (e *Engine) Measure(label string, fn func()) {
	s := e.Start(label)
	defer s.End()
	fn()
}

// MeasureGroup times fn as an entry of group name
func (e *Engine) MeasureGroup(name string, fn func()) {
	s := e.StartGroup(name)
	defer s.End()
	fn()
}

// MeasureErr times fn as a single entry and discards the measurement when
// fn returns an error
func (e *Engine) MeasureErr(label string, fn func() error) error {
	s := e.Start(label)
	if err := fn(); err != nil {
		s.Discard()
		return err
	}
	s.End()
	return nil
}

// MeasureValue times fn as a single entry and returns its result
func MeasureValue[T any](e *Engine, label string, fn func() T) T {
	s := e.Start(label)
	defer s.End()
	return fn()
}

// MeasureGroupValue times fn as an entry of group name and returns its result
func MeasureGroupValue[T any](e *Engine, name string, fn func() T) T {
	s := e.StartGroup(name)
	defer s.End()
	return fn()
}
