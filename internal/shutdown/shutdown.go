// Package shutdown runs cleanup hooks in reverse registration order.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/psantana5/perfee/pkg/logging"
)

type hook struct {
	name string
	fn   func(context.Context) error
}

// Manager handles graceful shutdown
type Manager struct {
	mu      sync.Mutex
	hooks   []hook
	timeout time.Duration
	log     *logging.Logger
	ran     bool
}

// New creates a shutdown manager. Each Shutdown gets timeout to run all hooks.
func New(timeout time.Duration, log *logging.Logger) *Manager {
	if log == nil {
		log = logging.Discard()
	}
	return &Manager{timeout: timeout, log: log}
}

// Register adds a shutdown hook. Hooks run in reverse order (LIFO).
func (m *Manager) Register(name string, fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, hook{name: name, fn: fn})
}

// Shutdown runs every hook once and returns their joined errors. Later calls
// return nil.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ran {
		return nil
	}
	m.ran = true

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	var errs []error
	for i := len(m.hooks) - 1; i >= 0; i-- {
		h := m.hooks[i]
		if err := h.fn(ctx); err != nil {
			m.log.Warn("shutdown hook failed", map[string]interface{}{
				"hook":  h.name,
				"error": err.Error(),
			})
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
			continue
		}
		m.log.Debug("shutdown hook done", map[string]interface{}{"hook": h.name})
	}
	return errors.Join(errs...)
}
