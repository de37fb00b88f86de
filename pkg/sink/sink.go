// Package sink provides logger callbacks for perfee.
package sink

import (
	"fmt"
	"io"
	"sync"

	"github.com/psantana5/perfee/pkg/config"
)

// Writer returns a logger writing one line per call to w. Writes are
// serialized; write errors are dropped like any logger failure.
func Writer(w io.Writer) config.Logger {
	var mu sync.Mutex
	return func(line string) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintln(w, line)
	}
}

// Tee returns a logger calling every logger in order
func Tee(loggers ...config.Logger) config.Logger {
	return func(line string) {
		for _, l := range loggers {
			if l != nil {
				l(line)
			}
		}
	}
}
