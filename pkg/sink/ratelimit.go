package sink

import (
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/psantana5/perfee/pkg/config"
)

// KeyFunc maps a log line to the rate limit bucket it draws from
type KeyFunc func(line string) string

// GroupKey keeps one bucket per group name and one shared bucket for every
// other line, so a hot group cannot starve single entries. It expects a
// single line; Log passes reports through before keying.
func GroupKey(line string) string {
	const marker = "[GROUP] "
	i := strings.Index(line, marker)
	if i < 0 {
		return ""
	}
	rest := line[i+len(marker):]
	if j := strings.Index(rest, " -> "); j >= 0 {
		return rest[:j]
	}
	return rest
}

// Limiter drops lines once a bucket is out of tokens
type Limiter struct {
	next     config.Logger
	keyFunc  KeyFunc
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	rps      rate.Limit
	burst    int
	dropped  atomic.Uint64
}

// RateLimited wraps next so each key passes at most rps lines per second
// with the given burst. A nil keyFunc uses a single bucket.
func RateLimited(next config.Logger, rps float64, burst int, keyFunc KeyFunc) *Limiter {
	if keyFunc == nil {
		keyFunc = func(string) string { return "" }
	}
	return &Limiter{
		next:     next,
		keyFunc:  keyFunc,
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

// GetLimiter returns the limiter for key
func (l *Limiter) GetLimiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, exists := l.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(l.rps, l.burst)
		l.limiters[key] = limiter
	}
	return limiter
}

// IsReport reports whether line is a rendered multi-line report rather
// than a single entry or group line
func IsReport(line string) bool {
	return strings.Contains(line, "\n")
}

// Log forwards line when its bucket allows it. Reports are never limited.
func (l *Limiter) Log(line string) {
	if IsReport(line) {
		l.next(line)
		return
	}
	if !l.GetLimiter(l.keyFunc(line)).Allow() {
		l.dropped.Add(1)
		return
	}
	l.next(line)
}

// Logger returns l as a perfee logger callback
func (l *Limiter) Logger() config.Logger {
	return l.Log
}

// Dropped returns how many lines were discarded
func (l *Limiter) Dropped() uint64 {
	return l.dropped.Load()
}
