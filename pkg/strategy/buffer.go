package strategy

import (
	"sync"
	"sync/atomic"
)

const shardCount = 16

// buffer is an unbounded append-only buffer. Appends only lock one shard of
// the current segment. drain swaps in a fresh segment and seals the old one:
// an append racing with the swap finds its shard sealed and retries on the
// new segment, so nothing appended is ever lost.
type buffer[T any] struct {
	cur    atomic.Pointer[segment[T]]
	closed atomic.Bool
}

type segment[T any] struct {
	shards [shardCount]shard[T]
}

type shard[T any] struct {
	mu     sync.Mutex
	sealed bool
	items  []T
}

func newBuffer[T any]() *buffer[T] {
	b := &buffer[T]{}
	b.cur.Store(&segment[T]{})
	return b
}

// append adds v to the shard selected by key. It returns false once the
// buffer is closed.
func (b *buffer[T]) append(key uint64, v T) bool {
	for {
		if b.closed.Load() {
			return false
		}
		s := &b.cur.Load().shards[key%shardCount]
		s.mu.Lock()
		if s.sealed {
			s.mu.Unlock()
			continue
		}
		s.items = append(s.items, v)
		s.mu.Unlock()
		return true
	}
}

// drain returns everything appended so far and leaves the buffer empty
func (b *buffer[T]) drain() []T {
	old := b.cur.Swap(&segment[T]{})

	var out []T
	for i := range old.shards {
		s := &old.shards[i]
		s.mu.Lock()
		s.sealed = true
		out = append(out, s.items...)
		s.items = nil
		s.mu.Unlock()
	}
	return out
}

func (b *buffer[T]) len() int {
	seg := b.cur.Load()
	n := 0
	for i := range seg.shards {
		s := &seg.shards[i]
		s.mu.Lock()
		n += len(s.items)
		s.mu.Unlock()
	}
	return n
}

func (b *buffer[T]) close() {
	b.closed.Store(true)
	b.drain()
}
