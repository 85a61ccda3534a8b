// Package queue holds the goroutine-safe FIFO that carries host requests to
// the physics goroutine.
package queue

import (
	"sync"
)

// Queue is a generic thread-safe FIFO. Producers push from any goroutine;
// the consumer drains it once per tick.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	spare  []T
	closed bool
}

// New creates a new empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{
		items: make([]T, 0),
	}
}

// Push appends items in order. It reports false once the queue is closed.
func (q *Queue[T]) Push(items ...T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, items...)
	return true
}

// Pop removes and returns the first item. ok is false when empty.
func (q *Queue[T]) Pop() (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return item, false
	}
	item = q.items[0]
	var zero T
	q.items[0] = zero
	q.items = q.items[1:]
	return item, true
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue[T]) Empty() bool { return q.Len() == 0 }

// Drain returns every queued item in push order and leaves the queue
// empty. The returned slice is valid until the next Drain.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = q.spare[:0]
	q.spare = out
	return out
}

// RemoveFunc drops every queued item for which drop returns true and
// returns how many were dropped.
func (q *Queue[T]) RemoveFunc(drop func(T) bool) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.items[:0]
	for _, it := range q.items {
		if !drop(it) {
			kept = append(kept, it)
		}
	}
	n := len(q.items) - len(kept)
	var zero T
	for i := len(kept); i < len(q.items); i++ {
		q.items[i] = zero
	}
	q.items = kept
	return n
}

// Close rejects further pushes. Queued items can still be drained.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}
