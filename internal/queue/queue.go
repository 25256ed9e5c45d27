// Package queue provides the blocking FIFO queues connecting the
// ingestion path, the synthesis worker and the playback worker.
package queue

import (
	"errors"
	"sync"
)

var ErrClosed = errors.New("queue closed")

// Queue is an unbounded FIFO with blocking consumption. Push wakes one
// waiting consumer. The zero value is not usable; call New.
type Queue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []T
	closed bool
}

func New[T any]() *Queue[T] {
	q := &Queue[T]{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends v and wakes one consumer. Returns ErrClosed after Close.
func (q *Queue[T]) Push(v T) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	q.items = append(q.items, v)
	q.cond.Signal()
	return nil
}

// Pop blocks until an item is available or the queue is closed.
func (q *Queue[T]) Pop() (T, error) {
	return q.PopWhen(nil)
}

// PopWhen blocks until an item is available, the gate (if any) allows
// consumption, or the queue is closed. The gate is re-evaluated on every
// wakeup; callers flipping gate state must call Wake.
func (q *Queue[T]) PopWhen(gate func() bool) (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if q.closed {
			var zero T
			return zero, ErrClosed
		}
		if len(q.items) > 0 && (gate == nil || gate()) {
			v := q.items[0]
			q.items = q.items[1:]
			return v, nil
		}
		q.cond.Wait()
	}
}

// Len reports the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear drops all pending items and reports how many were dropped.
func (q *Queue[T]) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = nil
	return n
}

// Each visits every queued item in order while holding the queue lock.
// The callback must not block.
func (q *Queue[T]) Each(f func(v T)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, v := range q.items {
		f(v)
	}
}

// Wake re-runs every blocked consumer's gate check.
func (q *Queue[T]) Wake() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cond.Broadcast()
}

// Close wakes all consumers; pending items are discarded.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.items = nil
	q.cond.Broadcast()
}
