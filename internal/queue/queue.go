// Package queue provides the bounded FIFO channels connecting workers.
//
// Sends never block a producer indefinitely: a full queue either drops
// the item immediately or after a short deadline, and every drop is
// counted. Receives are non-blocking or deadline-bounded.
package queue

import (
	"sync/atomic"
	"time"
)

// Bounded is a fixed-capacity FIFO between two workers.
type Bounded[T any] struct {
	ch      chan T
	dropped atomic.Uint64

	// onDrop, when set, observes every dropped item.
	onDrop func()
}

// NewBounded creates a queue with the given capacity.
func NewBounded[T any](capacity int) *Bounded[T] {
	return &Bounded[T]{ch: make(chan T, capacity)}
}

// SetDropHook installs an observer for dropped items. Must be called
// before the queue is shared.
func (q *Bounded[T]) SetDropHook(fn func()) { q.onDrop = fn }

// TrySend enqueues v if space is available, otherwise drops it.
func (q *Bounded[T]) TrySend(v T) bool {
	select {
	case q.ch <- v:
		return true
	default:
		q.drop()
		return false
	}
}

// SendTimeout enqueues v, waiting at most d for space, otherwise drops
// it.
func (q *Bounded[T]) SendTimeout(v T, d time.Duration) bool {
	select {
	case q.ch <- v:
		return true
	default:
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case q.ch <- v:
		return true
	case <-t.C:
		q.drop()
		return false
	}
}

// TryRecv dequeues the oldest item without blocking.
func (q *Bounded[T]) TryRecv() (T, bool) {
	select {
	case v := <-q.ch:
		return v, true
	default:
		var zero T
		return zero, false
	}
}

// RecvTimeout dequeues the oldest item, waiting at most d.
func (q *Bounded[T]) RecvTimeout(d time.Duration) (T, bool) {
	select {
	case v := <-q.ch:
		return v, true
	default:
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case v := <-q.ch:
		return v, true
	case <-t.C:
		var zero T
		return zero, false
	}
}

// Len reports the number of queued items.
func (q *Bounded[T]) Len() int { return len(q.ch) }

// Cap reports the queue capacity.
func (q *Bounded[T]) Cap() int { return cap(q.ch) }

// Dropped reports how many items have been dropped on full.
func (q *Bounded[T]) Dropped() uint64 { return q.dropped.Load() }

func (q *Bounded[T]) drop() {
	q.dropped.Add(1)
	if q.onDrop != nil {
		q.onDrop()
	}
}
