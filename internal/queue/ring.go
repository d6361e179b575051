// Package queue provides the bounded drop-oldest queue that sits between
// the decode loop and its consumers.
package queue

import (
	"sync"
	"time"

	"vnsensor/internal/vnerr"
)

// Ring is a bounded FIFO safe for one producer and many consumers. Push
// never blocks: when full, the oldest item is evicted.
type Ring[T any] struct {
	mu     sync.Mutex
	items  []T
	head   int
	n      int
	closed bool
	// notify is closed and replaced on every push and on Close.
	notify chan struct{}

	dropped uint64
}

func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[T]{items: make([]T, capacity), notify: make(chan struct{})}
}

// Push appends v and reports whether an older item was evicted to make room.
// Pushing to a closed ring is a no-op.
func (r *Ring[T]) Push(v T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	evicted := false
	if r.n == len(r.items) {
		var zero T
		r.items[r.head] = zero
		r.head = (r.head + 1) % len(r.items)
		r.n--
		r.dropped++
		evicted = true
	}
	r.items[(r.head+r.n)%len(r.items)] = v
	r.n++
	r.wakeLocked()
	return evicted
}

func (r *Ring[T]) wakeLocked() {
	close(r.notify)
	r.notify = make(chan struct{})
}

// HasNext reports whether an item is ready without blocking.
func (r *Ring[T]) HasNext() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n > 0
}

func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

func (r *Ring[T]) Cap() int { return len(r.items) }

// Dropped is the number of items evicted since creation.
func (r *Ring[T]) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// PopNext removes and returns the oldest item, waiting up to timeout for
// one to arrive. ok is false on timeout. After Close, waiters get
// vnerr.ErrDisconnected once the ring is empty.
func (r *Ring[T]) PopNext(timeout time.Duration) (T, bool, error) {
	return r.pop(timeout, false)
}

// PopMostRecent waits like PopNext, then discards everything but the newest
// item and returns it.
func (r *Ring[T]) PopMostRecent(timeout time.Duration) (T, bool, error) {
	return r.pop(timeout, true)
}

func (r *Ring[T]) pop(timeout time.Duration, newest bool) (T, bool, error) {
	var zero T
	var timer *time.Timer
	for {
		r.mu.Lock()
		if r.n > 0 {
			v := r.takeLocked(newest)
			r.mu.Unlock()
			if timer != nil {
				timer.Stop()
			}
			return v, true, nil
		}
		if r.closed {
			r.mu.Unlock()
			return zero, false, vnerr.ErrDisconnected
		}
		wait := r.notify
		r.mu.Unlock()

		if timeout <= 0 {
			return zero, false, nil
		}
		if timer == nil {
			timer = time.NewTimer(timeout)
		}
		select {
		case <-wait:
		case <-timer.C:
			return zero, false, nil
		}
	}
}

func (r *Ring[T]) takeLocked(newest bool) T {
	var zero T
	if newest {
		last := (r.head + r.n - 1) % len(r.items)
		v := r.items[last]
		for i := 0; i < r.n; i++ {
			r.items[(r.head+i)%len(r.items)] = zero
		}
		r.head, r.n = 0, 0
		return v
	}
	v := r.items[r.head]
	r.items[r.head] = zero
	r.head = (r.head + 1) % len(r.items)
	r.n--
	return v
}

// Close wakes every waiter. Items already queued can still be popped.
func (r *Ring[T]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.wakeLocked()
}

// Reopen clears the ring and accepts pushes again.
func (r *Ring[T]) Reopen() {
	r.mu.Lock()
	defer r.mu.Unlock()
	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.head, r.n = 0, 0
	r.closed = false
}
