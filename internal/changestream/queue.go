// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package changestream

import (
	"sync"
)

// Queue runs callbacks one at a time, in push order, on its own goroutine.
// Adapters give each subscription a Queue so a slow consumer never blocks
// the transport and per-subscription order is preserved.
type Queue struct {
	mu     sync.Mutex
	items  []func()
	closed bool
	signal chan struct{}
	exited chan struct{}
}

// NewQueue starts the delivery goroutine.
func NewQueue() *Queue {
	q := &Queue{
		signal: make(chan struct{}, 1),
		exited: make(chan struct{}),
	}
	go q.run()
	return q
}

// Push enqueues fn. It returns false once the queue is closed.
func (q *Queue) Push(fn func()) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, fn)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// Close drops pending callbacks and stops the goroutine after the running
// callback, if any, returns. It does not wait, so it is safe from inside a
// callback.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.items = nil
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Done is closed when the delivery goroutine has exited.
func (q *Queue) Done() <-chan struct{} {
	return q.exited
}

func (q *Queue) next() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, false
	}
	if len(q.items) == 0 {
		return nil, true
	}
	fn := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return fn, true
}

func (q *Queue) run() {
	defer close(q.exited)
	for range q.signal {
		for {
			fn, open := q.next()
			if !open {
				return
			}
			if fn == nil {
				break
			}
			fn()
		}
	}
}
