package dispatch

import (
	"context"
	"sync"
)

// Queue is the FIFO request queue: many producers, one consumer. Enqueue
// never blocks; Dequeue blocks until an item or context cancellation.
type Queue struct {
	mu     sync.Mutex
	items  []Request
	notify chan struct{}

	// OnDepth, when set, is called with the new depth after every change.
	// Set once during wiring, before producers start.
	OnDepth func(n int)
}

func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Enqueue appends a request and returns its 1-based queue position.
func (q *Queue) Enqueue(r Request) int {
	q.mu.Lock()
	q.items = append(q.items, r)
	pos := len(q.items)
	q.mu.Unlock()

	q.reportDepth(pos)
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return pos
}

// Dequeue removes and returns the oldest request, blocking until one is
// available or ctx is cancelled.
func (q *Queue) Dequeue(ctx context.Context) (Request, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			r := q.items[0]
			q.items = q.items[1:]
			n := len(q.items)
			q.mu.Unlock()
			q.reportDepth(n)
			return r, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return Request{}, ctx.Err()
		case <-q.notify:
		}
	}
}

// Reset drops all pending requests and returns how many were discarded.
// The in-flight request, if any, is unaffected.
func (q *Queue) Reset() int {
	q.mu.Lock()
	n := len(q.items)
	q.items = nil
	q.mu.Unlock()
	q.reportDepth(0)
	return n
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) reportDepth(n int) {
	if q.OnDepth != nil {
		q.OnDepth(n)
	}
}
