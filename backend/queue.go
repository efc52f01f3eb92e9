package backend

import (
	"context"
	"sync"
)

// EventQueue is an unbounded FIFO of events with a context-aware blocking
// receive. It exists so Backend implementations can accept events from
// provider callbacks or goroutines without blocking, while the engine drains
// them through NextEvent.
//
// Push and Fail are safe for concurrent use. Next is intended for a single
// consumer, matching the Backend contract of one event-draining goroutine.
type EventQueue struct {
	mu    sync.Mutex
	items []queueItem
	wake  chan struct{}
}

type queueItem struct {
	ev  Event
	err error
}

// NewEventQueue creates an empty event queue.
func NewEventQueue() *EventQueue {
	return &EventQueue{wake: make(chan struct{}, 1)}
}

// Push appends events to the queue in argument order.
func (q *EventQueue) Push(evs ...Event) {
	if len(evs) == 0 {
		return
	}
	q.mu.Lock()
	for _, ev := range evs {
		q.items = append(q.items, queueItem{ev: ev})
	}
	q.mu.Unlock()
	q.signal()
}

// Fail appends an error to the queue. The consumer receives it from Next in
// arrival order, after any events pushed before it.
func (q *EventQueue) Fail(err error) {
	q.mu.Lock()
	q.items = append(q.items, queueItem{err: err})
	q.mu.Unlock()
	q.signal()
}

// Next returns the oldest queued event or error, blocking until one is
// available or the context is cancelled.
func (q *EventQueue) Next(ctx context.Context) (Event, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			it := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return it.ev, it.err
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (q *EventQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
