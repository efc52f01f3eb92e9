package backend

import (
	"context"
	"sync"
)

// ScriptedBackend is a lightweight in-memory Backend useful for tests &
// examples. It replays pre-scripted event batches: each accepted UserInput
// releases the next batch, and Shutdown is acknowledged with
// ShutdownComplete. Events can also be queued directly, and both submission
// and stream failures can be injected.
type ScriptedBackend struct {
	mu        sync.Mutex
	queue     *EventQueue
	turns     [][]Event   // Remaining per-turn event batches
	submitted []Operation // Accepted operations, oldest first
	submitErr error       // Fails the next Submit once
}

// NewScriptedBackend constructs a ScriptedBackend. Each argument is the
// event batch released by one submitted user turn, in order.
func NewScriptedBackend(turns ...[]Event) *ScriptedBackend {
	return &ScriptedBackend{
		queue: NewEventQueue(),
		turns: turns,
	}
}

// QueueEvents pushes events immediately, independent of submitted turns.
// Useful for session-level events such as SessionStarted.
func (b *ScriptedBackend) QueueEvents(evs ...Event) {
	b.queue.Push(evs...)
}

// FailNextSubmit forces the next Submit call to return err. The failed
// operation is not recorded and its event batch is not released.
func (b *ScriptedBackend) FailNextSubmit(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submitErr = err
}

// FailNextEvent queues a stream failure. NextEvent returns err once already
// queued events have drained.
func (b *ScriptedBackend) FailNextEvent(err error) {
	b.queue.Fail(err)
}

// Submitted returns a copy of the operations accepted so far.
func (b *ScriptedBackend) Submitted() []Operation {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Operation, len(b.submitted))
	copy(out, b.submitted)
	return out
}

// Submit implements Backend.
func (b *ScriptedBackend) Submit(_ context.Context, op Operation) error {
	b.mu.Lock()
	if err := b.submitErr; err != nil {
		b.submitErr = nil
		b.mu.Unlock()
		return err
	}
	b.submitted = append(b.submitted, op)

	var batch []Event
	var shutdown bool
	switch op.(type) {
	case UserInput:
		if len(b.turns) > 0 {
			batch = b.turns[0]
			b.turns = b.turns[1:]
		}
	case Shutdown:
		shutdown = true
	}
	b.mu.Unlock()

	b.queue.Push(batch...)
	if shutdown {
		b.queue.Push(ShutdownComplete{})
	}
	return nil
}

// NextEvent implements Backend.
func (b *ScriptedBackend) NextEvent(ctx context.Context) (Event, error) {
	return b.queue.Next(ctx)
}
