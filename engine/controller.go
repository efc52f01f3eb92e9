package engine

import (
	"sync"
	"sync/atomic"
)

// Phase represents the lifecycle state of an execution.
type Phase string

const (
	// PhaseInitialized is the state before the execution loop has started.
	PhaseInitialized Phase = "initialized"

	// PhaseRunning indicates the execution loop is actively processing.
	PhaseRunning Phase = "running"

	// PhasePaused indicates input submission is suspended until Resume.
	PhasePaused Phase = "paused"

	// PhaseStopped indicates the execution terminated normally. Terminal.
	PhaseStopped Phase = "stopped"

	// PhaseErrored indicates the execution terminated on a loop-level
	// failure. Terminal.
	PhaseErrored Phase = "errored"
)

// Terminal reports whether the phase is final. No transition ever leaves a
// terminal phase.
func (p Phase) Terminal() bool { return p == PhaseStopped || p == PhaseErrored }

// SessionState is a point-in-time snapshot of an execution's control state.
type SessionState struct {
	Phase         Phase  // Current lifecycle phase
	StopRequested bool   // True once Stop has been called
	TurnCount     uint64 // Input submissions attempted so far
}

// Controller coordinates lifecycle control for a single execution. It is
// created by the engine and shared between the caller and the execution
// goroutines, so every method is safe for concurrent use.
//
// Stop, Pause and Resume are requests: the execution loop observes them at
// its next decision point rather than interrupting work mid-flight. Pausing
// suspends input submission only; backend events already in flight continue
// to stream.
type Controller struct {
	mu    sync.Mutex
	state SessionState

	// turnID counts completed turns. Written by the event activity,
	// read concurrently when tagging loop-level error outputs.
	turnID atomic.Uint64

	stopOnce sync.Once
	stopCh   chan struct{}
}

func newController() *Controller {
	return &Controller{
		state:  SessionState{Phase: PhaseInitialized},
		stopCh: make(chan struct{}),
	}
}

// Phase returns the current lifecycle phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Phase
}

// State returns a snapshot of the control state. The snapshot is a copy and
// does not track later changes.
func (c *Controller) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// TurnCount returns the number of input submissions attempted so far,
// including submissions that failed.
func (c *Controller) TurnCount() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.TurnCount
}

// Stop requests termination. The execution stops consuming inputs, asks the
// backend to shut down and closes its output channels. Stop is idempotent
// and safe to call from any phase; a phase that is already terminal is left
// unchanged.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.state.StopRequested = true
	if !c.state.Phase.Terminal() {
		c.state.Phase = PhaseStopped
	}
	c.mu.Unlock()

	c.stopOnce.Do(func() { close(c.stopCh) })
}

// Pause requests suspension of input submission. The request is
// unconditional: it takes effect from any non-terminal phase, including
// before the execution loop has started. Backend events already in flight
// continue to stream while paused.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Phase.Terminal() {
		return
	}
	c.state.Phase = PhasePaused
}

// Resume lifts a pause. It only transitions Paused to Running; calls in any
// other phase have no effect.
func (c *Controller) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Phase == PhasePaused {
		c.state.Phase = PhaseRunning
	}
}

// beginRun moves a freshly initialized controller into the running phase.
// A stop or pause requested before the loop starts wins over the
// transition.
func (c *Controller) beginRun() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Phase == PhaseInitialized {
		c.state.Phase = PhaseRunning
	}
}

// markStopped finalizes the phase after a normal wind-down. An earlier
// terminal phase, such as Errored, is preserved.
func (c *Controller) markStopped() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.Phase.Terminal() {
		c.state.Phase = PhaseStopped
	}
}

// markErrored records a loop-level failure.
func (c *Controller) markErrored() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.Phase.Terminal() {
		c.state.Phase = PhaseErrored
	}
}

func (c *Controller) addTurn() {
	c.mu.Lock()
	c.state.TurnCount++
	c.mu.Unlock()
}

func (c *Controller) stopRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.StopRequested
}

// stopSignal returns a channel closed once a stop has been requested.
func (c *Controller) stopSignal() <-chan struct{} { return c.stopCh }

func (c *Controller) currentTurn() uint64 { return c.turnID.Load() }

func (c *Controller) advanceTurn() { c.turnID.Add(1) }
