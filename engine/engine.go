package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/agentpilot/backend"
	"github.com/hupe1980/agentpilot/core"
	"github.com/hupe1980/agentpilot/logging"
)

// ErrAlreadyRunning is returned by Execute while a previous execution on
// the same engine has not yet terminated.
var ErrAlreadyRunning = errors.New("execution already running")

const (
	// DefaultMaxTurns caps the number of input submissions per execution.
	DefaultMaxTurns = 100

	// DefaultOutputBuffer is the capacity of a handle's output channel.
	DefaultOutputBuffer = 64

	// DefaultPlanBuffer is the capacity of a handle's plan channel.
	DefaultPlanBuffer = 16

	// DefaultPauseInterval is how often a paused execution rechecks its
	// phase while waiting for Resume.
	DefaultPauseInterval = 100 * time.Millisecond
)

// Options configures an Engine instance using the functional options
// pattern.
type Options struct {
	// MaxTurns limits how many inputs a single execution may submit.
	// Exceeding the limit produces a terminal error output and winds the
	// execution down. Set to 0 for unlimited (not recommended).
	MaxTurns uint64

	// OutputBuffer sets the output channel capacity. Larger buffers
	// decouple backend streaming from consumer speed at the cost of
	// memory. Consumers must keep draining Handle.Outputs; a full buffer
	// stalls translation until the consumer catches up.
	OutputBuffer int

	// PlanBuffer sets the plan channel capacity.
	PlanBuffer int

	// PauseInterval is the polling interval of a paused execution.
	PauseInterval time.Duration

	// Logger provides structured logging for debugging and monitoring.
	// Defaults to NoOp logger if nil to ensure no logging dependencies.
	Logger logging.Logger
}

// Engine drives executions against a single backend. An engine runs at
// most one execution at a time; Execute returns ErrAlreadyRunning while a
// previous execution is still live. Engines are reusable once an execution
// has terminated.
type Engine struct {
	backend backend.Backend
	opts    Options

	mu      sync.Mutex
	running bool
}

// New creates an Engine for the given backend with sensible defaults and
// optional configuration.
//
// Example:
//
//	engine := New(myBackend,
//	    func(o *Options) { o.MaxTurns = 10 },
//	    func(o *Options) { o.Logger = logger },
//	)
func New(b backend.Backend, optFns ...func(o *Options)) *Engine {
	opts := Options{
		MaxTurns:      DefaultMaxTurns,
		OutputBuffer:  DefaultOutputBuffer,
		PlanBuffer:    DefaultPlanBuffer,
		PauseInterval: DefaultPauseInterval,
		Logger:        logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.OutputBuffer < 0 {
		opts.OutputBuffer = 0
	}

	if opts.PlanBuffer < 0 {
		opts.PlanBuffer = 0
	}

	if opts.PauseInterval <= 0 {
		opts.PauseInterval = DefaultPauseInterval
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Engine{backend: b, opts: opts}
}

// Handle provides access to a running execution: its identity, lifecycle
// controls and the translated output streams.
type Handle struct {
	// ID uniquely identifies this execution.
	ID string

	// Controller exposes stop, pause and resume controls along with the
	// current phase and turn count.
	Controller *Controller

	outputs chan core.OutputMessage
	plans   chan core.PlanMessage
	done    chan struct{}
}

// Outputs returns the stream of translated output messages. The channel is
// closed once the execution terminates, so consumers can simply range over
// it. Consumers must keep draining the channel; translation stalls while
// the buffer is full.
func (h *Handle) Outputs() <-chan core.OutputMessage { return h.outputs }

// Plans returns the stream of plan updates. Each message carries the
// complete current plan, so the latest message is always authoritative and
// slow consumers may skip intermediate updates. Closed on termination.
func (h *Handle) Plans() <-chan core.PlanMessage { return h.plans }

// Done returns a channel closed once the execution has fully terminated
// and both streams are closed.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the execution terminates and returns the final phase.
func (h *Handle) Wait() Phase {
	<-h.done
	return h.Controller.Phase()
}

// Execute starts an execution that consumes user inputs from the given
// channel until it is closed or a stop is requested. It returns
// immediately with a Handle for the running execution.
//
// The engine submits each input to the backend as one turn, concurrently
// draining and translating backend events onto the handle's output
// streams. When the input channel closes, the backend is asked to shut
// down gracefully and the output channels are closed after the final
// event.
//
// The context governs the whole execution: cancelling it tears the
// execution down without the graceful backend shutdown.
func (e *Engine) Execute(ctx context.Context, inputs <-chan core.InputMessage) (*Handle, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	e.running = true
	e.mu.Unlock()

	h := &Handle{
		ID:         uuid.NewString(),
		Controller: newController(),
		outputs:    make(chan core.OutputMessage, e.opts.OutputBuffer),
		plans:      make(chan core.PlanMessage, e.opts.PlanBuffer),
		done:       make(chan struct{}),
	}

	e.opts.Logger.Info("execution starting", "execution_id", h.ID, "max_turns", e.opts.MaxTurns)

	go e.run(ctx, inputs, h)

	return h, nil
}

// run is the input activity. It owns the execution lifecycle: it spawns
// the event activity, consumes inputs until exhaustion or stop, performs
// the graceful backend shutdown and finally closes the handle's channels.
func (e *Engine) run(ctx context.Context, inputs <-chan core.InputMessage, h *Handle) {
	ctrl := h.Controller
	log := e.opts.Logger

	defer func() {
		// Release the engine before signalling completion so a waiter
		// can immediately start the next execution.
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()

		close(h.outputs)
		close(h.plans)
		close(h.done)
	}()

	ctrl.beginRun()

	// The event activity keeps draining until the backend acknowledges
	// shutdown. It is only cancelled when that acknowledgement cannot be
	// delivered anymore.
	eventCtx, cancelEvents := context.WithCancel(ctx)
	defer cancelEvents()

	eventDone := make(chan struct{})
	go func() {
		defer close(eventDone)
		e.drainEvents(eventCtx, h)
	}()

	e.consumeInputs(ctx, inputs, h)

	if err := e.backend.Submit(ctx, backend.Shutdown{}); err != nil {
		log.Warn("shutdown submission failed", "execution_id", h.ID, "error", err)
		cancelEvents()
	}
	<-eventDone

	ctrl.markStopped()
	log.Info("execution finished",
		"execution_id", h.ID,
		"phase", string(ctrl.Phase()),
		"turns", ctrl.TurnCount(),
	)
}

// consumeInputs submits user inputs one turn at a time until the input
// channel closes, a stop is requested, the context ends or the turn limit
// is reached.
func (e *Engine) consumeInputs(ctx context.Context, inputs <-chan core.InputMessage, h *Handle) {
	ctrl := h.Controller
	log := e.opts.Logger

	for {
		select {
		case <-ctx.Done():
			return

		case <-ctrl.stopSignal():
			return

		case msg, ok := <-inputs:
			if !ok {
				return
			}

			if ctrl.stopRequested() {
				return
			}

			if !e.awaitResume(ctx, h) {
				return
			}

			if e.opts.MaxTurns > 0 && ctrl.TurnCount() >= e.opts.MaxTurns {
				log.Warn("turn limit reached", "execution_id", h.ID, "max_turns", e.opts.MaxTurns)
				e.sendOutput(ctx, h, core.OutputMessage{
					TurnID: ctrl.currentTurn(),
					Event: core.OutputError{
						Kind:    core.ErrorKindTurnLimitExceeded,
						Message: fmt.Sprintf("turn limit of %d exceeded", e.opts.MaxTurns),
					},
				})
				return
			}

			if err := e.backend.Submit(ctx, backend.UserInput{Items: inputItems(msg)}); err != nil {
				// Submission failures are not fatal: surface the error
				// and move on to the next input.
				log.Error("input submission failed", "execution_id", h.ID, "error", err)
				e.sendOutput(ctx, h, core.OutputMessage{
					TurnID: ctrl.currentTurn(),
					Event:  core.FromError(err),
				})
			}

			// The turn counts whether or not the submission succeeded.
			ctrl.addTurn()
		}
	}
}

// awaitResume blocks while the execution is paused, polling the phase at
// the configured interval. It returns false when the execution should wind
// down instead of submitting the pending input.
func (e *Engine) awaitResume(ctx context.Context, h *Handle) bool {
	ctrl := h.Controller
	if ctrl.Phase() != PhasePaused {
		return true
	}

	e.opts.Logger.Info("execution paused", "execution_id", h.ID)

	ticker := time.NewTicker(e.opts.PauseInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false

		case <-ctrl.stopSignal():
			return false

		case <-ticker.C:
			switch ctrl.Phase() {
			case PhasePaused:
				// Still paused, keep polling.
			case PhaseRunning:
				e.opts.Logger.Info("execution resumed", "execution_id", h.ID)
				return true
			default:
				return false
			}
		}
	}
}

// drainEvents is the event activity. It pulls backend events, translates
// them and forwards the results until the backend acknowledges shutdown or
// the stream dies.
func (e *Engine) drainEvents(ctx context.Context, h *Handle) {
	tr := newTranslator(h.Controller, e.opts.Logger)

	for {
		ev, err := e.backend.NextEvent(ctx)
		if err != nil {
			if ctx.Err() != nil {
				// Cancelled as part of teardown.
				return
			}
			e.opts.Logger.Error("event stream failed", "execution_id", h.ID, "error", err)
			h.Controller.markErrored()
			e.sendOutput(ctx, h, core.OutputMessage{
				TurnID: h.Controller.currentTurn(),
				Event:  core.FromError(err),
			})
			return
		}

		if _, ok := ev.(backend.ShutdownComplete); ok {
			return
		}

		outputs, plans := tr.translate(ev)
		for _, plan := range plans {
			e.sendPlan(ctx, h, plan)
		}
		for _, msg := range outputs {
			e.sendOutput(ctx, h, msg)
		}
	}
}

// sendOutput forwards one output message. Delivery is best effort once the
// execution is being torn down: messages are dropped rather than blocking
// shutdown when the consumer is gone.
func (e *Engine) sendOutput(ctx context.Context, h *Handle, msg core.OutputMessage) {
	select {
	case h.outputs <- msg:
		return
	default:
	}

	select {
	case h.outputs <- msg:
	case <-ctx.Done():
	case <-h.Controller.stopSignal():
	}
}

// sendPlan forwards one plan message, best effort like sendOutput.
func (e *Engine) sendPlan(ctx context.Context, h *Handle, plan core.PlanMessage) {
	select {
	case h.plans <- plan:
		return
	default:
	}

	select {
	case h.plans <- plan:
	case <-ctx.Done():
	case <-h.Controller.stopSignal():
	}
}

// inputItems converts a user input into backend submission items. The text
// item always leads, followed by any image references.
func inputItems(msg core.InputMessage) []backend.InputItem {
	items := make([]backend.InputItem, 0, len(msg.Images)+1)
	items = append(items, backend.TextItem{Text: msg.Text})

	for _, img := range msg.Images {
		switch im := img.(type) {
		case core.ImageBase64:
			items = append(items, backend.ImageItem{Data: im.Data})
		case core.ImagePath:
			items = append(items, backend.ImageItem{Path: im.Path})
		case core.ImageURL:
			items = append(items, backend.ImageItem{URL: im.URL})
		}
	}

	return items
}
