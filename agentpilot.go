// Package agentpilot provides a high-level facade over the execution engine
// for driving conversational agent backends. Most applications interact with
// this package by:
//  1. Creating an AgentPilot via New() around a backend (Anthropic, OpenAI,
//     or any backend.Backend implementation)
//  2. Asking one-shot questions with Query/Stream, holding a long-lived
//     exchange with Interactive, or recording one with NewSession
//  3. Shaping the output stream with the processing package where needed
//
// The facade delegates execution to engine.Engine while keeping setup and
// usage ergonomics concise. Each call runs on a fresh engine, so an
// AgentPilot is reusable across calls; the underlying backend is shared and
// drives one execution at a time.
package agentpilot

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/hupe1980/agentpilot/backend"
	"github.com/hupe1980/agentpilot/core"
	"github.com/hupe1980/agentpilot/engine"
	"github.com/hupe1980/agentpilot/logging"
	"github.com/hupe1980/agentpilot/processing"
	"github.com/hupe1980/agentpilot/session"
)

// ErrConversationClosed is returned by Send on a closed Conversation.
var ErrConversationClosed = errors.New("conversation is closed")

// DefaultInputBuffer is the capacity of the input channel behind Send.
const DefaultInputBuffer = 16

// Options configures the AgentPilot instance.
type Options struct {
	// EngineOptions configure the engine created for each call, e.g. turn
	// limits and buffer sizes.
	EngineOptions []func(o *engine.Options)

	// Processor supplies a fresh processing pipeline for each Stream call.
	// A pipeline holds stateful aggregators, so a factory is required
	// rather than a shared instance. Nil streams raw output messages.
	Processor func() *processing.Processor

	// InputBuffer sets the input channel capacity of Interactive
	// conversations.
	InputBuffer int

	// Logger provides structured logging for the engines run by this
	// facade. Defaults to NoOp logger if nil.
	Logger logging.Logger
}

// AgentPilot is the high-level facade binding a backend to the execution
// engine.
type AgentPilot struct {
	backend backend.Backend
	opts    Options
}

// New creates an AgentPilot around the given backend.
//
// Example:
//
//	pilot := New(myBackend,
//	    func(o *Options) { o.Logger = logger },
//	)
//	answer, err := pilot.Query(ctx, "What is 2+2?")
func New(b backend.Backend, optFns ...func(o *Options)) *AgentPilot {
	opts := Options{
		InputBuffer: DefaultInputBuffer,
		Logger:      logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.InputBuffer < 0 {
		opts.InputBuffer = 0
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &AgentPilot{backend: b, opts: opts}
}

// newEngine builds the engine for one call. The facade logger is applied
// first so explicit engine options can still override it.
func (p *AgentPilot) newEngine() *engine.Engine {
	optFns := append([]func(o *engine.Options){
		func(o *engine.Options) { o.Logger = p.opts.Logger },
	}, p.opts.EngineOptions...)

	return engine.New(p.backend, optFns...)
}

// Query sends a single prompt and returns the complete response text. The
// output stream is aggregated through a delta-merging, duplicate-dropping
// pipeline, so backends that emit streaming deltas alongside final
// messages produce the text exactly once. If the run surfaces an error
// output, Query returns it after the execution has wound down.
func (p *AgentPilot) Query(ctx context.Context, prompt string) (string, error) {
	inputs := make(chan core.InputMessage, 1)
	inputs <- core.NewInput(prompt)
	close(inputs)

	handle, err := p.newEngine().Execute(ctx, inputs)
	if err != nil {
		return "", err
	}
	go drainPlans(handle.Plans())

	proc := processing.NewBuilder().
		AggregateDeltas().
		RemoveDuplicates().
		Build()

	var (
		response strings.Builder
		firstErr error
	)

	for msg := range proc.Apply(ctx, handle.Outputs()) {
		switch ev := msg.Event.(type) {
		case core.Primary:
			response.WriteString(ev.Text)
		case core.OutputError:
			if firstErr == nil {
				firstErr = ev
			}
		}
	}

	if firstErr != nil {
		return "", firstErr
	}

	return response.String(), nil
}

// Stream sends a single prompt and returns the live output stream. The
// channel closes once the execution has wound down; error outputs arrive
// as messages on the stream. When a Processor factory is configured the
// stream is piped through a fresh pipeline.
func (p *AgentPilot) Stream(ctx context.Context, prompt string) (<-chan core.OutputMessage, error) {
	inputs := make(chan core.InputMessage, 1)
	inputs <- core.NewInput(prompt)
	close(inputs)

	handle, err := p.newEngine().Execute(ctx, inputs)
	if err != nil {
		return nil, err
	}
	go drainPlans(handle.Plans())

	if p.opts.Processor == nil {
		return handle.Outputs(), nil
	}

	return p.opts.Processor().Apply(ctx, handle.Outputs()), nil
}

// Interactive starts a long-lived conversation. The handler is invoked for
// every output message until it returns false; the stream keeps draining
// afterwards so the execution is never stalled by an inactive handler.
func (p *AgentPilot) Interactive(ctx context.Context, handler func(msg core.OutputMessage) bool) (*Conversation, error) {
	inputs := make(chan core.InputMessage, p.opts.InputBuffer)

	handle, err := p.newEngine().Execute(ctx, inputs)
	if err != nil {
		return nil, err
	}

	c := &Conversation{handle: handle, inputs: inputs}

	go func() {
		active := true
		for msg := range handle.Outputs() {
			if active && !handler(msg) {
				active = false
			}
		}
	}()

	go func() {
		for plan := range handle.Plans() {
			c.mu.Lock()
			c.todos = append(c.todos[:0], plan.Todos...)
			c.mu.Unlock()
		}
	}()

	return c, nil
}

// Execute runs a fresh engine over a caller-owned input channel and
// returns its handle. This is the low-level entry point for callers that
// manage channels themselves.
func (p *AgentPilot) Execute(ctx context.Context, inputs <-chan core.InputMessage) (*engine.Handle, error) {
	return p.newEngine().Execute(ctx, inputs)
}

// NewSession creates a recorded session over this pilot's backend: message
// history, metrics and a persistable snapshot on top of a long-lived
// exchange. The facade logger is applied first so explicit session options
// can still override it. The session is not started.
func (p *AgentPilot) NewSession(optFns ...func(o *session.Options)) *session.Session {
	sessFns := append([]func(o *session.Options){
		func(o *session.Options) { o.Logger = p.opts.Logger },
	}, optFns...)

	return session.New(p.newEngine(), sessFns...)
}

// Conversation is a long-lived exchange started by Interactive.
type Conversation struct {
	handle *engine.Handle
	inputs chan<- core.InputMessage

	mu     sync.Mutex
	closed bool
	todos  []core.TodoItem
}

// Send submits one user turn of plain text.
func (c *Conversation) Send(ctx context.Context, text string) error {
	return c.SendInput(ctx, core.NewInput(text))
}

// SendInput submits one user turn, including image attachments.
func (c *Conversation) SendInput(ctx context.Context, msg core.InputMessage) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrConversationClosed
	}

	select {
	case c.inputs <- msg:
		return nil
	case <-c.handle.Done():
		return ErrConversationClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Plan returns the latest plan snapshot received during the conversation.
func (c *Conversation) Plan() []core.TodoItem {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]core.TodoItem, len(c.todos))
	copy(out, c.todos)
	return out
}

// Controller exposes the lifecycle controls of the underlying execution.
func (c *Conversation) Controller() *engine.Controller {
	return c.handle.Controller
}

// Done returns a channel closed once the conversation has fully wound
// down.
func (c *Conversation) Done() <-chan struct{} {
	return c.handle.Done()
}

// Wait blocks until the conversation has wound down and returns the final
// phase.
func (c *Conversation) Wait() engine.Phase {
	return c.handle.Wait()
}

// Close ends the conversation: the execution is stopped, the backend is
// shut down gracefully and inputs that were queued but not yet submitted
// are discarded. Close is idempotent and returns once the conversation has
// wound down.
func (c *Conversation) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.handle.Controller.Stop()
	<-c.handle.Done()
}

func drainPlans(plans <-chan core.PlanMessage) {
	for range plans {
	}
}
