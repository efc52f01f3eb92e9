package backend

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrClosed is returned by Submit when the backend has already processed a
// Shutdown operation and no longer accepts input.
var ErrClosed = errors.New("backend is closed")

// Backend is the minimal surface the execution engine requires from an agent
// provider. Implementations own their transport, conversation state and
// concurrency; the engine only ever submits operations and drains events.
//
// Submit enqueues an operation for processing and returns once the backend
// has accepted it. NextEvent blocks until the next event is available, the
// context is cancelled, or the backend fails permanently. Both methods must
// be safe for concurrent use: the engine calls Submit and NextEvent from
// separate goroutines.
type Backend interface {
	Submit(ctx context.Context, op Operation) error
	NextEvent(ctx context.Context) (Event, error)
}

// Operation represents a request submitted to a backend. Concrete operation
// types implement the unexported isOperation marker enabling a closed set.
type Operation interface{ isOperation() }

// UserInput delivers one user turn to the backend.
type UserInput struct {
	Items []InputItem // Ordered content items making up the turn
}

// isOperation implements the Operation interface for UserInput.
func (UserInput) isOperation() {}

// Shutdown asks the backend to finish in-flight work and release resources.
// Backends acknowledge by emitting ShutdownComplete as their final event.
type Shutdown struct{}

// isOperation implements the Operation interface for Shutdown.
func (Shutdown) isOperation() {}

// InputItem represents a polymorphic segment of user input. Concrete item
// types implement the unexported isInputItem marker enabling a closed set.
type InputItem interface{ isInputItem() }

// TextItem is a plain text input segment.
type TextItem struct {
	Text string // Plain UTF-8 text
}

// isInputItem implements the InputItem interface for TextItem.
func (TextItem) isInputItem() {}

// ImageItem is an image input segment. Exactly one of Data, Path or URL is
// populated depending on how the caller supplied the image.
type ImageItem struct {
	Data string // Base64 encoded contents (if inlined)
	Path string // Local filesystem path (if referenced)
	URL  string // External retrieval URL (if remote)
}

// isInputItem implements the InputItem interface for ImageItem.
func (ImageItem) isInputItem() {}

// Event represents a single occurrence reported by a backend while it works
// on submitted input. Concrete event types implement the unexported isEvent
// marker enabling a closed set.
//
// The engine translates events into the public output vocabulary; event
// types it does not recognize are ignored, so backends may extend their
// streams without breaking older consumers.
type Event interface{ isEvent() }

// SessionStarted reports that the backend established its session. Emitted
// at most once, before any other event.
type SessionStarted struct {
	SessionID string // Backend-assigned session identifier
	Model     string // Model serving the session, if known
}

// isEvent implements the Event interface for SessionStarted.
func (SessionStarted) isEvent() {}

// AgentMessage carries a complete natural-language response.
type AgentMessage struct {
	Text string
}

// isEvent implements the Event interface for AgentMessage.
func (AgentMessage) isEvent() {}

// AgentMessageDelta carries an incremental fragment of an in-progress
// response. Fragments concatenate in arrival order.
type AgentMessageDelta struct {
	Delta string
}

// isEvent implements the Event interface for AgentMessageDelta.
func (AgentMessageDelta) isEvent() {}

// AgentReasoning carries intermediate reasoning text produced before the
// final response.
type AgentReasoning struct {
	Text string
}

// isEvent implements the Event interface for AgentReasoning.
func (AgentReasoning) isEvent() {}

// ToolCallBegin reports that the agent started a tool invocation.
type ToolCallBegin struct {
	CallID    string          // Correlates with the matching ToolCallEnd
	Name      string          // Tool name as reported by the backend
	Arguments json.RawMessage // Serialized argument payload (JSON)
}

// isEvent implements the Event interface for ToolCallBegin.
func (ToolCallBegin) isEvent() {}

// ToolCallEnd reports that a tool invocation finished.
type ToolCallEnd struct {
	CallID    string          // Matches the originating ToolCallBegin
	Name      string          // Tool name as reported by the backend
	Arguments json.RawMessage // Serialized argument payload (JSON)
	Result    ToolResult      // Outcome of the invocation
}

// isEvent implements the Event interface for ToolCallEnd.
func (ToolCallEnd) isEvent() {}

// ToolResult describes the outcome of a tool invocation.
type ToolResult struct {
	Content []ContentBlock // Ordered result content (empty on failure)
	Err     string         // Populated on failure
}

// Failed reports whether the invocation ended in an error.
func (r ToolResult) Failed() bool { return r.Err != "" }

// ContentBlock is one unit of tool result content.
type ContentBlock struct {
	Type string // Block type discriminator (e.g. "text")
	Text string // Text payload for text blocks
}

// CommandBegin reports that the agent started executing a shell command.
type CommandBegin struct {
	CallID  string   // Correlates with CommandOutput / CommandEnd
	Command []string // Command argv
}

// isEvent implements the Event interface for CommandBegin.
func (CommandBegin) isEvent() {}

// CommandOutput carries a chunk of raw command output. Chunks may split
// multi-byte sequences; consumers decode best effort.
type CommandOutput struct {
	CallID string
	Chunk  []byte
}

// isEvent implements the Event interface for CommandOutput.
func (CommandOutput) isEvent() {}

// CommandEnd reports that a shell command finished.
type CommandEnd struct {
	CallID   string
	ExitCode int
}

// isEvent implements the Event interface for CommandEnd.
func (CommandEnd) isEvent() {}

// TaskComplete reports that the backend finished processing one input turn.
type TaskComplete struct {
	LastAgentMessage string // Final response text, if any
}

// isEvent implements the Event interface for TaskComplete.
func (TaskComplete) isEvent() {}

// PlanUpdate reports a standalone change to the agent's task plan.
type PlanUpdate struct {
	Explanation string
	Plan        []PlanStep
}

// isEvent implements the Event interface for PlanUpdate.
func (PlanUpdate) isEvent() {}

// PlanStep is one entry in an agent task plan.
type PlanStep struct {
	Step   string // Human readable step description
	Status string // Step state (pending, in_progress, completed, blocked)
}

// ErrorEvent reports a backend-side failure that did not terminate the
// event stream.
type ErrorEvent struct {
	Message string
}

// isEvent implements the Event interface for ErrorEvent.
func (ErrorEvent) isEvent() {}

// TurnAborted reports that the current turn was cut short.
type TurnAborted struct {
	Reason string
}

// isEvent implements the Event interface for TurnAborted.
func (TurnAborted) isEvent() {}

// TokenCount reports cumulative token usage. The engine currently ignores
// these events.
type TokenCount struct {
	InputTokens  int
	OutputTokens int
}

// isEvent implements the Event interface for TokenCount.
func (TokenCount) isEvent() {}

// ShutdownComplete is the final event a backend emits after processing a
// Shutdown operation.
type ShutdownComplete struct{}

// isEvent implements the Event interface for ShutdownComplete.
func (ShutdownComplete) isEvent() {}
