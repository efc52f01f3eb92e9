package core

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// InputMessage is a single user turn submitted to a running execution. It is
// immutable once constructed and consumed exactly once by the engine.
type InputMessage struct {
	Text   string     // Prompt text
	Images []ImageRef // Optional ordered image attachments
}

// NewInput constructs an InputMessage from prompt text and optional images.
func NewInput(text string, images ...ImageRef) InputMessage {
	return InputMessage{Text: text, Images: images}
}

// ImageRef references an image attached to an input message. Concrete
// reference types implement the unexported isImageRef marker enabling a
// closed set.
type ImageRef interface{ isImageRef() }

// ImageBase64 carries inline base64 encoded image data.
type ImageBase64 struct{ Data string }

// ImagePath references an image on the local filesystem.
type ImagePath struct{ Path string }

// ImageURL references an image at an external URL.
type ImageURL struct{ URL string }

// isImageRef implements the ImageRef interface for ImageBase64.
func (ImageBase64) isImageRef() {}

// isImageRef implements the ImageRef interface for ImagePath.
func (ImagePath) isImageRef() {}

// isImageRef implements the ImageRef interface for ImageURL.
func (ImageURL) isImageRef() {}

// OutputMessage couples a structured output event with the turn that produced
// it. TurnID is monotonically non-decreasing across a stream and increments
// exactly at a Completed event; every output of one turn carries the same id.
type OutputMessage struct {
	TurnID uint64
	Event  OutputEvent
}

// IsTerminal reports whether the message ends a turn, i.e. carries Completed
// or an error.
func (m OutputMessage) IsTerminal() bool {
	switch m.Event.(type) {
	case Completed, OutputError:
		return true
	}
	return false
}

// IsError reports whether the message carries an output error.
func (m OutputMessage) IsError() bool {
	_, ok := m.Event.(OutputError)
	return ok
}

// OutputEvent is one structured observation from a running execution. Exactly
// one concrete variant is carried per message; the variants implement the
// unexported isOutputEvent marker enabling a closed set.
type OutputEvent interface{ isOutputEvent() }

// Start signals that the backend session is configured; one per session.
type Start struct{}

// Primary is a full assistant message.
type Primary struct{ Text string }

// PrimaryDelta is a streaming assistant message fragment. Fragments carry no
// implied boundary; concatenation over a turn yields the full message.
type PrimaryDelta struct{ Text string }

// Detail carries auxiliary information such as tool execution details.
type Detail struct{ Text string }

// Reasoning is a reasoning trace from models that expose one.
type Reasoning struct{ Text string }

// ToolStart signals that a tool invocation began. Command executions are
// normalized into the tool vocabulary under the name "shell".
type ToolStart struct {
	Name      string          // Tool name
	Arguments json.RawMessage // Serialized invocation arguments, may be nil
}

// ToolOutput is a streamed chunk of tool output.
type ToolOutput struct {
	Name  string
	Chunk string // UTF-8 text, invalid sequences already replaced
}

// ToolComplete signals that a tool invocation ended. On a backend-reported
// tool failure Result holds a formatted error string, not a fault.
type ToolComplete struct {
	Name   string
	Result string
}

// TodoUpdate carries a todo list snapshot on the output stream.
type TodoUpdate struct{ Todos []TodoItem }

// Completed signals that a turn finished.
type Completed struct{}

// isOutputEvent implements the OutputEvent interface for Start.
func (Start) isOutputEvent() {}

// isOutputEvent implements the OutputEvent interface for Primary.
func (Primary) isOutputEvent() {}

// isOutputEvent implements the OutputEvent interface for PrimaryDelta.
func (PrimaryDelta) isOutputEvent() {}

// isOutputEvent implements the OutputEvent interface for Detail.
func (Detail) isOutputEvent() {}

// isOutputEvent implements the OutputEvent interface for Reasoning.
func (Reasoning) isOutputEvent() {}

// isOutputEvent implements the OutputEvent interface for ToolStart.
func (ToolStart) isOutputEvent() {}

// isOutputEvent implements the OutputEvent interface for ToolOutput.
func (ToolOutput) isOutputEvent() {}

// isOutputEvent implements the OutputEvent interface for ToolComplete.
func (ToolComplete) isOutputEvent() {}

// isOutputEvent implements the OutputEvent interface for TodoUpdate.
func (TodoUpdate) isOutputEvent() {}

// isOutputEvent implements the OutputEvent interface for Completed.
func (Completed) isOutputEvent() {}

// EventType returns a stable snake_case name for the event variant carried by
// msg, suitable for type filtering, metrics and log records.
func EventType(ev OutputEvent) string {
	switch ev.(type) {
	case Start:
		return "start"
	case Primary:
		return "primary"
	case PrimaryDelta:
		return "delta"
	case Detail:
		return "detail"
	case Reasoning:
		return "reasoning"
	case ToolStart:
		return "tool_start"
	case ToolOutput:
		return "tool_output"
	case ToolComplete:
		return "tool_complete"
	case TodoUpdate:
		return "todo_update"
	case Completed:
		return "completed"
	case OutputError:
		return "error"
	default:
		return "unknown"
	}
}

// IsToolMessage reports whether the message belongs to a tool invocation.
func IsToolMessage(msg OutputMessage) bool {
	switch msg.Event.(type) {
	case ToolStart, ToolOutput, ToolComplete:
		return true
	}
	return false
}

// ToolName extracts the tool name from a tool message.
func ToolName(msg OutputMessage) (string, bool) {
	switch ev := msg.Event.(type) {
	case ToolStart:
		return ev.Name, true
	case ToolOutput:
		return ev.Name, true
	case ToolComplete:
		return ev.Name, true
	}
	return "", false
}

// ExtractCommands returns the shell commands a tool-start message launches.
// The "command" argument may be a plain string or an argv array; both the
// "shell" name and the legacy "bash" name are recognized.
func ExtractCommands(msg OutputMessage) []string {
	start, ok := msg.Event.(ToolStart)
	if !ok || (start.Name != "shell" && start.Name != "bash") {
		return nil
	}
	cmd := gjson.GetBytes(start.Arguments, "command")
	switch {
	case cmd.Type == gjson.String:
		return []string{cmd.String()}
	case cmd.IsArray():
		var parts []string
		for _, v := range cmd.Array() {
			if v.Type == gjson.String {
				parts = append(parts, v.String())
			}
		}
		return []string{strings.Join(parts, " ")}
	}
	return nil
}
