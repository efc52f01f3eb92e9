package testutil

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/tidwall/sjson"

	"github.com/hupe1980/agentpilot/backend"
)

// ScriptBuilder provides a fluent helper for assembling per-turn event
// batches for a scripted backend.
// Example:
//
//	turns := NewScriptBuilder().
//	    Turn().Agent("Working on it.").Complete("Working on it.").
//	    Turn().Command("ls", "-la").CommandOutput("main.go\n").CommandEnd(0).
//	    Agent("Done.").Complete("Done.").
//	    Build()
//	b := backend.NewScriptedBackend(turns...)
//
// Turn starts a new batch; events chain onto the current batch. Tool call
// ids are generated and correlated automatically.
type ScriptBuilder struct {
	turns   [][]backend.Event
	current []backend.Event
	active  bool

	lastCallID string
	lastTool   string
}

// NewScriptBuilder creates an empty script builder.
func NewScriptBuilder() *ScriptBuilder { return &ScriptBuilder{} }

// Turn closes the current batch and starts the next one (chainable).
func (b *ScriptBuilder) Turn() *ScriptBuilder {
	if b.active {
		b.turns = append(b.turns, b.current)
	}
	b.current = nil
	b.active = true
	return b
}

// Event appends an arbitrary event to the current batch (chainable).
func (b *ScriptBuilder) Event(ev backend.Event) *ScriptBuilder {
	b.active = true
	b.current = append(b.current, ev)
	return b
}

// Agent appends a complete assistant message (chainable).
func (b *ScriptBuilder) Agent(text string) *ScriptBuilder {
	return b.Event(backend.AgentMessage{Text: text})
}

// AgentDelta appends a streaming assistant fragment (chainable).
func (b *ScriptBuilder) AgentDelta(delta string) *ScriptBuilder {
	return b.Event(backend.AgentMessageDelta{Delta: delta})
}

// Reasoning appends a reasoning trace (chainable).
func (b *ScriptBuilder) Reasoning(text string) *ScriptBuilder {
	return b.Event(backend.AgentReasoning{Text: text})
}

// ToolBegin appends a tool call start with a generated call id (chainable).
func (b *ScriptBuilder) ToolBegin(name, arguments string) *ScriptBuilder {
	b.lastCallID = uuid.NewString()
	b.lastTool = name
	return b.Event(backend.ToolCallBegin{
		CallID:    b.lastCallID,
		Name:      name,
		Arguments: json.RawMessage(arguments),
	})
}

// ToolEnd appends a tool call end correlated with the last ToolBegin
// (chainable).
func (b *ScriptBuilder) ToolEnd(resultText string) *ScriptBuilder {
	return b.Event(backend.ToolCallEnd{
		CallID: b.lastCallID,
		Name:   b.lastTool,
		Result: backend.ToolResult{
			Content: []backend.ContentBlock{{Type: "text", Text: resultText}},
		},
	})
}

// ToolFail appends a failed tool call end correlated with the last
// ToolBegin (chainable).
func (b *ScriptBuilder) ToolFail(errText string) *ScriptBuilder {
	return b.Event(backend.ToolCallEnd{
		CallID: b.lastCallID,
		Name:   b.lastTool,
		Result: backend.ToolResult{Err: errText},
	})
}

// UpdatePlanTool appends an update_plan tool call start whose arguments
// carry the given plan steps (chainable).
func (b *ScriptBuilder) UpdatePlanTool(steps ...backend.PlanStep) *ScriptBuilder {
	args := `{"plan":[]}`
	for _, step := range steps {
		args, _ = sjson.Set(args, "plan.-1", map[string]string{
			"step":   step.Step,
			"status": step.Status,
		})
	}
	return b.ToolBegin("update_plan", args)
}

// Command appends a command execution start with a generated call id
// (chainable).
func (b *ScriptBuilder) Command(argv ...string) *ScriptBuilder {
	b.lastCallID = uuid.NewString()
	return b.Event(backend.CommandBegin{CallID: b.lastCallID, Command: argv})
}

// CommandOutput appends a chunk of command output correlated with the last
// Command (chainable).
func (b *ScriptBuilder) CommandOutput(chunk string) *ScriptBuilder {
	return b.Event(backend.CommandOutput{CallID: b.lastCallID, Chunk: []byte(chunk)})
}

// CommandEnd appends a command completion correlated with the last Command
// (chainable).
func (b *ScriptBuilder) CommandEnd(exitCode int) *ScriptBuilder {
	return b.Event(backend.CommandEnd{CallID: b.lastCallID, ExitCode: exitCode})
}

// Plan appends a standalone plan update (chainable).
func (b *ScriptBuilder) Plan(explanation string, steps ...backend.PlanStep) *ScriptBuilder {
	return b.Event(backend.PlanUpdate{Explanation: explanation, Plan: steps})
}

// Error appends a recoverable backend error (chainable).
func (b *ScriptBuilder) Error(message string) *ScriptBuilder {
	return b.Event(backend.ErrorEvent{Message: message})
}

// Complete appends the task completion that ends the turn (chainable).
func (b *ScriptBuilder) Complete(lastAgentMessage string) *ScriptBuilder {
	return b.Event(backend.TaskComplete{LastAgentMessage: lastAgentMessage})
}

// Build returns the assembled per-turn batches.
func (b *ScriptBuilder) Build() [][]backend.Event {
	turns := b.turns
	if b.active {
		turns = append(turns, b.current)
	}
	return turns
}
