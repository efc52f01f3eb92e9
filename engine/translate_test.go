package engine

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/hupe1980/agentpilot/backend"
	"github.com/hupe1980/agentpilot/core"
	"github.com/hupe1980/agentpilot/logging"
)

func newTestTranslator() *translator {
	return newTranslator(newController(), logging.NoOpLogger{})
}

func TestTranslate_SessionStarted(t *testing.T) {
	tr := newTestTranslator()

	outputs, plans := tr.translate(backend.SessionStarted{SessionID: "s1", Model: "m"})
	require.Len(t, outputs, 1)
	assert.Empty(t, plans)
	assert.Equal(t, core.OutputMessage{TurnID: 0, Event: core.Start{}}, outputs[0])
}

func TestTranslate_MessageEvents(t *testing.T) {
	tr := newTestTranslator()

	outputs, _ := tr.translate(backend.AgentMessage{Text: "hello"})
	require.Len(t, outputs, 1)
	assert.Equal(t, core.Primary{Text: "hello"}, outputs[0].Event)

	outputs, _ = tr.translate(backend.AgentMessageDelta{Delta: "he"})
	require.Len(t, outputs, 1)
	assert.Equal(t, core.PrimaryDelta{Text: "he"}, outputs[0].Event)

	outputs, _ = tr.translate(backend.AgentReasoning{Text: "thinking"})
	require.Len(t, outputs, 1)
	assert.Equal(t, core.Reasoning{Text: "thinking"}, outputs[0].Event)
}

func TestTranslate_TaskCompleteAdvancesTurn(t *testing.T) {
	tr := newTestTranslator()

	outputs, _ := tr.translate(backend.AgentMessage{Text: "first"})
	assert.Equal(t, uint64(0), outputs[0].TurnID)

	// Completed itself still belongs to the finishing turn.
	outputs, _ = tr.translate(backend.TaskComplete{LastAgentMessage: "first"})
	require.Len(t, outputs, 1)
	assert.Equal(t, core.OutputMessage{TurnID: 0, Event: core.Completed{}}, outputs[0])

	outputs, _ = tr.translate(backend.AgentMessage{Text: "second"})
	assert.Equal(t, uint64(1), outputs[0].TurnID)
}

func TestTranslate_ToolCallBegin(t *testing.T) {
	tr := newTestTranslator()
	args := json.RawMessage(`{"path":"main.go"}`)

	outputs, plans := tr.translate(backend.ToolCallBegin{CallID: "c1", Name: "read_file", Arguments: args})
	require.Len(t, outputs, 1)
	assert.Empty(t, plans)
	assert.Equal(t, core.ToolStart{Name: "read_file", Arguments: args}, outputs[0].Event)
}

func TestTranslate_ToolCallEndResults(t *testing.T) {
	tr := newTestTranslator()

	// Success with a leading text block surfaces that text.
	outputs, _ := tr.translate(backend.ToolCallEnd{
		Name: "read_file",
		Result: backend.ToolResult{Content: []backend.ContentBlock{
			{Type: "text", Text: "package main"},
			{Type: "text", Text: "ignored"},
		}},
	})
	require.Len(t, outputs, 1)
	assert.Equal(t, core.ToolComplete{Name: "read_file", Result: "package main"}, outputs[0].Event)

	// A non-text leading block yields an empty result.
	outputs, _ = tr.translate(backend.ToolCallEnd{
		Name: "screenshot",
		Result: backend.ToolResult{Content: []backend.ContentBlock{
			{Type: "image"},
			{Type: "text", Text: "caption"},
		}},
	})
	assert.Equal(t, core.ToolComplete{Name: "screenshot", Result: ""}, outputs[0].Event)

	// No content at all yields an empty result.
	outputs, _ = tr.translate(backend.ToolCallEnd{Name: "noop"})
	assert.Equal(t, core.ToolComplete{Name: "noop", Result: ""}, outputs[0].Event)

	// Failures surface the error message.
	outputs, _ = tr.translate(backend.ToolCallEnd{
		Name:   "read_file",
		Result: backend.ToolResult{Err: "no such file"},
	})
	assert.Equal(t, core.ToolComplete{Name: "read_file", Result: "Error: no such file"}, outputs[0].Event)
}

func TestTranslate_PlanFromUpdatePlanTool(t *testing.T) {
	tr := newTestTranslator()
	args := json.RawMessage(`{"plan":[
		{"step":"read the file","status":"completed"},
		{"step":"fix the bug","status":"in_progress"},
		{"step":"run checks","status":"pending"}
	]}`)

	outputs, plans := tr.translate(backend.ToolCallBegin{Name: "update_plan", Arguments: args})
	require.Len(t, outputs, 1)
	assert.Equal(t, "update_plan", outputs[0].Event.(core.ToolStart).Name)

	require.Len(t, plans, 1)
	plan := plans[0]
	require.Len(t, plan.Todos, 3)
	assert.Equal(t, core.TodoItem{Content: "read the file", Status: core.TodoCompleted}, plan.Todos[0])
	assert.Equal(t, core.TodoItem{Content: "fix the bug", Status: core.TodoInProgress}, plan.Todos[1])
	assert.Equal(t, core.TodoItem{Content: "run checks", Status: core.TodoPending}, plan.Todos[2])
	require.NotNil(t, plan.Metadata)
	assert.Equal(t, uint64(0), plan.Metadata.TurnID)
	assert.Equal(t, "Plan updated via update_plan tool", plan.Metadata.Description)
}

func TestTranslate_PlanFromToolEndDespiteFailure(t *testing.T) {
	tr := newTestTranslator()
	args := json.RawMessage(`{"plan":[{"step":"a","status":"completed"}]}`)

	outputs, plans := tr.translate(backend.ToolCallEnd{
		Name:      "update_plan",
		Arguments: args,
		Result:    backend.ToolResult{Err: "rejected"},
	})
	require.Len(t, outputs, 1)
	assert.Equal(t, core.ToolComplete{Name: "update_plan", Result: "Error: rejected"}, outputs[0].Event)

	require.Len(t, plans, 1)
	require.NotNil(t, plans[0].Metadata)
	assert.Equal(t, "Plan completed via update_plan tool", plans[0].Metadata.Description)
}

func TestTranslate_PlanArgumentEdgeCases(t *testing.T) {
	tr := newTestTranslator()

	// No plan key: tool output only, no plan message.
	_, plans := tr.translate(backend.ToolCallBegin{Name: "update_plan", Arguments: json.RawMessage(`{}`)})
	assert.Empty(t, plans)

	// Nil arguments behave the same.
	_, plans = tr.translate(backend.ToolCallBegin{Name: "update_plan"})
	assert.Empty(t, plans)

	// An empty plan array clears the plan.
	_, plans = tr.translate(backend.ToolCallBegin{Name: "update_plan", Arguments: json.RawMessage(`{"plan":[]}`)})
	require.Len(t, plans, 1)
	assert.Empty(t, plans[0].Todos)

	// Malformed entries are skipped, unknown statuses degrade to pending.
	args := json.RawMessage(`{"plan":[
		{"step":"ok","status":"wip"},
		{"step":42,"status":"pending"},
		{"status":"pending"},
		"not an object"
	]}`)
	_, plans = tr.translate(backend.ToolCallBegin{Name: "update_plan", Arguments: args})
	require.Len(t, plans, 1)
	require.Len(t, plans[0].Todos, 1)
	assert.Equal(t, core.TodoItem{Content: "ok", Status: core.TodoPending}, plans[0].Todos[0])
}

func TestTranslate_CommandLifecycle(t *testing.T) {
	tr := newTestTranslator()

	outputs, _ := tr.translate(backend.CommandBegin{CallID: "c1", Command: []string{"ls", "-la"}})
	require.Len(t, outputs, 1)
	start := outputs[0].Event.(core.ToolStart)
	assert.Equal(t, "shell", start.Name)
	cmd := gjson.GetBytes(start.Arguments, "command")
	require.True(t, cmd.IsArray())
	assert.Equal(t, "ls", cmd.Array()[0].String())
	assert.Equal(t, "-la", cmd.Array()[1].String())

	outputs, _ = tr.translate(backend.CommandOutput{CallID: "c1", Chunk: []byte("total 0\n")})
	require.Len(t, outputs, 1)
	assert.Equal(t, core.ToolOutput{Name: "shell", Chunk: "total 0\n"}, outputs[0].Event)

	outputs, _ = tr.translate(backend.CommandEnd{CallID: "c1", ExitCode: 0})
	require.Len(t, outputs, 1)
	assert.Equal(t, core.ToolComplete{Name: "shell", Result: "exit code: 0"}, outputs[0].Event)
}

func TestTranslate_CommandOutputReplacesInvalidUTF8(t *testing.T) {
	tr := newTestTranslator()

	// Each run of invalid bytes collapses into one replacement character.
	outputs, _ := tr.translate(backend.CommandOutput{Chunk: []byte{'o', 'k', 0xff, 0xfe}})
	require.Len(t, outputs, 1)
	chunk := outputs[0].Event.(core.ToolOutput).Chunk
	assert.Equal(t, "ok�", chunk)
}

func TestTranslate_StandalonePlanUpdate(t *testing.T) {
	tr := newTestTranslator()

	outputs, plans := tr.translate(backend.PlanUpdate{
		Explanation: "revised after review",
		Plan: []backend.PlanStep{
			{Step: "write tests", Status: "in_progress"},
			{Step: "ship it", Status: "blocked"},
		},
	})
	assert.Empty(t, outputs)
	require.Len(t, plans, 1)
	assert.Equal(t, []core.TodoItem{
		{Content: "write tests", Status: core.TodoInProgress},
		{Content: "ship it", Status: core.TodoBlocked},
	}, plans[0].Todos)
	require.NotNil(t, plans[0].Metadata)
	assert.Equal(t, "revised after review", plans[0].Metadata.Description)
}

func TestTranslate_ErrorEvents(t *testing.T) {
	tr := newTestTranslator()

	outputs, _ := tr.translate(backend.ErrorEvent{Message: "backend exploded"})
	require.Len(t, outputs, 1)
	assert.Equal(t, core.OutputError{Kind: core.ErrorKindUnknown, Message: "backend exploded"}, outputs[0].Event)

	outputs, _ = tr.translate(backend.TurnAborted{Reason: "user interrupt"})
	require.Len(t, outputs, 1)
	assert.Equal(t, core.OutputError{Kind: core.ErrorKindInterrupted, Message: "user interrupt"}, outputs[0].Event)
}

func TestTranslate_IgnoredEvents(t *testing.T) {
	tr := newTestTranslator()

	outputs, plans := tr.translate(backend.TokenCount{InputTokens: 10, OutputTokens: 20})
	assert.Empty(t, outputs)
	assert.Empty(t, plans)
}
