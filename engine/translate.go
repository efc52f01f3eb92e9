package engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/hupe1980/agentpilot/backend"
	"github.com/hupe1980/agentpilot/core"
	"github.com/hupe1980/agentpilot/logging"
)

// planToolName is the tool whose arguments carry the agent's task plan.
const planToolName = "update_plan"

// commandToolName labels command execution events in the output stream.
const commandToolName = "shell"

// translator converts backend events into the public output vocabulary.
// Turn boundaries are tracked on the controller: every output is tagged
// with the current turn id, and a completed task advances it.
type translator struct {
	ctrl   *Controller
	logger logging.Logger
}

func newTranslator(ctrl *Controller, logger logging.Logger) *translator {
	return &translator{ctrl: ctrl, logger: logger}
}

// translate maps one backend event onto zero or more outputs and plan
// updates. Events outside the known vocabulary are dropped, which lets
// backends extend their streams without breaking the engine.
func (t *translator) translate(ev backend.Event) ([]core.OutputMessage, []core.PlanMessage) {
	switch e := ev.(type) {
	case backend.SessionStarted:
		t.logger.Debug("backend session established", "backend_session_id", e.SessionID, "model", e.Model)
		return t.outputs(core.Start{}), nil

	case backend.AgentMessage:
		return t.outputs(core.Primary{Text: e.Text}), nil

	case backend.AgentMessageDelta:
		return t.outputs(core.PrimaryDelta{Text: e.Delta}), nil

	case backend.AgentReasoning:
		return t.outputs(core.Reasoning{Text: e.Text}), nil

	case backend.ToolCallBegin:
		out := t.outputs(core.ToolStart{Name: e.Name, Arguments: e.Arguments})
		if e.Name == planToolName {
			if plan, ok := t.parsePlan(e.Arguments, "Plan updated via update_plan tool"); ok {
				return out, []core.PlanMessage{plan}
			}
		}
		return out, nil

	case backend.ToolCallEnd:
		out := t.outputs(core.ToolComplete{Name: e.Name, Result: toolResultText(e.Result)})
		// The plan is re-derived from the arguments even when the call
		// itself failed.
		if e.Name == planToolName {
			if plan, ok := t.parsePlan(e.Arguments, "Plan completed via update_plan tool"); ok {
				return out, []core.PlanMessage{plan}
			}
		}
		return out, nil

	case backend.CommandBegin:
		return t.outputs(core.ToolStart{
			Name:      commandToolName,
			Arguments: commandArgs(e.Command),
		}), nil

	case backend.CommandOutput:
		// Chunks may split multi-byte sequences; invalid bytes are
		// replaced rather than dropped.
		return t.outputs(core.ToolOutput{
			Name:  commandToolName,
			Chunk: strings.ToValidUTF8(string(e.Chunk), "�"),
		}), nil

	case backend.CommandEnd:
		return t.outputs(core.ToolComplete{
			Name:   commandToolName,
			Result: fmt.Sprintf("exit code: %d", e.ExitCode),
		}), nil

	case backend.TaskComplete:
		out := t.outputs(core.Completed{})
		t.ctrl.advanceTurn()
		return out, nil

	case backend.PlanUpdate:
		return nil, []core.PlanMessage{t.planMessage(e.Plan, e.Explanation)}

	case backend.ErrorEvent:
		return t.outputs(core.OutputError{Kind: core.ErrorKindUnknown, Message: e.Message}), nil

	case backend.TurnAborted:
		return t.outputs(core.OutputError{Kind: core.ErrorKindInterrupted, Message: e.Reason}), nil

	case backend.TokenCount:
		t.logger.Debug("token usage reported", "input_tokens", e.InputTokens, "output_tokens", e.OutputTokens)
		return nil, nil

	default:
		t.logger.Debug("ignoring unrecognized backend event", "event_type", fmt.Sprintf("%T", ev))
		return nil, nil
	}
}

// outputs wraps events into messages tagged with the current turn id.
func (t *translator) outputs(evs ...core.OutputEvent) []core.OutputMessage {
	turn := t.ctrl.currentTurn()
	msgs := make([]core.OutputMessage, 0, len(evs))
	for _, ev := range evs {
		msgs = append(msgs, core.OutputMessage{TurnID: turn, Event: ev})
	}
	return msgs
}

// parsePlan derives a plan message from update_plan tool arguments. It
// reports false when the arguments carry no plan array, in which case no
// plan message is emitted. Malformed entries are skipped and unknown
// statuses degrade to pending.
func (t *translator) parsePlan(args json.RawMessage, description string) (core.PlanMessage, bool) {
	plan := gjson.GetBytes(args, "plan")
	if !plan.IsArray() {
		return core.PlanMessage{}, false
	}

	var todos []core.TodoItem
	plan.ForEach(func(_, item gjson.Result) bool {
		step := item.Get("step")
		status := item.Get("status")
		if step.Type != gjson.String || status.Type != gjson.String {
			return true
		}
		todos = append(todos, core.TodoItem{
			Content: step.String(),
			Status:  todoStatus(status.String()),
		})
		return true
	})

	return core.PlanMessage{
		Todos: todos,
		Metadata: &core.PlanMetadata{
			TurnID:      t.ctrl.currentTurn(),
			Description: description,
		},
	}, true
}

// planMessage converts a typed plan update from the backend.
func (t *translator) planMessage(steps []backend.PlanStep, description string) core.PlanMessage {
	todos := make([]core.TodoItem, 0, len(steps))
	for _, s := range steps {
		todos = append(todos, core.TodoItem{Content: s.Step, Status: todoStatus(s.Status)})
	}
	return core.PlanMessage{
		Todos: todos,
		Metadata: &core.PlanMetadata{
			TurnID:      t.ctrl.currentTurn(),
			Description: description,
		},
	}
}

func todoStatus(s string) core.TodoStatus {
	switch s {
	case "in_progress":
		return core.TodoInProgress
	case "completed":
		return core.TodoCompleted
	case "blocked":
		return core.TodoBlocked
	default:
		return core.TodoPending
	}
}

// toolResultText renders a tool result for the output stream: the text of
// the first content block on success, or the error prefixed with "Error:"
// on failure.
func toolResultText(r backend.ToolResult) string {
	if r.Failed() {
		return "Error: " + r.Err
	}
	if len(r.Content) > 0 && r.Content[0].Type == "text" {
		return r.Content[0].Text
	}
	return ""
}

// commandArgs encodes a command argv as tool-call arguments.
func commandArgs(command []string) json.RawMessage {
	args, err := sjson.Set("{}", "command", command)
	if err != nil {
		return json.RawMessage("{}")
	}
	return json.RawMessage(args)
}
