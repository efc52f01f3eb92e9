package core

import (
	"encoding/json"
	"testing"
)

func TestOutputEvent_DiscriminatedUnion(t *testing.T) {
	events := []OutputEvent{
		Start{},
		Primary{Text: "hello"},
		PrimaryDelta{Text: "he"},
		Detail{Text: "detail"},
		Reasoning{Text: "thinking"},
		ToolStart{Name: "shell"},
		ToolOutput{Name: "shell", Chunk: "out"},
		ToolComplete{Name: "shell", Result: "exit code: 0"},
		TodoUpdate{Todos: []TodoItem{{Content: "x", Status: TodoPending}}},
		Completed{},
		OutputError{Kind: ErrorKindUnknown},
	}
	for _, ev := range events {
		switch et := ev.(type) {
		case Start, Primary, PrimaryDelta, Detail, Reasoning, ToolStart,
			ToolOutput, ToolComplete, TodoUpdate, Completed, OutputError:
		default:
			t.Fatalf("Unexpected event type: %T (%v)", et, et)
		}
	}
}

func TestOutputMessage_TerminalStates(t *testing.T) {
	done := OutputMessage{TurnID: 1, Event: Completed{}}
	if !done.IsTerminal() || done.IsError() {
		t.Fatalf("Completed should be terminal and not an error: %+v", done)
	}

	failed := OutputMessage{TurnID: 1, Event: OutputError{Kind: ErrorKindInterrupted}}
	if !failed.IsTerminal() || !failed.IsError() {
		t.Fatalf("OutputError should be terminal and an error: %+v", failed)
	}

	text := OutputMessage{TurnID: 1, Event: Primary{Text: "hi"}}
	if text.IsTerminal() || text.IsError() {
		t.Fatalf("Primary should not be terminal: %+v", text)
	}
}

func TestEventType_CoversVocabulary(t *testing.T) {
	cases := map[string]OutputEvent{
		"start":         Start{},
		"primary":       Primary{},
		"delta":         PrimaryDelta{},
		"detail":        Detail{},
		"reasoning":     Reasoning{},
		"tool_start":    ToolStart{},
		"tool_output":   ToolOutput{},
		"tool_complete": ToolComplete{},
		"todo_update":   TodoUpdate{},
		"completed":     Completed{},
		"error":         OutputError{},
	}
	for want, ev := range cases {
		if got := EventType(ev); got != want {
			t.Errorf("EventType(%T) = %q, want %q", ev, got, want)
		}
	}
}

func TestToolHelpers(t *testing.T) {
	start := OutputMessage{Event: ToolStart{Name: "update_plan"}}
	if !IsToolMessage(start) {
		t.Error("ToolStart should be a tool message")
	}
	if name, ok := ToolName(start); !ok || name != "update_plan" {
		t.Errorf("ToolName(start) = %q, %v", name, ok)
	}

	out := OutputMessage{Event: ToolOutput{Name: "shell", Chunk: "x"}}
	if name, ok := ToolName(out); !ok || name != "shell" {
		t.Errorf("ToolName(output) = %q, %v", name, ok)
	}

	text := OutputMessage{Event: Primary{Text: "hi"}}
	if IsToolMessage(text) {
		t.Error("Primary should not be a tool message")
	}
	if _, ok := ToolName(text); ok {
		t.Error("ToolName should not resolve for Primary")
	}
}

func TestExtractCommands(t *testing.T) {
	stringArgs := OutputMessage{Event: ToolStart{
		Name:      "shell",
		Arguments: json.RawMessage(`{"command": "ls -la"}`),
	}}
	if got := ExtractCommands(stringArgs); len(got) != 1 || got[0] != "ls -la" {
		t.Fatalf("string command extraction failed: %v", got)
	}

	argvArgs := OutputMessage{Event: ToolStart{
		Name:      "bash",
		Arguments: json.RawMessage(`{"command": ["echo", "hello world"]}`),
	}}
	if got := ExtractCommands(argvArgs); len(got) != 1 || got[0] != "echo hello world" {
		t.Fatalf("argv command extraction failed: %v", got)
	}

	otherTool := OutputMessage{Event: ToolStart{
		Name:      "update_plan",
		Arguments: json.RawMessage(`{"command": "ls"}`),
	}}
	if got := ExtractCommands(otherTool); len(got) != 0 {
		t.Fatalf("non-shell tool should yield no commands: %v", got)
	}

	noArgs := OutputMessage{Event: ToolStart{Name: "shell"}}
	if got := ExtractCommands(noArgs); len(got) != 0 {
		t.Fatalf("missing arguments should yield no commands: %v", got)
	}

	notATool := OutputMessage{Event: Primary{Text: "ls"}}
	if got := ExtractCommands(notATool); got != nil {
		t.Fatalf("non-tool message should yield nil: %v", got)
	}
}

func TestTodoStatus_WireValues(t *testing.T) {
	b, err := json.Marshal(TodoItem{Content: "write tests", Status: TodoInProgress})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"content":"write tests","status":"in_progress"}`
	if string(b) != want {
		t.Fatalf("TodoItem JSON = %s, want %s", b, want)
	}

	var item TodoItem
	if err := json.Unmarshal([]byte(`{"content":"x","status":"blocked"}`), &item); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if item.Status != TodoBlocked {
		t.Fatalf("Status = %q, want %q", item.Status, TodoBlocked)
	}
}
