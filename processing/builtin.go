package processing

import (
	"strings"

	"github.com/hupe1980/agentpilot/core"
	"github.com/hupe1980/agentpilot/internal/textutil"
)

// NewToolOutputFilter drops tool start and tool output messages. Tool
// completions still pass, so consumers see what a tool produced without
// the streaming noise in between.
func NewToolOutputFilter() Filter {
	return FilterFunc(func(msg core.OutputMessage) bool {
		switch msg.Event.(type) {
		case core.ToolStart, core.ToolOutput:
			return false
		default:
			return true
		}
	})
}

// NewTypeFilter keeps only messages whose event type name is in the given
// set. Type names follow core.EventType, e.g. "primary", "delta",
// "tool_complete", "completed", "error".
func NewTypeFilter(types ...string) Filter {
	allowed := make(map[string]struct{}, len(types))
	for _, t := range types {
		allowed[t] = struct{}{}
	}

	return FilterFunc(func(msg core.OutputMessage) bool {
		_, ok := allowed[core.EventType(msg.Event)]
		return ok
	})
}

// NewANSIStripper removes ANSI escape sequences from primary text, primary
// deltas and tool output chunks.
func NewANSIStripper() Transformer {
	return TransformerFunc(func(msg core.OutputMessage) core.OutputMessage {
		switch ev := msg.Event.(type) {
		case core.Primary:
			ev.Text = textutil.CleanANSI(ev.Text)
			msg.Event = ev
		case core.PrimaryDelta:
			ev.Text = textutil.CleanANSI(ev.Text)
			msg.Event = ev
		case core.ToolOutput:
			ev.Chunk = textutil.CleanANSI(ev.Chunk)
			msg.Event = ev
		}
		return msg
	})
}

// NewLineTruncator shortens every line longer than maxLength runes,
// appending "..." to cut lines. It applies to primary text, primary deltas
// and tool output chunks.
func NewLineTruncator(maxLength int) Transformer {
	return TransformerFunc(func(msg core.OutputMessage) core.OutputMessage {
		switch ev := msg.Event.(type) {
		case core.Primary:
			ev.Text = truncateLines(ev.Text, maxLength)
			msg.Event = ev
		case core.PrimaryDelta:
			ev.Text = truncateLines(ev.Text, maxLength)
			msg.Event = ev
		case core.ToolOutput:
			ev.Chunk = truncateLines(ev.Chunk, maxLength)
			msg.Event = ev
		}
		return msg
	})
}

func truncateLines(text string, maxLength int) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		runes := []rune(line)
		if len(runes) > maxLength {
			lines[i] = string(runes[:maxLength]) + "..."
		}
	}
	return strings.Join(lines, "\n")
}

// NewToolOutputTruncator elides the middle of long tool payloads, keeping
// the head and tail with an omission marker in between. It applies to tool
// output chunks and tool completion results.
func NewToolOutputTruncator(maxLines int) Transformer {
	return TransformerFunc(func(msg core.OutputMessage) core.OutputMessage {
		switch ev := msg.Event.(type) {
		case core.ToolOutput:
			ev.Chunk = textutil.FormatToolOutput(ev.Chunk, maxLines)
			msg.Event = ev
		case core.ToolComplete:
			ev.Result = textutil.FormatToolOutput(ev.Result, maxLines)
			msg.Event = ev
		}
		return msg
	})
}

// DeltaAggregator combines consecutive primary deltas into a single
// primary message. Deltas are absorbed into a buffer; the next non-delta
// message releases the buffer as one primary message in its place. The
// aggregated message carries turn id 0 since it may span turns.
type DeltaAggregator struct {
	buffer strings.Builder
}

// NewDeltaAggregator creates an empty delta aggregator.
func NewDeltaAggregator() *DeltaAggregator {
	return &DeltaAggregator{}
}

// Process implements Aggregator.
func (a *DeltaAggregator) Process(msg core.OutputMessage) (core.OutputMessage, bool) {
	if delta, ok := msg.Event.(core.PrimaryDelta); ok {
		a.buffer.WriteString(delta.Text)
		return core.OutputMessage{}, false
	}

	if a.buffer.Len() > 0 {
		return a.take(), true
	}

	return msg, true
}

// Flush implements Aggregator, releasing a pending buffer at end of
// stream.
func (a *DeltaAggregator) Flush() []core.OutputMessage {
	if a.buffer.Len() == 0 {
		return nil
	}
	return []core.OutputMessage{a.take()}
}

func (a *DeltaAggregator) take() core.OutputMessage {
	text := a.buffer.String()
	a.buffer.Reset()
	return core.OutputMessage{TurnID: 0, Event: core.Primary{Text: text}}
}

// DuplicateRemover drops consecutive text messages with identical content.
// Only primary messages and primary deltas are compared; other messages
// pass through without affecting the comparison state.
type DuplicateRemover struct {
	last *string
}

// NewDuplicateRemover creates a duplicate remover with no history.
func NewDuplicateRemover() *DuplicateRemover {
	return &DuplicateRemover{}
}

// Process implements Aggregator.
func (a *DuplicateRemover) Process(msg core.OutputMessage) (core.OutputMessage, bool) {
	var content string
	switch ev := msg.Event.(type) {
	case core.Primary:
		content = ev.Text
	case core.PrimaryDelta:
		content = ev.Text
	default:
		return msg, true
	}

	if a.last != nil && *a.last == content {
		return core.OutputMessage{}, false
	}
	a.last = &content

	return msg, true
}

// Flush implements Aggregator.
func (a *DuplicateRemover) Flush() []core.OutputMessage { return nil }
