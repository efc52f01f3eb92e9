// Package textutil provides text helpers for rendering agent output in
// terminals: ANSI stripping, head/tail truncation and word wrapping.
package textutil

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/hupe1980/agentpilot/core"
)

// ansiPattern matches CSI sequences (cursor movement, colors) and OSC
// sequences (window titles, hyperlinks) including their terminators.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]|\x1b\][^\x07\x1b]*(?:\x07|\x1b\\)?`)

// CleanANSI removes ANSI escape sequences from text and replaces invalid
// UTF-8 byte runs with the Unicode replacement character.
func CleanANSI(text string) string {
	return strings.ToValidUTF8(ansiPattern.ReplaceAllString(text, ""), "�")
}

// FormatToolOutput truncates long tool output for display, keeping the head
// and tail of the text with an omission marker in between. Output with at
// most maxLines lines is returned unchanged.
func FormatToolOutput(output string, maxLines int) string {
	lines := splitLines(output)
	if len(lines) <= maxLines {
		return output
	}

	headCount := maxLines / 2
	tailCount := maxLines - headCount

	var sb strings.Builder

	for _, line := range lines[:headCount] {
		sb.WriteString(line)
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "\n... (%d lines omitted) ...\n\n", len(lines)-maxLines)

	for _, line := range lines[len(lines)-tailCount:] {
		sb.WriteString(line)
		sb.WriteString("\n")
	}

	return sb.String()
}

// splitLines splits text into lines without producing a trailing empty
// element for text that ends in a newline.
func splitLines(text string) []string {
	text = strings.TrimSuffix(text, "\n")

	return strings.Split(text, "\n")
}

// WrapText wraps text at word boundaries so no line exceeds width. Words
// longer than width are broken into width-sized chunks. Empty text or a
// zero width yields a single empty line.
func WrapText(text string, width int) []string {
	if text == "" || width == 0 {
		return []string{""}
	}

	var wrapped []string

	for _, line := range strings.Split(text, "\n") {
		if utf8.RuneCountInString(line) <= width {
			wrapped = append(wrapped, line)
			continue
		}

		wrapped = append(wrapped, wrapLine(line, width)...)
	}

	if len(wrapped) == 0 {
		return []string{""}
	}

	return wrapped
}

// wrapLine wraps a single overlong line at word boundaries.
func wrapLine(line string, width int) []string {
	var (
		wrapped      []string
		current      strings.Builder
		currentWidth int
	)

	flush := func() {
		if currentWidth > 0 {
			wrapped = append(wrapped, current.String())
			current.Reset()
			currentWidth = 0
		}
	}

	for _, word := range strings.Fields(line) {
		wordWidth := utf8.RuneCountInString(word)

		if wordWidth > width {
			flush()
			wrapped = append(wrapped, chunkRunes(word, width)...)

			continue
		}

		switch {
		case currentWidth == 0:
			current.WriteString(word)
			currentWidth = wordWidth
		case currentWidth+1+wordWidth <= width:
			current.WriteString(" ")
			current.WriteString(word)
			currentWidth += 1 + wordWidth
		default:
			flush()
			current.WriteString(word)
			currentWidth = wordWidth
		}
	}

	flush()

	return wrapped
}

// chunkRunes splits a string into chunks of at most size runes.
func chunkRunes(s string, size int) []string {
	var chunks []string

	runes := []rune(s)
	for len(runes) > size {
		chunks = append(chunks, string(runes[:size]))
		runes = runes[size:]
	}

	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}

	return chunks
}

// RenderMessage formats an output message as a display string for terminal
// frontends. Delta and primary messages render as their raw text so callers
// can stream them without separators; messages with no display form render
// as an empty string.
func RenderMessage(msg core.OutputMessage) string {
	switch ev := msg.Event.(type) {
	case core.Start:
		return "Session started"
	case core.Primary:
		return ev.Text
	case core.PrimaryDelta:
		return ev.Text
	case core.Detail:
		return ev.Text
	case core.Reasoning:
		return fmt.Sprintf("[thinking] %s", ev.Text)
	case core.ToolStart:
		return fmt.Sprintf("Running tool: %s", ev.Name)
	case core.ToolOutput:
		return fmt.Sprintf("[%s] %s", ev.Name, ev.Chunk)
	case core.ToolComplete:
		if ev.Result == "" {
			return fmt.Sprintf("Tool %s finished", ev.Name)
		}
		return fmt.Sprintf("Tool %s finished: %s", ev.Name, ev.Result)
	case core.TodoUpdate:
		return fmt.Sprintf("Todo list updated (%d items)", len(ev.Todos))
	case core.Completed:
		return "Task complete"
	case core.OutputError:
		return fmt.Sprintf("Error: %s", ev.Error())
	default:
		return ""
	}
}
