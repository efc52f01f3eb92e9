// Package anthropic provides a streaming backend for the Anthropic Claude
// API. It keeps the conversation history across turns and reports Claude's
// text and thinking deltas as backend events while a turn is in flight.
package anthropic

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"
	"github.com/hupe1980/agentpilot/backend"
)

// pendingTurns bounds how many accepted turns may wait behind the one in
// flight before Submit blocks.
const pendingTurns = 8

// Options configures the Anthropic backend adapter (model id, sampling,
// system prompt, API key). Extend via functional options to preserve
// stability.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	System      string
	APIKey      string
}

// Backend drives conversations over the Anthropic Messages API. Turns are
// processed strictly in submission order by a single worker goroutine, which
// also owns the conversation history.
type Backend struct {
	client *anthropic.Client
	opts   Options
	queue  *backend.EventQueue

	mu        sync.Mutex
	closed    bool
	startOnce sync.Once
	pending   chan turn
}

// turn is one accepted user input together with the submission context that
// scopes its API calls.
type turn struct {
	ctx   context.Context
	input backend.UserInput
}

// New creates a new Anthropic backend using the official client
func New(optFns ...func(o *Options)) *Backend {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := anthropic.NewClient(clientOpts...)

	return NewFromClient(&client, optFns...)
}

// NewFromClient creates a new Anthropic backend from an existing client
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Backend {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	b := &Backend{
		client:  client,
		opts:    opts,
		queue:   backend.NewEventQueue(),
		pending: make(chan turn, pendingTurns),
	}
	b.queue.Push(backend.SessionStarted{
		SessionID: uuid.NewString(),
		Model:     string(opts.Model),
	})
	return b
}

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
}

// Submit accepts a user turn or a shutdown request. User turns queue behind
// the turn in flight; Shutdown lets in-flight and queued turns finish, then
// emits ShutdownComplete. Operations are expected from a single submitter,
// which is how the engine drives a backend.
func (b *Backend) Submit(ctx context.Context, op backend.Operation) error {
	switch o := op.(type) {
	case backend.UserInput:
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return backend.ErrClosed
		}
		b.start()
		b.mu.Unlock()

		select {
		case b.pending <- turn{ctx: ctx, input: o}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	case backend.Shutdown:
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return nil
		}
		b.closed = true
		b.start()
		b.mu.Unlock()

		close(b.pending)
		return nil
	default:
		return fmt.Errorf("unsupported operation type %T", op)
	}
}

// NextEvent returns the next queued event, blocking until one is available
// or the context is cancelled.
func (b *Backend) NextEvent(ctx context.Context) (backend.Event, error) {
	return b.queue.Next(ctx)
}

func (b *Backend) start() {
	b.startOnce.Do(func() { go b.serve() })
}

// serve processes turns one at a time until the pending channel closes, then
// acknowledges the shutdown.
func (b *Backend) serve() {
	var history []anthropic.MessageParam
	for t := range b.pending {
		history = b.runTurn(t.ctx, history, t.input)
	}
	b.queue.Push(backend.ShutdownComplete{})
}

// runTurn appends the user message to the history, streams one completion
// and returns the extended history. Failures surface as error events and
// leave the turn without a TaskComplete.
func (b *Backend) runTurn(ctx context.Context, history []anthropic.MessageParam, in backend.UserInput) []anthropic.MessageParam {
	blocks := b.contentBlocks(in.Items)
	if len(blocks) == 0 {
		b.queue.Push(backend.ErrorEvent{Message: "input produced no content"})
		return history
	}
	history = append(history, anthropic.NewUserMessage(blocks...))

	params := anthropic.MessageNewParams{
		Model:       b.opts.Model,
		Messages:    history,
		MaxTokens:   b.opts.MaxTokens,
		Temperature: anthropic.Float(b.opts.Temperature),
	}
	if b.opts.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: b.opts.System}}
	}

	stream := b.client.Messages.NewStreaming(ctx, params)

	var accErr error
	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if accErr == nil {
			accErr = message.Accumulate(event)
		}

		switch eventVariant := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			switch deltaVariant := eventVariant.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				b.queue.Push(backend.AgentMessageDelta{Delta: deltaVariant.Text})
			case anthropic.ThinkingDelta:
				b.queue.Push(backend.AgentReasoning{Text: deltaVariant.Thinking})
			}
		}
	}
	if err := stream.Err(); err != nil {
		if ctx.Err() == nil {
			b.queue.Push(backend.ErrorEvent{Message: fmt.Sprintf("anthropic streaming error: %v", err)})
		}
		return history
	}
	if accErr != nil {
		b.queue.Push(backend.ErrorEvent{Message: fmt.Sprintf("accumulate anthropic response: %v", accErr)})
		return history
	}

	text := finalText(message)
	if text != "" {
		b.queue.Push(backend.AgentMessage{Text: text})
	}
	history = append(history, message.ToParam())

	if u := message.Usage; u.InputTokens > 0 || u.OutputTokens > 0 {
		b.queue.Push(backend.TokenCount{
			InputTokens:  int(u.InputTokens),
			OutputTokens: int(u.OutputTokens),
		})
	}
	b.queue.Push(backend.TaskComplete{LastAgentMessage: text})
	return history
}

// contentBlocks converts input items into Anthropic content blocks. Items
// that cannot be represented are reported as error events and skipped.
func (b *Backend) contentBlocks(items []backend.InputItem) []anthropic.ContentBlockParamUnion {
	var blocks []anthropic.ContentBlockParamUnion

	for _, item := range items {
		switch it := item.(type) {
		case backend.TextItem:
			if it.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(it.Text))
			}
		case backend.ImageItem:
			switch {
			case it.Data != "":
				blocks = append(blocks, anthropic.NewImageBlockBase64(imageMediaType(it.Data), it.Data))
			case it.Path != "":
				data, err := os.ReadFile(it.Path)
				if err != nil {
					b.queue.Push(backend.ErrorEvent{Message: fmt.Sprintf("read image %s: %v", it.Path, err)})
					continue
				}
				encoded := base64.StdEncoding.EncodeToString(data)
				blocks = append(blocks, anthropic.NewImageBlockBase64(imageMediaType(encoded), encoded))
			case it.URL != "":
				b.queue.Push(backend.ErrorEvent{Message: "url image references are not supported by the anthropic backend"})
			}
		}
	}

	return blocks
}

// imageMediaType sniffs the media type of base64 encoded image data, falling
// back to PNG when the data cannot be decoded or is not an image.
func imageMediaType(encoded string) string {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(raw) == 0 {
		return "image/png"
	}
	if mt := http.DetectContentType(raw); strings.HasPrefix(mt, "image/") {
		return mt
	}
	return "image/png"
}

// finalText joins the text blocks of an accumulated message.
func finalText(message anthropic.Message) string {
	var sb strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}
	return sb.String()
}
