// Package openai provides a streaming backend for the OpenAI Chat
// Completions API. It keeps the conversation history across turns and
// reports completion deltas as backend events while a turn is in flight.
package openai

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hupe1980/agentpilot/backend"
)

// pendingTurns bounds how many accepted turns may wait behind the one in
// flight before Submit blocks.
const pendingTurns = 8

// Options configures the OpenAI backend adapter.
// Fields mirror a subset of Chat Completion parameters intentionally kept
// minimal; extend via functional options without breaking callers.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	System              string
	APIKey              string
}

// Backend drives conversations over the OpenAI Chat Completions API. Turns
// are processed strictly in submission order by a single worker goroutine,
// which also owns the conversation history.
type Backend struct {
	client *openai.Client
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

// New creates a new OpenAI backend using the official client
func New(optFns ...func(o *Options)) *Backend {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := openai.NewClient(clientOpts...)

	return NewFromClient(&client, optFns...)
}

// NewFromClient creates a new OpenAI backend from an existing client
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Backend {
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
		Model:     opts.Model,
	})
	return b
}

func defaultOptions() Options {
	return Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
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
	var history []openai.ChatCompletionMessageParamUnion
	for t := range b.pending {
		history = b.runTurn(t.ctx, history, t.input)
	}
	b.queue.Push(backend.ShutdownComplete{})
}

// runTurn appends the user message to the history, streams one completion
// and returns the extended history. Failures surface as error events and
// leave the turn without a TaskComplete.
func (b *Backend) runTurn(ctx context.Context, history []openai.ChatCompletionMessageParamUnion, in backend.UserInput) []openai.ChatCompletionMessageParamUnion {
	msg, ok := b.userMessage(in.Items)
	if !ok {
		b.queue.Push(backend.ErrorEvent{Message: "input produced no content"})
		return history
	}
	history = append(history, msg)

	params := openai.ChatCompletionNewParams{
		Messages:            b.withSystem(history),
		Model:               b.opts.Model,
		Temperature:         openai.Float(b.opts.Temperature),
		MaxCompletionTokens: openai.Int(b.opts.MaxCompletionTokens),
	}

	stream := b.client.Chat.Completions.NewStreaming(ctx, params)

	var textBuilder strings.Builder
	for stream.Next() {
		ck := stream.Current()
		for _, ch := range ck.Choices {
			if ch.Delta.Content == "" {
				continue
			}
			textBuilder.WriteString(ch.Delta.Content)
			b.queue.Push(backend.AgentMessageDelta{Delta: ch.Delta.Content})
		}
	}
	if err := stream.Err(); err != nil {
		if ctx.Err() == nil {
			b.queue.Push(backend.ErrorEvent{Message: fmt.Sprintf("openai streaming error: %v", err)})
		}
		return history
	}

	text := textBuilder.String()
	if text != "" {
		b.queue.Push(backend.AgentMessage{Text: text})
	}
	history = append(history, openai.AssistantMessage(text))

	b.queue.Push(backend.TaskComplete{LastAgentMessage: text})
	return history
}

// withSystem prepends the configured system prompt, leaving the stored
// history untouched.
func (b *Backend) withSystem(history []openai.ChatCompletionMessageParamUnion) []openai.ChatCompletionMessageParamUnion {
	if b.opts.System == "" {
		return history
	}
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+1)
	messages = append(messages, openai.SystemMessage(b.opts.System))
	return append(messages, history...)
}

// userMessage converts input items into a single user chat message. The
// second return value is false when the items carry no representable
// content.
func (b *Backend) userMessage(items []backend.InputItem) (openai.ChatCompletionMessageParamUnion, bool) {
	var textBuilder strings.Builder
	var parts []openai.ChatCompletionContentPartUnionParam

	for _, item := range items {
		switch it := item.(type) {
		case backend.TextItem:
			textBuilder.WriteString(it.Text)
		case backend.ImageItem:
			if url, ok := b.imageURL(it); ok {
				parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: url}))
			}
		}
	}

	if len(parts) == 0 {
		if textBuilder.Len() == 0 {
			return openai.ChatCompletionMessageParamUnion{}, false
		}
		return openai.UserMessage(textBuilder.String()), true
	}

	if textBuilder.Len() > 0 {
		parts = append([]openai.ChatCompletionContentPartUnionParam{openai.TextContentPart(textBuilder.String())}, parts...)
	}
	return openai.UserMessage(parts), true
}

// imageURL resolves an image item to a URL the API accepts, inlining local
// and base64 data as data URIs. Unreadable images are reported as error
// events and skipped.
func (b *Backend) imageURL(item backend.ImageItem) (string, bool) {
	switch {
	case item.URL != "":
		return item.URL, true
	case item.Data != "":
		return "data:" + imageMediaType(item.Data) + ";base64," + item.Data, true
	case item.Path != "":
		data, err := os.ReadFile(item.Path)
		if err != nil {
			b.queue.Push(backend.ErrorEvent{Message: fmt.Sprintf("read image %s: %v", item.Path, err)})
			return "", false
		}
		encoded := base64.StdEncoding.EncodeToString(data)
		return "data:" + imageMediaType(encoded) + ";base64," + encoded, true
	}
	return "", false
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
