package processing

import (
	"context"

	"github.com/hupe1980/agentpilot/core"
)

// Filter decides whether a message continues through the pipeline.
type Filter interface {
	// Keep returns true if the message should be kept.
	Keep(msg core.OutputMessage) bool
}

// FilterFunc adapts a plain function to the Filter interface.
type FilterFunc func(msg core.OutputMessage) bool

// Keep implements Filter.
func (f FilterFunc) Keep(msg core.OutputMessage) bool { return f(msg) }

// Transformer rewrites a message on its way through the pipeline.
type Transformer interface {
	Transform(msg core.OutputMessage) core.OutputMessage
}

// TransformerFunc adapts a plain function to the Transformer interface.
type TransformerFunc func(msg core.OutputMessage) core.OutputMessage

// Transform implements Transformer.
func (f TransformerFunc) Transform(msg core.OutputMessage) core.OutputMessage { return f(msg) }

// Aggregator folds messages into internal state. Process may suppress the
// incoming message, pass it through, or substitute an aggregated one.
// Aggregators are stateful and not safe for concurrent use; give each
// pipeline its own instances.
type Aggregator interface {
	// Process consumes one message. The returned message continues down
	// the pipeline only when ok is true.
	Process(msg core.OutputMessage) (out core.OutputMessage, ok bool)

	// Flush releases any buffered state at end of stream. It is called
	// exactly once, after the final message.
	Flush() []core.OutputMessage
}

// Processor applies filters, transformers and aggregators to output
// messages. The stages always run in that order, independent of the order
// in which they were added.
type Processor struct {
	filters      []Filter
	transformers []Transformer
	aggregators  []Aggregator
}

// NewProcessor creates an empty Processor that passes messages through
// unchanged. Stages are usually assembled with the Builder instead.
func NewProcessor() *Processor {
	return &Processor{}
}

// AddFilter appends a filter stage.
func (p *Processor) AddFilter(f Filter) *Processor {
	p.filters = append(p.filters, f)
	return p
}

// AddTransformer appends a transformer stage.
func (p *Processor) AddTransformer(t Transformer) *Processor {
	p.transformers = append(p.transformers, t)
	return p
}

// AddAggregator appends an aggregator stage.
func (p *Processor) AddAggregator(a Aggregator) *Processor {
	p.aggregators = append(p.aggregators, a)
	return p
}

// Process runs one message through the pipeline. It reports false when the
// message was filtered out or absorbed by an aggregator.
func (p *Processor) Process(msg core.OutputMessage) (core.OutputMessage, bool) {
	for _, f := range p.filters {
		if !f.Keep(msg) {
			return core.OutputMessage{}, false
		}
	}

	for _, t := range p.transformers {
		msg = t.Transform(msg)
	}

	for _, a := range p.aggregators {
		out, ok := a.Process(msg)
		if !ok {
			return core.OutputMessage{}, false
		}
		msg = out
	}

	return msg, true
}

// Flush releases buffered aggregator state in aggregator order. Call it
// exactly once, after the final message; flushed messages do not pass
// through the other stages again.
func (p *Processor) Flush() []core.OutputMessage {
	var out []core.OutputMessage
	for _, a := range p.aggregators {
		out = append(out, a.Flush()...)
	}
	return out
}

// Apply runs the pipeline over a message channel. It spawns a goroutine
// that processes messages as they arrive, flushes when the input channel
// closes and then closes the returned channel. Callers must either drain
// the returned channel or cancel ctx to avoid goroutine leaks.
func (p *Processor) Apply(ctx context.Context, in <-chan core.OutputMessage) <-chan core.OutputMessage {
	out := make(chan core.OutputMessage)

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					for _, flushed := range p.Flush() {
						if !trySend(ctx, out, flushed) {
							return
						}
					}
					return
				}
				if processed, keep := p.Process(msg); keep {
					if !trySend(ctx, out, processed) {
						return
					}
				}
			}
		}
	}()

	return out
}

// trySend sends msg on out, returning true on success. Returns false if
// ctx is cancelled before the send completes.
func trySend(ctx context.Context, out chan<- core.OutputMessage, msg core.OutputMessage) bool {
	select {
	case out <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}
