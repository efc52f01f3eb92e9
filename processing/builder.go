package processing

// Builder assembles a Processor from built-in and custom stages. Methods
// chain and can be called in any order; the built processor always runs
// filters before transformers before aggregators.
type Builder struct {
	p *Processor
}

// NewBuilder creates an empty pipeline builder.
func NewBuilder() *Builder {
	return &Builder{p: NewProcessor()}
}

// Filter adds a custom filter stage.
func (b *Builder) Filter(f Filter) *Builder {
	b.p.AddFilter(f)
	return b
}

// Transform adds a custom transformer stage.
func (b *Builder) Transform(t Transformer) *Builder {
	b.p.AddTransformer(t)
	return b
}

// Aggregate adds a custom aggregator stage.
func (b *Builder) Aggregate(a Aggregator) *Builder {
	b.p.AddAggregator(a)
	return b
}

// FilterToolOutput drops tool start and tool output messages.
func (b *Builder) FilterToolOutput() *Builder {
	return b.Filter(NewToolOutputFilter())
}

// FilterByType keeps only messages with one of the given type names.
func (b *Builder) FilterByType(types ...string) *Builder {
	return b.Filter(NewTypeFilter(types...))
}

// StripANSI removes ANSI escape sequences from text payloads.
func (b *Builder) StripANSI() *Builder {
	return b.Transform(NewANSIStripper())
}

// TruncateLines shortens lines longer than maxLength runes.
func (b *Builder) TruncateLines(maxLength int) *Builder {
	return b.Transform(NewLineTruncator(maxLength))
}

// TruncateToolOutput elides the middle of tool payloads longer than
// maxLines lines.
func (b *Builder) TruncateToolOutput(maxLines int) *Builder {
	return b.Transform(NewToolOutputTruncator(maxLines))
}

// AggregateDeltas combines consecutive primary deltas into single primary
// messages.
func (b *Builder) AggregateDeltas() *Builder {
	return b.Aggregate(NewDeltaAggregator())
}

// RemoveDuplicates drops consecutive text messages with identical content.
func (b *Builder) RemoveDuplicates() *Builder {
	return b.Aggregate(NewDuplicateRemover())
}

// Build returns the assembled processor. The builder must not be reused
// afterwards; stateful aggregators belong to exactly one pipeline.
func (b *Builder) Build() *Processor {
	return b.p
}
