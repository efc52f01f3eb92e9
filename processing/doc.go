// Package processing implements a composable pipeline for output messages.
//
// A Processor applies three stages in a fixed order, regardless of how it
// was assembled: filters decide whether a message survives at all,
// transformers rewrite surviving messages, and aggregators fold messages
// into buffered state that may emit later. After the final message the
// pipeline is flushed exactly once to release whatever the aggregators
// still hold.
//
// Pipelines are assembled with the Builder:
//
//	proc := processing.NewBuilder().
//	    FilterToolOutput().
//	    StripANSI().
//	    AggregateDeltas().
//	    RemoveDuplicates().
//	    Build()
//
// Process/Flush drive a pipeline message by message; Apply wraps a whole
// output channel instead, flushing automatically when the source closes.
package processing
