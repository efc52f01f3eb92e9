package core

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies an output error.
type ErrorKind string

// Output error kinds.
const (
	ErrorKindTurnLimitExceeded ErrorKind = "turn_limit_exceeded"
	ErrorKindInterrupted       ErrorKind = "interrupted"
	ErrorKindNetwork           ErrorKind = "network"
	ErrorKindTool              ErrorKind = "tool"
	ErrorKindModel             ErrorKind = "model"
	ErrorKindAuthentication    ErrorKind = "authentication"
	ErrorKindConfiguration     ErrorKind = "configuration"
	ErrorKindUnknown           ErrorKind = "unknown"
)

// OutputError is a fault reported as data on the output stream. It is an
// OutputEvent variant and also satisfies the error interface, so backends can
// return pre-classified errors directly.
type OutputError struct {
	Kind    ErrorKind
	Message string
}

// isOutputEvent implements the OutputEvent interface for OutputError.
func (OutputError) isOutputEvent() {}

// Error implements the error interface.
func (e OutputError) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// FromError classifies err into an OutputError. An existing OutputError
// passes through unchanged, context cancellation maps to interrupted and net
// errors to network; anything else is unknown.
func FromError(err error) OutputError {
	var oe OutputError
	if errors.As(err, &oe) {
		return oe
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return OutputError{Kind: ErrorKindInterrupted}
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return OutputError{Kind: ErrorKindNetwork, Message: err.Error()}
	}
	return OutputError{Kind: ErrorKindUnknown, Message: err.Error()}
}
