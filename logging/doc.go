// Package logging provides a minimal logging interface and adapters for
// AgentPilot.
//
// The Logger interface defines the standard logging methods (Debug, Info,
// Warn, Error) that the engine, session layer and backends use for
// observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - NoOpLogger for silent operation (testing, minimal setups)
//   - AgentPilotLogger with contextual and domain helpers
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "text", false)
//	eng := engine.New(backend, func(o *engine.Options) { o.Logger = logger })
//
// The design intentionally keeps the interface minimal to avoid vendor
// lock-in while supporting structured logging where available.
package logging
