// Package session layers stateful conversation tracking on top of the
// engine: a bounded message history, usage metrics and a serializable
// snapshot that can be written to disk or handed to a Store.
//
// A Session owns its engine execution. Start launches it, Send submits user
// turns, and the session records what flows through the output stream on
// its own goroutines. Stop winds the execution down and leaves the recorded
// state readable.
//
// Store implementations persist snapshots by session id; InMemoryStore is
// the bundled volatile implementation. Additional backends (Redis, Postgres,
// object storage) can be added without changing any calling code.
package session
