// Package backend defines the provider-agnostic contract between the
// execution engine and a conversational agent backend.
//
// Core goals:
//   - Unify heterogeneous provider event streams behind a single Event union
//   - Keep submission shapes minimal and transport independent (Operation)
//   - Facilitate lightweight scripting for tests (ScriptedBackend)
//
// Providers (e.g. OpenAI, Anthropic) implement the Backend interface from
// this package so the engine and message pipeline remain decoupled from
// vendor SDKs.
package backend
