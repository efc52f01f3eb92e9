// Package engine implements the core execution loop for AgentPilot.
//
// The Engine drives a conversation between a stream of user inputs and a
// backend agent. Each execution runs two cooperating activities:
//
//	inputs ──▶ input activity ──▶ backend.Submit(UserInput)
//	                                      │
//	outputs ◀── translate ◀── event activity ◀── backend.NextEvent
//
// The input activity consumes user inputs one at a time, honoring pause and
// stop requests and enforcing the configured turn limit before each
// submission. The event activity drains backend events concurrently and
// translates them into the public output vocabulary, so responses stream
// while later inputs are still pending.
//
// # Lifecycle
//
// Every execution moves through a small set of phases: it starts
// Initialized, becomes Running when the loop starts, may oscillate between
// Paused and Running, and finally lands on Stopped or Errored. The terminal
// phases are absorbing. The Controller attached to a Handle exposes the
// phase along with Stop, Pause and Resume controls.
//
// When the input stream is exhausted or a stop is requested, the engine
// submits a Shutdown operation, waits for the backend to acknowledge it and
// closes the output channels. Consumers can therefore range over
// Handle.Outputs until it closes.
//
// # Error Handling
//
// Failures surface in-band as error outputs rather than through separate
// error channels:
//   - A failed input submission produces an error output and the loop
//     continues with the next input.
//   - Exceeding the turn limit produces a terminal error output and winds
//     the execution down.
//   - A broken backend event stream produces a terminal error output and
//     moves the phase to Errored.
package engine
