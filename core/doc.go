// Package core defines the message vocabulary shared across AgentPilot: the
// input messages callers feed into a running execution, the structured output
// events the engine emits, the plan/todo tracking types delivered on the plan
// stream, and the output error taxonomy. The types here are pure data plus
// small inspection helpers; execution behavior lives in the engine package and
// post-processing in the processing package.
package core
