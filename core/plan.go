package core

// TodoStatus is the lifecycle state of a single todo item.
type TodoStatus string

// Todo item states as they appear on the wire.
const (
	TodoPending    TodoStatus = "pending"
	TodoInProgress TodoStatus = "in_progress"
	TodoCompleted  TodoStatus = "completed"
	TodoBlocked    TodoStatus = "blocked"
)

// TodoItem is one entry of a plan.
type TodoItem struct {
	Content string     `json:"content"` // Task description
	Status  TodoStatus `json:"status"`
}

// PlanMessage is a plan snapshot delivered on the dedicated plan stream,
// maintained alongside but separate from the primary output stream. A plan
// derived from an update_plan tool begin and one derived from its end are
// emitted independently; consumers should treat the latest received plan as
// authoritative.
type PlanMessage struct {
	Todos    []TodoItem
	Metadata *PlanMetadata // Optional provenance of the update
}

// PlanMetadata describes where a plan update came from.
type PlanMetadata struct {
	TurnID      uint64 // Turn during which the plan was updated
	Description string // Free-form provenance note, may be empty
}
