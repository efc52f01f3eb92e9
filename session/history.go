package session

import "time"

// DefaultHistorySize bounds the message history kept by a session.
const DefaultHistorySize = 1000

// Roles recorded in the message history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Record is one entry of the message history: who said what, and when.
type Record struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// History is a bounded ring of message records. Once full, adding a record
// evicts the oldest one. History is not safe for concurrent use; the
// Session guards its history behind its own lock.
type History struct {
	records []Record
	max     int
}

// NewHistory creates a history bounded to max records. A max of zero or
// less falls back to DefaultHistorySize.
func NewHistory(max int) *History {
	if max <= 0 {
		max = DefaultHistorySize
	}
	return &History{records: make([]Record, 0, max), max: max}
}

// Add appends a record, evicting the oldest record when the ring is full.
func (h *History) Add(role, content string) {
	h.AddRecord(Record{Role: role, Content: content, Timestamp: time.Now()})
}

// AddRecord appends an existing record, evicting the oldest record when
// the ring is full. Used when rebuilding a history from a snapshot.
func (h *History) AddRecord(rec Record) {
	if len(h.records) >= h.max {
		copy(h.records, h.records[1:])
		h.records = h.records[:len(h.records)-1]
	}
	h.records = append(h.records, rec)
}

// All returns a copy of the records in insertion order.
func (h *History) All() []Record {
	out := make([]Record, len(h.records))
	copy(out, h.records)
	return out
}

// Len returns the number of records currently held.
func (h *History) Len() int { return len(h.records) }

// Clear removes all records.
func (h *History) Clear() { h.records = h.records[:0] }
