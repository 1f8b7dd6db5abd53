package types

import "time"

// Event is one audit record: a task lifecycle transition or a completed
// per-address analysis. Events are appended to the audit stores and
// published to live subscribers.
type Event struct {
	ID        string    `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	TaskID    string    `json:"task_id"`

	// Convenience field for indexing/search.
	IP string `json:"ip,omitempty"`

	Fields map[string]any `json:"fields,omitempty"`
}

type EventQuery struct {
	TaskID string
	Types  []string
	Since  *time.Time
	Until  *time.Time

	IPLike   string
	TextLike string

	Limit  int
	Offset int
	Asc    bool
}
