package queue

import (
	"time"
)

// State represents the lifecycle of a queue job.
type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"

	// StateUnknown reports a job the store has no record of.
	StateUnknown State = "unknown"
)

var allStates = []State{
	StatePending,
	StateProcessing,
	StateCompleted,
	StateFailed,
}

// IsTerminal reports whether the state admits no further transitions.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// JobKey derives the deduplication key for a submission's analysis job.
func JobKey(submissionID string) string {
	return "analysis-" + submissionID
}

// Job represents an analysis job persisted in SQLite.
type Job struct {
	ID           string
	SubmissionID string
	Owner        string
	RecordingKey string
	State        State
	Priority     int
	Attempts     int
	MaxAttempts  int
	ErrorMessage string
	NextRunAt    time.Time
	LeaseExpires *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}

// HealthSummary describes aggregated job counts per lifecycle state.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Completed  int
	Failed     int
}
