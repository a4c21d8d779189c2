package notify

import (
	"context"
	"time"

	"vocalis/internal/submission"
)

// EventType names a submission lifecycle notification.
type EventType string

const (
	EventProcessing EventType = "submission.processing"
	EventCompleted  EventType = "submission.completed"
	EventFailed     EventType = "submission.failed"
)

// Event is a notification about a submission, addressed to its owner.
type Event struct {
	Sequence     uint64             `json:"seq"`
	Timestamp    time.Time          `json:"ts"`
	Type         EventType          `json:"type"`
	SubmissionID string             `json:"submission_id"`
	Owner        string             `json:"owner"`
	Status       submission.Status  `json:"status"`
	Result       *submission.Result `json:"result,omitempty"`
	ErrorCode    string             `json:"error_code,omitempty"`
	ErrorMessage string             `json:"error_message,omitempty"`
}

// Publisher delivers submission events. Implementations must be best effort
// and must never block the caller on a slow consumer.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// NewNop returns a publisher that drops every event.
func NewNop() Publisher {
	return nopPublisher{}
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) {}
