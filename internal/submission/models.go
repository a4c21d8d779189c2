package submission

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status represents the lifecycle of a submission.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether the status admits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Result holds the analysis outcome stored with a completed submission.
type Result struct {
	Condition       string             `json:"condition"`
	Severity        string             `json:"severity,omitempty"`
	Confidence      float64            `json:"confidence"`
	HealthScore     float64            `json:"health_score"`
	Recommendations []string           `json:"recommendations,omitempty"`
	Features        map[string]float64 `json:"features,omitempty"`
}

// Submission represents a recording submitted for analysis.
type Submission struct {
	ID           string
	Owner        string
	RecordingKey string
	FileName     string
	Status       Status
	ResultJSON   string
	ErrorCode    string
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ProcessedAt  *time.Time
}

// Result decodes the stored analysis outcome. Returns nil when the submission
// has no result.
func (s *Submission) Result() (*Result, error) {
	if s == nil || s.ResultJSON == "" {
		return nil, nil
	}
	var result Result
	if err := json.Unmarshal([]byte(s.ResultJSON), &result); err != nil {
		return nil, fmt.Errorf("decode submission result: %w", err)
	}
	return &result, nil
}
