package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Result describes a completed analysis outcome in a transport-friendly format.
type Result struct {
	Condition       string             `json:"condition"`
	Severity        string             `json:"severity,omitempty"`
	Confidence      float64            `json:"confidence"`
	HealthScore     float64            `json:"healthScore"`
	Recommendations []string           `json:"recommendations,omitempty"`
	Features        map[string]float64 `json:"features,omitempty"`
}

// Submission describes a submission record for API consumers.
type Submission struct {
	ID           string  `json:"id"`
	OwnerID      string  `json:"ownerId"`
	RecordingKey string  `json:"recordingKey"`
	FileName     string  `json:"fileName,omitempty"`
	Status       string  `json:"status"`
	Result       *Result `json:"result,omitempty"`
	ErrorCode    string  `json:"errorCode,omitempty"`
	ErrorMessage string  `json:"errorMessage,omitempty"`
	CreatedAt    string  `json:"createdAt,omitempty"`
	UpdatedAt    string  `json:"updatedAt,omitempty"`
	ProcessedAt  string  `json:"processedAt,omitempty"`
}

// Job describes a queue job for API consumers.
type Job struct {
	ID           string `json:"id"`
	SubmissionID string `json:"submissionId"`
	OwnerID      string `json:"ownerId"`
	State        string `json:"state"`
	Priority     int    `json:"priority,omitempty"`
	Attempts     int    `json:"attempts"`
	MaxAttempts  int    `json:"maxAttempts"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	NextRunAt    string `json:"nextRunAt,omitempty"`
	CreatedAt    string `json:"createdAt,omitempty"`
	UpdatedAt    string `json:"updatedAt,omitempty"`
	CompletedAt  string `json:"completedAt,omitempty"`
}

// Event describes a submission lifecycle event pushed to owners.
type Event struct {
	Sequence     uint64  `json:"sequence"`
	Timestamp    string  `json:"timestamp"`
	Type         string  `json:"type"`
	SubmissionID string  `json:"submissionId"`
	OwnerID      string  `json:"ownerId"`
	Status       string  `json:"status"`
	Result       *Result `json:"result,omitempty"`
	ErrorCode    string  `json:"errorCode,omitempty"`
	ErrorMessage string  `json:"errorMessage,omitempty"`
}

// SubmitRequest asks for a recording already present in the artifact store to
// be analyzed.
type SubmitRequest struct {
	OwnerID      string `json:"ownerId"`
	RecordingKey string `json:"recordingKey"`
	FileName     string `json:"fileName,omitempty"`
	Priority     int    `json:"priority,omitempty"`
}

// SubmitResponse reports the submission and job created (or reused) for an
// analysis request.
type SubmitResponse struct {
	Submission Submission `json:"submission"`
	Job        Job        `json:"job"`
	Created    bool       `json:"created"`
}

// SubmissionResponse wraps a single submission with its queue job, when one
// still exists.
type SubmissionResponse struct {
	Submission Submission `json:"submission"`
	Job        *Job       `json:"job,omitempty"`
}

// SubmissionListResponse wraps a collection of submissions.
type SubmissionListResponse struct {
	Submissions []Submission `json:"submissions"`
}

// JobListResponse wraps a collection of queue jobs.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// EventStreamResponse carries a page of owner events for long-poll consumers.
type EventStreamResponse struct {
	Events []Event `json:"events"`
	Next   uint64  `json:"next"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running          bool           `json:"running"`
	PID              int            `json:"pid"`
	QueueDBPath      string         `json:"queueDbPath"`
	SubmissionDBPath string         `json:"submissionDbPath"`
	LockFilePath     string         `json:"lockFilePath"`
	Queue            map[string]int `json:"queue"`
	Submissions      map[string]int `json:"submissions"`
}

// AnalysisHealth mirrors the ML service health probe.
type AnalysisHealth struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"modelLoaded"`
	Version     string `json:"version,omitempty"`
}

// HealthResponse reports daemon liveness plus the analysis service probe.
type HealthResponse struct {
	Status   string          `json:"status"`
	Analysis *AnalysisHealth `json:"analysis,omitempty"`
	Error    string          `json:"error,omitempty"`
}
