package queue

import (
	"database/sql"
	"errors"
	"time"
)

const jobColumns = "id, submission_id, owner, recording_key, state, priority, attempts, max_attempts, error_message, next_run_at, lease_expires, created_at, updated_at, completed_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id           string
		submissionID string
		owner        string
		recordingKey string
		stateStr     string
		priority     int
		attempts     int
		maxAttempts  int
		errorMessage sql.NullString
		nextRunRaw   string
		leaseRaw     sql.NullString
		createdRaw   string
		updatedRaw   string
		completedRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&submissionID,
		&owner,
		&recordingKey,
		&stateStr,
		&priority,
		&attempts,
		&maxAttempts,
		&errorMessage,
		&nextRunRaw,
		&leaseRaw,
		&createdRaw,
		&updatedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:           id,
		SubmissionID: submissionID,
		Owner:        owner,
		RecordingKey: recordingKey,
		State:        State(stateStr),
		Priority:     priority,
		Attempts:     attempts,
		MaxAttempts:  maxAttempts,
		ErrorMessage: errorMessage.String,
	}

	if parsed, err := parseTimeString(nextRunRaw); err == nil {
		job.NextRunAt = parsed
	}
	if parsed, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = parsed
	}
	if parsed, err := parseTimeString(updatedRaw); err == nil {
		job.UpdatedAt = parsed
	}
	if leaseRaw.Valid {
		if parsed, err := parseTimeString(leaseRaw.String); err == nil {
			job.LeaseExpires = &parsed
		}
	}
	if completedRaw.Valid {
		if parsed, err := parseTimeString(completedRaw.String); err == nil {
			job.CompletedAt = &parsed
		}
	}
	return job, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func formatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
