package api

import (
	"time"

	"vocalis/internal/notify"
	"vocalis/internal/queue"
	"vocalis/internal/submission"
)

// FromSubmission converts an internal submission record into its DTO.
func FromSubmission(sub *submission.Submission) Submission {
	if sub == nil {
		return Submission{}
	}
	out := Submission{
		ID:           sub.ID,
		OwnerID:      sub.Owner,
		RecordingKey: sub.RecordingKey,
		FileName:     sub.FileName,
		Status:       string(sub.Status),
		ErrorCode:    sub.ErrorCode,
		ErrorMessage: sub.ErrorMessage,
		CreatedAt:    formatTimestamp(sub.CreatedAt),
		UpdatedAt:    formatTimestamp(sub.UpdatedAt),
	}
	if sub.ProcessedAt != nil {
		out.ProcessedAt = formatTimestamp(*sub.ProcessedAt)
	}
	if result, err := sub.Result(); err == nil && result != nil {
		out.Result = FromResult(result)
	}
	return out
}

// FromSubmissions converts a slice of submission records.
func FromSubmissions(subs []*submission.Submission) []Submission {
	if len(subs) == 0 {
		return nil
	}
	out := make([]Submission, 0, len(subs))
	for _, sub := range subs {
		out = append(out, FromSubmission(sub))
	}
	return out
}

// FromResult converts a stored analysis result into its DTO.
func FromResult(result *submission.Result) *Result {
	if result == nil {
		return nil
	}
	return &Result{
		Condition:       result.Condition,
		Severity:        result.Severity,
		Confidence:      result.Confidence,
		HealthScore:     result.HealthScore,
		Recommendations: result.Recommendations,
		Features:        result.Features,
	}
}

// FromJob converts an internal queue job into its DTO.
func FromJob(job *queue.Job) Job {
	if job == nil {
		return Job{}
	}
	out := Job{
		ID:           job.ID,
		SubmissionID: job.SubmissionID,
		OwnerID:      job.Owner,
		State:        string(job.State),
		Priority:     job.Priority,
		Attempts:     job.Attempts,
		MaxAttempts:  job.MaxAttempts,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    formatTimestamp(job.CreatedAt),
		UpdatedAt:    formatTimestamp(job.UpdatedAt),
	}
	if !job.NextRunAt.IsZero() {
		out.NextRunAt = formatTimestamp(job.NextRunAt)
	}
	if job.CompletedAt != nil {
		out.CompletedAt = formatTimestamp(*job.CompletedAt)
	}
	return out
}

// FromJobs converts a slice of queue jobs.
func FromJobs(jobs []*queue.Job) []Job {
	if len(jobs) == 0 {
		return nil
	}
	out := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, FromJob(job))
	}
	return out
}

// FromEvent converts a hub event into its DTO.
func FromEvent(event notify.Event) Event {
	return Event{
		Sequence:     event.Sequence,
		Timestamp:    formatTimestamp(event.Timestamp),
		Type:         string(event.Type),
		SubmissionID: event.SubmissionID,
		OwnerID:      event.Owner,
		Status:       string(event.Status),
		Result:       FromResult(event.Result),
		ErrorCode:    event.ErrorCode,
		ErrorMessage: event.ErrorMessage,
	}
}

// FromEvents converts a slice of hub events.
func FromEvents(events []notify.Event) []Event {
	if len(events) == 0 {
		return nil
	}
	out := make([]Event, 0, len(events))
	for _, event := range events {
		out = append(out, FromEvent(event))
	}
	return out
}

// MergeQueueStats normalizes queue stats so every state is present.
func MergeQueueStats(stats map[queue.State]int) map[string]int {
	out := map[string]int{
		string(queue.StatePending):    0,
		string(queue.StateProcessing): 0,
		string(queue.StateCompleted):  0,
		string(queue.StateFailed):     0,
	}
	for state, count := range stats {
		out[string(state)] = count
	}
	return out
}

// MergeSubmissionStats normalizes submission stats so every status is present.
func MergeSubmissionStats(stats map[submission.Status]int) map[string]int {
	out := map[string]int{
		string(submission.StatusPending):    0,
		string(submission.StatusProcessing): 0,
		string(submission.StatusCompleted):  0,
		string(submission.StatusFailed):     0,
	}
	for status, count := range stats {
		out[string(status)] = count
	}
	return out
}

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(dateTimeFormat)
}
