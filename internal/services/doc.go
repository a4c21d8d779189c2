// Package services defines the shared error taxonomy and context annotations
// used across the analysis pipeline.
//
// Errors are tagged with sentinel markers so the orchestration step can decide
// whether a failure is permanent (recorded immediately, never retried) or
// transient (requeued by the job queue's backoff policy). The markers also map
// to the stable, user-facing-safe codes surfaced on failed submissions.
package services
