// Package queue provides the durable analysis job queue backed by SQLite.
//
// Jobs are keyed by submission so repeated enqueues deduplicate against any
// job that is still active. Claiming a job consumes one delivery attempt and
// takes a lease; a worker that dies without reporting leaves its lease to
// lapse, after which the job returns to pending without having consumed the
// attempt. Failed deliveries reschedule with exponential backoff until the
// attempt budget is exhausted, then the job is parked as failed for audit.
package queue
