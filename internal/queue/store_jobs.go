package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Enqueue inserts a job for the submission or returns the active job already
// covering it. The returned bool is true when a new delivery was scheduled.
// A terminal job under the same key is reset and rescheduled. Priority is an
// ordering hint: higher values are claimed sooner among runnable jobs.
func (s *Store) Enqueue(ctx context.Context, submissionID, owner, recordingKey string, priority int) (*Job, bool, error) {
	ctx = ensureContext(ctx)
	id := JobKey(submissionID)
	now := time.Now().UTC()
	timestamp := formatTime(now)

	existing, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}

	if existing != nil && !existing.State.IsTerminal() {
		return existing, false, nil
	}

	if existing != nil {
		res, err := s.execWithRetry(
			ctx,
			`UPDATE jobs
             SET owner = ?, recording_key = ?, state = ?, priority = ?, attempts = 0,
                 error_message = NULL, next_run_at = ?, lease_expires = NULL,
                 updated_at = ?, completed_at = NULL
             WHERE id = ? AND state IN (?, ?)`,
			owner,
			recordingKey,
			StatePending,
			priority,
			timestamp,
			timestamp,
			id,
			StateCompleted,
			StateFailed,
		)
		if err != nil {
			return nil, false, fmt.Errorf("reset job: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, false, fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			// Raced with a concurrent enqueue that already reactivated it.
			job, err := s.GetByID(ctx, id)
			if err != nil {
				return nil, false, err
			}
			return job, false, nil
		}
		job, err := s.GetByID(ctx, id)
		return job, true, err
	}

	_, err = s.execWithRetry(
		ctx,
		`INSERT INTO jobs (
            id, submission_id, owner, recording_key, state, priority, attempts, max_attempts,
            next_run_at, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?)
        ON CONFLICT(id) DO NOTHING`,
		id,
		submissionID,
		owner,
		recordingKey,
		StatePending,
		priority,
		s.maxAttempts,
		timestamp,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert job: %w", err)
	}

	job, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if job == nil {
		return nil, false, ErrNotFound
	}
	return job, true, nil
}

// Claim takes the highest-priority runnable pending job, breaking ties by age,
// consuming one delivery attempt and holding a lease until the deadline.
// Returns nil when nothing is due.
func (s *Store) Claim(ctx context.Context, leaseTimeout time.Duration) (*Job, error) {
	ctx = ensureContext(ctx)

	for {
		now := time.Now().UTC()
		row := s.db.QueryRowContext(
			ctx,
			`SELECT `+jobColumns+` FROM jobs
             WHERE state = ? AND next_run_at <= ?
             ORDER BY priority DESC, next_run_at, created_at LIMIT 1`,
			StatePending,
			formatTime(now),
		)
		job, err := scanJob(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("select runnable job: %w", err)
		}

		lease := now.Add(leaseTimeout)
		res, err := s.execWithRetry(
			ctx,
			`UPDATE jobs
             SET state = ?, attempts = attempts + 1, lease_expires = ?, updated_at = ?
             WHERE id = ? AND state = ?`,
			StateProcessing,
			formatTime(lease),
			formatTime(now),
			job.ID,
			StatePending,
		)
		if err != nil {
			return nil, fmt.Errorf("claim job: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			// Lost the race to another worker; look again.
			continue
		}

		job.State = StateProcessing
		job.Attempts++
		job.LeaseExpires = &lease
		job.UpdatedAt = now
		return job, nil
	}
}

// ReportSuccess marks a claimed job completed.
func (s *Store) ReportSuccess(ctx context.Context, id string) error {
	now := formatTime(time.Now().UTC())
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET state = ?, error_message = NULL, lease_expires = NULL,
             updated_at = ?, completed_at = ?
         WHERE id = ? AND state = ?`,
		StateCompleted,
		now,
		now,
		id,
		StateProcessing,
	)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("complete job %s: %w", id, ErrStateConflict)
	}
	return nil
}

// ReportFailure records a failed delivery for a claimed job. If attempts
// remain the job is rescheduled with exponential backoff and the retry delay
// is returned; otherwise the job is parked as failed and final is true.
func (s *Store) ReportFailure(ctx context.Context, id string, errMsg string) (final bool, retryIn time.Duration, err error) {
	ctx = ensureContext(ctx)

	job, err := s.GetByID(ctx, id)
	if err != nil {
		return false, 0, err
	}
	if job == nil {
		return false, 0, fmt.Errorf("fail job %s: %w", id, ErrNotFound)
	}
	if job.State != StateProcessing {
		return false, 0, fmt.Errorf("fail job %s: %w", id, ErrStateConflict)
	}

	now := time.Now().UTC()

	if job.Attempts >= job.MaxAttempts {
		if err := s.markFailed(ctx, id, errMsg, now); err != nil {
			return false, 0, err
		}
		return true, 0, nil
	}

	delay := s.backoffDelay(job.Attempts)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET state = ?, error_message = ?, next_run_at = ?, lease_expires = NULL, updated_at = ?
         WHERE id = ? AND state = ?`,
		StatePending,
		nullableString(errMsg),
		formatTime(now.Add(delay)),
		formatTime(now),
		id,
		StateProcessing,
	)
	if err != nil {
		return false, 0, fmt.Errorf("reschedule job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, 0, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return false, 0, fmt.Errorf("reschedule job %s: %w", id, ErrStateConflict)
	}
	return false, delay, nil
}

// FailNow parks a claimed job as failed regardless of remaining attempts.
// Used for permanent errors where retrying cannot help.
func (s *Store) FailNow(ctx context.Context, id string, errMsg string) error {
	return s.markFailed(ensureContext(ctx), id, errMsg, time.Now().UTC())
}

func (s *Store) markFailed(ctx context.Context, id, errMsg string, now time.Time) error {
	timestamp := formatTime(now)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET state = ?, error_message = ?, lease_expires = NULL,
             updated_at = ?, completed_at = ?
         WHERE id = ? AND state = ?`,
		StateFailed,
		nullableString(errMsg),
		timestamp,
		timestamp,
		id,
		StateProcessing,
	)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("fail job %s: %w", id, ErrStateConflict)
	}
	return nil
}

// backoffDelay computes the wait before the next delivery. The first retry
// waits the base delay and each subsequent retry doubles it.
func (s *Store) backoffDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := s.backoffBase
	for i := 1; i < attempts; i++ {
		delay *= 2
	}
	return delay
}

// GetByID fetches a job by identifier.
func (s *Store) GetByID(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// Status reports the lifecycle state of a job, or StateUnknown when the
// store has no record of it.
func (s *Store) Status(ctx context.Context, id string) (State, error) {
	job, err := s.GetByID(ctx, id)
	if err != nil {
		return StateUnknown, err
	}
	if job == nil {
		return StateUnknown, nil
	}
	return job.State, nil
}

// GetBySubmission fetches the job covering a submission, if any.
func (s *Store) GetBySubmission(ctx context.Context, submissionID string) (*Job, error) {
	return s.GetByID(ctx, JobKey(submissionID))
}

// List returns jobs filtered by state set (or all jobs when no state is provided).
func (s *Store) List(ctx context.Context, states ...State) ([]*Job, error) {
	ctx = ensureContext(ctx)
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + jobColumns + ` FROM jobs`
	orderClause := ` ORDER BY created_at`

	if len(states) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(states))
		args := make([]any, len(states))
		for i, state := range states {
			args[i] = state
		}
		query := baseQuery + ` WHERE state IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
