package queue

import (
	"context"
	"fmt"
	"time"
)

// Stats returns a count of jobs grouped by state.
func (s *Store) Stats(ctx context.Context) (map[State]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT state, COUNT(1) FROM jobs GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[State]int)
	for rows.Next() {
		var state State
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, err
		}
		stats[state] = count
	}
	return stats, rows.Err()
}

// Health aggregates job counts for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for state, count := range stats {
		health.Total += count
		switch state {
		case StatePending:
			health.Pending += count
		case StateProcessing:
			health.Processing += count
		case StateCompleted:
			health.Completed += count
		case StateFailed:
			health.Failed += count
		}
	}
	return health, nil
}

// ReclaimExpiredLeases returns jobs whose lease has lapsed to pending. The
// attempt consumed at claim time is handed back so an interrupted delivery
// does not count against the budget.
func (s *Store) ReclaimExpiredLeases(ctx context.Context) (int64, error) {
	now := time.Now().UTC()
	timestamp := formatTime(now)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET state = ?, attempts = MAX(attempts - 1, 0), lease_expires = NULL,
             next_run_at = ?, updated_at = ?
         WHERE state = ? AND lease_expires IS NOT NULL AND lease_expires < ?`,
		StatePending,
		timestamp,
		timestamp,
		StateProcessing,
		timestamp,
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim expired leases: %w", err)
	}
	return res.RowsAffected()
}

// PurgeExpired removes terminal jobs past their retention. Completed jobs are
// purged after successRetention or beyond the newest successMaxCount; failed
// jobs are retained for failureRetention. Returns the number of rows removed.
func (s *Store) PurgeExpired(ctx context.Context, successRetention time.Duration, successMaxCount int, failureRetention time.Duration) (int64, error) {
	ctx = ensureContext(ctx)
	now := time.Now().UTC()
	var removed int64

	res, err := s.execWithRetry(
		ctx,
		`DELETE FROM jobs WHERE state = ? AND completed_at IS NOT NULL AND completed_at < ?`,
		StateCompleted,
		formatTime(now.Add(-successRetention)),
	)
	if err != nil {
		return removed, fmt.Errorf("purge completed jobs: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil {
		removed += affected
	}

	if successMaxCount > 0 {
		res, err = s.execWithRetry(
			ctx,
			`DELETE FROM jobs WHERE state = ? AND id NOT IN (
                SELECT id FROM jobs WHERE state = ?
                ORDER BY completed_at DESC LIMIT ?
            )`,
			StateCompleted,
			StateCompleted,
			successMaxCount,
		)
		if err != nil {
			return removed, fmt.Errorf("cap completed jobs: %w", err)
		}
		if affected, err := res.RowsAffected(); err == nil {
			removed += affected
		}
	}

	res, err = s.execWithRetry(
		ctx,
		`DELETE FROM jobs WHERE state = ? AND completed_at IS NOT NULL AND completed_at < ?`,
		StateFailed,
		formatTime(now.Add(-failureRetention)),
	)
	if err != nil {
		return removed, fmt.Errorf("purge failed jobs: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil {
		removed += affected
	}

	return removed, nil
}

// Clear removes all jobs from the queue.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM jobs`)
	if err != nil {
		return 0, fmt.Errorf("clear queue: %w", err)
	}
	return res.RowsAffected()
}
