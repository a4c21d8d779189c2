package submission

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const submissionColumns = "id, owner, recording_key, file_name, status, result_json, error_code, error_message, created_at, updated_at, processed_at"

func scanSubmission(scanner interface{ Scan(dest ...any) error }) (*Submission, error) {
	var (
		id           string
		owner        string
		recordingKey string
		fileName     sql.NullString
		statusStr    string
		resultJSON   sql.NullString
		errorCode    sql.NullString
		errorMessage sql.NullString
		createdRaw   string
		updatedRaw   string
		processedRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&owner,
		&recordingKey,
		&fileName,
		&statusStr,
		&resultJSON,
		&errorCode,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
		&processedRaw,
	); err != nil {
		return nil, err
	}

	sub := &Submission{
		ID:           id,
		Owner:        owner,
		RecordingKey: recordingKey,
		FileName:     fileName.String,
		Status:       Status(statusStr),
		ResultJSON:   resultJSON.String,
		ErrorCode:    errorCode.String,
		ErrorMessage: errorMessage.String,
	}

	if parsed, err := parseTimeString(createdRaw); err == nil {
		sub.CreatedAt = parsed
	}
	if parsed, err := parseTimeString(updatedRaw); err == nil {
		sub.UpdatedAt = parsed
	}
	if processedRaw.Valid {
		if parsed, err := parseTimeString(processedRaw.String); err == nil {
			sub.ProcessedAt = &parsed
		}
	}
	return sub, nil
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

// Create inserts a new pending submission.
func (s *Store) Create(ctx context.Context, id, owner, recordingKey, fileName string) (*Submission, error) {
	now := time.Now().UTC()
	timestamp := formatTime(now)

	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO submissions (
            id, owner, recording_key, file_name, status, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id,
		owner,
		recordingKey,
		nullableString(fileName),
		StatusPending,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert submission: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a submission by identifier.
func (s *Store) GetByID(ctx context.Context, id string) (*Submission, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+submissionColumns+` FROM submissions WHERE id = ?`, id)
	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get submission: %w", err)
	}
	return sub, nil
}

// ListByOwner returns an owner's submissions, newest first.
func (s *Store) ListByOwner(ctx context.Context, owner string, limit int) ([]*Submission, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+submissionColumns+` FROM submissions WHERE owner = ? ORDER BY created_at DESC LIMIT ?`,
		owner,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var subs []*Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// MarkProcessing moves a submission from pending to processing. A submission
// already processing is left alone and reported as unchanged, so a redelivered
// job can pass through without duplicating the transition. Terminal statuses
// refuse the move.
func (s *Store) MarkProcessing(ctx context.Context, id string) (changed bool, err error) {
	ctx = ensureContext(ctx)
	now := formatTime(time.Now().UTC())

	res, err := s.execWithRetry(
		ctx,
		`UPDATE submissions SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		StatusProcessing,
		now,
		id,
		StatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("mark processing: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return true, nil
	}

	sub, err := s.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if sub == nil {
		return false, fmt.Errorf("mark processing %s: %w", id, ErrNotFound)
	}
	if sub.Status == StatusProcessing {
		return false, nil
	}
	return false, fmt.Errorf("mark processing %s from %s: %w", id, sub.Status, ErrStateConflict)
}

// MarkCompleted records the analysis result and moves the submission from
// processing to completed.
func (s *Store) MarkCompleted(ctx context.Context, id string, result *Result) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	now := formatTime(time.Now().UTC())

	res, err := s.execWithRetry(
		ctx,
		`UPDATE submissions
         SET status = ?, result_json = ?, error_code = NULL, error_message = NULL,
             updated_at = ?, processed_at = ?
         WHERE id = ? AND status = ?`,
		StatusCompleted,
		string(resultJSON),
		now,
		now,
		id,
		StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("mark completed %s: %w", id, ErrStateConflict)
	}
	return nil
}

// MarkFailed records the classified error and moves the submission from
// processing to failed.
func (s *Store) MarkFailed(ctx context.Context, id, errorCode, errorMessage string) error {
	now := formatTime(time.Now().UTC())

	res, err := s.execWithRetry(
		ctx,
		`UPDATE submissions
         SET status = ?, error_code = ?, error_message = ?, updated_at = ?, processed_at = ?
         WHERE id = ? AND status = ?`,
		StatusFailed,
		nullableString(errorCode),
		nullableString(errorMessage),
		now,
		now,
		id,
		StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("mark failed %s: %w", id, ErrStateConflict)
	}
	return nil
}

// ResetForRetry moves a failed submission back to pending and clears its
// error so an operator can re-run the analysis. Only failed submissions are
// eligible; anything else refuses with ErrStateConflict.
func (s *Store) ResetForRetry(ctx context.Context, id string) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE submissions
         SET status = ?, result_json = NULL, error_code = NULL, error_message = NULL,
             updated_at = ?, processed_at = NULL
         WHERE id = ? AND status = ?`,
		StatusPending,
		formatTime(time.Now().UTC()),
		id,
		StatusFailed,
	)
	if err != nil {
		return fmt.Errorf("reset submission: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		sub, getErr := s.GetByID(ctx, id)
		if getErr != nil {
			return getErr
		}
		if sub == nil {
			return fmt.Errorf("reset submission %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("reset submission %s: %w", id, ErrStateConflict)
	}
	return nil
}

// StuckProcessing returns submissions that have sat in processing since
// before the cutoff. The reconciliation sweep uses this to find work orphaned
// by a crash.
func (s *Store) StuckProcessing(ctx context.Context, cutoff time.Time) ([]*Submission, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+submissionColumns+` FROM submissions WHERE status = ? AND updated_at < ? ORDER BY updated_at`,
		StatusProcessing,
		formatTime(cutoff),
	)
	if err != nil {
		return nil, fmt.Errorf("query stuck submissions: %w", err)
	}
	defer rows.Close()

	var subs []*Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// Stats returns a count of submissions grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(1) FROM submissions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("submission stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}
