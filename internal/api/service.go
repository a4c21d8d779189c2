package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"

	"vocalis/internal/artifacts"
	"vocalis/internal/queue"
	"vocalis/internal/services"
	"vocalis/internal/submission"
)

// SubmissionService exposes the submit/describe/list operations shared by the
// daemon HTTP handlers and the CLI.
type SubmissionService struct {
	jobs        *queue.Store
	submissions *submission.Store
	recordings  artifacts.Store
}

// NewSubmissionService constructs a SubmissionService around the provided stores.
func NewSubmissionService(jobs *queue.Store, submissions *submission.Store, recordings artifacts.Store) *SubmissionService {
	if jobs == nil || submissions == nil {
		return nil
	}
	return &SubmissionService{jobs: jobs, submissions: submissions, recordings: recordings}
}

// Submit creates a pending submission for a recording already present in the
// artifact store and enqueues its analysis job. When the submission's job is
// already queued or in flight the existing job is returned with Created false.
func (s *SubmissionService) Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	owner := strings.TrimSpace(req.OwnerID)
	key := strings.TrimSpace(req.RecordingKey)
	if owner == "" {
		return nil, services.New(services.ErrValidation, "ownerId is required")
	}
	if key == "" {
		return nil, services.New(services.ErrValidation, "recordingKey is required")
	}
	if s.recordings != nil {
		if _, err := s.recordings.Stat(ctx, key); err != nil {
			if errors.Is(err, services.ErrNotFound) {
				return nil, services.New(services.ErrNotFound, fmt.Sprintf("recording %q not found", key))
			}
			return nil, fmt.Errorf("stat recording: %w", err)
		}
	}

	fileName := strings.TrimSpace(req.FileName)
	if fileName == "" {
		fileName = path.Base(key)
	}

	id := uuid.NewString()
	sub, err := s.submissions.Create(ctx, id, owner, key, fileName)
	if err != nil {
		return nil, fmt.Errorf("create submission: %w", err)
	}
	job, created, err := s.jobs.Enqueue(ctx, sub.ID, owner, key, req.Priority)
	if err != nil {
		return nil, fmt.Errorf("enqueue analysis job: %w", err)
	}
	return &SubmitResponse{
		Submission: FromSubmission(sub),
		Job:        FromJob(job),
		Created:    created,
	}, nil
}

// Ingest stores an uploaded recording in the artifact store and submits it for
// analysis. The recording is keyed under recordings/ by a fresh submission id.
func (s *SubmissionService) Ingest(ctx context.Context, owner, fileName string, recording io.Reader, size int64, contentType string, priority int) (*SubmitResponse, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, services.New(services.ErrValidation, "ownerId is required")
	}
	if s.recordings == nil {
		return nil, errors.New("artifact store unavailable")
	}
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return nil, services.New(services.ErrValidation, "recording file name is required")
	}

	id := uuid.NewString()
	ext := strings.ToLower(path.Ext(fileName))
	if ext == "" {
		ext = ".wav"
	}
	key := "recordings/" + id + ext
	if err := s.recordings.Put(ctx, key, recording, size, contentType); err != nil {
		return nil, fmt.Errorf("store recording: %w", err)
	}

	sub, err := s.submissions.Create(ctx, id, owner, key, fileName)
	if err != nil {
		return nil, fmt.Errorf("create submission: %w", err)
	}
	job, created, err := s.jobs.Enqueue(ctx, sub.ID, owner, key, priority)
	if err != nil {
		return nil, fmt.Errorf("enqueue analysis job: %w", err)
	}
	return &SubmitResponse{
		Submission: FromSubmission(sub),
		Job:        FromJob(job),
		Created:    created,
	}, nil
}

// Describe fetches a submission with its queue job, when one still exists.
func (s *SubmissionService) Describe(ctx context.Context, id string) (*SubmissionResponse, error) {
	sub, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, services.New(services.ErrNotFound, fmt.Sprintf("submission %q not found", id))
	}
	out := &SubmissionResponse{Submission: FromSubmission(sub)}
	job, err := s.jobs.GetBySubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	if job != nil {
		dto := FromJob(job)
		out.Job = &dto
	}
	return out, nil
}

// List returns an owner's submissions, newest first.
func (s *SubmissionService) List(ctx context.Context, owner string, limit int) ([]Submission, error) {
	subs, err := s.submissions.ListByOwner(ctx, owner, limit)
	if err != nil {
		return nil, err
	}
	return FromSubmissions(subs), nil
}

// Jobs returns queue jobs filtered by state.
func (s *SubmissionService) Jobs(ctx context.Context, states ...queue.State) ([]Job, error) {
	jobs, err := s.jobs.List(ctx, states...)
	if err != nil {
		return nil, err
	}
	return FromJobs(jobs), nil
}

// RetryFailed re-enqueues failed jobs, optionally restricted to specific
// submission ids. It returns the number of jobs requeued.
func (s *SubmissionService) RetryFailed(ctx context.Context, submissionIDs ...string) (int, error) {
	var targets []*queue.Job
	if len(submissionIDs) == 0 {
		failed, err := s.jobs.List(ctx, queue.StateFailed)
		if err != nil {
			return 0, err
		}
		targets = failed
	} else {
		for _, id := range submissionIDs {
			job, err := s.jobs.GetBySubmission(ctx, id)
			if err != nil {
				return 0, err
			}
			if job != nil && job.State == queue.StateFailed {
				targets = append(targets, job)
			}
		}
	}

	requeued := 0
	for _, job := range targets {
		// The submission record is the source of truth for the payload; the
		// job row's owner and recording key are display copies.
		sub, err := s.submissions.GetByID(ctx, job.SubmissionID)
		if err != nil {
			return requeued, err
		}
		if sub == nil {
			continue
		}
		if err := s.submissions.ResetForRetry(ctx, sub.ID); err != nil {
			if errors.Is(err, submission.ErrStateConflict) || errors.Is(err, submission.ErrNotFound) {
				continue
			}
			return requeued, err
		}
		if _, created, err := s.jobs.Enqueue(ctx, sub.ID, sub.Owner, sub.RecordingKey, job.Priority); err != nil {
			return requeued, err
		} else if created {
			requeued++
		}
	}
	return requeued, nil
}

// ClearJobs removes all queue jobs and returns the number deleted.
func (s *SubmissionService) ClearJobs(ctx context.Context) (int64, error) {
	return s.jobs.Clear(ctx)
}
