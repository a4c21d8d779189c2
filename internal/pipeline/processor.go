package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"

	"vocalis/internal/analysis"
	"vocalis/internal/artifacts"
	"vocalis/internal/logging"
	"vocalis/internal/notify"
	"vocalis/internal/queue"
	"vocalis/internal/services"
	"vocalis/internal/submission"
)

// Analyzer scores a recording. Satisfied by *analysis.Client.
type Analyzer interface {
	Analyze(ctx context.Context, fileName string, recording io.Reader) (*analysis.Result, error)
}

// Processor resolves a single claimed job against the analysis service.
type Processor struct {
	jobs        *queue.Store
	submissions *submission.Store
	recordings  artifacts.Store
	analyzer    Analyzer
	publisher   notify.Publisher
	logger      *slog.Logger
}

// NewProcessor wires a processor from its collaborators. A nil publisher
// disables notifications.
func NewProcessor(jobs *queue.Store, submissions *submission.Store, recordings artifacts.Store, analyzer Analyzer, publisher notify.Publisher, logger *slog.Logger) *Processor {
	if publisher == nil {
		publisher = notify.NewNop()
	}
	return &Processor{
		jobs:        jobs,
		submissions: submissions,
		recordings:  recordings,
		analyzer:    analyzer,
		publisher:   publisher,
		logger:      logging.NewComponentLogger(logger, "pipeline"),
	}
}

// Process runs one delivery of a claimed job to completion. Outcomes are
// recorded against the job and the submission; the returned error is reserved
// for infrastructure faults that left the delivery unresolved.
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	ctx = services.WithSubmissionID(ctx, job.SubmissionID)
	ctx = services.WithJobID(ctx, job.ID)
	log := logging.WithContext(ctx, p.logger)

	sub, err := p.submissions.GetByID(ctx, job.SubmissionID)
	if err != nil {
		return p.retryOrFail(ctx, log, job, services.Wrap(services.ErrTransient, "load submission", err))
	}
	if sub == nil {
		log.Error("submission record missing, parking job")
		if err := p.jobs.FailNow(ctx, job.ID, "submission record missing"); err != nil {
			return fmt.Errorf("park orphaned job: %w", err)
		}
		return nil
	}
	if sub.Status.IsTerminal() {
		// A previous delivery already resolved this submission.
		log.Info("submission already resolved, completing job", logging.String("status", string(sub.Status)))
		if err := p.jobs.ReportSuccess(ctx, job.ID); err != nil && !errors.Is(err, queue.ErrStateConflict) {
			return fmt.Errorf("complete satisfied job: %w", err)
		}
		return nil
	}

	changed, err := p.submissions.MarkProcessing(ctx, sub.ID)
	if err != nil {
		if errors.Is(err, submission.ErrStateConflict) {
			// Raced into a terminal status since the read above.
			if err := p.jobs.ReportSuccess(ctx, job.ID); err != nil && !errors.Is(err, queue.ErrStateConflict) {
				return fmt.Errorf("complete satisfied job: %w", err)
			}
			return nil
		}
		return p.retryOrFail(ctx, log, job, services.Wrap(services.ErrTransient, "mark processing", err))
	}
	if changed {
		p.publisher.Publish(ctx, notify.Event{
			Type:         notify.EventProcessing,
			SubmissionID: sub.ID,
			Owner:        sub.Owner,
			Status:       submission.StatusProcessing,
		})
	}

	result, err := p.analyze(ctx, sub)
	if err != nil {
		if services.IsPermanent(err) {
			return p.failPermanent(ctx, log, job, sub, err)
		}
		return p.retryOrFail(ctx, log, job, err)
	}

	if err := p.submissions.MarkCompleted(ctx, sub.ID, result); err != nil {
		if !errors.Is(err, submission.ErrStateConflict) {
			return p.retryOrFail(ctx, log, job, services.Wrap(services.ErrTransient, "record result", err))
		}
		log.Warn("submission resolved elsewhere before result could be recorded")
	}
	if err := p.jobs.ReportSuccess(ctx, job.ID); err != nil && !errors.Is(err, queue.ErrStateConflict) {
		return fmt.Errorf("complete job: %w", err)
	}

	log.Info("analysis completed",
		logging.String("condition", result.Condition),
		logging.Float64("confidence", result.Confidence),
	)
	p.publisher.Publish(ctx, notify.Event{
		Type:         notify.EventCompleted,
		SubmissionID: sub.ID,
		Owner:        sub.Owner,
		Status:       submission.StatusCompleted,
		Result:       result,
	})
	return nil
}

func (p *Processor) analyze(ctx context.Context, sub *submission.Submission) (*submission.Result, error) {
	recording, err := p.recordings.Open(ctx, sub.RecordingKey)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return nil, err
		}
		return nil, services.Wrap(services.ErrTransient, "open recording", err)
	}
	defer recording.Close()

	fileName := sub.FileName
	if fileName == "" {
		fileName = path.Base(sub.RecordingKey)
	}

	result, err := p.analyzer.Analyze(ctx, fileName, recording)
	if err != nil {
		return nil, err
	}

	return &submission.Result{
		Condition:       result.Prediction.Condition,
		Severity:        result.Prediction.Severity,
		Confidence:      result.Prediction.Confidence,
		HealthScore:     result.Prediction.HealthScore,
		Recommendations: result.Prediction.Recommendations,
		Features:        result.Features,
	}, nil
}

// retryOrFail reports a transient failure to the queue. While attempts remain
// the submission stays in processing and the queue redelivers after backoff;
// on the final attempt the submission is resolved as failed.
func (p *Processor) retryOrFail(ctx context.Context, log *slog.Logger, job *queue.Job, cause error) error {
	final, retryIn, err := p.jobs.ReportFailure(ctx, job.ID, services.UserMessage(cause))
	if err != nil {
		if errors.Is(err, queue.ErrStateConflict) {
			log.Warn("job lease lost before failure could be recorded", logging.Error(cause))
			return nil
		}
		return fmt.Errorf("report delivery failure: %w", err)
	}

	if !final {
		log.Warn("analysis attempt failed, will retry",
			logging.Error(cause),
			logging.String(logging.FieldErrorCode, services.Code(cause)),
			logging.Int(logging.FieldAttempt, job.Attempts),
			logging.Duration("retry_in", retryIn),
		)
		return nil
	}

	sub, subErr := p.submissions.GetByID(ctx, job.SubmissionID)
	if subErr != nil || sub == nil {
		log.Error("attempts exhausted but submission could not be resolved", logging.Error(subErr))
		return nil
	}
	p.resolveFailed(ctx, log, sub, cause)
	return nil
}

func (p *Processor) failPermanent(ctx context.Context, log *slog.Logger, job *queue.Job, sub *submission.Submission, cause error) error {
	if err := p.jobs.FailNow(ctx, job.ID, services.UserMessage(cause)); err != nil {
		if errors.Is(err, queue.ErrStateConflict) {
			log.Warn("job lease lost before permanent failure could be recorded", logging.Error(cause))
			return nil
		}
		return fmt.Errorf("park failed job: %w", err)
	}
	p.resolveFailed(ctx, log, sub, cause)
	return nil
}

func (p *Processor) resolveFailed(ctx context.Context, log *slog.Logger, sub *submission.Submission, cause error) {
	code := services.Code(cause)
	message := services.UserMessage(cause)

	if err := p.submissions.MarkFailed(ctx, sub.ID, code, message); err != nil {
		if !errors.Is(err, submission.ErrStateConflict) {
			log.Error("could not record submission failure", logging.Error(err))
		}
		return
	}

	log.Error("analysis failed",
		logging.Error(cause),
		logging.String(logging.FieldErrorCode, code),
	)
	p.publisher.Publish(ctx, notify.Event{
		Type:         notify.EventFailed,
		SubmissionID: sub.ID,
		Owner:        sub.Owner,
		Status:       submission.StatusFailed,
		ErrorCode:    code,
		ErrorMessage: message,
	})
}
