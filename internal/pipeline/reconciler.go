package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"vocalis/internal/config"
	"vocalis/internal/logging"
	"vocalis/internal/queue"
	"vocalis/internal/submission"
)

// Reconciler periodically repairs drift between the queue and the submission
// store: lapsed leases go back to pending, submissions orphaned in processing
// are re-enqueued, and terminal jobs past retention are purged.
type Reconciler struct {
	jobs        *queue.Store
	submissions *submission.Store
	logger      *slog.Logger

	interval         time.Duration
	grace            time.Duration
	successRetention time.Duration
	successMaxCount  int
	failureRetention time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewReconciler constructs a reconciler from configuration.
func NewReconciler(cfg *config.Config, jobs *queue.Store, submissions *submission.Store, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		jobs:             jobs,
		submissions:      submissions,
		logger:           logging.NewComponentLogger(logger, "reconciler"),
		interval:         cfg.ReconcileInterval(),
		grace:            cfg.ReconcileGrace(),
		successRetention: cfg.SuccessRetention(),
		successMaxCount:  cfg.Queue.SuccessMaxCount,
		failureRetention: cfg.FailureRetention(),
	}
}

// Start launches the periodic sweep.
func (r *Reconciler) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				r.Sweep(runCtx)
			}
		}
	}()
}

// Stop halts the periodic sweep and waits for a running pass to finish.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	cancel := r.cancel
	r.mu.Unlock()

	cancel()
	r.wg.Wait()
}

// Sweep runs one reconciliation pass.
func (r *Reconciler) Sweep(ctx context.Context) {
	if reclaimed, err := r.jobs.ReclaimExpiredLeases(ctx); err != nil {
		r.logger.Error("lease reclaim failed", logging.Error(err))
	} else if reclaimed > 0 {
		r.logger.Info("reclaimed lapsed job leases", logging.Int64("count", reclaimed))
	}

	r.requeueOrphans(ctx)

	if removed, err := r.jobs.PurgeExpired(ctx, r.successRetention, r.successMaxCount, r.failureRetention); err != nil {
		r.logger.Error("retention purge failed", logging.Error(err))
	} else if removed > 0 {
		r.logger.Info("purged jobs past retention", logging.Int64("count", removed))
	}
}

// requeueOrphans finds submissions that have sat in processing past the grace
// period with no live job covering them and schedules a fresh delivery.
func (r *Reconciler) requeueOrphans(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-r.grace)
	stuck, err := r.submissions.StuckProcessing(ctx, cutoff)
	if err != nil {
		r.logger.Error("orphan scan failed", logging.Error(err))
		return
	}

	for _, sub := range stuck {
		job, err := r.jobs.GetBySubmission(ctx, sub.ID)
		if err != nil {
			r.logger.Error("orphan job lookup failed",
				logging.Error(err),
				logging.String(logging.FieldSubmissionID, sub.ID),
			)
			continue
		}
		if job != nil && !job.State.IsTerminal() {
			// Still covered; the queue will redeliver on its own.
			continue
		}

		if _, created, err := r.jobs.Enqueue(ctx, sub.ID, sub.Owner, sub.RecordingKey, 0); err != nil {
			r.logger.Error("orphan re-enqueue failed",
				logging.Error(err),
				logging.String(logging.FieldSubmissionID, sub.ID),
			)
		} else if created {
			r.logger.Warn("re-enqueued orphaned submission",
				logging.String(logging.FieldSubmissionID, sub.ID),
			)
		}
	}
}
