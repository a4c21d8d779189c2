package pipeline_test

import (
	"context"
	"testing"
	"time"

	"vocalis/internal/logging"
	"vocalis/internal/pipeline"
	"vocalis/internal/queue"
	"vocalis/internal/testsupport"
)

func TestSweepReclaimsLapsedLeases(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	jobs := testsupport.MustOpenStore(t, cfg)
	submissions := testsupport.MustOpenSubmissions(t, cfg)
	ctx := context.Background()

	if _, _, err := jobs.Enqueue(ctx, "sub-1", "alice", "recordings/a.wav", 0); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if job, err := jobs.Claim(ctx, -time.Second); err != nil || job == nil {
		t.Fatalf("Claim failed: job=%v err=%v", job, err)
	}

	reconciler := pipeline.NewReconciler(cfg, jobs, submissions, logging.NewNop())
	reconciler.Sweep(ctx)

	job, err := jobs.GetBySubmission(ctx, "sub-1")
	if err != nil {
		t.Fatalf("job lookup failed: %v", err)
	}
	if job.State != queue.StatePending {
		t.Fatalf("state = %s, want pending after reclaim", job.State)
	}
}

func TestSweepRequeuesOrphanedSubmissions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Queue.ReconcileGrace = cfg.Queue.LeaseTimeout
	jobs := testsupport.MustOpenStore(t, cfg)
	submissions := testsupport.MustOpenSubmissions(t, cfg)
	ctx := context.Background()

	// A submission stuck in processing with its job already failed models a
	// crash between the job outcome and the submission update.
	if _, err := submissions.Create(ctx, "sub-1", "alice", "recordings/a.wav", ""); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := submissions.MarkProcessing(ctx, "sub-1"); err != nil {
		t.Fatalf("MarkProcessing failed: %v", err)
	}
	if _, _, err := jobs.Enqueue(ctx, "sub-1", "alice", "recordings/a.wav", 0); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	job, err := jobs.Claim(ctx, time.Minute)
	if err != nil || job == nil {
		t.Fatalf("Claim failed: job=%v err=%v", job, err)
	}
	if err := jobs.FailNow(ctx, job.ID, "interrupted"); err != nil {
		t.Fatalf("FailNow failed: %v", err)
	}

	// Fresh submissions are inside the grace period and must be left alone.
	reconciler := pipeline.NewReconciler(cfg, jobs, submissions, logging.NewNop())
	reconciler.Sweep(ctx)
	if job, err = jobs.GetBySubmission(ctx, "sub-1"); err != nil {
		t.Fatalf("job lookup failed: %v", err)
	}
	if job.State != queue.StateFailed {
		t.Fatalf("sweep inside grace should not requeue, state = %s", job.State)
	}

	// Shrink the grace window so the same submission now counts as orphaned.
	cfg.Queue.ReconcileGrace = 0
	cfg.Queue.LeaseTimeout = 0
	reconciler = pipeline.NewReconciler(cfg, jobs, submissions, logging.NewNop())
	time.Sleep(10 * time.Millisecond)
	reconciler.Sweep(ctx)

	job, err = jobs.GetBySubmission(ctx, "sub-1")
	if err != nil {
		t.Fatalf("job lookup failed: %v", err)
	}
	if job.State != queue.StatePending {
		t.Fatalf("orphaned submission should be requeued, state = %s", job.State)
	}
	if job.Attempts != 0 {
		t.Fatalf("requeued job should start a fresh attempt budget, attempts = %d", job.Attempts)
	}
}

func TestSweepPurgesExpiredJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Queue.SuccessRetention = 0
	jobs := testsupport.MustOpenStore(t, cfg)
	submissions := testsupport.MustOpenSubmissions(t, cfg)
	ctx := context.Background()

	if _, _, err := jobs.Enqueue(ctx, "sub-1", "alice", "recordings/a.wav", 0); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	job, err := jobs.Claim(ctx, time.Minute)
	if err != nil || job == nil {
		t.Fatalf("Claim failed: job=%v err=%v", job, err)
	}
	if err := jobs.ReportSuccess(ctx, job.ID); err != nil {
		t.Fatalf("ReportSuccess failed: %v", err)
	}

	reconciler := pipeline.NewReconciler(cfg, jobs, submissions, logging.NewNop())
	time.Sleep(10 * time.Millisecond)
	reconciler.Sweep(ctx)

	remaining, err := jobs.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("completed job past retention should be purged, got %+v", remaining)
	}
}
