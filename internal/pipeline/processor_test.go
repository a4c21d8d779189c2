package pipeline_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"vocalis/internal/analysis"
	"vocalis/internal/artifacts"
	"vocalis/internal/config"
	"vocalis/internal/logging"
	"vocalis/internal/notify"
	"vocalis/internal/pipeline"
	"vocalis/internal/queue"
	"vocalis/internal/submission"
	"vocalis/internal/testsupport"
)

type fixture struct {
	cfg         *config.Config
	jobs        *queue.Store
	submissions *submission.Store
	recordings  *artifacts.FSStore
	hub         *notify.Hub
	processor   *pipeline.Processor
}

func newFixture(t *testing.T, analysisURL string) *fixture {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithAnalysisURL(analysisURL))
	jobs := testsupport.MustOpenStore(t, cfg)
	submissions := testsupport.MustOpenSubmissions(t, cfg)

	recordings, err := artifacts.NewFS(cfg.Paths.UploadDir)
	if err != nil {
		t.Fatalf("artifacts.NewFS: %v", err)
	}

	hub := notify.NewHub(16)
	client := analysis.NewClient(cfg, logging.NewNop())
	processor := pipeline.NewProcessor(jobs, submissions, recordings, client, hub, logging.NewNop())

	return &fixture{
		cfg:         cfg,
		jobs:        jobs,
		submissions: submissions,
		recordings:  recordings,
		hub:         hub,
		processor:   processor,
	}
}

func (f *fixture) submit(t *testing.T, id string) *queue.Job {
	t.Helper()
	ctx := context.Background()

	key := "recordings/" + id + ".wav"
	if err := f.recordings.Put(ctx, key, bytes.NewReader([]byte("RIFF....WAVE")), 12, "audio/wav"); err != nil {
		t.Fatalf("store recording: %v", err)
	}
	if _, err := f.submissions.Create(ctx, id, "alice", key, id+".wav"); err != nil {
		t.Fatalf("create submission: %v", err)
	}
	if _, _, err := f.jobs.Enqueue(ctx, id, "alice", key, 0); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	job, err := f.jobs.Claim(ctx, time.Minute)
	if err != nil || job == nil {
		t.Fatalf("claim: job=%v err=%v", job, err)
	}
	return job
}

func healthyAnalysisServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
            "success": true,
            "features": {"jitter": 0.01},
            "prediction": {
                "condition": "Healthy",
                "confidence": 0.95,
                "health_score": 92.0,
                "recommendations": ["Stay hydrated"]
            }
        }`)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestProcessHappyPath(t *testing.T) {
	server := healthyAnalysisServer(t)
	f := newFixture(t, server.URL)
	ctx := context.Background()

	job := f.submit(t, "sub-1")
	if err := f.processor.Process(ctx, job); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	sub, err := f.submissions.GetByID(ctx, "sub-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if sub.Status != submission.StatusCompleted {
		t.Fatalf("status = %s, want completed", sub.Status)
	}
	result, err := sub.Result()
	if err != nil {
		t.Fatalf("Result failed: %v", err)
	}
	if result.Condition != "Healthy" || result.HealthScore != 92.0 {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.Features["jitter"] != 0.01 {
		t.Fatalf("features not carried through: %+v", result)
	}

	got, err := f.jobs.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("job lookup failed: %v", err)
	}
	if got.State != queue.StateCompleted {
		t.Fatalf("job state = %s, want completed", got.State)
	}

	events, _, err := f.hub.Fetch(ctx, "alice", 0, 10, false)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected processing then completed events, got %d", len(events))
	}
	if events[0].Type != notify.EventProcessing || events[1].Type != notify.EventCompleted {
		t.Fatalf("unexpected event order %v %v", events[0].Type, events[1].Type)
	}
	if events[1].Result == nil || events[1].Result.Condition != "Healthy" {
		t.Fatalf("completed event should carry the result, got %+v", events[1].Result)
	}
}

func TestProcessTransientFailureLeavesProcessing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	f := newFixture(t, server.URL)
	ctx := context.Background()

	job := f.submit(t, "sub-1")
	if err := f.processor.Process(ctx, job); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	sub, err := f.submissions.GetByID(ctx, "sub-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if sub.Status != submission.StatusProcessing {
		t.Fatalf("status = %s, transient failure with attempts left should stay processing", sub.Status)
	}

	got, err := f.jobs.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("job lookup failed: %v", err)
	}
	if got.State != queue.StatePending {
		t.Fatalf("job state = %s, want pending for retry", got.State)
	}
	if got.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", got.Attempts)
	}

	events, _, err := f.hub.Fetch(ctx, "alice", 0, 10, false)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(events) != 1 || events[0].Type != notify.EventProcessing {
		t.Fatalf("no terminal event should fire before resolution, got %+v", events)
	}
}

func TestProcessOfflineThenRecovery(t *testing.T) {
	var healthy atomic.Bool
	backend := healthyAnalysisServer(t)
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			http.Error(w, "bad gateway", http.StatusBadGateway)
			return
		}
		resp, err := http.Get(backend.URL + "/analyze")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		defer resp.Body.Close()
		w.Header().Set("Content-Type", "application/json")
		io.Copy(w, resp.Body)
	}))
	defer proxy.Close()

	f := newFixture(t, proxy.URL)
	ctx := context.Background()

	job := f.submit(t, "sub-1")
	if err := f.processor.Process(ctx, job); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	// The first delivery failed against the unavailable service. Recover it
	// and let the queue redeliver.
	healthy.Store(true)
	job, err := f.jobs.Claim(ctx, time.Minute)
	if err != nil || job == nil {
		t.Fatalf("redelivery claim: job=%v err=%v", job, err)
	}
	if job.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2", job.Attempts)
	}
	if err := f.processor.Process(ctx, job); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	sub, err := f.submissions.GetByID(ctx, "sub-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if sub.Status != submission.StatusCompleted {
		t.Fatalf("status = %s, want completed after recovery", sub.Status)
	}

	events, _, err := f.hub.Fetch(ctx, "alice", 0, 10, false)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("redelivery should not duplicate the processing event, got %d events", len(events))
	}
}

func TestProcessExhaustedAttemptsFailsSubmission(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer server.Close()

	f := newFixture(t, server.URL)
	ctx := context.Background()

	job := f.submit(t, "sub-1")
	for {
		if err := f.processor.Process(ctx, job); err != nil {
			t.Fatalf("Process failed: %v", err)
		}
		var err error
		job, err = f.jobs.Claim(ctx, time.Minute)
		if err != nil {
			t.Fatalf("Claim failed: %v", err)
		}
		if job == nil {
			break
		}
	}

	sub, err := f.submissions.GetByID(ctx, "sub-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if sub.Status != submission.StatusFailed {
		t.Fatalf("status = %s, want failed after attempts exhausted", sub.Status)
	}
	if sub.ErrorCode != "SERVICE_UNAVAILABLE" {
		t.Fatalf("error code = %s", sub.ErrorCode)
	}

	jobRow, err := f.jobs.GetBySubmission(ctx, "sub-1")
	if err != nil {
		t.Fatalf("job lookup failed: %v", err)
	}
	if jobRow.State != queue.StateFailed || jobRow.Attempts != 3 {
		t.Fatalf("job should be failed after 3 attempts, got %+v", jobRow)
	}

	events, _, err := f.hub.Fetch(ctx, "alice", 0, 10, false)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	last := events[len(events)-1]
	if last.Type != notify.EventFailed || last.ErrorCode != "SERVICE_UNAVAILABLE" {
		t.Fatalf("unexpected terminal event %+v", last)
	}
}

func TestProcessValidationErrorIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"detail": "Unsupported audio format. Use WAV."}`)
	}))
	defer server.Close()

	f := newFixture(t, server.URL)
	ctx := context.Background()

	job := f.submit(t, "sub-1")
	if err := f.processor.Process(ctx, job); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	sub, err := f.submissions.GetByID(ctx, "sub-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if sub.Status != submission.StatusFailed {
		t.Fatalf("status = %s, validation errors must not retry", sub.Status)
	}
	if sub.ErrorCode != "VALIDATION" || sub.ErrorMessage != "Unsupported audio format. Use WAV." {
		t.Fatalf("unexpected error fields %+v", sub)
	}

	jobRow, err := f.jobs.GetBySubmission(ctx, "sub-1")
	if err != nil {
		t.Fatalf("job lookup failed: %v", err)
	}
	if jobRow.State != queue.StateFailed || jobRow.Attempts != 1 {
		t.Fatalf("permanent failure should park on first attempt, got %+v", jobRow)
	}
}

func TestProcessMissingRecordingIsPermanent(t *testing.T) {
	server := healthyAnalysisServer(t)
	f := newFixture(t, server.URL)
	ctx := context.Background()

	job := f.submit(t, "sub-1")
	if err := f.recordings.Remove(ctx, "recordings/sub-1.wav"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	if err := f.processor.Process(ctx, job); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	sub, err := f.submissions.GetByID(ctx, "sub-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if sub.Status != submission.StatusFailed {
		t.Fatalf("status = %s, missing recording must fail permanently", sub.Status)
	}
	if sub.ErrorCode != "NOT_FOUND" {
		t.Fatalf("error code = %s", sub.ErrorCode)
	}
}

func TestProcessMissingSubmissionParksJob(t *testing.T) {
	server := healthyAnalysisServer(t)
	f := newFixture(t, server.URL)
	ctx := context.Background()

	if _, _, err := f.jobs.Enqueue(ctx, "ghost", "alice", "recordings/ghost.wav", 0); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	job, err := f.jobs.Claim(ctx, time.Minute)
	if err != nil || job == nil {
		t.Fatalf("Claim failed: job=%v err=%v", job, err)
	}

	if err := f.processor.Process(ctx, job); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	jobRow, err := f.jobs.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("job lookup failed: %v", err)
	}
	if jobRow.State != queue.StateFailed {
		t.Fatalf("job state = %s, want failed", jobRow.State)
	}
}

func TestProcessResolvedSubmissionCompletesJob(t *testing.T) {
	server := healthyAnalysisServer(t)
	f := newFixture(t, server.URL)
	ctx := context.Background()

	job := f.submit(t, "sub-1")
	if _, err := f.submissions.MarkProcessing(ctx, "sub-1"); err != nil {
		t.Fatalf("MarkProcessing failed: %v", err)
	}
	if err := f.submissions.MarkCompleted(ctx, "sub-1", &submission.Result{Condition: "Healthy"}); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}

	if err := f.processor.Process(ctx, job); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	jobRow, err := f.jobs.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("job lookup failed: %v", err)
	}
	if jobRow.State != queue.StateCompleted {
		t.Fatalf("job covering a resolved submission should complete, got %s", jobRow.State)
	}

	events, _, err := f.hub.Fetch(ctx, "alice", 0, 10, false)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("no events should fire for an already resolved submission, got %+v", events)
	}
}
