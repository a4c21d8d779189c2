package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"vocalis/internal/api"
	"vocalis/internal/artifacts"
	"vocalis/internal/config"
	"vocalis/internal/daemon"
	"vocalis/internal/logging"
	"vocalis/internal/notify"
	"vocalis/internal/testsupport"
)

type daemonFixture struct {
	cfg        *config.Config
	d          *daemon.Daemon
	recordings *artifacts.FSStore
	baseURL    string
	token      string
}

func newDaemonFixture(t *testing.T, opts ...testsupport.ConfigOption) *daemonFixture {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "/health") {
			io.WriteString(w, `{"status": "healthy", "model_loaded": true, "version": "1.0.0"}`)
			return
		}
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

	opts = append([]testsupport.ConfigOption{testsupport.WithAnalysisURL(server.URL)}, opts...)
	cfg := testsupport.NewConfig(t, opts...)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	jobs := testsupport.MustOpenStore(t, cfg)
	submissions := testsupport.MustOpenSubmissions(t, cfg)
	recordings, err := artifacts.NewFS(cfg.Paths.UploadDir)
	if err != nil {
		t.Fatalf("artifacts.NewFS: %v", err)
	}

	d, err := daemon.New(cfg, jobs, submissions, recordings, notify.NewHub(cfg.Notifications.BufferSize), logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(d.Stop)

	return &daemonFixture{
		cfg:        cfg,
		d:          d,
		recordings: recordings,
		baseURL:    "http://" + d.APIAddr(),
		token:      cfg.Paths.APIToken,
	}
}

func (f *daemonFixture) request(t *testing.T, method, path string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.baseURL+path, body)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestDaemonSingleInstance(t *testing.T) {
	f := newDaemonFixture(t)

	jobs := testsupport.MustOpenStore(t, f.cfg)
	submissions := testsupport.MustOpenSubmissions(t, f.cfg)
	second, err := daemon.New(f.cfg, jobs, submissions, f.recordings, nil, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("second daemon instance should not start")
	}
}

func TestSubmitAndPollToCompletion(t *testing.T) {
	f := newDaemonFixture(t)
	ctx := context.Background()

	payload := []byte("RIFF....WAVE")
	if err := f.recordings.Put(ctx, "recordings/sample.wav", bytes.NewReader(payload), int64(len(payload)), "audio/wav"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	body, _ := json.Marshal(api.SubmitRequest{OwnerID: "alice", RecordingKey: "recordings/sample.wav"})
	resp := f.request(t, http.MethodPost, "/api/submissions", bytes.NewReader(body), "application/json")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	submitted := decodeBody[api.SubmitResponse](t, resp)
	if !submitted.Created || submitted.Submission.Status != "pending" {
		t.Fatalf("unexpected submit response: %+v", submitted)
	}

	deadline := time.Now().Add(30 * time.Second)
	for {
		resp := f.request(t, http.MethodGet, "/api/submissions/"+submitted.Submission.ID, nil, "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		detail := decodeBody[api.SubmissionResponse](t, resp)
		if detail.Submission.Status == "completed" {
			if detail.Submission.Result == nil || detail.Submission.Result.Condition != "Healthy" {
				t.Fatalf("unexpected result: %+v", detail.Submission.Result)
			}
			break
		}
		if detail.Submission.Status == "failed" {
			t.Fatalf("submission failed: %+v", detail.Submission)
		}
		if time.Now().After(deadline) {
			t.Fatalf("submission stuck in %s", detail.Submission.Status)
		}
		time.Sleep(50 * time.Millisecond)
	}

	resp = f.request(t, http.MethodGet, "/api/submissions?owner=alice", nil, "")
	listed := decodeBody[api.SubmissionListResponse](t, resp)
	if len(listed.Submissions) != 1 {
		t.Fatalf("listed %d submissions, want 1", len(listed.Submissions))
	}
}

func TestSubmitMultipartUpload(t *testing.T) {
	f := newDaemonFixture(t)

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	if err := form.WriteField("owner", "bob"); err != nil {
		t.Fatalf("WriteField: %v", err)
	}
	part, err := form.CreateFormFile("file", "evening.wav")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write([]byte("RIFF....WAVE")); err != nil {
		t.Fatalf("write part: %v", err)
	}
	form.Close()

	resp := f.request(t, http.MethodPost, "/api/submissions", &buf, form.FormDataContentType())
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	submitted := decodeBody[api.SubmitResponse](t, resp)
	if submitted.Submission.OwnerID != "bob" || submitted.Submission.FileName != "evening.wav" {
		t.Fatalf("unexpected submission: %+v", submitted.Submission)
	}
	if _, err := f.recordings.Stat(context.Background(), submitted.Submission.RecordingKey); err != nil {
		t.Fatalf("uploaded recording missing: %v", err)
	}
}

func TestSubmitRejectsUnknownRecording(t *testing.T) {
	f := newDaemonFixture(t)

	body, _ := json.Marshal(api.SubmitRequest{OwnerID: "alice", RecordingKey: "recordings/absent.wav"})
	resp := f.request(t, http.MethodPost, "/api/submissions", bytes.NewReader(body), "application/json")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestEventsLongPoll(t *testing.T) {
	f := newDaemonFixture(t)
	ctx := context.Background()

	payload := []byte("RIFF....WAVE")
	if err := f.recordings.Put(ctx, "recordings/sample.wav", bytes.NewReader(payload), int64(len(payload)), "audio/wav"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	body, _ := json.Marshal(api.SubmitRequest{OwnerID: "alice", RecordingKey: "recordings/sample.wav"})
	resp := f.request(t, http.MethodPost, "/api/submissions", bytes.NewReader(body), "application/json")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	deadline := time.Now().Add(30 * time.Second)
	var since uint64
	sawCompleted := false
	for !sawCompleted {
		if time.Now().After(deadline) {
			t.Fatal("no completed event observed")
		}
		resp := f.request(t, http.MethodGet, fmt.Sprintf("/api/events?owner=alice&since=%d&wait=1", since), nil, "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		page := decodeBody[api.EventStreamResponse](t, resp)
		for _, event := range page.Events {
			if event.OwnerID != "alice" {
				t.Fatalf("event for wrong owner: %+v", event)
			}
			if event.Type == "submission.completed" {
				if event.Result == nil || event.Result.Condition != "Healthy" {
					t.Fatalf("completed event missing result: %+v", event)
				}
				sawCompleted = true
			}
		}
		since = page.Next
	}
}

func TestEventsFreshSubscriberSkipsHistory(t *testing.T) {
	f := newDaemonFixture(t)
	ctx := context.Background()

	payload := []byte("RIFF....WAVE")
	if err := f.recordings.Put(ctx, "recordings/sample.wav", bytes.NewReader(payload), int64(len(payload)), "audio/wav"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	body, _ := json.Marshal(api.SubmitRequest{OwnerID: "alice", RecordingKey: "recordings/sample.wav"})
	resp := f.request(t, http.MethodPost, "/api/submissions", bytes.NewReader(body), "application/json")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	submitted := decodeBody[api.SubmitResponse](t, resp)

	deadline := time.Now().Add(30 * time.Second)
	for {
		resp := f.request(t, http.MethodGet, "/api/submissions/"+submitted.Submission.ID, nil, "")
		detail := decodeBody[api.SubmissionResponse](t, resp)
		if detail.Submission.Status == "completed" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("submission stuck in %s", detail.Submission.Status)
		}
		time.Sleep(50 * time.Millisecond)
	}

	// Connecting without a cursor must not replay the lifecycle events that
	// already fired.
	resp = f.request(t, http.MethodGet, "/api/events?owner=alice", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	fresh := decodeBody[api.EventStreamResponse](t, resp)
	if len(fresh.Events) != 0 {
		t.Fatalf("fresh subscriber received %d past events: %+v", len(fresh.Events), fresh.Events)
	}
	if fresh.Next == 0 {
		t.Fatal("fresh subscriber cursor should start at the current sequence")
	}

	// An explicit cursor still resumes from that point.
	resp = f.request(t, http.MethodGet, "/api/events?owner=alice&since=0", nil, "")
	resumed := decodeBody[api.EventStreamResponse](t, resp)
	if len(resumed.Events) == 0 {
		t.Fatal("explicit cursor should deliver the buffered events")
	}
}

func TestStatusEndpoint(t *testing.T) {
	f := newDaemonFixture(t)

	resp := f.request(t, http.MethodGet, "/api/status", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	status := decodeBody[api.DaemonStatus](t, resp)
	if !status.Running || status.PID == 0 {
		t.Fatalf("unexpected status: %+v", status)
	}
	if _, ok := status.Queue["pending"]; !ok {
		t.Fatalf("queue stats missing pending bucket: %+v", status.Queue)
	}
}

func TestHealthEndpointProbesAnalysis(t *testing.T) {
	f := newDaemonFixture(t)

	resp := f.request(t, http.MethodGet, "/api/health", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	health := decodeBody[api.HealthResponse](t, resp)
	if health.Status != "ok" || health.Analysis == nil || !health.Analysis.ModelLoaded {
		t.Fatalf("unexpected health: %+v", health)
	}
}

func TestBearerAuth(t *testing.T) {
	f := newDaemonFixture(t, func(cfg *config.Config) {
		cfg.Paths.APIToken = "sekrit"
	})

	req, err := http.NewRequest(http.MethodGet, f.baseURL+"/api/status", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /api/status: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status without token = %d, want 401", resp.StatusCode)
	}

	authed := f.request(t, http.MethodGet, "/api/status", nil, "")
	if authed.StatusCode != http.StatusOK {
		t.Fatalf("status with token = %d, want 200", authed.StatusCode)
	}

	unauthedHealth, err := http.DefaultClient.Get(f.baseURL + "/api/health")
	if err != nil {
		t.Fatalf("GET /api/health: %v", err)
	}
	unauthedHealth.Body.Close()
	if unauthedHealth.StatusCode != http.StatusOK {
		t.Fatalf("health without token = %d, want 200", unauthedHealth.StatusCode)
	}
}
