package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vocalis/internal/api"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()

	base := t.TempDir()
	configPath := filepath.Join(base, "config.toml")
	content := fmt.Sprintf(`[paths]
data_dir = %q
log_dir = %q
upload_dir = %q
api_bind = "127.0.0.1:0"

[analysis]
base_url = "http://127.0.0.1:1"

[logging]
format = "json"
`, filepath.Join(base, "data"), filepath.Join(base, "logs"), filepath.Join(base, "uploads"))
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return configPath
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "vocalis.toml")

	out, err := runCommand(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, target) {
		t.Fatalf("output does not mention target: %q", out)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample config missing: %v", err)
	}

	if _, err := runCommand(t, "config", "init", "--path", target); err == nil {
		t.Fatal("second init without --overwrite should fail")
	}
}

func TestSubmitAndShowRoundTrip(t *testing.T) {
	configPath := writeTestConfig(t)

	recording := filepath.Join(t.TempDir(), "morning.wav")
	if err := os.WriteFile(recording, []byte("RIFF....WAVE"), 0o644); err != nil {
		t.Fatalf("write recording: %v", err)
	}

	out, err := runCommand(t, "--config", configPath, "submit", recording, "--owner", "alice", "--json")
	if err != nil {
		t.Fatalf("submit: %v (output %q)", err, out)
	}
	var submitted api.SubmitResponse
	if err := json.Unmarshal([]byte(out), &submitted); err != nil {
		t.Fatalf("decode submit output: %v", err)
	}
	if submitted.Submission.OwnerID != "alice" || submitted.Submission.Status != "pending" {
		t.Fatalf("unexpected submission: %+v", submitted.Submission)
	}

	out, err = runCommand(t, "--config", configPath, "show", submitted.Submission.ID, "--json")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	var detail api.SubmissionResponse
	if err := json.Unmarshal([]byte(out), &detail); err != nil {
		t.Fatalf("decode show output: %v", err)
	}
	if detail.Job == nil || detail.Job.State != "pending" {
		t.Fatalf("expected pending job, got %+v", detail.Job)
	}

	out, err = runCommand(t, "--config", configPath, "queue", "list", "--json")
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	var jobs api.JobListResponse
	if err := json.Unmarshal([]byte(out), &jobs); err != nil {
		t.Fatalf("decode queue list output: %v", err)
	}
	if len(jobs.Jobs) != 1 {
		t.Fatalf("queue list returned %d jobs, want 1", len(jobs.Jobs))
	}
}

func TestSubmitRequiresOwner(t *testing.T) {
	configPath := writeTestConfig(t)
	recording := filepath.Join(t.TempDir(), "morning.wav")
	if err := os.WriteFile(recording, []byte("RIFF....WAVE"), 0o644); err != nil {
		t.Fatalf("write recording: %v", err)
	}

	if _, err := runCommand(t, "--config", configPath, "submit", recording); err == nil {
		t.Fatal("submit without --owner should fail")
	}
}

func TestStatusOfflineFallback(t *testing.T) {
	configPath := writeTestConfig(t)

	out, err := runCommand(t, "--config", configPath, "status", "--json")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "\"Running\": false") && !strings.Contains(out, "\"Running\":false") {
		t.Fatalf("status should report not running: %q", out)
	}
}
