// Package daemonctl lets the CLI talk to a running vocalis daemon over its
// HTTP API, with direct store fallbacks when the daemon is offline.
package daemonctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"vocalis/internal/api"
	"vocalis/internal/config"
	"vocalis/internal/queue"
	"vocalis/internal/submission"
)

// ErrDaemonNotRunning indicates the daemon API is unreachable.
var ErrDaemonNotRunning = errors.New("daemon not running")

// endpointFile records the daemon's bound API address so the CLI can reach a
// daemon bound to an ephemeral port.
const endpointFile = "vocalisd.endpoint"

// RecordEndpoint persists the daemon's bound API address under the data
// directory. Best effort.
func RecordEndpoint(cfg *config.Config, addr string) {
	if cfg == nil || strings.TrimSpace(addr) == "" {
		return
	}
	path := filepath.Join(cfg.Paths.DataDir, endpointFile)
	_ = os.WriteFile(path, []byte(addr+"\n"), 0o644)
}

// ResolveEndpoint returns the daemon API address: the recorded endpoint when
// present, otherwise the configured bind address.
func ResolveEndpoint(cfg *config.Config) string {
	if cfg == nil {
		return ""
	}
	path := filepath.Join(cfg.Paths.DataDir, endpointFile)
	if data, err := os.ReadFile(path); err == nil {
		if addr := strings.TrimSpace(string(data)); addr != "" {
			return addr
		}
	}
	return strings.TrimSpace(cfg.Paths.APIBind)
}

// Client is a thin HTTP client for the daemon API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient builds a client for the daemon's recorded or configured endpoint.
func NewClient(cfg *config.Config) *Client {
	addr := ResolveEndpoint(cfg)
	token := ""
	if cfg != nil {
		token = strings.TrimSpace(cfg.Paths.APIToken)
	}
	return &Client{
		baseURL: "http://" + addr,
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDaemonNotRunning, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var payload struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&payload)
		if payload.Error != "" {
			return fmt.Errorf("daemon API %s: %s", path, payload.Error)
		}
		return fmt.Errorf("daemon API %s: status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Status fetches daemon runtime status.
func (c *Client) Status(ctx context.Context) (*api.DaemonStatus, error) {
	var status api.DaemonStatus
	if err := c.get(ctx, "/api/status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Health fetches the daemon liveness and analysis service probe.
func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	var health api.HealthResponse
	if err := c.get(ctx, "/api/health", &health); err != nil {
		return nil, err
	}
	return &health, nil
}

// StatusSnapshot aggregates daemon status, falling back to direct store reads
// when the daemon is not running.
type StatusSnapshot struct {
	Running     bool
	PID         int
	Queue       map[string]int
	Submissions map[string]int
}

// BuildStatusSnapshot collects daemon status and applies offline fallbacks
// for queue and submission stats.
func BuildStatusSnapshot(ctx context.Context, cfg *config.Config) (*StatusSnapshot, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}

	client := NewClient(cfg)
	if status, err := client.Status(ctx); err == nil {
		return &StatusSnapshot{
			Running:     status.Running,
			PID:         status.PID,
			Queue:       status.Queue,
			Submissions: status.Submissions,
		}, nil
	}

	queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	snapshot := &StatusSnapshot{}
	if store, err := queue.Open(cfg); err == nil {
		if stats, statsErr := store.Stats(queryCtx); statsErr == nil {
			snapshot.Queue = api.MergeQueueStats(stats)
		}
		_ = store.Close()
	}
	if store, err := submission.Open(cfg); err == nil {
		if stats, statsErr := store.Stats(queryCtx); statsErr == nil {
			snapshot.Submissions = api.MergeSubmissionStats(stats)
		}
		_ = store.Close()
	}
	return snapshot, nil
}

// ProcessInfo reads the daemon pid file when present.
func ProcessInfo(cfg *config.Config) (int, bool) {
	if cfg == nil {
		return 0, false
	}
	data, err := os.ReadFile(filepath.Join(cfg.Paths.DataDir, "vocalisd.pid"))
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}
