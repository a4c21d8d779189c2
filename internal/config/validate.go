package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the configuration for errors and returns all problems found.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Paths.DataDir) == "" {
		problems = append(problems, "paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.UploadDir) == "" {
		problems = append(problems, "paths.upload_dir must be set")
	}
	if strings.TrimSpace(c.Paths.APIBind) == "" {
		problems = append(problems, "paths.api_bind must be set")
	}

	if c.Analysis.BaseURL == "" {
		problems = append(problems, "analysis.base_url must be set")
	} else if parsed, err := url.Parse(c.Analysis.BaseURL); err != nil || parsed.Scheme == "" || parsed.Host == "" {
		problems = append(problems, fmt.Sprintf("analysis.base_url %q is not a valid URL", c.Analysis.BaseURL))
	}
	if c.Analysis.RequestTimeout <= 0 {
		problems = append(problems, "analysis.request_timeout must be positive")
	}
	if c.Analysis.RetryAttempts < 1 {
		problems = append(problems, "analysis.retry_attempts must be at least 1")
	}
	if c.Analysis.RetryDelay < 0 {
		problems = append(problems, "analysis.retry_delay must not be negative")
	}

	switch c.Artifacts.Backend {
	case "fs":
	case "minio":
		if strings.TrimSpace(c.Artifacts.Minio.Endpoint) == "" {
			problems = append(problems, "artifacts.minio.endpoint must be set for the minio backend")
		}
		if strings.TrimSpace(c.Artifacts.Minio.Bucket) == "" {
			problems = append(problems, "artifacts.minio.bucket must be set for the minio backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("artifacts.backend %q is not supported (use fs or minio)", c.Artifacts.Backend))
	}

	if c.Queue.MaxAttempts < 1 {
		problems = append(problems, "queue.max_attempts must be at least 1")
	}
	if c.Queue.BackoffBase < 0 {
		problems = append(problems, "queue.backoff_base must not be negative")
	}
	if c.Queue.Concurrency < 1 {
		problems = append(problems, "queue.concurrency must be at least 1")
	}
	if c.Queue.PollInterval < 1 {
		problems = append(problems, "queue.poll_interval must be at least 1")
	}
	if c.Queue.RateLimit < 1 {
		problems = append(problems, "queue.rate_limit must be at least 1")
	}
	if c.Queue.RateWindow < 1 {
		problems = append(problems, "queue.rate_window must be at least 1")
	}
	if c.Queue.SuccessRetention < 0 {
		problems = append(problems, "queue.success_retention must not be negative")
	}
	if c.Queue.SuccessMaxCount < 1 {
		problems = append(problems, "queue.success_max_count must be at least 1")
	}
	if c.Queue.FailureRetention < 0 {
		problems = append(problems, "queue.failure_retention must not be negative")
	}
	if c.Queue.LeaseTimeout < 1 {
		problems = append(problems, "queue.lease_timeout must be at least 1")
	}
	if c.Queue.ReconcileInterval < 1 {
		problems = append(problems, "queue.reconcile_interval must be at least 1")
	}
	if c.Queue.ReconcileGrace < c.Queue.LeaseTimeout {
		problems = append(problems, "queue.reconcile_grace must be at least queue.lease_timeout")
	}

	if c.Notifications.BufferSize < 1 {
		problems = append(problems, "notifications.buffer_size must be at least 1")
	}

	switch c.Logging.Format {
	case "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q is not supported (use console or json)", c.Logging.Format))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("logging.level %q is not supported", c.Logging.Level))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}
