package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir   string `toml:"data_dir"`
	LogDir    string `toml:"log_dir"`
	UploadDir string `toml:"upload_dir"`
	APIBind   string `toml:"api_bind"`
	APIToken  string `toml:"api_token"`
}

// Analysis contains connection settings for the remote ML analysis service.
type Analysis struct {
	BaseURL        string `toml:"base_url"`
	RequestTimeout int    `toml:"request_timeout"`
	RetryAttempts  int    `toml:"retry_attempts"`
	RetryDelay     int    `toml:"retry_delay"`
}

// Minio contains object-store credentials for the MinIO artifact backend.
type Minio struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	Region    string `toml:"region"`
	UseSSL    bool   `toml:"use_ssl"`
}

// Artifacts selects and configures the artifact store backend.
type Artifacts struct {
	Backend string `toml:"backend"`
	Minio   Minio  `toml:"minio"`
}

// Queue contains the job queue execution policy.
type Queue struct {
	MaxAttempts       int `toml:"max_attempts"`
	BackoffBase       int `toml:"backoff_base"`
	Concurrency       int `toml:"concurrency"`
	PollInterval      int `toml:"poll_interval"`
	RateLimit         int `toml:"rate_limit"`
	RateWindow        int `toml:"rate_window"`
	SuccessRetention  int `toml:"success_retention"`
	SuccessMaxCount   int `toml:"success_max_count"`
	FailureRetention  int `toml:"failure_retention"`
	LeaseTimeout      int `toml:"lease_timeout"`
	ReconcileInterval int `toml:"reconcile_interval"`
	ReconcileGrace    int `toml:"reconcile_grace"`
}

// Notifications contains settings for the live event hub.
type Notifications struct {
	BufferSize int `toml:"buffer_size"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for Vocalis.
//
// Configuration sections by subsystem:
//   - Paths: data/log/upload directories and API bind address
//   - Analysis: remote ML service connection, timeout, and local retry
//   - Artifacts: artifact store backend selection (filesystem or MinIO)
//   - Queue: attempts, backoff, concurrency, rate ceiling, retention
//   - Notifications: per-subscriber event buffer size
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Analysis      Analysis      `toml:"analysis"`
	Artifacts     Artifacts     `toml:"artifacts"`
	Queue         Queue         `toml:"queue"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/vocalis/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("vocalis.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	if c.Paths.UploadDir, err = expandPath(c.Paths.UploadDir); err != nil {
		return err
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	c.Analysis.BaseURL = strings.TrimRight(strings.TrimSpace(c.Analysis.BaseURL), "/")
	c.Artifacts.Backend = strings.ToLower(strings.TrimSpace(c.Artifacts.Backend))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	return nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.UploadDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// AnalysisTimeout returns the per-call wall clock limit for remote analysis.
func (c *Config) AnalysisTimeout() time.Duration {
	return time.Duration(c.Analysis.RequestTimeout) * time.Second
}

// AnalysisRetryDelay returns the fixed delay between local analysis retries.
func (c *Config) AnalysisRetryDelay() time.Duration {
	return time.Duration(c.Analysis.RetryDelay) * time.Second
}

// BackoffBase returns the starting delay of the queue's exponential backoff.
func (c *Config) BackoffBase() time.Duration {
	return time.Duration(c.Queue.BackoffBase) * time.Second
}

// PollInterval returns the worker idle poll interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Queue.PollInterval) * time.Second
}

// RateWindow returns the window over which the job rate ceiling applies.
func (c *Config) RateWindow() time.Duration {
	return time.Duration(c.Queue.RateWindow) * time.Second
}

// SuccessRetention returns how long completed jobs are retained.
func (c *Config) SuccessRetention() time.Duration {
	return time.Duration(c.Queue.SuccessRetention) * time.Second
}

// FailureRetention returns how long exhausted jobs are retained for audit.
func (c *Config) FailureRetention() time.Duration {
	return time.Duration(c.Queue.FailureRetention) * time.Second
}

// LeaseTimeout returns how long a claimed job may run before its lease lapses.
func (c *Config) LeaseTimeout() time.Duration {
	return time.Duration(c.Queue.LeaseTimeout) * time.Second
}

// ReconcileInterval returns how often the orphan reconciliation sweep runs.
func (c *Config) ReconcileInterval() time.Duration {
	return time.Duration(c.Queue.ReconcileInterval) * time.Second
}

// ReconcileGrace returns how long a submission may sit in processing before
// the sweep considers it orphaned.
func (c *Config) ReconcileGrace() time.Duration {
	return time.Duration(c.Queue.ReconcileGrace) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
