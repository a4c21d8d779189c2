package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"strings"
	"time"

	"vocalis/internal/config"
	"vocalis/internal/logging"
	"vocalis/internal/services"
)

// Client calls the remote voice analysis service.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	timeout       time.Duration
	retryAttempts int
	retryDelay    time.Duration
	logger        *slog.Logger
}

// NewClient constructs a client from configuration.
func NewClient(cfg *config.Config, logger *slog.Logger) *Client {
	return &Client{
		baseURL:       cfg.Analysis.BaseURL,
		httpClient:    &http.Client{},
		timeout:       cfg.AnalysisTimeout(),
		retryAttempts: cfg.Analysis.RetryAttempts,
		retryDelay:    cfg.AnalysisRetryDelay(),
		logger:        logging.NewComponentLogger(logger, "analysis"),
	}
}

// Analyze uploads a recording for scoring. Timed-out calls are retried with a
// fixed delay up to the configured attempt budget; all other failures are
// returned immediately with a classified error.
func (c *Client) Analyze(ctx context.Context, fileName string, recording io.Reader) (*Result, error) {
	payload, err := io.ReadAll(recording)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "read recording", err)
	}

	attempts := c.retryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := c.analyzeOnce(ctx, fileName, payload)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !errors.Is(err, services.ErrTimeout) || attempt == attempts {
			return nil, err
		}

		c.logger.Warn("analysis call timed out, retrying",
			logging.Int(logging.FieldAttempt, attempt),
			logging.Duration("retry_delay", c.retryDelay),
		)
		select {
		case <-time.After(c.retryDelay):
		case <-ctx.Done():
			return nil, services.Wrap(services.ErrTimeout, "analysis canceled", ctx.Err())
		}
	}
	return nil, lastErr
}

func (c *Client) analyzeOnce(ctx context.Context, fileName string, payload []byte) (*Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "build multipart request", err)
	}
	if _, err := part.Write(payload); err != nil {
		return nil, services.Wrap(services.ErrTransient, "build multipart request", err)
	}
	if err := writer.Close(); err != nil {
		return nil, services.Wrap(services.ErrTransient, "build multipart request", err)
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+"/analyze", &body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "build analysis request", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, services.Wrap(services.ErrServiceUnavailable, "read analysis response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatusError(resp.StatusCode, raw)
	}

	var result Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, services.Wrap(services.ErrServiceUnavailable, "decode analysis response", err)
	}
	if !result.Success {
		message := result.Error
		if message == "" {
			message = "analysis reported failure without detail"
		}
		return nil, services.New(services.ErrTransient, message)
	}
	return &result, nil
}

// Health probes the analysis service.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "build health request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, services.Wrap(services.ErrServiceUnavailable, "read health response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatusError(resp.StatusCode, raw)
	}

	var status HealthStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, services.Wrap(services.ErrServiceUnavailable, "decode health response", err)
	}
	return &status, nil
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "analysis service timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return services.Wrap(services.ErrTimeout, "analysis service timed out", err)
	}
	return services.Wrap(services.ErrOffline, "analysis service unreachable", err)
}

func classifyStatusError(statusCode int, body []byte) error {
	message := serviceMessage(body)

	switch {
	case statusCode == http.StatusBadRequest || statusCode == http.StatusUnprocessableEntity:
		if message == "" {
			message = "recording rejected by analysis service"
		}
		return services.New(services.ErrValidation, message)
	case statusCode == http.StatusServiceUnavailable && strings.Contains(strings.ToLower(message), "model not loaded"):
		return services.New(services.ErrModelNotLoaded, message)
	case statusCode == http.StatusServiceUnavailable:
		if message == "" {
			message = "analysis service unavailable"
		}
		return services.New(services.ErrServiceUnavailable, message)
	default:
		if message == "" {
			message = fmt.Sprintf("analysis service returned status %d", statusCode)
		}
		return services.New(services.ErrTransient, message)
	}
}

// serviceMessage digs the human readable error out of the service's response
// body, which uses either a detail or an error field.
func serviceMessage(body []byte) string {
	var envelope struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return strings.TrimSpace(string(body))
	}
	if envelope.Detail != "" {
		return envelope.Detail
	}
	return envelope.Error
}
