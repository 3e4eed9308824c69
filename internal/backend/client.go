// Package backend talks to the orchestration backend's REST API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lei/runwatch/internal/models"
	"github.com/lei/runwatch/pkg/logger"
)

// Client handles HTTP communication with the orchestration backend
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logger.Logger
}

// Envelope is the backend's success/failure answer to a command
type Envelope struct {
	Success *bool  `json:"success,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Failed reports whether the backend explicitly refused the command
func (e *Envelope) Failed() bool {
	return e.Success != nil && !*e.Success
}

// NewClient creates a new backend API client. apiKey is optional.
func NewClient(baseURL, apiKey string, timeout time.Duration, log *logger.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     log,
	}
}

func (c *Client) getLogger(ctx context.Context) *logger.Logger {
	return logger.FromContext(ctx, c.logger)
}

// doRequest performs an HTTP request. body, when non-nil, is sent as JSON.
// Transport failures are wrapped in ErrNetwork.
func (c *Client) doRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	log := c.getLogger(ctx)
	log.Debug("backend: http request",
		"method", method,
		"path", path)

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		log.Error("backend: failed to create request", "error", err)
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error("backend: http request failed",
			"method", method,
			"path", path,
			"error", err)
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	log.Debug("backend: http response",
		"method", method,
		"path", path,
		"status", resp.StatusCode)

	return resp, nil
}

// GetWorkflowResult fetches the status and stage log of one run
func (c *Client) GetWorkflowResult(ctx context.Context, id models.RunIdentity) (*models.RunReport, error) {
	path := "/api/workflow-result/" + id.PathSegments()

	resp, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseError(resp)
	}

	var report models.RunReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("decode workflow result: %w", err)
	}
	return &report, nil
}

// ListRuns fetches the most recent runs for the list view
func (c *Client) ListRuns(ctx context.Context, limit int) ([]models.RunSummary, error) {
	path := "/api/workflow-runs"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	resp, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseError(resp)
	}

	var raw any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode workflow runs: %w", err)
	}
	return mapRunList(raw), nil
}

// Terminate asks the backend to stop a run
func (c *Client) Terminate(ctx context.Context, id models.RunIdentity, reason string) (*Envelope, error) {
	path := "/api/workflow-terminate/" + id.PathSegments()
	return c.command(ctx, path, map[string]string{"reason": reason})
}

// RetryStage asks the backend to re-run one named stage of a run
func (c *Client) RetryStage(ctx context.Context, id models.RunIdentity, stage string) (*Envelope, error) {
	return c.command(ctx, "/api/retry-publish-script", map[string]string{
		"workflow_id": id.WorkflowID,
		"run_id":      id.RunID,
		"stage":       stage,
	})
}

// Ping checks that the backend answers at all
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/workflow-runs?limit=1", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return parseError(resp)
	}
	return nil
}

func (c *Client) command(ctx context.Context, path string, body any) (*Envelope, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseError(resp)
	}

	var env Envelope
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read command response: %w", err)
	}
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("decode command response: %w", err)
		}
	}
	if env.Failed() {
		msg := env.Error
		if msg == "" {
			msg = env.Message
		}
		return &env, fmt.Errorf("%w: %s", ErrRejected, msg)
	}
	return &env, nil
}

// escapeSegment percent-encodes a single path segment
func escapeSegment(s string) string {
	return url.PathEscape(s)
}
