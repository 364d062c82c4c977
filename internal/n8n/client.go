// Package n8n is the HTTP client for the workflow-automation backend. It
// operates on opaque workflow and execution identifiers and holds no
// persisted state of its own.
package n8n

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/innovareai/sam-funnel-engine/internal/logging"
	"github.com/innovareai/sam-funnel-engine/internal/metrics"
	"github.com/innovareai/sam-funnel-engine/pkg/models"
)

// executeAttempts bounds the retry loop for core funnel executions.
const executeAttempts = 3

// Config carries the connection settings for the automation backend.
type Config struct {
	BaseURL string
	APIKey  string
	// Timeout applies per outbound call. Zero means 30s.
	Timeout time.Duration
	// BackoffBase is the first retry delay; doubled on each subsequent
	// attempt. Zero means 1s. Tests shrink it.
	BackoffBase time.Duration
}

// Client issues deploy/execute/status/stop requests against the automation
// backend.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *logging.Logger
	stats      metrics.Metrics
}

// NewClient creates a Client. logger and stats may not be nil; pass
// metrics.Noop{} when instrumentation is not wanted.
func NewClient(cfg Config, logger *logging.Logger, stats metrics.Metrics) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BackoffBase == 0 {
		cfg.BackoffBase = time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		logger:     logger,
		stats:      stats,
	}
}

// Deploy validates a workflow definition locally, creates it on the backend
// and activates it. Validation failures surface immediately and are never
// sent over the wire.
func (c *Client) Deploy(ctx context.Context, def *models.WorkflowDefinition) (string, error) {
	if err := validateDefinition(def); err != nil {
		return "", err
	}

	body := map[string]interface{}{
		"name":        def.Name,
		"nodes":       def.Nodes,
		"connections": def.Connections,
		"settings":    settingsOrEmpty(def),
		"active":      false,
	}
	raw, err := c.makeRequest(ctx, http.MethodPost, "/workflows", body)
	if err != nil {
		c.stats.IncClientRequest("deploy", "error")
		return "", fmt.Errorf("create workflow: %w", err)
	}

	var created struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &created); err != nil {
		return "", fmt.Errorf("decode create workflow response: %w", err)
	}

	if _, err := c.makeRequest(ctx, http.MethodPost, "/workflows/"+created.Data.ID+"/activate", nil); err != nil {
		c.stats.IncClientRequest("deploy", "error")
		return "", fmt.Errorf("activate workflow %s: %w", created.Data.ID, err)
	}

	c.stats.IncClientRequest("deploy", "ok")
	c.logger.Info("Workflow deployed", "workflow_id", created.Data.ID, "name", def.Name)
	return created.Data.ID, nil
}

// Execute starts a core funnel execution. On failure it retries up to 3
// attempts total with exponential backoff before surfacing a terminal error
// that names the attempt count.
func (c *Client) Execute(ctx context.Context, workflowID string, payload map[string]interface{}) (string, error) {
	var lastErr error
	for attempt := 0; attempt < executeAttempts; attempt++ {
		id, err := c.executeWorkflow(ctx, workflowID, payload)
		if err == nil {
			c.stats.IncClientRequest("execute", "ok")
			return id, nil
		}
		lastErr = err
		c.logger.Warn("Core funnel execution attempt failed",
			"workflow_id", workflowID, "attempt", attempt+1, "error", err)

		if attempt < executeAttempts-1 {
			c.stats.IncClientRetry("execute")
			delay := c.cfg.BackoffBase << attempt
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	c.stats.IncClientRequest("execute", "error")
	return "", fmt.Errorf("execute workflow %s failed after %d attempts: %w", workflowID, executeAttempts, lastErr)
}

// ExecuteDynamic starts a dynamic funnel execution. It does not retry: an
// AI-generated definition may simply be invalid and retrying wastes cost.
func (c *Client) ExecuteDynamic(ctx context.Context, workflowID string, payload map[string]interface{}) (string, error) {
	id, err := c.executeWorkflow(ctx, workflowID, payload)
	if err != nil {
		c.stats.IncClientRequest("execute_dynamic", "error")
		return "", fmt.Errorf("execute dynamic workflow %s: %w", workflowID, err)
	}
	c.stats.IncClientRequest("execute_dynamic", "ok")
	return id, nil
}

// Update replaces a workflow definition wholesale.
func (c *Client) Update(ctx context.Context, workflowID string, def *models.WorkflowDefinition) error {
	if err := validateDefinition(def); err != nil {
		return err
	}
	body := map[string]interface{}{
		"name":        def.Name,
		"nodes":       def.Nodes,
		"connections": def.Connections,
		"settings":    settingsOrEmpty(def),
	}
	if _, err := c.makeRequest(ctx, http.MethodPut, "/workflows/"+workflowID, body); err != nil {
		c.stats.IncClientRequest("update", "error")
		return fmt.Errorf("update workflow %s: %w", workflowID, err)
	}
	c.stats.IncClientRequest("update", "ok")
	return nil
}

// GetStatus fetches the current state of an execution.
func (c *Client) GetStatus(ctx context.Context, executionID string) (*models.WorkflowExecution, error) {
	raw, err := c.makeRequest(ctx, http.MethodGet, "/executions/"+executionID, nil)
	if err != nil {
		c.stats.IncClientRequest("status", "error")
		return nil, fmt.Errorf("get execution status %s: %w", executionID, err)
	}
	var resp struct {
		Data models.WorkflowExecution `json:"data"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode execution status: %w", err)
	}
	c.stats.IncClientRequest("status", "ok")
	return &resp.Data, nil
}

// GetExecutionLogs fetches the per-node run data of an execution.
func (c *Client) GetExecutionLogs(ctx context.Context, executionID string) (map[string]interface{}, error) {
	raw, err := c.makeRequest(ctx, http.MethodGet, "/executions/"+executionID, nil)
	if err != nil {
		return nil, fmt.Errorf("get execution logs %s: %w", executionID, err)
	}
	var resp struct {
		Data struct {
			ResultData struct {
				RunData map[string]interface{} `json:"runData"`
			} `json:"resultData"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode execution logs: %w", err)
	}
	return resp.Data.ResultData.RunData, nil
}

// Stop aborts a running execution.
func (c *Client) Stop(ctx context.Context, executionID string) (bool, error) {
	if _, err := c.makeRequest(ctx, http.MethodPost, "/executions/"+executionID+"/stop", nil); err != nil {
		c.stats.IncClientRequest("stop", "error")
		return false, fmt.Errorf("stop execution %s: %w", executionID, err)
	}
	c.stats.IncClientRequest("stop", "ok")
	return true, nil
}

// Delete removes a workflow from the backend.
func (c *Client) Delete(ctx context.Context, workflowID string) (bool, error) {
	if _, err := c.makeRequest(ctx, http.MethodDelete, "/workflows/"+workflowID, nil); err != nil {
		c.stats.IncClientRequest("delete", "error")
		return false, fmt.Errorf("delete workflow %s: %w", workflowID, err)
	}
	c.stats.IncClientRequest("delete", "ok")
	return true, nil
}

// ListWorkflows lists the workflows registered on the backend.
func (c *Client) ListWorkflows(ctx context.Context) ([]models.WorkflowSummary, error) {
	raw, err := c.makeRequest(ctx, http.MethodGet, "/workflows", nil)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	var resp struct {
		Data []models.WorkflowSummary `json:"data"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode workflow list: %w", err)
	}
	return resp.Data, nil
}

func (c *Client) executeWorkflow(ctx context.Context, workflowID string, payload map[string]interface{}) (string, error) {
	raw, err := c.makeRequest(ctx, http.MethodPost, "/workflows/"+workflowID+"/execute", map[string]interface{}{
		"data": payload,
	})
	if err != nil {
		return "", err
	}
	var resp struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("decode execute response: %w", err)
	}
	return resp.Data.ID, nil
}

func (c *Client) makeRequest(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-N8N-API-KEY", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, &TimeoutError{Timeout: c.cfg.Timeout}
		}
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Status: resp.StatusCode, Body: string(raw)}
	}
	return raw, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr) && urlErr.Timeout()
}

func validateDefinition(def *models.WorkflowDefinition) error {
	if def == nil || def.Name == "" {
		return &ValidationError{Reason: "workflow definition must have a name"}
	}
	if len(def.Nodes) == 0 {
		return &ValidationError{Reason: "workflow definition must have at least one node"}
	}
	for _, node := range def.Nodes {
		if node.ID == "" || node.Name == "" || node.Type == "" {
			return &ValidationError{Reason: fmt.Sprintf("node %q is missing id, name or type", node.ID)}
		}
	}
	return nil
}

func settingsOrEmpty(def *models.WorkflowDefinition) map[string]interface{} {
	if def.Settings == nil {
		return map[string]interface{}{}
	}
	return def.Settings
}
