package stackstorm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client talks to the StackStorm v1 API. StackStorm is opaque beyond this
// contract: we start executions and read back their identifiers.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a StackStorm API client with a bounded request timeout.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Execution is the subset of StackStorm's execution object we consume.
type Execution struct {
	ID     string `json:"id"`
	Action string `json:"action,omitempty"`
	Status string `json:"status,omitempty"`
}

type executionRequest struct {
	Action     string                 `json:"action"`
	Parameters map[string]interface{} `json:"parameters"`
}

// CreateExecution starts the given workflow with the given parameters and
// returns the remote execution. Any non-2xx response is an error; the caller
// decides whether to surface it to a retry mechanism.
func (c *Client) CreateExecution(ctx context.Context, action string, parameters map[string]interface{}) (*Execution, error) {
	body, err := json.Marshal(executionRequest{
		Action:     action,
		Parameters: parameters,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal execution request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/executions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create execution request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stackstorm request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("stackstorm returned %d: %s", resp.StatusCode, readBodyExcerpt(resp.Body))
	}

	var execution Execution
	if err := json.NewDecoder(resp.Body).Decode(&execution); err != nil {
		return nil, fmt.Errorf("failed to decode execution response: %w", err)
	}
	if execution.ID == "" {
		return nil, fmt.Errorf("stackstorm response missing execution id")
	}

	return &execution, nil
}

// GetExecution fetches the current state of a remote execution.
func (c *Client) GetExecution(ctx context.Context, executionID string) (*Execution, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/executions/"+executionID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create execution request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stackstorm request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stackstorm returned %d: %s", resp.StatusCode, readBodyExcerpt(resp.Body))
	}

	var execution Execution
	if err := json.NewDecoder(resp.Body).Decode(&execution); err != nil {
		return nil, fmt.Errorf("failed to decode execution response: %w", err)
	}
	return &execution, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("St2-Api-Key", c.apiKey)
	}
}

// readBodyExcerpt returns up to 512 bytes of a response body for error
// messages.
func readBodyExcerpt(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 512))
	if err != nil || len(data) == 0 {
		return "(no body)"
	}
	return string(data)
}
