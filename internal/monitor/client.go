package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	qhttp "github.com/fyrsmithlabs/quorum/internal/http"
)

// ErrNoPipeline is returned when the server has no pipeline state yet.
var ErrNoPipeline = errors.New("no pipeline has been started")

// StatusClient queries the quorum status API.
type StatusClient struct {
	baseURL string
	client  *http.Client
}

// NewStatusClient creates a new status client
func NewStatusClient(baseURL string) *StatusClient {
	return &StatusClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 2 * time.Second,
		},
	}
}

// Status fetches GET /api/v1/status.
func (c *StatusClient) Status(ctx context.Context) (*qhttp.StatusResponse, error) {
	var out qhttp.StatusResponse
	if err := c.get(ctx, "/api/v1/status", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health fetches GET /health.
func (c *StatusClient) Health(ctx context.Context) error {
	var out qhttp.HealthResponse
	if err := c.get(ctx, "/health", &out); err != nil {
		return err
	}
	if out.Status != "ok" {
		return fmt.Errorf("server reports %q", out.Status)
	}
	return nil
}

func (c *StatusClient) get(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound && path != "/health":
		return ErrNoPipeline
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
