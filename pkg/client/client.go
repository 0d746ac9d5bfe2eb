// Package client talks to a running claude-usage-d over its HTTP API.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rmax-ai/claude-usage/pkg/api"
)

// DefaultEndpoint is where claude-usage-d listens by default.
const DefaultEndpoint = "http://127.0.0.1:8787"

// ErrRefreshInFlight is returned when the daemon is already polling.
var ErrRefreshInFlight = errors.New("daemon is already refreshing")

// Client is the claude-usage daemon client.
type Client struct {
	endpoint string
	http     *http.Client
	backoff  BackoffStrategy
}

// NewClient creates a client. endpoint defaults to DefaultEndpoint if empty.
func NewClient(endpoint string) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		endpoint: endpoint,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
		backoff: DefaultBackoff(),
	}
}

// SetBackoff replaces the strategy used while waiting for a refresh.
func (c *Client) SetBackoff(b BackoffStrategy) {
	c.backoff = b
}

// Ping checks the health of the daemon.
func (c *Client) Ping(ctx context.Context) error {
	var status struct {
		Status string `json:"status"`
	}
	if err := c.getJSON(ctx, "/v1/health", &status); err != nil {
		return err
	}
	if status.Status != "ok" {
		return fmt.Errorf("daemon reports status %q", status.Status)
	}
	return nil
}

// Usage fetches the daemon's latest snapshot.
func (c *Client) Usage(ctx context.Context) (api.UsageResponse, error) {
	var usage api.UsageResponse
	err := c.getJSON(ctx, "/v1/usage", &usage)
	return usage, err
}

// History fetches up to limit recorded snapshots, newest first.
func (c *Client) History(ctx context.Context, limit int) (api.HistoryResponse, error) {
	if limit <= 0 {
		limit = 50
	}
	var history api.HistoryResponse
	err := c.getJSON(ctx, fmt.Sprintf("/v1/history?limit=%d", limit), &history)
	return history, err
}

// Refresh asks the daemon to poll now. It does not wait for the result.
func (c *Client) Refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v1/refresh", nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted:
		return nil
	case http.StatusConflict:
		return ErrRefreshInFlight
	default:
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
}

// RefreshAndWait triggers a poll, or joins the one already running, and
// waits until the daemon reports it finished.
func (c *Client) RefreshAndWait(ctx context.Context) (api.UsageResponse, error) {
	if err := c.Refresh(ctx); err != nil && !errors.Is(err, ErrRefreshInFlight) {
		return api.UsageResponse{}, err
	}

	for attempt := 0; ; attempt++ {
		select {
		case <-ctx.Done():
			return api.UsageResponse{}, ctx.Err()
		case <-time.After(c.backoff.Next(attempt)):
		}

		usage, err := c.Usage(ctx)
		if err != nil {
			return api.UsageResponse{}, err
		}
		if !usage.InFlight {
			return usage, nil
		}
	}
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}
