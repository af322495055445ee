// Package runner is the client side of the browser-automation service that
// actually logs into providers and fills registration forms. The service is
// an opaque collaborator: this client only sees success or failure and a
// JSON result.
package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Request describes one automation action for the upstream.
type Request struct {
	Action         string          `json:"action"`
	Provider       string          `json:"provider"`
	RegistrationID string          `json:"registration_id"`
	Args           json.RawMessage `json:"args,omitempty"`
}

type Config struct {
	Upstream string
	Timeout  int // seconds
}

type Client struct {
	config Config
	client *http.Client
}

func NewClient(cfg Config) *Client {
	return &Client{
		config: cfg,
		client: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
	}
}

// Run forwards the action to the automation upstream and returns its raw
// result. Non-200 answers and transport failures are errors; interpreting
// the result is the caller's business.
func (c *Client) Run(ctx context.Context, req Request) (json.RawMessage, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Upstream, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("automation upstream returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return json.RawMessage(data), nil
}
