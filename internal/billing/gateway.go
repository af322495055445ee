package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPGateway talks to the payment provider's charge endpoint. The provider
// is a black box: anything other than a well-formed receipt is a transport
// error.
type HTTPGateway struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewHTTPGateway(endpoint, apiKey string, timeoutSec int) *HTTPGateway {
	return &HTTPGateway{
		endpoint: endpoint,
		apiKey:   apiKey,
		client: &http.Client{
			Timeout: time.Duration(timeoutSec) * time.Second,
		},
	}
}

func (g *HTTPGateway) CreateCharge(ctx context.Context, req ChargeRequest) (*GatewayReceipt, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal charge request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	httpReq.Header.Set("Idempotency-Key", req.ExecutionID)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway returned %d", resp.StatusCode)
	}

	return decodeReceipt(resp.Body)
}

func decodeReceipt(body io.Reader) (*GatewayReceipt, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var receipt GatewayReceipt
	if err := json.Unmarshal(data, &receipt); err != nil {
		return nil, fmt.Errorf("decode receipt: %w", err)
	}

	if receipt.Status != ChargeSucceeded && receipt.Status != ChargeFailed {
		return nil, fmt.Errorf("gateway returned non-terminal status %q", receipt.Status)
	}

	return &receipt, nil
}
