package billing

import (
	"context"
	"time"
)

// ChargeStatus of a success-fee charge. A failed gateway outcome is a valid
// terminal state, not an error.
type ChargeStatus string

const (
	ChargePending   ChargeStatus = "pending"
	ChargeSucceeded ChargeStatus = "succeeded"
	ChargeFailed    ChargeStatus = "failed"
)

// Charge is the financial side effect of one successful signup execution.
// ExecutionID is unique: at most one charge row ever exists per execution.
type Charge struct {
	ID          string       `json:"id"`
	ExecutionID string       `json:"execution_id"`
	MandateID   string       `json:"mandate_id"`
	ProviderRef string       `json:"provider_ref,omitempty"`
	AmountCents int64        `json:"amount_cents"`
	Status      ChargeStatus `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Receipt is what callers get back from ChargeOnSuccess.
type Receipt struct {
	ChargeID string       `json:"charge_id"`
	Status   ChargeStatus `json:"status"`
}

// ChargeRequest goes to the external payment gateway.
type ChargeRequest struct {
	ExecutionID string `json:"execution_id"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	Description string `json:"description,omitempty"`
}

// GatewayReceipt is the gateway's answer: a provider reference and a
// terminal outcome.
type GatewayReceipt struct {
	Ref    string       `json:"ref"`
	Status ChargeStatus `json:"status"`
}

// Gateway abstracts the payment provider. A returned error means the call
// itself failed (transport, auth); a failed charge comes back as a receipt.
type Gateway interface {
	CreateCharge(ctx context.Context, req ChargeRequest) (*GatewayReceipt, error)
}
