package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/seyioni/enrollgate/internal/mandate"
	"github.com/seyioni/enrollgate/internal/registration"
)

var (
	// ErrExecutionNotSuccessful means the referenced signup either does not
	// exist for this user or did not end in success; charging it is a caller
	// error, not a retryable condition.
	ErrExecutionNotSuccessful = errors.New("execution not successful")

	// ErrCapExceeded means the derived fee is above the mandate's ceiling.
	ErrCapExceeded = errors.New("charge exceeds mandate cap")
)

// Ledger charges the platform success fee, exactly once per successful
// signup execution no matter how many times it is invoked. It is always
// called through the execution middleware with the pay scope already
// verified.
type Ledger struct {
	charges       Store
	registrations registration.Repo
	mandates      mandate.Store
	gateway       Gateway
}

func NewLedger(charges Store, registrations registration.Repo, mandates mandate.Store, gateway Gateway) *Ledger {
	return &Ledger{
		charges:       charges,
		registrations: registrations,
		mandates:      mandates,
		gateway:       gateway,
	}
}

// ChargeOnSuccess charges the success fee for executionID. Concurrent and
// repeated calls for the same execution id converge on the same charge row:
// the loser of the storage-level claim returns the winner's row unchanged
// and the gateway is called at most once.
func (l *Ledger) ChargeOnSuccess(ctx context.Context, executionID, mandateID, userID string) (*Receipt, error) {
	reg, err := l.registrations.Resolve(ctx, executionID, userID)
	if err != nil {
		return nil, fmt.Errorf("execution %s: %w", executionID, ErrExecutionNotSuccessful)
	}
	if reg.Status != registration.StatusSuccess {
		return nil, fmt.Errorf("execution %s status %s: %w", executionID, reg.Status, ErrExecutionNotSuccessful)
	}

	amount, err := l.feeAmount(ctx, reg, mandateID)
	if err != nil {
		return nil, err
	}

	charge := &Charge{
		ID:          uuid.New().String(),
		ExecutionID: executionID,
		MandateID:   mandateID,
		AmountCents: amount,
		Status:      ChargePending,
	}

	claimed, existing, err := l.charges.Claim(ctx, charge)
	if err != nil {
		return nil, err
	}
	if !claimed {
		// Someone already charged (or is charging) this execution.
		log.Info().Str("execution_id", executionID).Str("charge_id", existing.ID).
			Msg("charge already exists, returning existing row")
		return &Receipt{ChargeID: existing.ID, Status: existing.Status}, nil
	}

	receipt, err := l.gateway.CreateCharge(ctx, ChargeRequest{
		ExecutionID: executionID,
		AmountCents: amount,
		Currency:    "usd",
		Description: fmt.Sprintf("success fee for %s signup %s", reg.Provider, executionID),
	})
	if err != nil {
		// Transport failure, not a gateway outcome: the claim stays pending
		// and the error surfaces to the caller.
		return nil, fmt.Errorf("payment gateway: %w", err)
	}

	if err := l.charges.Settle(ctx, charge.ID, receipt.Ref, receipt.Status); err != nil {
		return nil, err
	}

	log.Info().Str("execution_id", executionID).Str("charge_id", charge.ID).
		Str("status", string(receipt.Status)).Int64("amount_cents", amount).
		Msg("success fee recorded")

	return &Receipt{ChargeID: charge.ID, Status: receipt.Status}, nil
}

// feeAmount derives the fee from the execution record and checks it against
// the mandate's caps. Mandate lookup failures deny, never default open.
func (l *Ledger) feeAmount(ctx context.Context, reg *registration.Registration, mandateID string) (int64, error) {
	amount := reg.ServiceFeeCents
	if amount <= 0 {
		return 0, fmt.Errorf("execution %s has no service fee: %w", reg.ID, ErrExecutionNotSuccessful)
	}

	m, err := l.mandates.Get(ctx, mandateID)
	if err != nil {
		return 0, fmt.Errorf("mandate %s: %w", mandateID, mandate.ErrInactive)
	}

	if m.Caps.ServiceFeeCents > 0 && amount > m.Caps.ServiceFeeCents {
		return 0, fmt.Errorf("fee %d over cap %d: %w", amount, m.Caps.ServiceFeeCents, ErrCapExceeded)
	}
	if m.Caps.MaxAmountCents > 0 && amount > m.Caps.MaxAmountCents {
		return 0, fmt.Errorf("fee %d over cap %d: %w", amount, m.Caps.MaxAmountCents, ErrCapExceeded)
	}

	return amount, nil
}
