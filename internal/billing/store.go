package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/seyioni/enrollgate/internal/storage"
)

// Store persists charge rows keyed by execution id.
type Store interface {
	Claim(ctx context.Context, c *Charge) (claimed bool, existing *Charge, err error)
	Settle(ctx context.Context, id, providerRef string, status ChargeStatus) error
	GetByExecution(ctx context.Context, executionID string) (*Charge, error)
}

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	store := &SQLiteStore{db: db}

	if _, err := db.Exec(tableCharges); err != nil {
		return nil, fmt.Errorf("execute schema: %w", err)
	}

	return store, nil
}

// Claim inserts a pending charge for c.ExecutionID unless one already
// exists. It reports whether this caller won the claim and returns the row
// now present either way. The conflict-safe insert is what makes concurrent
// callers for the same execution id converge on a single row.
func (s *SQLiteStore) Claim(ctx context.Context, c *Charge) (bool, *Charge, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	var affected int64
	err := storage.ExecRetry(func() error {
		res, err := s.db.ExecContext(ctx, queryClaimCharge,
			c.ID, c.ExecutionID, c.MandateID, c.AmountCents, now, now)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, nil, fmt.Errorf("claim charge: %w", err)
	}

	existing, err := s.GetByExecution(ctx, c.ExecutionID)
	if err != nil {
		return false, nil, err
	}

	return affected == 1, existing, nil
}

func (s *SQLiteStore) Settle(ctx context.Context, id, providerRef string, status ChargeStatus) error {
	if status != ChargeSucceeded && status != ChargeFailed {
		return fmt.Errorf("status %q is not terminal", status)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	var affected int64
	err := storage.ExecRetry(func() error {
		res, err := s.db.ExecContext(ctx, querySettleCharge, providerRef, string(status), now, id)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("settle charge: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("charge %s is not pending", id)
	}

	return nil
}

func (s *SQLiteStore) GetByExecution(ctx context.Context, executionID string) (*Charge, error) {
	row := s.db.QueryRowContext(ctx, querySelectByExecution, executionID)

	var c Charge
	var createdAt, updatedAt string

	err := row.Scan(&c.ID, &c.ExecutionID, &c.MandateID, &c.ProviderRef,
		&c.AmountCents, &c.Status, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no charge for execution %s", executionID)
	}
	if err != nil {
		return nil, fmt.Errorf("scan charge: %w", err)
	}

	if c.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return nil, err
	}

	return &c, nil
}

func parseTimestamp(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err == nil {
		return t, nil
	}

	t, err = time.Parse("2006-01-02 15:04:05", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp: %w", err)
	}

	return t, nil
}
