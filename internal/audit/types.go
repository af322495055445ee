package audit

import (
	"context"
	"encoding/json"
	"time"
)

// Decision of a privileged call. Every event starts pending and moves to a
// terminal decision exactly once.
type Decision string

const (
	DecisionPending Decision = "pending"
	DecisionAllowed Decision = "allowed"
	DecisionDenied  Decision = "denied"
)

// Event records one privileged call: what was asked (redacted and hashed),
// whether it was allowed, and what came back.
type Event struct {
	ID          string          `json:"id"`
	MandateID   string          `json:"mandate_id,omitempty"`
	ExecutionID string          `json:"execution_id,omitempty"`
	Action      string          `json:"action"`
	ArgsHash    string          `json:"args_hash"`
	ArgsJSON    json.RawMessage `json:"args_json,omitempty"`
	Decision    Decision        `json:"decision"`
	ResultHash  string          `json:"result_hash,omitempty"`
	ResultJSON  json.RawMessage `json:"result_json,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  *time.Time      `json:"finished_at,omitempty"`
}

// Store persists audit events. Terminal rows are immutable; the backing
// schema enforces this with triggers.
type Store interface {
	Insert(ctx context.Context, e *Event) error
	Finalize(ctx context.Context, id string, decision Decision, resultHash string, resultJSON json.RawMessage, finishedAt time.Time) error
	Get(ctx context.Context, id string) (*Event, error)
	List(ctx context.Context, limit int) ([]Event, error)
}
