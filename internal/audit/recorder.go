package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/seyioni/enrollgate/internal/canon"
	"github.com/seyioni/enrollgate/internal/redact"
)

// ExemptCorrelation marks an interactive call that is not audited. An empty
// execution id means the same thing.
const ExemptCorrelation = "interactive"

// Call identifies the privileged call an event belongs to.
type Call struct {
	MandateID   string
	ExecutionID string
	Action      string
}

// Exempt reports whether the call is excluded from auditing.
func (c Call) Exempt() bool {
	return c.ExecutionID == "" || c.ExecutionID == ExemptCorrelation
}

// Recorder opens and settles audit events around privileged calls. Start
// failures are fatal to the caller; Finish failures are logged and swallowed
// so an audit-storage outage never masks the underlying outcome.
type Recorder struct {
	store Store
	now   func() time.Time
}

type RecorderOption func(*Recorder)

// WithRecorderClock overrides the recorder's time source.
func WithRecorderClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) {
		r.now = now
	}
}

func NewRecorder(store Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		store: store,
		now:   time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Start persists a pending event for the call and returns its id. Exempt
// calls return an empty id and write nothing. Any failure here propagates:
// if the trail cannot be opened, the privileged action must not run.
func (r *Recorder) Start(ctx context.Context, call Call, args any) (string, error) {
	if call.Exempt() {
		return "", nil
	}

	hash, redactedJSON, err := digest(args)
	if err != nil {
		return "", fmt.Errorf("audit start: %w", err)
	}

	event := &Event{
		ID:          uuid.New().String(),
		MandateID:   call.MandateID,
		ExecutionID: call.ExecutionID,
		Action:      call.Action,
		ArgsHash:    hash,
		ArgsJSON:    redactedJSON,
		Decision:    DecisionPending,
		StartedAt:   r.now(),
	}

	if err := r.store.Insert(ctx, event); err != nil {
		return "", fmt.Errorf("audit start: %w", err)
	}

	return event.ID, nil
}

// Finish settles a pending event with its terminal decision. A no-op for
// exempt calls (empty id). Never returns an error.
func (r *Recorder) Finish(ctx context.Context, id string, result any, decision Decision) {
	if id == "" {
		return
	}

	hash, redactedJSON, err := digest(result)
	if err != nil {
		log.Warn().Err(err).Str("event_id", id).Msg("audit finish: result digest failed")
		hash, redactedJSON = "", json.RawMessage("null")
	}

	if err := r.store.Finalize(ctx, id, decision, hash, redactedJSON, r.now()); err != nil {
		log.Warn().Err(err).Str("event_id", id).Str("decision", string(decision)).Msg("audit finish failed")
	}
}

// digest redacts a value and returns the canonical hash of the redacted form
// alongside its JSON encoding. Secrets never reach the store or the hash.
func digest(v any) (string, json.RawMessage, error) {
	redacted, err := redact.Any(v)
	if err != nil {
		return "", nil, fmt.Errorf("redact: %w", err)
	}

	encoded, err := json.Marshal(redacted)
	if err != nil {
		return "", nil, fmt.Errorf("encode: %w", err)
	}

	hash, err := canon.HashRaw(encoded)
	if err != nil {
		return "", nil, fmt.Errorf("hash: %w", err)
	}

	return hash, encoded, nil
}
