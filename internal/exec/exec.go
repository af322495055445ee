// Package exec wraps every privileged action behind mandate verification and
// audit recording. It is the single choke point: provider logins, form
// submissions, payments and data access all run through Execute.
package exec

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/seyioni/enrollgate/internal/audit"
	"github.com/seyioni/enrollgate/internal/mandate"
)

// Call carries the identity of one privileged call.
type Call struct {
	// CorrelationID ties the audit trail to an execution. Empty, or the
	// audit.ExemptCorrelation sentinel, marks the call exempt from auditing.
	CorrelationID string
	MandateID     string
	UserID        string
	Action        string
}

// Handler performs the actual privileged work. The middleware never inspects
// it, retries it, or interprets its result beyond success or failure.
type Handler func(ctx context.Context) (any, error)

// ErrUserMismatch means the verified mandate was issued to a different user
// than the one making the call.
var ErrUserMismatch = errors.New("mandate issued to a different user")

// VerificationError wraps the authorization failure that blocked a call.
// The handler was never invoked when this is returned.
type VerificationError struct {
	Action string
	Cause  error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("mandate verification failed for %s: %v", e.Action, e.Cause)
}

func (e *VerificationError) Unwrap() error {
	return e.Cause
}

// Middleware orchestrates audit start, mandate verification, handler
// invocation and audit finish. Both collaborators are injected; there is no
// ambient state and no bypass path.
type Middleware struct {
	recorder *audit.Recorder
	verifier mandate.Verifier
}

func New(recorder *audit.Recorder, verifier mandate.Verifier) *Middleware {
	return &Middleware{
		recorder: recorder,
		verifier: verifier,
	}
}

// Execute runs handler under the mandate referenced by call. An empty
// requiredScope skips verification (for actions gated elsewhere); auditing
// still applies unless the call is exempt.
//
// Within one call, audit start strictly precedes the handler, and the audit
// record settles on every exit path, panics included. Handler errors are
// returned unchanged after being recorded as denied.
func (m *Middleware) Execute(ctx context.Context, call Call, args any, handler Handler, requiredScope string) (any, error) {
	auditID, err := m.recorder.Start(ctx, audit.Call{
		MandateID:   call.MandateID,
		ExecutionID: call.CorrelationID,
		Action:      call.Action,
	}, args)
	if err != nil {
		// Fail closed: no audit trail, no privileged action.
		return nil, err
	}

	if requiredScope != "" {
		claims, err := m.verifier.Verify(ctx, call.MandateID, requiredScope)
		if err == nil && call.UserID != "" && claims.UserID != call.UserID {
			// A mandate authorizes its own holder only. Another user's
			// grant never transfers, no matter what scopes it carries.
			err = fmt.Errorf("mandate %s: %w", call.MandateID, ErrUserMismatch)
		}
		if err != nil {
			log.Warn().Err(err).
				Str("action", call.Action).
				Str("mandate_id", call.MandateID).
				Str("user_id", call.UserID).
				Msg("privileged call denied")
			verr := &VerificationError{Action: call.Action, Cause: err}
			m.recorder.Finish(ctx, auditID, errorResult(verr), audit.DecisionDenied)
			return nil, verr
		}
		ctx = withClaims(ctx, claims)
	}

	return m.invoke(ctx, auditID, handler)
}

// invoke runs the handler and guarantees the audit record settles, whether
// the handler returns, errors, or panics.
func (m *Middleware) invoke(ctx context.Context, auditID string, handler Handler) (result any, err error) {
	settled := false

	defer func() {
		if settled {
			return
		}
		// Reached only when the handler panicked: settle the trail before
		// the panic continues to the caller.
		r := recover()
		if r == nil {
			return
		}
		m.recorder.Finish(ctx, auditID,
			map[string]string{"error": fmt.Sprintf("panic: %v", r)}, audit.DecisionDenied)
		panic(r)
	}()

	result, err = handler(ctx)
	settled = true

	if err != nil {
		m.recorder.Finish(ctx, auditID, errorResult(err), audit.DecisionDenied)
		return nil, err
	}

	m.recorder.Finish(ctx, auditID, result, audit.DecisionAllowed)
	return result, nil
}

func errorResult(err error) map[string]string {
	return map[string]string{"error": err.Error()}
}

type claimsKey struct{}

func withClaims(ctx context.Context, claims *mandate.Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFrom returns the verified mandate claims for the current call, if
// verification ran.
func ClaimsFrom(ctx context.Context) (*mandate.Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*mandate.Claims)
	return claims, ok
}
