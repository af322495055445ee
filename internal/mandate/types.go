package mandate

import (
	"time"
)

// Status of a mandate record. Mandates are issued elsewhere; this service
// only reads them and never mutates one.
type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
	StatusExpired Status = "expired"
)

// Well-known capability scopes.
const (
	ScopeLogin      = "scp:login"
	ScopeRegister   = "scp:register"
	ScopePay        = "scp:pay"
	ScopeRead       = "scp:read"
	ScopeSuccessFee = "platform:success_fee"
)

// Caps holds the numeric ceilings attached to a mandate, in minor currency
// units.
type Caps struct {
	MaxAmountCents  int64 `json:"max_amount_cents"`
	ServiceFeeCents int64 `json:"service_fee_cents"`
}

// Mandate is a time-bound, scope-bound capability grant for one user and
// provider. Token carries the same claims as a compact JWS for out-of-band
// verification.
type Mandate struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Provider   string    `json:"provider"`
	Scope      []string  `json:"scope"`
	Caps       Caps      `json:"caps"`
	ValidFrom  time.Time `json:"valid_from"`
	ValidUntil time.Time `json:"valid_until"`
	Status     Status    `json:"status"`
	Token      string    `json:"token"`
}

// HasScope reports whether the mandate grants the named capability.
func (m *Mandate) HasScope(scope string) bool {
	for _, s := range m.Scope {
		if s == scope {
			return true
		}
	}
	return false
}

// ValidAt reports whether t falls inside the mandate's validity window.
func (m *Mandate) ValidAt(t time.Time) bool {
	return !t.Before(m.ValidFrom) && !t.After(m.ValidUntil)
}
