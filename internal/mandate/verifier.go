package mandate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Authorization failures. Each is distinguishable so callers can audit the
// precise reason, but all of them mean "deny".
var (
	ErrSignatureInvalid = errors.New("mandate signature invalid")
	ErrExpired          = errors.New("mandate expired")
	ErrInactive         = errors.New("mandate inactive")
	ErrScopeDenied      = errors.New("scope denied")
)

// Claims is the verified view of a mandate handed back to callers.
type Claims struct {
	MandateID      string
	UserID         string
	Provider       string
	Scope          []string
	Caps           Caps
	ChildRef       string
	ProgramRef     string
	MaxAmountCents int64
}

// TokenClaims is the wire shape of the compact signed token produced by the
// issuance service.
type TokenClaims struct {
	Scope          []string `json:"scope"`
	ChildRef       string   `json:"child_ref,omitempty"`
	ProgramRef     string   `json:"program_ref,omitempty"`
	MaxAmountCents int64    `json:"max_amount_cents,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates that a mandate authorizes an action requiring a scope.
// Production code uses TokenVerifier; tests inject fakes. There is no
// runtime bypass.
type Verifier interface {
	Verify(ctx context.Context, mandateID, requiredScope string) (*Claims, error)
}

// TokenVerifier checks the mandate record (status, validity window) and its
// signed token (signature, issuer, audience, expiry, scope).
type TokenVerifier struct {
	store    Store
	keys     KeySource
	issuer   string
	audience string
	now      func() time.Time
}

type VerifierOption func(*TokenVerifier)

// WithClock overrides the verifier's time source.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *TokenVerifier) {
		v.now = now
	}
}

func NewTokenVerifier(store Store, keys KeySource, issuer, audience string, opts ...VerifierOption) *TokenVerifier {
	v := &TokenVerifier{
		store:    store,
		keys:     keys,
		issuer:   issuer,
		audience: audience,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(v)
	}

	return v
}

func (v *TokenVerifier) Verify(ctx context.Context, mandateID, requiredScope string) (*Claims, error) {
	m, err := v.lookup(ctx, mandateID)
	if err != nil {
		return nil, err
	}

	now := v.now()
	if !m.ValidAt(now) {
		return nil, fmt.Errorf("mandate %s window [%s, %s]: %w",
			m.ID, m.ValidFrom.Format(time.RFC3339), m.ValidUntil.Format(time.RFC3339), ErrExpired)
	}

	tokenClaims, err := v.parseToken(m.Token)
	if err != nil {
		return nil, err
	}

	if !m.HasScope(requiredScope) || !containsScope(tokenClaims.Scope, requiredScope) {
		return nil, fmt.Errorf("mandate %s lacks %q: %w", m.ID, requiredScope, ErrScopeDenied)
	}

	return &Claims{
		MandateID:      m.ID,
		UserID:         m.UserID,
		Provider:       m.Provider,
		Scope:          m.Scope,
		Caps:           m.Caps,
		ChildRef:       tokenClaims.ChildRef,
		ProgramRef:     tokenClaims.ProgramRef,
		MaxAmountCents: tokenClaims.MaxAmountCents,
	}, nil
}

// lookup fails closed: a missing record and a storage error are both
// reported as inactive, never as a pass.
func (v *TokenVerifier) lookup(ctx context.Context, mandateID string) (*Mandate, error) {
	m, err := v.store.Get(ctx, mandateID)
	if err != nil {
		return nil, fmt.Errorf("mandate %s: %w", mandateID, ErrInactive)
	}

	if m.Status != StatusActive {
		return nil, fmt.Errorf("mandate %s status %s: %w", m.ID, m.Status, ErrInactive)
	}

	return m, nil
}

func (v *TokenVerifier) parseToken(token string) (*TokenClaims, error) {
	claims := &TokenClaims{}

	_, err := jwt.ParseWithClaims(token, claims, v.keyFunc,
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) || errors.Is(err, jwt.ErrTokenNotValidYet) {
			return nil, fmt.Errorf("token time window: %w", ErrExpired)
		}
		return nil, fmt.Errorf("%v: %w", err, ErrSignatureInvalid)
	}

	return claims, nil
}

func (v *TokenVerifier) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return v.keys.Key(), nil
}

func containsScope(scopes []string, scope string) bool {
	for _, s := range scopes {
		if s == scope {
			return true
		}
	}
	return false
}
