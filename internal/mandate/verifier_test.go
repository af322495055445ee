package mandate

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/seyioni/enrollgate/internal/storage"
)

const (
	testIssuer   = "mandate-issuer"
	testAudience = "enrollgate"
)

var testKey = []byte("test-verification-key")

func TestVerifyHappyPath(t *testing.T) {
	store, now := setupTestStore(t), time.Now()
	putMandate(t, store, testMandate(t, now, testKey, StatusActive, []string{ScopeRegister, ScopePay}))

	v := newTestVerifier(store, now)

	claims, err := v.Verify(context.Background(), "mnd_1", ScopeRegister)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}

	if claims.UserID != "user_1" {
		t.Errorf("expected user_1, got %s", claims.UserID)
	}
	if claims.MaxAmountCents != 50000 {
		t.Errorf("expected max amount 50000, got %d", claims.MaxAmountCents)
	}
	if claims.Provider != "skiclubpro" {
		t.Errorf("expected provider skiclubpro, got %s", claims.Provider)
	}
}

func TestVerifyScopeDenied(t *testing.T) {
	store, now := setupTestStore(t), time.Now()
	putMandate(t, store, testMandate(t, now, testKey, StatusActive, []string{ScopeRegister}))

	v := newTestVerifier(store, now)

	_, err := v.Verify(context.Background(), "mnd_1", ScopePay)
	if !errors.Is(err, ErrScopeDenied) {
		t.Errorf("expected ErrScopeDenied, got %v", err)
	}
}

func TestVerifyInactive(t *testing.T) {
	tests := []struct {
		name   string
		status Status
	}{
		{"revoked", StatusRevoked},
		{"expired status", StatusExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, now := setupTestStore(t), time.Now()
			putMandate(t, store, testMandate(t, now, testKey, tt.status, []string{ScopeRegister}))

			v := newTestVerifier(store, now)

			_, err := v.Verify(context.Background(), "mnd_1", ScopeRegister)
			if !errors.Is(err, ErrInactive) {
				t.Errorf("expected ErrInactive, got %v", err)
			}
		})
	}
}

func TestVerifyUnknownMandate(t *testing.T) {
	store, now := setupTestStore(t), time.Now()

	v := newTestVerifier(store, now)

	_, err := v.Verify(context.Background(), "mnd_missing", ScopeRegister)
	if !errors.Is(err, ErrInactive) {
		t.Errorf("expected ErrInactive for unknown mandate, got %v", err)
	}
}

func TestVerifyWindowExpired(t *testing.T) {
	store, now := setupTestStore(t), time.Now()
	putMandate(t, store, testMandate(t, now, testKey, StatusActive, []string{ScopeRegister}))

	// Two days later the record window has lapsed.
	later := now.Add(48 * time.Hour)
	v := newTestVerifier(store, later)

	_, err := v.Verify(context.Background(), "mnd_1", ScopeRegister)
	if !errors.Is(err, ErrExpired) {
		t.Errorf("expected ErrExpired, got %v", err)
	}
}

func TestVerifyNotYetValid(t *testing.T) {
	store, now := setupTestStore(t), time.Now()
	putMandate(t, store, testMandate(t, now, testKey, StatusActive, []string{ScopeRegister}))

	earlier := now.Add(-48 * time.Hour)
	v := newTestVerifier(store, earlier)

	_, err := v.Verify(context.Background(), "mnd_1", ScopeRegister)
	if !errors.Is(err, ErrExpired) {
		t.Errorf("expected ErrExpired before valid_from, got %v", err)
	}
}

func TestVerifySignatureInvalid(t *testing.T) {
	store, now := setupTestStore(t), time.Now()
	putMandate(t, store, testMandate(t, now, []byte("rogue-key"), StatusActive, []string{ScopeRegister}))

	v := newTestVerifier(store, now)

	_, err := v.Verify(context.Background(), "mnd_1", ScopeRegister)
	if !errors.Is(err, ErrSignatureInvalid) {
		t.Errorf("expected ErrSignatureInvalid, got %v", err)
	}
}

func TestVerifyWrongIssuer(t *testing.T) {
	store, now := setupTestStore(t), time.Now()
	m := testMandate(t, now, testKey, StatusActive, []string{ScopeRegister})
	m.Token = mintToken(t, now, testKey, []string{ScopeRegister}, "someone-else", testAudience)
	putMandate(t, store, m)

	v := newTestVerifier(store, now)

	_, err := v.Verify(context.Background(), "mnd_1", ScopeRegister)
	if !errors.Is(err, ErrSignatureInvalid) {
		t.Errorf("expected ErrSignatureInvalid for wrong issuer, got %v", err)
	}
}

func TestVerifyTokenScopeOmitted(t *testing.T) {
	// Record claims the scope but the signed token does not: deny. The
	// signed claims are the source of truth.
	store, now := setupTestStore(t), time.Now()
	m := testMandate(t, now, testKey, StatusActive, []string{ScopeRegister, ScopePay})
	m.Token = mintToken(t, now, testKey, []string{ScopeRegister}, testIssuer, testAudience)
	putMandate(t, store, m)

	v := newTestVerifier(store, now)

	_, err := v.Verify(context.Background(), "mnd_1", ScopePay)
	if !errors.Is(err, ErrScopeDenied) {
		t.Errorf("expected ErrScopeDenied, got %v", err)
	}
}

func newTestVerifier(store Store, now time.Time) *TokenVerifier {
	return NewTokenVerifier(store, StaticKey(testKey), testIssuer, testAudience,
		WithClock(func() time.Time { return now }))
}

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := NewSQLiteStore(db)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	return store
}

func putMandate(t *testing.T, store Store, m *Mandate) {
	t.Helper()
	if err := store.Put(context.Background(), m); err != nil {
		t.Fatalf("put mandate: %v", err)
	}
}

func testMandate(t *testing.T, now time.Time, key []byte, status Status, scope []string) *Mandate {
	t.Helper()
	return &Mandate{
		ID:         "mnd_1",
		UserID:     "user_1",
		Provider:   "skiclubpro",
		Scope:      scope,
		Caps:       Caps{MaxAmountCents: 50000, ServiceFeeCents: 500},
		ValidFrom:  now.Add(-time.Hour),
		ValidUntil: now.Add(24 * time.Hour),
		Status:     status,
		Token:      mintToken(t, now, key, scope, testIssuer, testAudience),
	}
}

func mintToken(t *testing.T, now time.Time, key []byte, scope []string, issuer, audience string) string {
	t.Helper()

	claims := &TokenClaims{
		Scope:          scope,
		ChildRef:       "child_1",
		ProgramRef:     "program_skiclubpro_1",
		MaxAmountCents: 50000,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "user_1",
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Hour)),
			NotBefore: jwt.NewNumericDate(now.Add(-time.Hour)),
			ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}
