package mandate

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestStoreRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	in := &Mandate{
		ID:         "mnd_rt",
		UserID:     "user_9",
		Provider:   "campminder",
		Scope:      []string{ScopeLogin, ScopeRegister},
		Caps:       Caps{MaxAmountCents: 80000, ServiceFeeCents: 300},
		ValidFrom:  now.Add(-time.Hour),
		ValidUntil: now.Add(time.Hour),
		Status:     StatusActive,
		Token:      "header.payload.sig",
	}

	if err := store.Put(ctx, in); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := store.Get(ctx, "mnd_rt")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if got.UserID != in.UserID || got.Provider != in.Provider || got.Status != in.Status {
		t.Errorf("record mismatch: got %+v", got)
	}
	if len(got.Scope) != 2 || got.Scope[0] != ScopeLogin {
		t.Errorf("scope mismatch: got %v", got.Scope)
	}
	if got.Caps.MaxAmountCents != 80000 {
		t.Errorf("caps mismatch: got %+v", got.Caps)
	}
	if !got.ValidFrom.Equal(in.ValidFrom) || !got.ValidUntil.Equal(in.ValidUntil) {
		t.Errorf("window mismatch: got [%v, %v]", got.ValidFrom, got.ValidUntil)
	}
}

func TestStoreNotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.Get(context.Background(), "mnd_missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestHasScope(t *testing.T) {
	m := &Mandate{Scope: []string{ScopeRegister, ScopeSuccessFee}}

	if !m.HasScope(ScopeRegister) {
		t.Error("expected scp:register granted")
	}
	if m.HasScope(ScopePay) {
		t.Error("expected scp:pay denied")
	}
}
