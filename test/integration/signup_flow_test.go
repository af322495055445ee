package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seyioni/enrollgate/internal/audit"
	"github.com/seyioni/enrollgate/internal/billing"
	"github.com/seyioni/enrollgate/internal/mandate"
	"github.com/seyioni/enrollgate/internal/registration"
)

func doRequest(t *testing.T, env *TestEnvironment, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()

	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}

	req, err := http.NewRequest(method, env.Server.URL+path, &payload)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out bytes.Buffer
	_, err = out.ReadFrom(resp.Body)
	require.NoError(t, err)

	return resp, out.Bytes()
}

func submitSignup(t *testing.T, env *TestEnvironment, token, mandateID string) registration.Registration {
	t.Helper()

	resp, body := doRequest(t, env, http.MethodPost, "/v1/signups", token, map[string]any{
		"mandate_id":         mandateID,
		"provider":           "skiclubpro",
		"program_id":         "nordic-kids",
		"child_ref":          "child_1",
		"program_cost_cents": 30000,
		"service_fee_cents":  2000,
		"args":               map[string]string{"session": "saturday", "password": "hunter2"},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))

	var reg registration.Registration
	require.NoError(t, json.Unmarshal(body, &reg))
	return reg
}

func waitForStatus(t *testing.T, env *TestEnvironment, regID, userID string, want registration.Status) {
	t.Helper()

	require.Eventually(t, func() bool {
		reg, err := env.Registrations.Resolve(context.Background(), regID, userID)
		return err == nil && reg.Status == want
	}, 5*time.Second, 20*time.Millisecond, "registration never reached %s", want)
}

func TestSignupEndToEnd(t *testing.T) {
	env := SetupTestEnvironment(t)

	userID := "user_1"
	mandateID := env.IssueMandate(userID, []string{mandate.ScopeRegister, mandate.ScopePay},
		mandate.Caps{MaxAmountCents: 50000, ServiceFeeCents: 5000})
	token := env.SessionToken(userID)

	reg := submitSignup(t, env, token, mandateID)
	waitForStatus(t, env, reg.ID, userID, registration.StatusSuccess)

	// Registration run and its result are on the audit trail, allowed.
	events, err := env.AuditStore.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.DecisionAllowed, events[0].Decision)
	assert.Equal(t, reg.ID, events[0].ExecutionID)
	assert.NotEmpty(t, events[0].ArgsHash)
	assert.NotContains(t, string(events[0].ArgsJSON), "hunter2")

	// Charging the success fee works and is idempotent.
	resp, body := doRequest(t, env, http.MethodPost, "/v1/signups/"+reg.ID+"/charge", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var first billing.Receipt
	require.NoError(t, json.Unmarshal(body, &first))
	assert.Equal(t, billing.ChargeSucceeded, first.Status)

	resp, body = doRequest(t, env, http.MethodPost, "/v1/signups/"+reg.ID+"/charge", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var second billing.Receipt
	require.NoError(t, json.Unmarshal(body, &second))
	assert.Equal(t, first.ChargeID, second.ChargeID)
	assert.Equal(t, int64(1), env.GatewayCalls.Load())
}

func TestSignupDeniedWithoutRegisterScope(t *testing.T) {
	env := SetupTestEnvironment(t)

	userID := "user_1"
	mandateID := env.IssueMandate(userID, []string{mandate.ScopeRead},
		mandate.Caps{MaxAmountCents: 50000})
	token := env.SessionToken(userID)

	reg := submitSignup(t, env, token, mandateID)
	waitForStatus(t, env, reg.ID, userID, registration.StatusFailed)

	events, err := env.AuditStore.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.DecisionDenied, events[0].Decision)

	// A failed signup cannot be charged.
	resp, _ := doRequest(t, env, http.MethodPost, "/v1/signups/"+reg.ID+"/charge", token, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, int64(0), env.GatewayCalls.Load())
}

func TestChargeDeniedWithoutPayScope(t *testing.T) {
	env := SetupTestEnvironment(t)

	userID := "user_1"
	mandateID := env.IssueMandate(userID, []string{mandate.ScopeRegister},
		mandate.Caps{MaxAmountCents: 50000, ServiceFeeCents: 5000})
	token := env.SessionToken(userID)

	reg := submitSignup(t, env, token, mandateID)
	waitForStatus(t, env, reg.ID, userID, registration.StatusSuccess)

	resp, body := doRequest(t, env, http.MethodPost, "/v1/signups/"+reg.ID+"/charge", token, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, string(body))
	assert.Equal(t, int64(0), env.GatewayCalls.Load())

	// The denial itself is audited.
	events, err := env.AuditStore.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
}

func TestConcurrentChargesSingleGatewayCall(t *testing.T) {
	env := SetupTestEnvironment(t)

	userID := "user_1"
	mandateID := env.IssueMandate(userID, []string{mandate.ScopeRegister, mandate.ScopePay},
		mandate.Caps{MaxAmountCents: 50000, ServiceFeeCents: 5000})
	token := env.SessionToken(userID)

	reg := submitSignup(t, env, token, mandateID)
	waitForStatus(t, env, reg.ID, userID, registration.StatusSuccess)

	const attempts = 10
	receipts := make([]billing.Receipt, attempts)
	var wg sync.WaitGroup

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, body := doRequest(t, env, http.MethodPost, "/v1/signups/"+reg.ID+"/charge", token, nil)
			if resp.StatusCode != http.StatusOK {
				t.Errorf("attempt %d: status %d: %s", i, resp.StatusCode, body)
				return
			}
			if err := json.Unmarshal(body, &receipts[i]); err != nil {
				t.Errorf("attempt %d: decode: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), env.GatewayCalls.Load(), "gateway must be called exactly once")

	ids := make(map[string]bool)
	for _, r := range receipts {
		if r.ChargeID != "" {
			ids[r.ChargeID] = true
		}
	}
	assert.Len(t, ids, 1, fmt.Sprintf("all receipts must share one charge id, got %v", ids))
}

func TestSignupUnderAnotherUsersMandateDenied(t *testing.T) {
	env := SetupTestEnvironment(t)

	// user_b holds a fully capable, validly signed mandate.
	mandateID := env.IssueMandate("user_b", []string{mandate.ScopeRegister, mandate.ScopePay},
		mandate.Caps{MaxAmountCents: 50000, ServiceFeeCents: 5000})

	// user_a cites it on their own signup.
	token := env.SessionToken("user_a")
	reg := submitSignup(t, env, token, mandateID)
	waitForStatus(t, env, reg.ID, "user_a", registration.StatusFailed)

	events, err := env.AuditStore.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.DecisionDenied, events[0].Decision)

	// The borrowed grant does not open the charge path either.
	resp, _ := doRequest(t, env, http.MethodPost, "/v1/signups/"+reg.ID+"/charge", token, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, int64(0), env.GatewayCalls.Load())
}

func TestSignupRejectsUnknownMandate(t *testing.T) {
	env := SetupTestEnvironment(t)

	userID := "user_1"
	token := env.SessionToken(userID)

	reg := submitSignup(t, env, token, "mandate_missing")
	waitForStatus(t, env, reg.ID, userID, registration.StatusFailed)

	events, err := env.AuditStore.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.DecisionDenied, events[0].Decision)
}
