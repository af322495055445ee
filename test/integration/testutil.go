package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/seyioni/enrollgate/internal/audit"
	"github.com/seyioni/enrollgate/internal/auth"
	"github.com/seyioni/enrollgate/internal/billing"
	"github.com/seyioni/enrollgate/internal/dispatch"
	"github.com/seyioni/enrollgate/internal/exec"
	"github.com/seyioni/enrollgate/internal/mandate"
	"github.com/seyioni/enrollgate/internal/registration"
	"github.com/seyioni/enrollgate/internal/runner"
	"github.com/seyioni/enrollgate/internal/server"
	"github.com/seyioni/enrollgate/internal/signup"
	"github.com/seyioni/enrollgate/internal/storage"
)

const (
	testIssuer   = "enrollgate-mandates"
	testAudience = "enrollgate"
	testKey      = "integration-test-signing-key"
)

// TestEnvironment wires the full stack against temp storage, a mock
// automation upstream and a mock payment gateway.
type TestEnvironment struct {
	Server        *httptest.Server
	AuditStore    audit.Store
	MandateStore  mandate.Store
	Registrations *registration.SQLiteStore
	AuthManager   *auth.Manager
	UpstreamMock  *httptest.Server
	GatewayMock   *httptest.Server
	GatewayCalls  *atomic.Int64
	t             *testing.T
}

func SetupTestEnvironment(t *testing.T) *TestEnvironment {
	t.Helper()

	tmpDir := t.TempDir()
	keyFile := filepath.Join(tmpDir, "mandate.key")
	require.NoError(t, os.WriteFile(keyFile, []byte(testKey), 0600))

	db, err := storage.Open(filepath.Join(tmpDir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	auditStore, err := audit.NewSQLiteStore(db)
	require.NoError(t, err)
	mandateStore, err := mandate.NewSQLiteStore(db)
	require.NoError(t, err)
	regStore, err := registration.NewSQLiteStore(db)
	require.NoError(t, err)
	chargeStore, err := billing.NewSQLiteStore(db)
	require.NoError(t, err)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"confirmation": "CONF-" + uuid.New().String()[:8]})
	}))
	t.Cleanup(upstream.Close)

	gatewayCalls := &atomic.Int64{}
	gatewayMock := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gatewayCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"ref": "ch_integration", "status": "succeeded"})
	}))
	t.Cleanup(gatewayMock.Close)

	keys, err := mandate.NewFileKeySource(keyFile)
	require.NoError(t, err)
	t.Cleanup(func() { keys.Close() })

	verifier := mandate.NewTokenVerifier(mandateStore, keys, testIssuer, testAudience)
	middleware := exec.New(audit.NewRecorder(auditStore), verifier)

	queue := dispatch.NewQueue()
	t.Cleanup(func() { queue.Close() })

	service := signup.NewService(regStore, queue, middleware,
		runner.NewClient(runner.Config{Upstream: upstream.URL, Timeout: 5}))

	workerCtx, cancelWorker := context.WithCancel(context.Background())
	t.Cleanup(cancelWorker)
	go dispatch.NewWorker(queue, service.RunTask).Start(workerCtx)

	ledger := billing.NewLedger(chargeStore, regStore, mandateStore,
		billing.NewHTTPGateway(gatewayMock.URL, "sk_test", 5))

	authManager, err := auth.NewManager(auth.Config{
		JWTSecret:       "test-secret",
		TokenExpiration: time.Hour,
		RequireAuth:     true,
	})
	require.NoError(t, err)

	srv := server.New(server.Config{ShutdownTimeout: 1}, server.Deps{
		Signups:     service,
		Audit:       auditStore,
		Ledger:      ledger,
		Exec:        middleware,
		AuthManager: authManager,
		AuthUsers:   "parent@example.com:hunter2:Jordan Parent",
	})

	httpServer := httptest.NewServer(srv.Handler())
	t.Cleanup(httpServer.Close)

	return &TestEnvironment{
		Server:        httpServer,
		AuditStore:    auditStore,
		MandateStore:  mandateStore,
		Registrations: regStore,
		AuthManager:   authManager,
		UpstreamMock:  upstream,
		GatewayMock:   gatewayMock,
		GatewayCalls:  gatewayCalls,
		t:             t,
	}
}

// IssueMandate inserts an active mandate with a freshly signed token.
func (env *TestEnvironment) IssueMandate(userID string, scope []string, caps mandate.Caps) string {
	env.t.Helper()

	now := time.Now()
	claims := &mandate.TokenClaims{
		Scope:          scope,
		ChildRef:       "child_1",
		MaxAmountCents: caps.MaxAmountCents,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			Subject:   userID,
			Audience:  jwt.ClaimStrings{testAudience},
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
			NotBefore: jwt.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testKey))
	require.NoError(env.t, err)

	id := "mandate_" + uuid.New().String()[:8]
	err = env.MandateStore.Put(context.Background(), &mandate.Mandate{
		ID:         id,
		UserID:     userID,
		Provider:   "skiclubpro",
		Scope:      scope,
		Caps:       caps,
		ValidFrom:  now.Add(-time.Hour),
		ValidUntil: now.Add(24 * time.Hour),
		Status:     mandate.StatusActive,
		Token:      token,
	})
	require.NoError(env.t, err)

	return id
}

// SessionToken logs a user into the API layer.
func (env *TestEnvironment) SessionToken(userID string) string {
	env.t.Helper()
	token, err := env.AuthManager.GenerateToken(auth.User{ID: userID, Email: userID + "@example.com"})
	require.NoError(env.t, err)
	return token
}
