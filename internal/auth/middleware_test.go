package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func newTestManager(t *testing.T, requireAuth bool) *Manager {
	t.Helper()
	manager, err := NewManager(Config{
		JWTSecret:   "test-secret",
		RequireAuth: requireAuth,
	})
	if err != nil {
		t.Fatalf("create manager: %v", err)
	}
	return manager
}

func TestMiddlewareAuthDisabled(t *testing.T) {
	manager := newTestManager(t, false)

	e := echo.New()
	e.GET("/test", func(c echo.Context) error {
		return c.String(http.StatusOK, "success")
	}, manager.Middleware())

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddlewarePublicEndpoints(t *testing.T) {
	manager := newTestManager(t, true)

	e := echo.New()
	e.Use(manager.Middleware())
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "healthy")
	})
	e.POST("/login", func(c echo.Context) error {
		return c.String(http.StatusOK, "login")
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/login", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddlewareMissingToken(t *testing.T) {
	manager := newTestManager(t, true)

	e := echo.New()
	e.Use(manager.Middleware())
	e.GET("/protected", func(c echo.Context) error {
		return c.String(http.StatusOK, "success")
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Missing authorization header")
}

func TestMiddlewareInvalidHeaderFormat(t *testing.T) {
	manager := newTestManager(t, true)

	e := echo.New()
	e.Use(manager.Middleware())
	e.GET("/protected", func(c echo.Context) error {
		return c.String(http.StatusOK, "success")
	})

	tests := []struct {
		name   string
		header string
	}{
		{"missing bearer", "just-a-token"},
		{"wrong prefix", "Basic token123"},
		{"extra parts", "Bearer token extra"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			req.Header.Set("Authorization", tt.header)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestMiddlewareValidToken(t *testing.T) {
	manager := newTestManager(t, true)

	token, err := manager.GenerateToken(User{ID: "user_1", Email: "parent@example.com", Name: "Parent"})
	assert.NoError(t, err)

	e := echo.New()
	e.Use(manager.Middleware())
	e.GET("/protected", func(c echo.Context) error {
		user := UserFromContext(c)
		assert.NotNil(t, user)
		assert.Equal(t, "user_1", user.ID)
		return c.String(http.StatusOK, "success")
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	manager, err := NewManager(Config{
		JWTSecret:       "test-secret",
		TokenExpiration: -time.Hour,
		RequireAuth:     true,
	})
	assert.NoError(t, err)

	token, err := manager.GenerateToken(User{ID: "user_1"})
	assert.NoError(t, err)

	_, err = manager.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	manager := newTestManager(t, true)
	other, err := NewManager(Config{JWTSecret: "other-secret"})
	assert.NoError(t, err)

	token, err := other.GenerateToken(User{ID: "user_1"})
	assert.NoError(t, err)

	_, err = manager.ValidateToken(token)
	assert.Error(t, err)
}

func TestNewManagerRequiresSecret(t *testing.T) {
	_, err := NewManager(Config{})
	assert.Error(t, err)
}
