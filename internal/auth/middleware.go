// Package auth authenticates the parent using the API. The authenticated
// user id is what every ownership-scoped lookup filters by.
package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// User is an authenticated parent account.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Claims extends JWT standard claims with the user record.
type Claims struct {
	User User `json:"user"`
	jwt.RegisteredClaims
}

// Config holds auth configuration.
type Config struct {
	JWTSecret       string
	TokenExpiration time.Duration
	RequireAuth     bool
}

// Manager issues and validates API session tokens.
type Manager struct {
	config Config
	secret []byte
}

func NewManager(config Config) (*Manager, error) {
	if config.JWTSecret == "" {
		return nil, fmt.Errorf("auth: JWT secret is required")
	}
	if config.TokenExpiration == 0 {
		config.TokenExpiration = 24 * time.Hour
	}

	return &Manager{
		config: config,
		secret: []byte(config.JWTSecret),
	}, nil
}

// Middleware returns Echo middleware that authenticates requests. /health
// and /login stay public.
func (m *Manager) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !m.config.RequireAuth {
				return next(c)
			}

			path := c.Path()
			if path == "/health" || path == "/login" {
				return next(c)
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error": "Missing authorization header",
				})
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error": "Invalid authorization header format",
				})
			}

			user, err := m.ValidateToken(parts[1])
			if err != nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error": "Invalid token",
				})
			}

			c.Set("user", user)
			return next(c)
		}
	}
}

// GenerateToken creates a session JWT for a user.
func (m *Manager) GenerateToken(user User) (string, error) {
	now := time.Now()
	claims := &Claims{
		User: user,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.TokenExpiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "enrollgate",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// ValidateToken verifies a session JWT and returns its user.
func (m *Manager) ValidateToken(tokenString string) (*User, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer("enrollgate"))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.User.ID == "" {
		return nil, fmt.Errorf("invalid token")
	}

	return &claims.User, nil
}

// UserFromContext extracts the authenticated user from the Echo context.
func UserFromContext(c echo.Context) *User {
	if user, ok := c.Get("user").(*User); ok {
		return user
	}
	return nil
}
