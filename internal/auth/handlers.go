package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// ErrInvalidCredentials is returned for any credential mismatch.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Handler provides the login and identity endpoints.
type Handler struct {
	manager *Manager
	users   string
}

// NewHandler creates the auth handler. users is the configured account
// list: semicolon-separated EMAIL:PASSWORD:NAME entries.
func NewHandler(manager *Manager, users string) *Handler {
	return &Handler{manager: manager, users: users}
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Login authenticates a parent and hands back a session token.
func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		log.Warn().Err(err).Str("remote_addr", c.Request().RemoteAddr).Msg("invalid login request body")
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Invalid request",
		})
	}

	user, err := h.validateCredentials(req.Email, req.Password)
	if err != nil {
		log.Warn().Str("email", req.Email).Msg("login failed")
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error": "Invalid credentials",
		})
	}

	token, err := h.manager.GenerateToken(*user)
	if err != nil {
		log.Error().Err(err).Msg("failed to generate token")
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Failed to generate token",
		})
	}

	log.Info().Str("email", user.Email).Msg("user logged in")

	return c.JSON(http.StatusOK, LoginResponse{
		Token: token,
		User:  *user,
	})
}

// Me returns the authenticated user.
func (h *Handler) Me(c echo.Context) error {
	user := UserFromContext(c)
	if user == nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error": "Unauthorized",
		})
	}

	return c.JSON(http.StatusOK, user)
}

func (h *Handler) validateCredentials(email, password string) (*User, error) {
	for _, entry := range strings.Split(h.users, ";") {
		parts := strings.Split(entry, ":")
		if len(parts) < 3 {
			continue
		}

		// Constant-time comparison to prevent timing attacks
		if subtle.ConstantTimeCompare([]byte(email), []byte(parts[0])) == 1 &&
			subtle.ConstantTimeCompare([]byte(password), []byte(parts[1])) == 1 {
			return &User{
				ID:    userIDFromEmail(email),
				Email: email,
				Name:  parts[2],
			}, nil
		}
	}

	return nil, ErrInvalidCredentials
}

func userIDFromEmail(email string) string {
	return strings.ReplaceAll(email, "@", "-")
}
