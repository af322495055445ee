package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/seyioni/enrollgate/internal/auth"
	"github.com/seyioni/enrollgate/internal/registration"
	"github.com/seyioni/enrollgate/internal/signup"
)

type SignupHandler struct {
	signups *signup.Service
}

func NewSignupHandler(signups *signup.Service) *SignupHandler {
	return &SignupHandler{signups: signups}
}

// Create records a new signup for the authenticated parent and queues it
// for execution. Returns 202: the run happens asynchronously and the
// registration's status carries the outcome.
func (h *SignupHandler) Create(c echo.Context) error {
	user := auth.UserFromContext(c)
	if user == nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	var req signup.Request
	if err := c.Bind(&req); err != nil {
		log.Warn().Err(err).Msg("invalid signup request body")
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	reg, err := h.signups.Submit(c.Request().Context(), user.ID, req)
	if err != nil {
		log.Warn().Err(err).Str("user_id", user.ID).Msg("signup rejected")
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusAccepted, reg)
}

func (h *SignupHandler) Get(c echo.Context) error {
	user := auth.UserFromContext(c)
	if user == nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	reg, err := h.signups.Get(c.Request().Context(), c.Param("id"), user.ID)
	if err != nil {
		if errors.Is(err, registration.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
		}
		log.Error().Err(err).Msg("failed to resolve signup")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
	}

	return c.JSON(http.StatusOK, reg)
}

func (h *SignupHandler) List(c echo.Context) error {
	user := auth.UserFromContext(c)
	if user == nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	regs, err := h.signups.List(c.Request().Context(), user.ID)
	if err != nil {
		log.Error().Err(err).Str("user_id", user.ID).Msg("failed to list signups")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "list failed"})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"total":   len(regs),
		"signups": regs,
	})
}
