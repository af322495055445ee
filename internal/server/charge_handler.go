package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/seyioni/enrollgate/internal/auth"
	"github.com/seyioni/enrollgate/internal/billing"
	"github.com/seyioni/enrollgate/internal/exec"
	"github.com/seyioni/enrollgate/internal/mandate"
	"github.com/seyioni/enrollgate/internal/registration"
	"github.com/seyioni/enrollgate/internal/signup"
)

type ChargeHandler struct {
	signups    *signup.Service
	ledger     *billing.Ledger
	middleware *exec.Middleware
}

func NewChargeHandler(signups *signup.Service, ledger *billing.Ledger, middleware *exec.Middleware) *ChargeHandler {
	return &ChargeHandler{signups: signups, ledger: ledger, middleware: middleware}
}

// Charge collects the success fee for one signup. Safe to call repeatedly:
// the ledger claims exactly one charge row per execution, so retries get
// the original receipt back.
func (h *ChargeHandler) Charge(c echo.Context) error {
	user := auth.UserFromContext(c)
	if user == nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	ctx := c.Request().Context()

	reg, err := h.signups.Get(ctx, c.Param("id"), user.ID)
	if err != nil {
		if errors.Is(err, registration.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
		}
		log.Error().Err(err).Msg("failed to resolve signup for charge")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
	}

	call := exec.Call{
		CorrelationID: reg.ID,
		MandateID:     reg.MandateID,
		UserID:        user.ID,
		Action:        "billing.success_fee",
	}
	args := map[string]string{"execution_id": reg.ID}

	result, err := h.middleware.Execute(ctx, call, args, func(ctx context.Context) (any, error) {
		return h.ledger.ChargeOnSuccess(ctx, reg.ID, reg.MandateID, user.ID)
	}, mandate.ScopePay)
	if err != nil {
		return h.chargeError(c, reg.ID, err)
	}

	return c.JSON(http.StatusOK, result)
}

func (h *ChargeHandler) chargeError(c echo.Context, executionID string, err error) error {
	var verr *exec.VerificationError
	switch {
	case errors.As(err, &verr):
		log.Warn().Err(err).Str("execution_id", executionID).Msg("charge denied by mandate")
		return c.JSON(http.StatusForbidden, map[string]string{"error": "mandate does not authorize this charge"})
	case errors.Is(err, billing.ErrExecutionNotSuccessful):
		return c.JSON(http.StatusConflict, map[string]string{"error": "signup has not succeeded"})
	case errors.Is(err, billing.ErrCapExceeded):
		return c.JSON(http.StatusForbidden, map[string]string{"error": "fee exceeds mandate cap"})
	default:
		log.Error().Err(err).Str("execution_id", executionID).Msg("charge failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "charge failed"})
	}
}
