package server

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/seyioni/enrollgate/internal/audit"
)

type AuditHandler struct {
	store audit.Store
}

func NewAuditHandler(store audit.Store) *AuditHandler {
	return &AuditHandler{store: store}
}

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

// auditLimit parses the limit query parameter, falling back to the default
// and capping oversized requests so one call cannot page the whole table.
func auditLimit(raw string) int {
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return defaultAuditLimit
	}
	if parsed > maxAuditLimit {
		return maxAuditLimit
	}
	return parsed
}

func (h *AuditHandler) GetAuditLog(c echo.Context) error {
	ctx := c.Request().Context()

	entries, err := h.store.List(ctx, auditLimit(c.QueryParam("limit")))
	if err != nil {
		log.Error().Err(err).Str("remote_addr", c.Request().RemoteAddr).Msg("failed to retrieve audit log")
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to retrieve audit log",
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"total":   len(entries),
		"entries": entries,
	})
}
