package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/seyioni/enrollgate/internal/audit"
	"github.com/seyioni/enrollgate/internal/auth"
	"github.com/seyioni/enrollgate/internal/billing"
	"github.com/seyioni/enrollgate/internal/exec"
	"github.com/seyioni/enrollgate/internal/runner"
	"github.com/seyioni/enrollgate/internal/signup"
)

type Server struct {
	echo   *echo.Echo
	config Config
}

type Config struct {
	Port            int
	ReadTimeout     int
	WriteTimeout    int
	ShutdownTimeout int
	RunnerConfig    runner.Config
}

// Deps are the constructed collaborators the HTTP surface exposes.
type Deps struct {
	Signups     *signup.Service
	Audit       audit.Store
	Ledger      *billing.Ledger
	Exec        *exec.Middleware
	AuthManager *auth.Manager
	AuthUsers   string
}

func New(cfg Config, deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		config: cfg,
	}

	s.setupMiddleware()
	s.setupRoutes(deps)

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	log.Info().Int("port", s.config.Port).Msg("starting HTTP server")

	s.echo.Server.ReadTimeout = time.Duration(s.config.ReadTimeout) * time.Second
	s.echo.Server.WriteTimeout = time.Duration(s.config.WriteTimeout) * time.Second

	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Handler exposes the routed HTTP handler, mainly for tests that mount the
// server behind httptest.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, time.Duration(s.config.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	return nil
}

func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogStatus:  true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))

	s.echo.Use(middleware.Recover())

	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}))
}

func (s *Server) setupRoutes(deps Deps) {
	signupHandler := NewSignupHandler(deps.Signups)
	auditHandler := NewAuditHandler(deps.Audit)
	chargeHandler := NewChargeHandler(deps.Signups, deps.Ledger, deps.Exec)
	authHandler := auth.NewHandler(deps.AuthManager, deps.AuthUsers)

	// Public endpoints (no auth required)
	s.echo.GET("/health", s.handleHealth)
	s.echo.POST("/login", authHandler.Login)

	protected := s.echo.Group("")
	protected.Use(deps.AuthManager.Middleware())

	protected.GET("/me", authHandler.Me)
	protected.POST("/v1/signups", signupHandler.Create)
	protected.GET("/v1/signups", signupHandler.List)
	protected.GET("/v1/signups/:id", signupHandler.Get)
	protected.POST("/v1/signups/:id/charge", chargeHandler.Charge)
	protected.GET("/v1/audit", auditHandler.GetAuditLog)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "healthy",
	})
}
