package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

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

func main() {
	setupLogger()

	log.Info().Msg("starting enrollgate")

	ctx, cancel := setupSignalHandler()
	defer cancel()

	if err := run(ctx); err != nil {
		log.Fatal().Err(err).Msg("application error")
	}

	log.Info().Msg("enrollgate stopped successfully")
}

func run(ctx context.Context) error {
	dbPath := getEnv("DB_PATH", "./db/enrollgate.db")

	log.Info().Str("path", dbPath).Msg("opening database")
	db, err := storage.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close database")
		}
	}()

	auditStore, err := audit.NewSQLiteStore(db)
	if err != nil {
		return fmt.Errorf("init audit store: %w", err)
	}

	mandateStore, err := mandate.NewSQLiteStore(db)
	if err != nil {
		return fmt.Errorf("init mandate store: %w", err)
	}

	regStore, err := registration.NewSQLiteStore(db)
	if err != nil {
		return fmt.Errorf("init registration store: %w", err)
	}

	chargeStore, err := billing.NewSQLiteStore(db)
	if err != nil {
		return fmt.Errorf("init charge store: %w", err)
	}

	keys, err := initKeySource()
	if err != nil {
		return err
	}
	defer func() {
		if err := keys.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close key source")
		}
	}()

	verifier := mandate.NewTokenVerifier(mandateStore, keys,
		getEnv("MANDATE_ISSUER", "enrollgate-mandates"),
		getEnv("MANDATE_AUDIENCE", "enrollgate"))

	middleware := exec.New(audit.NewRecorder(auditStore), verifier)

	cfg := server.LoadConfig()

	queue := dispatch.NewQueue()
	defer func() {
		if err := queue.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close task queue")
		}
	}()

	signupService := signup.NewService(regStore, queue, middleware, runner.NewClient(cfg.RunnerConfig))

	worker := dispatch.NewWorker(queue, signupService.RunTask)
	go worker.Start(ctx)

	ledger := billing.NewLedger(chargeStore, regStore, mandateStore, initGateway())

	authManager, err := initAuthManager()
	if err != nil {
		return err
	}

	srv := server.New(cfg, server.Deps{
		Signups:     signupService,
		Audit:       auditStore,
		Ledger:      ledger,
		Exec:        middleware,
		AuthManager: authManager,
		AuthUsers:   os.Getenv("AUTH_USERS"),
	})

	return runServer(ctx, srv)
}

func initKeySource() (mandate.KeySource, error) {
	keyFile := getEnv("MANDATE_KEY_FILE", "./keys/mandate.key")

	log.Info().Str("path", keyFile).Msg("loading mandate trust key")

	keys, err := mandate.NewFileKeySource(keyFile)
	if err != nil {
		return nil, fmt.Errorf("init key source: %w", err)
	}

	return keys, nil
}

func initGateway() billing.Gateway {
	endpoint := getEnv("PAYMENT_ENDPOINT", "http://localhost:9100/charges")
	timeout := getEnvInt("PAYMENT_TIMEOUT", 30)

	log.Info().Str("endpoint", endpoint).Msg("initializing payment gateway client")

	return billing.NewHTTPGateway(endpoint, os.Getenv("PAYMENT_API_KEY"), timeout)
}

func initAuthManager() (*auth.Manager, error) {
	requireAuth := getEnv("REQUIRE_AUTH", "true") == "true"

	log.Info().Bool("required", requireAuth).Msg("initializing auth manager")

	manager, err := auth.NewManager(auth.Config{
		JWTSecret:       os.Getenv("JWT_SECRET"),
		TokenExpiration: 24 * time.Hour,
		RequireAuth:     requireAuth,
	})
	if err != nil {
		return nil, fmt.Errorf("init auth manager: %w", err)
	}

	return manager, nil
}

func setupLogger() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	level, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
		cancel()
	}()

	return ctx, cancel
}

func runServer(ctx context.Context, srv *server.Server) error {
	errChan := make(chan error, 1)

	go func() {
		if err := srv.Start(); err != nil {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}
