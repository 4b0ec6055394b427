package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/tcollier/txgate/internal/auth"
	"github.com/tcollier/txgate/internal/background"
	"github.com/tcollier/txgate/internal/config"
	"github.com/tcollier/txgate/internal/database"
	"github.com/tcollier/txgate/internal/dispatch"
	"github.com/tcollier/txgate/internal/handlers"
	"github.com/tcollier/txgate/internal/middleware"
	"github.com/tcollier/txgate/internal/objects"
	"github.com/tcollier/txgate/internal/repositories"
	"github.com/tcollier/txgate/internal/routes"
	"github.com/tcollier/txgate/internal/services"
	pkglogger "github.com/tcollier/txgate/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Repositories
	userRepo := repositories.NewUserRepository(db)
	personRepo := repositories.NewPersonRepository(db)
	resetRepo := repositories.NewPasswordResetRepository(db)
	codeRepo := repositories.NewOneTimeCodeRepository(db)
	deviceRepo := repositories.NewTOTPDeviceRepository(db)
	snapshotRepo := repositories.NewSnapshotRepository(db)

	sessionRepo, err := repositories.NewSessionRepository(db, cfg.Auth.SessionTableName)
	if err != nil {
		logger.Error("failed to initialize session repository", slog.Any("error", err))
		os.Exit(1)
	}

	// Dispatch snapshots load once at startup. A failure leaves the gate
	// failed and the process serving 503s on /tx; probes stay up.
	readiness := dispatch.NewReadiness()
	router, perms := loadSnapshots(context.Background(), snapshotRepo, readiness, logger)

	registry := dispatch.NewHandlerRegistry(logger)
	registry.Register(dispatch.ObjectPerson, func() (dispatch.Handler, error) {
		return objects.NewPersonHandler(personRepo, logger), nil
	})
	registry.Register(dispatch.ObjectAccount, func() (dispatch.Handler, error) {
		return objects.NewAccountHandler(userRepo, logger), nil
	})

	gateway := dispatch.NewGateway(router, perms, registry, logger)

	// Auth primitives
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry)

	totpManager, err := auth.NewTOTPManager(cfg.Auth.TOTPEncryptionKey, cfg.Auth.TOTPIssuer)
	if err != nil {
		logger.Error("failed to initialize TOTP manager", slog.Any("error", err))
		os.Exit(1)
	}

	timingDelay := auth.NewTimingDelay(
		cfg.Auth.TimingDelayBase,
		cfg.Auth.TimingDelayJitter,
		cfg.Auth.TimingDelayOnSuccess,
	)

	auditLogger := pkglogger.NewAuditLogger(logger)

	emailService, err := services.NewAWSSESEmailService(
		cfg.Email.AWSRegion,
		cfg.Email.FromAddress,
		cfg.Email.ResetURLBase,
		logger,
	)
	if err != nil {
		logger.Error("failed to initialize email service", slog.Any("error", err))
		os.Exit(1)
	}

	// Services
	codeService := services.NewOneTimeCodeService(codeRepo, logger, auditLogger, cfg.Challenge)
	resetService := services.NewPasswordResetService(
		resetRepo, userRepo, sessionRepo, emailService, logger, auditLogger, cfg.Challenge)
	authService := services.NewAuthService(
		userRepo, deviceRepo, sessionRepo, codeService, emailService,
		tokenManager, totpManager, timingDelay, logger, auditLogger, cfg.Challenge.OTPTTL)

	// Handlers
	authHandler := handlers.NewAuthHandler(authService, resetService)
	dispatchHandler := handlers.NewDispatchHandler(gateway, readiness)
	healthHandler := handlers.NewHealthHandler(db, readiness)

	// Expired challenge records and sessions get swept in the background
	cleanupManager := background.NewCleanupManager([]background.CleanupTarget{
		{Name: "password_resets", Cleaner: resetRepo},
		{Name: "one_time_codes", Cleaner: codeRepo},
		{Name: "sessions", Cleaner: sessionRepo},
	}, logger, cfg.Auth.CleanupInterval)

	// Router
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders(middleware.SecurityHeadersConfig{Env: cfg.Server.Env}))
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(r, authHandler, dispatchHandler, healthHandler,
		tokenManager, sessionRepo, middleware.DefaultRateLimits())

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// loadSnapshots builds the routing and permission tables from the database.
// On any failure the readiness gate is marked failed and empty tables are
// returned so the dispatch path stays wired but refuses traffic.
func loadSnapshots(
	ctx context.Context,
	snapshotRepo *repositories.SnapshotRepository,
	readiness *dispatch.Readiness,
	logger *slog.Logger,
) (*dispatch.TxRouter, *dispatch.PermissionIndex) {
	loadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	router, err := dispatch.LoadTxRouter(loadCtx, snapshotRepo)
	if err != nil {
		logger.Error("failed to load transaction code snapshot", slog.Any("error", err))
		readiness.MarkFailed(err.Error())
		return dispatch.NewTxRouter(nil), dispatch.NewPermissionIndex(nil)
	}

	perms, err := dispatch.LoadPermissionIndex(loadCtx, snapshotRepo)
	if err != nil {
		logger.Error("failed to load permission snapshot", slog.Any("error", err))
		readiness.MarkFailed(err.Error())
		return dispatch.NewTxRouter(nil), dispatch.NewPermissionIndex(nil)
	}

	readiness.MarkReady()
	logger.Info("dispatch snapshots loaded")
	return router, perms
}
