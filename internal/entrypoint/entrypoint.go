package entrypoint

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mrlokans/bookshelf/internal/audit"
	"github.com/mrlokans/bookshelf/internal/auth"
	"github.com/mrlokans/bookshelf/internal/config"
	"github.com/mrlokans/bookshelf/internal/database"
	"github.com/mrlokans/bookshelf/internal/database/accounts"
	auditrepo "github.com/mrlokans/bookshelf/internal/database/audit"
	"github.com/mrlokans/bookshelf/internal/database/books"
	"github.com/mrlokans/bookshelf/internal/forms"
	http_controllers "github.com/mrlokans/bookshelf/internal/http"
	"github.com/mrlokans/bookshelf/internal/scheduler"
	"github.com/mrlokans/bookshelf/internal/tasks"
)

// ShutdownFunc is called during graceful shutdown to clean up resources.
type ShutdownFunc func(ctx context.Context)

// Serve runs the HTTP server until SIGINT or SIGTERM, then shuts it down
// within the configured timeout.
func Serve(router *gin.Engine, cfg *config.Config, logger *logrus.Logger, onShutdown ShutdownFunc) error {
	timeout := time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second
	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.WithField("addr", addr).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-serveErr:
		return fmt.Errorf("listen: %w", err)
	case <-quit:
	}
	logger.WithField("timeout", timeout).Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	// Background work runs after the last request has drained
	if onShutdown != nil {
		onShutdown(ctx)
	}

	logger.Info("Server exiting")
	return nil
}

// CSRFKey decodes a hex session secret, falling back to its raw bytes.
// An empty secret yields a freshly generated key.
func CSRFKey(secret string, logger *logrus.Logger) ([]byte, error) {
	if secret == "" {
		generated, err := auth.GenerateSessionSecret()
		if err != nil {
			return nil, fmt.Errorf("failed to generate session secret: %w", err)
		}
		logger.Warn("Generated session secret (set AUTH_SESSION_SECRET to persist)")
		secret = generated
	}

	if key, err := hex.DecodeString(secret); err == nil {
		return key, nil
	}
	return []byte(secret), nil
}

// Run wires the application together and serves it until shutdown.
func Run(cfg *config.Config, version string, logger *logrus.Logger) error {
	logger.WithField("version", version).Info("Starting Bookshelf")

	db, err := database.NewDatabase(cfg.Database.URL, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.WithError(err).Error("Error closing database")
		}
	}()

	accountRepo := accounts.NewRepository(db.DB)
	bookRepo := books.NewRepository(db.DB)
	auditService := audit.NewService(auditrepo.NewRepository(db.DB), logger)

	sqlDB, err := db.SQLDB()
	if err != nil {
		return fmt.Errorf("failed to get SQL DB for sessions: %w", err)
	}
	sessionStore, err := auth.NewSessionStore(sqlDB, db.Driver)
	if err != nil {
		return fmt.Errorf("failed to initialize session store: %w", err)
	}
	sessionManager := auth.NewSessionManager(sessionStore, cfg.Auth)

	csrfKey, err := CSRFKey(cfg.Auth.SessionSecret, logger)
	if err != nil {
		return err
	}

	authService := auth.NewService(accountRepo, cfg.Auth)
	rateLimiter := auth.NewRateLimiter(auth.RateLimitConfigFrom(cfg.Auth))

	var taskClient *tasks.Client
	var cleanupScheduler *scheduler.AuditCleanupScheduler
	taskCtx, taskCancel := context.WithCancel(context.Background())
	defer taskCancel()

	if cfg.Tasks.Enabled {
		taskClient, err = tasks.NewClient(tasks.DatabasePathFor(cfg.Database.URL), tasks.ConfigFrom(cfg.Tasks), logger)
		if err != nil {
			return fmt.Errorf("failed to initialize task queue: %w", err)
		}
		defer func() {
			if err := taskClient.Close(); err != nil {
				logger.WithError(err).Error("Error closing task client")
			}
		}()

		taskClient.Register(tasks.NewCleanupAuditEventsQueue(auditService, logger))
		taskClient.Start(taskCtx)

		cleanupScheduler = scheduler.NewAuditCleanupScheduler(taskClient, cfg.Audit.CleanupSchedule, cfg.Audit.RetentionDays, logger)
		if err := cleanupScheduler.Start(); err != nil {
			return err
		}
	} else {
		logger.Info("Task queue disabled, audit events will not be cleaned up")
	}

	if count, err := accountRepo.Count(context.Background()); err == nil && count == 0 {
		logger.Info("No accounts yet. Visit /register to create one.")
	}

	if logger.GetLevel() < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	router := http_controllers.NewRouter(http_controllers.RouterConfig{
		Database:       db,
		Accounts:       accountRepo,
		Books:          bookRepo,
		AuthService:    authService,
		SessionManager: sessionManager,
		AuthMiddleware: auth.NewMiddleware(authService, sessionManager, logger),
		RateLimiter:    rateLimiter,
		CSRFSecret:     csrfKey,
		SecureCookies:  cfg.Auth.SecureCookies,
		Validator:      forms.NewValidator(accountRepo),
		Audit:          auditService,
		Logger:         logger,
		Version:        version,
	})

	onShutdown := func(ctx context.Context) {
		if cleanupScheduler != nil {
			cleanupScheduler.Stop()
		}
		if taskClient != nil {
			taskClient.Stop(ctx)
			taskCancel()
		}
		rateLimiter.Stop()
		auditService.Wait()
	}

	return Serve(router, cfg, logger, onShutdown)
}
