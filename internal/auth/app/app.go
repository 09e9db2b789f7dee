// Package app wires configuration, storage, services and HTTP into a
// runnable authorization server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/agentauth/agentauth/internal/auth/http"
	"github.com/agentauth/agentauth/internal/auth/service"
	"github.com/agentauth/agentauth/internal/auth/store"
	"github.com/agentauth/agentauth/internal/auth/store/drivers/sqlite"
	"github.com/agentauth/agentauth/pkg/cryptox"
	"github.com/agentauth/agentauth/pkg/jwtx"
	"github.com/agentauth/agentauth/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application encapsulates the auth service with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db     store.Store
	signer *jwtx.HS256

	authorizeService    *service.AuthorizeService
	agentService        *service.AgentService
	tokenService        *service.TokenService
	adminService        *service.AdminService
	housekeepingService *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "agentauth",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initSigner(); err != nil {
		return nil, err
	}
	if err := app.initDatabase(); err != nil {
		return nil, err
	}
	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("auth service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully stops the HTTP server, the housekeeping worker and
// the database.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down auth service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("auth service stopped")
	return nil
}

// initSigner builds the HS256 signer, generating an ephemeral key in dev
// when none is configured.
func (app *Application) initSigner() error {
	key, err := app.cfg.SigningKey()
	if err != nil {
		return fmt.Errorf("failed to read signing secret: %w", err)
	}

	if len(key) == 0 {
		if app.cfg.Env != "dev" {
			return errors.New("AUTH_SIGNING_SECRET is required outside dev")
		}
		key = []byte(cryptox.MustGenerateToken(cryptox.TokenSize256))
		app.logger.Warn("no signing secret configured, generated an ephemeral dev key; tokens will not survive restarts")
	}

	signer, err := jwtx.NewHS256(key, app.cfg.Issuer)
	if err != nil {
		return fmt.Errorf("failed to initialize signer: %w", err)
	}
	app.signer = signer
	return nil
}

// initDatabase opens the store and applies migrations.
func (app *Application) initDatabase() error {
	db, err := sqlite.NewStore(sqlite.DSN(app.cfg.DatabaseFile))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initServices initializes all business logic services.
func (app *Application) initServices() {
	app.authorizeService = &service.AuthorizeService{
		Store:      app.db,
		RequestTTL: app.cfg.AuthRequestTTL,
	}
	app.agentService = &service.AgentService{
		Store:   app.db,
		Mailer:  &service.LogMailer{Logger: app.logger},
		CodeTTL: app.cfg.VerificationCodeTTL,
	}
	app.tokenService = &service.TokenService{
		Signer:     app.signer,
		Store:      app.db,
		AccessTTL:  app.cfg.AccessTokenTTL,
		RefreshTTL: app.cfg.RefreshTokenTTL,
	}
	app.adminService = &service.AdminService{Store: app.db}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

// initHTTP builds the router and the HTTP server around it.
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(app.cfg.Issuer, BuildVersion, app.db, app.logger)
	router.AdminToken = app.cfg.AdminToken
	router.AuthorizeService = app.authorizeService
	router.AgentService = app.agentService
	router.TokenService = app.tokenService
	router.AdminService = app.adminService
	router.ApplyRoutes()

	app.router = router
	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
