package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/aussiebroadwan/realmkit/internal/resource/http"
	"github.com/aussiebroadwan/realmkit/internal/resource/store"
	"github.com/aussiebroadwan/realmkit/internal/resource/store/drivers/sqlite"
	"github.com/aussiebroadwan/realmkit/pkg/oidcrp"
	"github.com/aussiebroadwan/realmkit/pkg/realmx"
	"github.com/aussiebroadwan/realmkit/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the resource service with all its
// dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db       store.Store
	resolver *realmx.Resolver
	tokens   *oidcrp.TokenClient
	manager  *oidcrp.ProfileManager
	account  *oidcrp.ServiceAccountClient
	uma      *oidcrp.UMAResourceClient

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies
// initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "resource-service",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	if err := app.initRealm(); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	if app.cfg.RegisterResources {
		if err := app.registerResources(context.Background()); err != nil {
			return fmt.Errorf("failed to register resources: %w", err)
		}
	}

	app.logger.Info("resource service starting",
		"port", app.cfg.Port,
		"realm", app.cfg.RealmName,
		"version", BuildVersion,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
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

// Shutdown gracefully shuts down the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down resource service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("resource service stopped")
	return nil
}

// initDatabase initializes the database and applies migrations.
func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
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

// initRealm wires the realm resolver, token client and profile
// manager against the configured identity server.
func (app *Application) initRealm() error {
	server, err := realmx.NewServer(app.cfg.RealmURL, app.cfg.RealmInternalURL)
	if err != nil {
		return err
	}

	app.resolver = realmx.NewResolver(server, app.cfg.RealmName)
	app.tokens = oidcrp.NewTokenClient(app.resolver, app.cfg.ClientID, app.cfg.ClientSecret)
	app.manager = oidcrp.NewProfileManager(app.tokens, store.NewProfileAdapter(app.db))
	app.account = oidcrp.NewServiceAccountClient(app.manager)
	app.uma = oidcrp.NewUMAResourceClient(app.account)

	return nil
}

// registerResources registers this service's protected resources with
// the realm's authorization services.
func (app *Application) registerResources(ctx context.Context) error {
	desc, err := app.uma.RegisterResource(ctx, oidcrp.UMAResource{
		Name:   "whoami",
		Type:   "urn:resourced:resources:identity",
		URI:    "/v1/whoami",
		Scopes: []string{"read"},
	})
	if err != nil {
		return err
	}

	if desc != nil {
		app.logger.Info("resource registered", "name", desc.Name, "id", desc.ID)
	} else {
		app.logger.Info("resource registered, no descriptor returned")
	}
	return nil
}

// initHTTP initializes the HTTP router and server.
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.tokens,
		app.resolver,
		BuildVersion,
		app.db,
		app.logger,
	)
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
