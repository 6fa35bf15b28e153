// Package serverapp owns the lifecycle of the API server: telemetry
// providers, the knowledgebase connection, the route table and the HTTP
// server, released in reverse order on shutdown.
package serverapp

import (
	"database/sql"
	"fmt"
	"net/http"
	"sync"

	"moalmanac-api/internal/about"
	"moalmanac-api/internal/api"
	"moalmanac-api/internal/config"
	"moalmanac-api/internal/logging"
	"moalmanac-api/internal/observability"
	"moalmanac-api/internal/resolver"
	"moalmanac-api/internal/tlscert"
)

// App owns runtime resources for the moalmanac-api server lifecycle.
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	loggerProvider *observability.LoggerProvider

	// databaseTarget names what the server reads: the snapshot path for
	// sqlite or the effective schema for mysql.
	databaseTarget string
	databaseSource string

	meterProvider  *observability.MeterProvider
	apiMetrics     *observability.APIMetrics
	aboutMetrics   *observability.AboutCacheMetrics
	tracerProvider *observability.TracerProvider

	db         *sql.DB
	dbStatsReg interface{ Unregister() error }

	resolver   *resolver.Resolver
	aboutCache *about.Cache
	apiHandler *api.Handler
	mux        *http.ServeMux
	handler    http.Handler

	serverAddr string
	srv        *http.Server
	tlsManager tlscert.Manager

	cleanup cleanupStack

	stateMu      sync.Mutex
	initialized  bool
	started      bool
	serverErrors chan error

	shutdownOnce sync.Once
}

// New creates an App lifecycle wrapper.
func New(cfg *config.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	app := &App{
		cfg:            cfg,
		logger:         logger,
		databaseTarget: cfg.Database.Path,
		databaseSource: "database.path",
	}
	if cfg.Database.IsMySQL() {
		name, source, err := cfg.Database.EffectiveDatabaseName()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve effective database configuration: %w", err)
		}
		app.databaseTarget = name
		app.databaseSource = source
	}
	return app, nil
}

// AttachLoggerProvider registers an optional logger provider for shutdown cleanup.
func (a *App) AttachLoggerProvider(provider *observability.LoggerProvider) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.loggerProvider = provider
}

// Handler returns the fully wrapped HTTP handler. It is nil before Init.
func (a *App) Handler() http.Handler {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.handler
}
