package serverapp

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"moalmanac-api/internal/observability"
	"moalmanac-api/internal/tlscert"
)

// resources collects what the init phases build. Init publishes them on
// the App only once every phase has succeeded.
type resources struct {
	telemetry  telemetry
	tracer     *observability.TracerProvider
	db         *sql.DB
	dbStatsReg interface{ Unregister() error }
	api        apiComponents
	mux        *http.ServeMux
	handler    http.Handler
	addr       string
	srv        *http.Server
	tlsManager tlscert.Manager
}

type initPhase struct {
	name string
	run  func(context.Context, *resources, *cleanupStack) error
}

// Init brings up telemetry, the knowledgebase connection and the HTTP
// server, in that order. It is idempotent. When a phase fails everything
// acquired so far is released and the App stays uninitialized.
func (a *App) Init(ctx context.Context) (err error) {
	a.stateMu.Lock()
	done := a.initialized
	a.stateMu.Unlock()
	if done {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		res     resources
		cleanup cleanupStack
	)
	if a.loggerProvider != nil {
		cleanup.push("logger provider", func(ctx context.Context) error {
			return a.loggerProvider.Shutdown(ctx, a.logger.Logger)
		})
	}
	defer func() {
		if err != nil {
			_ = cleanup.run(context.Background(), a.logger)
		}
	}()

	for _, phase := range []initPhase{
		{"telemetry", a.initTelemetry},
		{"database", a.initDatabase},
		{"http", a.initHTTP},
	} {
		if err := phase.run(ctx, &res, &cleanup); err != nil {
			a.logger.Error("initialization failed", slog.String("phase", phase.name), slog.String("error", err.Error()))
			return err
		}
	}

	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.meterProvider = res.telemetry.provider
	a.apiMetrics = res.telemetry.api
	a.aboutMetrics = res.telemetry.about
	a.tracerProvider = res.tracer
	a.db = res.db
	a.dbStatsReg = res.dbStatsReg
	a.resolver = res.api.resolver
	a.aboutCache = res.api.about
	a.apiHandler = res.api.handler
	a.mux = res.mux
	a.handler = res.handler
	a.serverAddr = res.addr
	a.srv = res.srv
	a.tlsManager = res.tlsManager
	a.cleanup = cleanup
	a.initialized = true
	return nil
}

func (a *App) initTelemetry(_ context.Context, res *resources, cleanup *cleanupStack) error {
	tel, err := initMetrics(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry metrics: %w", err)
	}
	res.telemetry = tel
	if tel.provider != nil {
		cleanup.push("meter provider", func(ctx context.Context) error {
			return tel.provider.Shutdown(ctx, a.logger.Logger)
		})
	}

	tracer, err := initTracing(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry tracing: %w", err)
	}
	res.tracer = tracer
	if tracer != nil {
		cleanup.push("tracer provider", func(ctx context.Context) error {
			return tracer.Shutdown(ctx, a.logger.Logger)
		})
	}
	return nil
}

func (a *App) initDatabase(ctx context.Context, res *resources, cleanup *cleanupStack) error {
	a.logger.Info("connecting to knowledgebase",
		slog.String("driver", a.cfg.Database.Driver),
		slog.String("database_effective", a.databaseTarget),
		slog.String("database_source", a.databaseSource),
	)

	db, statsReg, err := connectDB(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	res.db, res.dbStatsReg = db, statsReg
	cleanup.push("database", func(context.Context) error {
		if statsReg != nil {
			if err := statsReg.Unregister(); err != nil {
				a.logger.Warn("failed to unregister DB stats metrics", slog.String("error", err.Error()))
			}
		}
		return db.Close()
	})

	if err := configureDatabase(ctx, a.cfg, a.logger, db, a.databaseTarget); err != nil {
		return fmt.Errorf("failed to verify database connection: %w", err)
	}
	return nil
}

func (a *App) initHTTP(ctx context.Context, res *resources, cleanup *cleanupStack) error {
	api, err := buildAPI(a.cfg, a.logger, res.db, res.telemetry)
	if err != nil {
		return fmt.Errorf("failed to initialize API handler: %w", err)
	}
	res.api = api
	warmAboutCache(ctx, a.logger, api.about)

	res.mux = buildRouter(a.cfg, a.logger, res.db, api.handler, res.telemetry)
	res.handler = wrapHTTPHandler(a.cfg, a.logger, res.mux)
	res.addr = fmt.Sprintf(":%d", a.cfg.Server.Port)

	srv, tlsManager, err := buildServer(a.cfg, a.logger, res.handler, res.addr)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}
	res.srv, res.tlsManager = srv, tlsManager
	cleanup.push("HTTP server", srv.Shutdown)
	if tlsManager != nil {
		cleanup.push("TLS manager", func(context.Context) error {
			return tlsManager.Shutdown()
		})
	}
	return nil
}
