package serverapp

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"moalmanac-api/internal/about"
	"moalmanac-api/internal/aggregate"
	"moalmanac-api/internal/api"
	"moalmanac-api/internal/config"
	"moalmanac-api/internal/dbexec"
	"moalmanac-api/internal/logging"
	"moalmanac-api/internal/middleware"
	"moalmanac-api/internal/resolver"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// aboutWarmTimeout bounds the startup load of the About record.
const aboutWarmTimeout = 5 * time.Second

type apiComponents struct {
	resolver *resolver.Resolver
	about    *about.Cache
	handler  *api.Handler
}

func buildAPI(cfg *config.Config, logger *logging.Logger, db *sql.DB, tel telemetry) (apiComponents, error) {
	var opts []resolver.Option
	if tel.api != nil {
		opts = append(opts, resolver.WithQueryObserver(tel.api))
	}
	res := resolver.NewResolver(dbexec.NewStandardExecutor(db), opts...)

	aboutCfg := about.Config{
		TTL:    cfg.Cache.AboutTTL,
		Load:   about.ResolverLoader(res),
		Logger: logger,
	}
	if tel.about != nil {
		aboutCfg.Observer = tel.about
	}
	aboutCache, err := about.New(aboutCfg)
	if err != nil {
		return apiComponents{}, err
	}

	handlerCfg := api.Config{
		Resolver:   res,
		Aggregator: aggregate.New(res, 0),
		About:      aboutCache,
		Logger:     logger,
	}
	if cfg.Server.ReadOnlySessions {
		session := dbexec.ReadOnlySessionConfig(db, cfg.Database.Driver)
		handlerCfg.Session = &session
		logger.Info("read-only request sessions enabled", slog.String("driver", cfg.Database.Driver))
	}
	handler, err := api.New(handlerCfg)
	if err != nil {
		return apiComponents{}, err
	}

	return apiComponents{resolver: res, about: aboutCache, handler: handler}, nil
}

// warmAboutCache loads the About record before the first request. Failure is
// not fatal; the first request retries the load.
func warmAboutCache(ctx context.Context, logger *logging.Logger, cache *about.Cache) {
	warmCtx, cancel := context.WithTimeout(ctx, aboutWarmTimeout)
	defer cancel()

	if _, err := cache.Get(warmCtx); err != nil {
		logger.Warn("failed to preload about record", slog.String("error", err.Error()))
		return
	}
	logger.Debug("about record preloaded")
}

func buildRouter(cfg *config.Config, logger *logging.Logger, db *sql.DB, handler *api.Handler, tel telemetry) *http.ServeMux {
	mux := http.NewServeMux()

	routes := 0
	handler.Register(mux, func(pattern string, next http.Handler) http.Handler {
		routes++
		next = middleware.TracingMiddleware(pattern)(next)
		if tel.api != nil {
			next = middleware.APIMetricsMiddleware(tel.api, pattern)(next)
		}
		return next
	})
	logger.Info("API routes registered", slog.Int("routes", routes))

	mux.HandleFunc("GET /health", healthHandler(db, cfg.Server.HealthCheckTimeout))

	if cfg.Observability.MetricsEnabled && tel.provider != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		logger.Info("metrics endpoint enabled", slog.String("path", "/metrics"))
	}

	return mux
}

// wrapHTTPHandler applies the process-wide middleware. From the outside in:
// rate limit, CORS, HTTP instrumentation, request logging.
func wrapHTTPHandler(cfg *config.Config, logger *logging.Logger, mux *http.ServeMux) http.Handler {
	handler := middleware.LoggingMiddleware(logger)(mux)

	if cfg.Observability.MetricsEnabled || cfg.Observability.TracingEnabled {
		handler = otelhttp.NewHandler(handler, "http.server",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return httpRootSpanName(mux, r)
			}),
		)
		logger.Info("HTTP instrumentation enabled")
	}

	if cfg.Server.CORSEnabled {
		handler = middleware.CORSMiddleware(middleware.CORSConfig{
			Enabled:          cfg.Server.CORSEnabled,
			AllowedOrigins:   cfg.Server.CORSAllowedOrigins,
			AllowedMethods:   cfg.Server.CORSAllowedMethods,
			AllowedHeaders:   cfg.Server.CORSAllowedHeaders,
			ExposeHeaders:    cfg.Server.CORSExposeHeaders,
			AllowCredentials: cfg.Server.CORSAllowCredentials,
			MaxAge:           cfg.Server.CORSMaxAge,
		})(handler)
	}

	if cfg.Server.RateLimitEnabled {
		handler = middleware.RateLimitMiddleware(middleware.RateLimitConfig{
			Enabled:     cfg.Server.RateLimitEnabled,
			RPS:         cfg.Server.RateLimitRPS,
			Burst:       cfg.Server.RateLimitBurst,
			ExemptPaths: []string{"/health", "/metrics"},
		})(handler)
	}

	return handler
}

// httpRootSpanName names the server span after the route pattern the mux
// would pick, so ids never reach span names.
func httpRootSpanName(mux *http.ServeMux, r *http.Request) string {
	if r == nil {
		return "HTTP /*"
	}

	method := strings.TrimSpace(r.Method)
	if method == "" {
		method = "HTTP"
	}

	if mux != nil && r.URL != nil {
		if _, pattern := mux.Handler(r); pattern != "" {
			if strings.Contains(pattern, " ") {
				return pattern
			}
			return method + " " + pattern
		}
	}
	return method + " /*"
}

// healthHandler returns an HTTP handler for health checks
func healthHandler(db *sql.DB, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.FromContext(r.Context())
		w.Header().Set("Content-Type", "application/json")

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			reqLogger.Error("health check failed",
				slog.String("error", err.Error()),
				slog.String("check", "database"),
			)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprint(w, `{"status":"unhealthy","database":"failed"}`)
			return
		}

		reqLogger.Debug("health check passed")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, `{"status":"healthy","database":"ok"}`)
	}
}
