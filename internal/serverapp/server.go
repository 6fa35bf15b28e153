package serverapp

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"moalmanac-api/internal/config"
	"moalmanac-api/internal/logging"
	"moalmanac-api/internal/tlscert"
)

func tlsEnabled(cfg *config.Config) bool {
	return cfg.Server.TLSMode != "" && cfg.Server.TLSMode != "off"
}

func buildServer(cfg *config.Config, logger *logging.Logger, handler http.Handler, serverAddr string) (*http.Server, tlscert.Manager, error) {
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	if !tlsEnabled(cfg) {
		return srv, nil, nil
	}

	tlsManager, err := tlscert.NewManager(tlscert.Config{
		Mode:        tlscert.CertMode(cfg.Server.TLSMode),
		CertFile:    cfg.Server.TLSCertFile,
		KeyFile:     cfg.Server.TLSKeyFile,
		AutoCertDir: cfg.Server.TLSAutoCertDir,
		AutoHosts:   tlscert.DefaultHosts,
	}, logger.Logger)
	if err != nil {
		return nil, nil, err
	}

	srv.TLSConfig, err = tlsManager.GetTLSConfig()
	if err != nil {
		return nil, nil, err
	}

	logger.Info("TLS enabled",
		slog.String("mode", cfg.Server.TLSMode),
		slog.String("cert_source", tlsManager.Description()))
	return srv, tlsManager, nil
}

func startServer(cfg *config.Config, logger *logging.Logger, srv *http.Server, serverAddr string) chan error {
	serverErrors := make(chan error, 1)
	secure := tlsEnabled(cfg)

	go func() {
		protocol := "http"
		if secure {
			protocol = "https"
		}

		logAttrs := []any{
			slog.String("protocol", protocol),
			slog.String("address", serverAddr),
			slog.String("about_endpoint", "/about"),
			slog.String("health_endpoint", "/health"),
			slog.String("database_driver", cfg.Database.Driver),
			slog.Duration("about_ttl", cfg.Cache.AboutTTL),
			slog.String("log_level", cfg.Observability.Logging.Level),
			slog.String("log_format", cfg.Observability.Logging.Format),
			slog.Bool("tls_enabled", secure),
		}
		if cfg.Observability.MetricsEnabled {
			logAttrs = append(logAttrs, slog.String("metrics_endpoint", "/metrics"))
		}
		if cfg.Server.RateLimitEnabled {
			logAttrs = append(logAttrs,
				slog.Float64("rate_limit_rps", cfg.Server.RateLimitRPS),
				slog.Int("rate_limit_burst", cfg.Server.RateLimitBurst),
			)
		}
		if secure {
			logAttrs = append(logAttrs, slog.String("tls_mode", cfg.Server.TLSMode))
		}

		logger.Info("server starting", logAttrs...)

		var err error
		if secure {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- fmt.Errorf("server failed: %w", err)
		}
	}()
	return serverErrors
}
