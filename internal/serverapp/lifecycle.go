package serverapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"moalmanac-api/internal/logging"
)

// cleanupStack releases resources in reverse order of acquisition.
type cleanupStack []cleanupStep

type cleanupStep struct {
	name    string
	release func(context.Context) error
}

func (s *cleanupStack) push(name string, release func(context.Context) error) {
	*s = append(*s, cleanupStep{name: name, release: release})
}

// run releases every step, even after failures, and reports all failures.
func (s cleanupStack) run(ctx context.Context, logger *logging.Logger) error {
	var errs []error
	for i := len(s) - 1; i >= 0; i-- {
		step := s[i]
		started := time.Now()
		err := step.release(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
		}
		switch {
		case logger == nil:
		case err != nil:
			logger.Warn("cleanup error",
				slog.String("component", step.name),
				slog.String("error", err.Error()),
			)
		default:
			logger.Info("released "+step.name, slog.Duration("duration", time.Since(started)))
		}
	}
	return errors.Join(errs...)
}

// Start launches the HTTP server goroutine once Init has completed. Later
// calls return the same error channel.
func (a *App) Start() (<-chan error, error) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()

	switch {
	case !a.initialized:
		return nil, fmt.Errorf("app is not initialized")
	case !a.started:
		a.serverErrors = startServer(a.cfg, a.logger, a.srv, a.serverAddr)
		a.started = true
	}
	return a.serverErrors, nil
}

// WaitForStop blocks until stop delivers a signal or the server fails. A nil
// serverErrors means the channel from Start; a nil channel never fires.
func (a *App) WaitForStop(stop <-chan os.Signal, serverErrors <-chan error) (reason string, err error) {
	if serverErrors == nil {
		a.stateMu.Lock()
		serverErrors = a.serverErrors
		a.stateMu.Unlock()
	}
	if stop == nil && serverErrors == nil {
		return "", fmt.Errorf("both stop and serverErrors channels are nil")
	}

	select {
	case sig := <-stop:
		if a.logger != nil {
			a.logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		}
		return "signal", nil
	case err := <-serverErrors:
		if err == nil {
			err = errors.New("server stopped unexpectedly")
		}
		return "server_error", err
	}
}

// Shutdown releases everything Init acquired. Only the first call does
// work; later calls return nil.
func (a *App) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var err error
	a.shutdownOnce.Do(func() {
		a.stateMu.Lock()
		steps := a.cleanup
		a.cleanup = nil
		a.started = false
		a.stateMu.Unlock()

		err = steps.run(ctx, a.logger)
	})
	return err
}
