package internal

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// Run starts svc and blocks until SIGINT, SIGTERM or the base context ends,
// then runs the shutdown hooks.
//
// Example:
//
//	svc := dispatch.NewService(dispatch.WithLogger(log))
//	err := dispatch.Run(svc, settings,
//	    dispatch.Resources(users, orders),
//	    dispatch.ShutdownHook(redis.Shutdown(client)),
//	)
func Run(svc *Service, settings Settings, opts ...RunOption) error {
	cfg := buildRunConfig(opts...)
	if cfg.shutdownTimeout == 0 {
		cfg.shutdownTimeout = settings.ShutdownTimeout
	}
	if cfg.shutdownTimeout == 0 {
		cfg.shutdownTimeout = DefaultShutdownTimeout
	}

	svc.mu.Lock()
	logger := svc.logger
	svc.mu.Unlock()

	for _, r := range cfg.resources {
		if err := svc.Publish(r); err != nil {
			return err
		}
	}

	baseCtx := cfg.baseCtx
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	ctx, cancel := signal.NotifyContext(baseCtx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	for _, hook := range cfg.startupHooks {
		if err := hook(ctx); err != nil {
			return err
		}
	}

	startErr := svc.Start(ctx, settings)
	if startErr != nil {
		logger.Error("service failed", slog.Any("error", startErr))
	}

	logger.Info("shutting down service")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.shutdownTimeout)
	defer shutdownCancel()

	errs := []error{startErr}
	for _, hook := range cfg.shutdownHooks {
		if err := hook(shutdownCtx); err != nil {
			errs = append(errs, err)
			logger.Error("shutdown hook failed", slog.Any("error", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		logger.Error("shutdown completed with errors")
		return err
	}

	logger.Info("shutdown completed")
	return nil
}
