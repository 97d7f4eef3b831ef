package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"property-analyzer/internal/bootstrap"
	"property-analyzer/internal/shared/config"
	"property-analyzer/internal/shared/server"
	"property-analyzer/internal/shared/telemetry"
)

const shutdownTimeout = 60 * time.Second

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg, bootstrap.RoleAPI, bootstrap.Overrides{})
	if err != nil {
		telemetry.Error("api.bootstrap", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	defer app.Close()

	addr := server.Addr(cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		telemetry.Info("api.started", map[string]any{
			"addr":      addr,
			"env":       cfg.Env,
			"job_store": cfg.JobStore,
			"job_queue": cfg.JobQueue,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			telemetry.Error("api.server_error", map[string]any{"error": err.Error()})
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	telemetry.Info("api.shutdown", map[string]any{"timeout": shutdownTimeout.String()})
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		telemetry.Warn("api.shutdown_http", map[string]any{"error": err.Error()})
	}
	if app.Pool != nil {
		if err := app.Pool.Shutdown(shutdownCtx); err != nil {
			telemetry.Warn("api.shutdown_jobs", map[string]any{"error": err.Error()})
		}
	}
}
