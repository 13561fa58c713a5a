package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/aimd54/streakd/internal/api"
	"github.com/aimd54/streakd/internal/service/scheduler"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "serve",
		Short:         "Run the HTTP API and the daily sweep scheduler",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(rootOpts)
		},
	}
}

func runServe(opts *RootOptions) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, opts, false)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize", err)
	}
	defer a.Close()

	sched := scheduler.NewService(a.cfg, a.sweeper, nil, a.log.Component("scheduler"))
	if err := sched.Start(); err != nil {
		return WrapExitError(ExitCommandError, "failed to start scheduler", err)
	}
	defer sched.Stop()

	mode := gin.DebugMode
	if a.cfg.Server.Environment == "production" {
		mode = gin.ReleaseMode
	}
	routerOpts := api.RouterOptions{
		Mode: mode,
		HealthChecks: map[string]api.HealthCheck{
			"database": func(context.Context) error { return a.db.Health() },
		},
	}
	if a.cfg.Metrics.Prometheus.Enabled {
		routerOpts.MetricsPath = a.cfg.Metrics.Prometheus.Path
	}
	if a.cache != nil {
		routerOpts.HealthChecks["redis"] = a.cache.Health
	}

	handler := api.NewHandler(a.habits, a.stats, a.achievements, a.sweeper, a.log.Component("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           api.NewRouter(handler, routerOpts, a.log.Component("http")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.log.Info().
			Int("port", a.cfg.Server.Port).
			Str("environment", a.cfg.Server.Environment).
			Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return WrapExitError(ExitCommandError, "HTTP server failed", err)
		}
	case <-ctx.Done():
	}

	a.log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(a.cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitCommandError, "graceful shutdown failed", err)
	}
	return nil
}
