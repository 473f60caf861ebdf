package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/carbon-cli/internal/api"
	"github.com/sells-group/carbon-cli/internal/cache"
	"github.com/sells-group/carbon-cli/internal/geo"
	"github.com/sells-group/carbon-cli/internal/monitoring"
)

const (
	healthInterval = 30 * time.Second
	sweepInterval  = 5 * time.Minute
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		metrics := monitoring.NewMetrics()

		env, err := initApp(ctx, true, metrics)
		if err != nil {
			return err
		}

		if n, err := env.Factors.Warm(ctx); err != nil {
			zap.L().Warn("factor cache warm-up failed", zap.Error(err))
		} else {
			zap.L().Info("factor cache warmed", zap.Int("factors", n))
		}

		health := monitoring.NewHealthChecker(metrics, []monitoring.Dependency{
			{Name: "store", Pinger: env.Store, Critical: true},
			{Name: "cache", Pinger: env.Cache},
			{Name: "extractor", Pinger: env.Extractor},
		})
		go health.Run(ctx, healthInterval)

		if mem, ok := env.Cache.(*cache.Memory); ok {
			go sweepMemory(ctx, mem)
		}

		srv := api.New(env.Engine, geo.Default(), env.Factors, env.Cache,
			api.WithHealth(health),
			api.WithMetrics(metrics, prometheus.DefaultGatherer),
			api.WithCORSOrigins(cfg.Server.CORSOrigins),
			api.WithRequestTimeout(cfg.Server.RequestTimeout()),
		)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		httpSrv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		done := make(chan struct{})
		go func() {
			defer close(done)
			<-ctx.Done()
			zap.L().Info("shutting down server")

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout())
			defer cancel()
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
			env.Close(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			stop()
			<-done
			return eris.Wrap(err, "server listen")
		}

		<-done
		return nil
	},
}

// sweepMemory drops expired in-process cache entries until ctx is done.
func sweepMemory(ctx context.Context, mem *cache.Memory) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := mem.Sweep(); n > 0 {
				zap.L().Debug("swept expired cache entries", zap.Int("removed", n))
			}
		}
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
