package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/neokarri946-creator/b2b-sales-platform-sub001/internal/api"
	"github.com/neokarri946-creator/b2b-sales-platform-sub001/internal/monitoring"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the analysis API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		env, err := initEnv(ctx, cfg, monitoring.NewMetrics(reg))
		if err != nil {
			return err
		}
		defer env.Close()

		stuckAfter := time.Duration(cfg.Monitoring.StuckAfterSecs) * time.Second
		collector := monitoring.NewCollector(env.Store, stuckAfter)
		reg.MustRegister(monitoring.NewJobStatsCollector(collector, cfg.Monitoring.LookbackWindowHours,
			time.Duration(cfg.Monitoring.ScrapeCacheSecs)*time.Second))

		if cfg.Monitoring.Enabled {
			checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
			go checker.Run(ctx)
		}

		deps := api.Deps{
			Scheduler:    env.Scheduler,
			Status:       env.Status,
			Store:        env.Store,
			Gatherer:     reg,
			HTTPMetrics:  monitoring.NewHTTPMiddleware(reg),
			CORSOrigins:  cfg.Server.CORSOrigins,
			UserIDHeader: cfg.Server.UserIDHeader,
		}
		if env.Research != nil {
			deps.Research = env.Research
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           api.NewRouter(deps),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown: stop accepting requests, then let in-flight
		// jobs reach a terminal record.
		done := make(chan struct{})
		go func() {
			defer close(done)
			<-ctx.Done()
			zap.L().Info("shutting down server")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg))
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("http shutdown", zap.Error(err))
			}
			if err := env.Scheduler.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("scheduler shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			stop()
			<-done
			return eris.Wrap(err, "server listen")
		}

		<-done
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
