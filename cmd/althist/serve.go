package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/shone114/alternate-history/internal/config"
	"github.com/shone114/alternate-history/internal/scheduler"
	"github.com/shone114/alternate-history/internal/server"
	althistsync "github.com/shone114/alternate-history/internal/sync"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the HTTP and gRPC servers and the daily scheduler",
	GroupID: "system",
	// Override PersistentPreRunE so we don't build an API client.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		insecureAdmin, _ := cmd.Flags().GetBool("insecure-admin")
		if err := checkAdminToken(cfg, insecureAdmin); err != nil {
			return err
		}
		logger, err := newLogger(cfg.LogFormat)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		a, err := newApp(context.Background(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		srv := server.New(a.store, cfg.UniverseID, a.pipeline, server.Options{
			Exporter: a.exporter,
			Metrics:  a.metrics,
			Logger:   logger,
		})
		a.pipeline.AddObserver(srv)

		// Built before any listener starts so a bad schedule leaves nothing running.
		daily, err := newDailyScheduler(cfg, a.pipeline, logger)
		if err != nil {
			return err
		}

		// gRPC health + reflection.
		var grpcServer *grpc.Server
		var health *server.HealthChecker
		if cfg.GRPCAddr != "" {
			health = server.NewHealthChecker(a.store, server.DefaultHealthInterval, logger)
			health.Start()
			grpcServer = server.NewGRPCServer(health.Server(), cfg.AdminToken, logger)

			lis, err := net.Listen("tcp", cfg.GRPCAddr)
			if err != nil {
				health.Stop()
				return err
			}
			go func() {
				logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
				if err := grpcServer.Serve(lis); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()
		}

		httpServer := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           srv.NewHTTPHandler(cfg.AdminToken),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", zap.Error(err))
			}
		}()

		var exportScheduler *althistsync.Scheduler
		if cfg.ExportInterval > 0 && a.exporter.Enabled() {
			exportScheduler = althistsync.NewScheduler(a.exporter, cfg.ExportInterval)
			exportScheduler.Start()
			logger.Info("export scheduler started", zap.Duration("interval", cfg.ExportInterval))
		}

		if daily != nil {
			daily.Start()
		}

		if cfg.AdminToken == "" {
			logger.Warn("admin routes are unauthenticated (--insecure-admin)")
		}
		logger.Info("althist server started",
			zap.String("universe_id", cfg.UniverseID),
			zap.String("http_addr", cfg.HTTPAddr),
			zap.String("grpc_addr", cfg.GRPCAddr),
			zap.Bool("scheduler", cfg.SchedulerEnabled),
		)

		// Wait for SIGINT or SIGTERM.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))

		// Graceful shutdown.
		if daily != nil {
			daily.Stop()
			logger.Info("daily scheduler stopped")
		}
		if exportScheduler != nil {
			exportScheduler.Stop()
			logger.Info("export scheduler stopped")
		}
		if grpcServer != nil {
			health.Stop()
			grpcServer.GracefulStop()
			logger.Info("gRPC server stopped")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", zap.Error(err))
		}
		logger.Info("HTTP server stopped")

		logger.Info("shutdown complete")
		return nil
	},
}

// checkAdminToken refuses to serve unauthenticated admin routes unless the
// operator asked for it.
func checkAdminToken(cfg *config.Config, insecure bool) error {
	if cfg.AdminToken == "" && !insecure {
		return errors.New("ALTHIST_ADMIN_TOKEN is not set; pass --insecure-admin to serve admin routes without auth")
	}
	return nil
}

// newDailyScheduler returns nil when the daily trigger is disabled.
func newDailyScheduler(cfg *config.Config, runner scheduler.Runner, log *zap.Logger) (*scheduler.Daily, error) {
	if !cfg.SchedulerEnabled {
		return nil, nil
	}
	daily, err := scheduler.New(runner, cfg.ScheduleTime, cfg.Timezone, log)
	if err != nil {
		return nil, fmt.Errorf("daily scheduler: %w", err)
	}
	return daily, nil
}

func init() {
	serveCmd.Flags().Bool("insecure-admin", false, "serve admin routes without a token when ALTHIST_ADMIN_TOKEN is unset")
}
