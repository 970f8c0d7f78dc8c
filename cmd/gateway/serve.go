package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/objectfs/gateway/internal/cache"
	"github.com/objectfs/gateway/internal/metrics"
	"github.com/objectfs/gateway/internal/server"
	"github.com/objectfs/gateway/internal/storage"
	"github.com/objectfs/gateway/pkg/api"
	"github.com/objectfs/gateway/pkg/health"
	"github.com/objectfs/gateway/pkg/memmon"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway (default)",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	driver, err := storage.NewDriverFromConfig(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create storage driver: %w", err)
	}
	defer driver.Close()

	tier, err := cache.NewFromConfig(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create cache: %w", err)
	}

	collector := metrics.NewCollector(&metrics.Config{
		Enabled:   cfg.Monitoring.Enabled,
		Namespace: cfg.Monitoring.Namespace,
		Labels:    map[string]string{"driver": cfg.Storage.Driver},
	})
	if collector.RegisterDriver(driver) {
		logger.Debug("Exporting backend counters", zap.String("driver", cfg.Storage.Driver))
	}

	monitor := memmon.NewMemoryMonitor(memmon.DefaultMonitorConfig(), logger)
	if err := monitor.Start(ctx); err != nil {
		return err
	}
	defer monitor.Stop()

	srv, err := server.New(server.Options{
		Config:  cfg,
		Driver:  driver,
		Cache:   tier,
		Metrics: collector,
		Logger:  logger,
		Build:   server.BuildInfo{Hash: BuildHash, Time: BuildTime},
		Runtime: monitor,
	})
	if err != nil {
		return err
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	tracker := health.NewTracker(health.TrackerConfig{
		OnStateChange: func(component string, oldState, newState health.HealthState, err error) {
			logger.Warn("Component health changed",
				zap.String("component", component),
				zap.Stringer("from", oldState),
				zap.Stringer("to", newState),
				zap.Error(err))
		},
	})
	tracker.RegisterComponent("storage", true, driver.HealthCheck)
	tracker.RegisterComponent("cache", false, tier.Ping)

	lis, err := net.Listen("tcp", cfg.Server.Address)
	if err != nil {
		_ = srv.Stop(context.Background())
		return fmt.Errorf("failed to listen on %s: %w", cfg.Server.Address, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(lis)
	})

	var ops *api.Server
	if cfg.Monitoring.Enabled {
		opsCfg := api.DefaultServerConfig()
		opsCfg.Address = cfg.Monitoring.Address
		ops = api.NewServer(opsCfg, api.ServerDeps{
			Health:  tracker,
			Info:    srv.Info,
			Metrics: collector.Handler(),
			Logger:  logger,
		})
		g.Go(func() error {
			if err := ops.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			tracker.StartHealthChecks(gctx)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down", zap.Duration("timeout", cfg.Server.ShutdownTimeout))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if ops != nil {
			if err := ops.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Ops server shutdown failed", zap.Error(err))
			}
		}
		return srv.Stop(shutdownCtx)
	})

	return g.Wait()
}
