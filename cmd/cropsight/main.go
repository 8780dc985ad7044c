package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cropsight-lab/cropsight/internal/alerts"
	"github.com/cropsight-lab/cropsight/internal/artifact"
	"github.com/cropsight-lab/cropsight/internal/catalog"
	"github.com/cropsight-lab/cropsight/internal/config"
	"github.com/cropsight-lab/cropsight/internal/core/storage/postgres"
	"github.com/cropsight-lab/cropsight/internal/imagery"
	"github.com/cropsight-lab/cropsight/internal/migrations"
	"github.com/cropsight-lab/cropsight/internal/pipeline"
	"github.com/cropsight-lab/cropsight/internal/server"
	"github.com/cropsight-lab/cropsight/internal/tasks"
)

func main() {
	configPath := flag.String("config", "cropsight.yaml", "Path to configuration file")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 1. Load Configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded config",
		"server", fmtAddr(cfg.Server.Host, cfg.Server.Port),
		"use_mock", cfg.Catalog.UseMock,
		"workers", cfg.Tasks.WorkerCount,
	)

	// 2. Initialize Storage (PostgreSQL)
	dbAdapter, err := postgres.NewAdapter(
		cfg.Database.DSN,
		cfg.Database.MaxOpenConns,
		cfg.Database.MaxIdleConns,
	)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer dbAdapter.Close()

	// 2.1. Run Database Migrations
	if err := migrations.RunMigrations(dbAdapter.DB(), cfg.Database.AutoMigrate); err != nil {
		slog.Error("Failed to run database migrations", "error", err)
		os.Exit(1)
	}

	// 3. Initialize the imagery client (one handle per process)
	client := catalog.Default(func() catalog.Client {
		if cfg.Catalog.UseMock {
			slog.Info("Using mock imagery catalog", "mock_size", cfg.Catalog.MockSize)
			return catalog.NewMockClient(cfg.Catalog.MockSize)
		}
		return catalog.NewSTACClient(cfg.Catalog.StacURL, imagery.NewStreamer())
	})

	// 4. Artifact store
	artifacts, err := artifact.NewLocalStore(cfg.Artifacts.Root)
	if err != nil {
		slog.Error("Failed to initialize artifact store", "error", err)
		os.Exit(1)
	}

	// 5. Analysis pipeline
	runner := pipeline.NewRunner(pipeline.Options{
		Client:    client,
		Farms:     dbAdapter,
		Analyses:  dbAdapter,
		Artifacts: artifacts,
		MockSize:  cfg.Catalog.MockSize,
	})

	// 6. Task orchestrator
	orchestrator := tasks.NewOrchestrator(tasks.Options{
		Runner:            runner,
		Client:            client,
		Farms:             dbAdapter,
		WorkerCount:       cfg.Tasks.WorkerCount,
		MaxAttempts:       cfg.Tasks.MaxAttempts,
		RetryDelay:        config.Duration(cfg.Tasks.RetryDelay),
		ImageryRetryDelay: config.Duration(cfg.Tasks.ImageryRetryDelay),
		SoftTimeout:       config.Duration(cfg.Tasks.SoftTimeout),
		HardTimeout:       config.Duration(cfg.Tasks.HardTimeout),
		ResultTTL:         config.Duration(cfg.Tasks.ResultTTL),
		QueueSize:         cfg.Tasks.QueueSize,
	})

	// 7. Alert engine + periodic schedules
	alertEngine := alerts.NewEngine(dbAdapter, dbAdapter)
	fleetScan := tasks.NewPeriodicJob("fleet_scan",
		config.Duration(cfg.Schedules.FleetScanInterval), orchestrator.RunFleetScan)
	alertSweep := tasks.NewPeriodicJob("alert_sweep",
		config.Duration(cfg.Schedules.AlertSweepInterval), alertEngine.Sweep)

	// 8. HTTP server
	srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), dbAdapter.DB(), cfg.Server.Mode, server.Dependencies{
		Runner:       runner,
		Orchestrator: orchestrator,
		AlertEngine:  alertEngine,
		Analyses:     dbAdapter,
		Alerts:       dbAdapter,
	})

	// 9. Start Services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	orchestrator.Start(ctx)
	for _, job := range []*tasks.PeriodicJob{fleetScan, alertSweep} {
		go func(j *tasks.PeriodicJob) {
			if err := j.Start(ctx); err != nil {
				slog.Error("Scheduler stopped with error", "error", err)
			}
		}(job)
	}

	// Signal handler triggers the shutdown sequence below.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	// HTTP server blocks until ctx is cancelled.
	if err := srv.Run(ctx); err != nil {
		slog.Error("Server stopped with error", "error", err)
	}

	orchestrator.Wait()
	slog.Info("Shutdown complete")
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
