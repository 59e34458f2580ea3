package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/socialguard/mentions-monitor/internal/api"
	"github.com/socialguard/mentions-monitor/internal/config"
	"github.com/socialguard/mentions-monitor/internal/monitoring"
	"github.com/socialguard/mentions-monitor/internal/notifications"
	"github.com/socialguard/mentions-monitor/internal/sources"
	"github.com/socialguard/mentions-monitor/internal/storage"
)

func main() {
	// Load environment variables from .env file if it exists
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logrus.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})

	logrus.Info("Starting mentions monitor")

	ctx := context.Background()

	store, err := storage.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		logrus.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	var archive storage.Archive
	if cfg.StorageAccount != "" {
		blobs, err := storage.NewBlobArchive(ctx, cfg.StorageAccount, cfg.StorageContainer)
		if err != nil {
			logrus.Fatalf("Failed to initialize mention archive: %v", err)
		}
		archive = blobs
	} else {
		logrus.Info("AZURE_STORAGE_ACCOUNT not set, mention archive disabled")
	}

	var notifier notifications.Notifier
	if svc := notifications.NewService(cfg); svc.Enabled() {
		notifier = svc
	} else {
		logrus.Info("No alert channel configured, alerts are stored only")
	}

	registry := sources.NewRegistryFromConfig(cfg)
	for _, src := range registry.Enabled() {
		logrus.WithField("platform", src.Name()).Info("Source enabled")
	}

	engine := monitoring.NewEngine(cfg, registry, store, notifier, archive)
	if err := engine.Start(cfg.CaseSyncSchedule); err != nil {
		logrus.Fatalf("Failed to start monitoring engine: %v", err)
	}

	if _, err := engine.SyncActiveCases(ctx); err != nil {
		logrus.Errorf("Initial case sync failed: %v", err)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      api.NewServer(engine, store, cfg.DefaultInterval).Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * cfg.WorstCaseSourceLatency(),
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("HTTP server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}
	if err := engine.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("Monitoring engine did not stop cleanly: %v", err)
	}

	logrus.Info("Server exited")
}
