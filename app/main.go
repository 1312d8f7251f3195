package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/feedloom/feedloom/app/api"
	"github.com/feedloom/feedloom/app/cfg"
	"github.com/feedloom/feedloom/app/channels"
	"github.com/feedloom/feedloom/app/database"
	"github.com/feedloom/feedloom/app/discovery"
	"github.com/feedloom/feedloom/app/feed"
	"github.com/feedloom/feedloom/app/fetch"
	"github.com/feedloom/feedloom/app/refresh"
	"github.com/feedloom/feedloom/app/tasks"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}

	logLevel := slog.LevelInfo
	if appCfg.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("Starting Feedloom server", "version", appCfg.Version)

	db, err := database.NewConnection(
		appCfg.DBHost, appCfg.DBPort, appCfg.DBUser,
		appCfg.DBPassword, appCfg.DBName)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("Connected to database")

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Migrations applied", "version", version, "dirty", dirty)

	channelRepo := database.NewChannelRepository(db)
	itemRepo := database.NewItemRepository(db)
	failedUploadRepo := database.NewFailedUploadRepository(db)

	fetchClient := fetch.NewClient(appCfg.UserAgent)
	discoverer := discovery.NewDiscoverer(fetchClient)
	normalizer := feed.NewNormalizer()
	contentExtractor := feed.NewContentExtractor()

	refreshInterval := time.Duration(appCfg.RefreshInterval) * time.Second
	refresher := refresh.NewRefresher(fetchClient, normalizer, channelRepo, itemRepo,
		failedUploadRepo, refreshInterval)
	service := channels.NewService(discoverer, normalizer, channelRepo,
		failedUploadRepo, refreshInterval)

	if appCfg.SeedsFile != "" {
		if err := service.LoadSeeds(context.Background(), appCfg.SeedsFile, appCfg.SeedsUser); err != nil {
			slog.Warn("Failed to load seeds", "file", appCfg.SeedsFile, "error", err)
		}
	}

	slog.Info("Starting background scheduler", "workers", appCfg.WorkerCount,
		"interval", appCfg.SchedulerInterval)
	scheduler := tasks.NewScheduler(channelRepo, itemRepo, refresher, fetchClient, contentExtractor)
	scheduler.Start()
	defer scheduler.Stop()

	apiHandler := api.NewHandler(service, channelRepo, itemRepo, failedUploadRepo,
		refresher, discoverer, scheduler)
	server := api.NewServer(apiHandler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	slog.Info("Feedloom server started")

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	// Scheduler is stopped via defer
	slog.Info("Shutdown complete")
}
