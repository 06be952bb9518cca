// Package main provides the HTTP server for sheetvoice.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelgruber/sheetvoice/internal/archive"
	"github.com/raphaelgruber/sheetvoice/internal/config"
	"github.com/raphaelgruber/sheetvoice/internal/db"
	"github.com/raphaelgruber/sheetvoice/internal/jobs"
	"github.com/raphaelgruber/sheetvoice/internal/metrics"
	"github.com/raphaelgruber/sheetvoice/internal/server"
	"github.com/raphaelgruber/sheetvoice/internal/service"
	"github.com/raphaelgruber/sheetvoice/internal/storage"
	"github.com/raphaelgruber/sheetvoice/internal/synth"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		slog.Error("sheetvoice-server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Setup logger (dual output: stderr text + file JSON)
	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer cleanup()
	slog.SetDefault(logger)

	logger.Info("sheetvoice-server starting",
		"version", version,
		"port", cfg.Port,
		"data_dir", cfg.DataDir,
		"archive_backend", cfg.ArchiveBackend,
		"speech_configured", cfg.PrimaryConfigured(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := metrics.NewCollector()

	setupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	provider, err := synth.NewProvider(setupCtx, synth.Options{
		Region:          cfg.AWSRegion,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
		Metrics:         collector,
		Logger:          logger,
	})
	if err != nil {
		cancel()
		return fmt.Errorf("init speech provider: %w", err)
	}

	backend, err := openBackend(setupCtx, cfg, logger)
	cancel()
	if err != nil {
		return err
	}

	audio, err := storage.NewFileStore(cfg.AudioDir, logger)
	if err != nil {
		return err
	}
	uploads, err := storage.NewFileStore(cfg.UploadDir, logger)
	if err != nil {
		return err
	}

	library := archive.New(backend, audio, uploads, archive.WithMetrics(collector), archive.WithLogger(logger))
	defer func() {
		logger.Info("closing library archive")
		if err := library.Close(); err != nil {
			logger.Error("failed to close library archive", "error", err)
		}
	}()

	tracker := jobs.NewTracker(jobs.WithRetention(cfg.JobRetention), jobs.WithLogger(logger))
	go tracker.Run(ctx, cfg.SweepInterval)

	conv := service.NewConversion(service.Deps{
		Tracker:      tracker,
		Provider:     provider,
		Library:      library,
		Audio:        audio,
		Uploads:      uploads,
		Metrics:      collector,
		DefaultVoice: cfg.DefaultVoice,
		Logger:       logger,
	})

	srv := server.New(conv, logger, server.WithMaxUploadBytes(cfg.MaxUploadBytes))
	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // progress streams stay open until the job ends
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("API available", "url", fmt.Sprintf("http://localhost:%s/api", cfg.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	// Let running jobs reach a terminal state so their outcomes are archived.
	logger.Info("waiting for running jobs")
	conv.Wait()

	logger.Info("server stopped")
	return nil
}

// openBackend selects the library persistence layer.
func openBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (archive.Backend, error) {
	switch cfg.ArchiveBackend {
	case config.BackendJSON:
		logger.Info("library archive", "backend", "json", "path", cfg.LibraryFile)
		return archive.OpenJSONFile(cfg.LibraryFile)
	case config.BackendSQLite:
		return archive.OpenSQLite(ctx, cfg.SQLitePath, logger)
	case config.BackendSurreal:
		logger.Info("library archive", "backend", "surreal", "url", cfg.SurrealDBURL)
		return archive.OpenSurreal(ctx, db.Config{
			URL:       cfg.SurrealDBURL,
			Namespace: cfg.SurrealDBNamespace,
			Database:  cfg.SurrealDBDatabase,
			Username:  cfg.SurrealDBUser,
			Password:  cfg.SurrealDBPass,
			AuthLevel: cfg.SurrealDBAuthLevel,
		})
	default:
		return nil, fmt.Errorf("unknown archive backend %q (want json, sqlite or surreal)", cfg.ArchiveBackend)
	}
}
