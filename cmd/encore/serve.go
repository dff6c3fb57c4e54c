package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sydlexius/encore/internal/api"
	"github.com/sydlexius/encore/internal/api/middleware"
	"github.com/sydlexius/encore/internal/config"
	"github.com/sydlexius/encore/internal/event"
	"github.com/sydlexius/encore/internal/maintenance"
)

const shutdownTimeout = 10 * time.Second

func runServe(ctx context.Context, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, configPath, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, cfg.Logging)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger
	slog.SetDefault(logger)

	if cfg.SetlistFM.APIKey == "" {
		logger.Warn("no setlist.fm API key configured; tallies will fail until SETLISTFM_API_KEY is set")
	}

	broker := event.NewBroker(logger, cfg.Pipeline.StreamBuffer)
	maint := maintenance.NewService(a.db, cfg.Database.Path, a.store, cfg.Database.MaintenanceInterval, logger)

	go a.revalidator.Start(ctx)
	go maint.StartScheduler(ctx)
	go func() {
		err := config.Watch(ctx, configPath, logger, func(next *config.Config) {
			a.logManager.Reconfigure(next.Logging)
		})
		if err != nil {
			logger.Warn("config reload disabled", "error", err)
		}
	}()

	router := api.NewRouter(api.RouterDeps{
		Runner:           a.runner,
		Broker:           broker,
		Cache:            a.cache,
		Maintenance:      maint,
		ProviderRegistry: a.registry,
		Revalidator:      a.revalidator,
		TallyLimiter:     middleware.NewRateLimiter(ctx, cfg.Server.TallyEvery, cfg.Server.TallyBurst),
		DB:               a.db,
		Logger:           logger,
		BasePath:         cfg.Server.BasePath,
		RunTimeout:       cfg.Server.RunTimeout,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	// Open event streams never go idle on their own.
	srv.RegisterOnShutdown(broker.CloseAll)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", slog.String("addr", addr), slog.String("base_path", cfg.Server.BasePath))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)
	router.Wait()
	return err
}
