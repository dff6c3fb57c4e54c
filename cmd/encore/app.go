package main

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/sydlexius/encore/internal/config"
	"github.com/sydlexius/encore/internal/database"
	"github.com/sydlexius/encore/internal/logging"
	"github.com/sydlexius/encore/internal/pipeline"
	"github.com/sydlexius/encore/internal/provider"
	"github.com/sydlexius/encore/internal/provider/musicbrainz"
	"github.com/sydlexius/encore/internal/provider/setlistfm"
	"github.com/sydlexius/encore/internal/provider/spotify"
	"github.com/sydlexius/encore/internal/provider/tourscrape"
	"github.com/sydlexius/encore/internal/tourcache"
	"github.com/sydlexius/encore/internal/workflow"
)

// app holds the services shared by the server and the cache commands.
type app struct {
	cfg        *config.Config
	logManager *logging.Manager
	logger     *slog.Logger
	db         *sql.DB

	registry    *provider.Registry
	store       *tourcache.SQLiteStore
	cache       *tourcache.Service
	paginator   *setlistfm.Paginator
	revalidator *pipeline.Revalidator
	runner      *pipeline.Runner
}

// newApp opens the database, applies migrations and wires the pipeline.
func newApp(cfg *config.Config, logCfg logging.Config) (*app, error) {
	logManager, logger := logging.NewManager(logCfg)

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		logManager.Close() //nolint:errcheck
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		db.Close()         //nolint:errcheck
		logManager.Close() //nolint:errcheck
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	logger.Debug("database ready", slog.String("path", cfg.Database.Path))

	a := &app{
		cfg:        cfg,
		logManager: logManager,
		logger:     logger,
		db:         db,
		registry:   provider.NewRegistry(logger),
	}
	a.wire()
	return a, nil
}

func (a *app) wire() {
	cfg, logger := a.cfg, a.logger

	slFetcher := a.registry.Configure(provider.NameSetlistFM, provider.Limits{
		MinInterval:   cfg.SetlistFM.MinInterval,
		MaxConcurrent: cfg.SetlistFM.MaxConcurrent,
		MaxRetries:    cfg.SetlistFM.MaxRetries,
		BaseBackoff:   cfg.SetlistFM.BaseBackoff,
	})
	client := setlistfm.New(slFetcher, cfg.SetlistFM.APIKey, logger)
	if cfg.SetlistFM.BaseURL != "" {
		client = setlistfm.NewWithBaseURL(slFetcher, cfg.SetlistFM.APIKey, logger, cfg.SetlistFM.BaseURL)
	}
	a.paginator = setlistfm.NewPaginator(client, logger)
	a.paginator.MaxPages = cfg.SetlistFM.MaxPages

	a.store = tourcache.NewSQLiteStore(a.db)
	a.cache = tourcache.NewService(a.store, logger)

	scraper := tourscrape.New(a.registry.Get(provider.NameTourScrape), cfg.Scraper.BaseURL, cfg.Scraper.APIKey, logger)
	a.revalidator = pipeline.NewRevalidator(a.cache, a.paginator, scraper, logger, cfg.Pipeline.RevalidateQueue)

	opts := pipeline.Options{
		Scraper:     scraper,
		Revalidator: a.revalidator,
		Analyzer:    &workflow.Analyzer{RecentWindow: cfg.Pipeline.RecentWindow},
	}
	if !cfg.MusicBrainz.Disabled {
		limits := provider.DefaultLimits(provider.NameMusicBrainz)
		if cfg.MusicBrainz.MinInterval > 0 {
			limits.MinInterval = cfg.MusicBrainz.MinInterval
		}
		mbFetcher := a.registry.Configure(provider.NameMusicBrainz, limits)
		if cfg.MusicBrainz.BaseURL != "" {
			opts.MusicBrainz = musicbrainz.NewWithBaseURL(mbFetcher, logger, cfg.MusicBrainz.BaseURL)
		} else {
			opts.MusicBrainz = musicbrainz.New(mbFetcher, logger)
		}
	}
	if cfg.Spotify.Enabled() {
		opts.Spotify = spotify.New(a.registry.Get(provider.NameSpotify), cfg.Spotify.ClientID, cfg.Spotify.ClientSecret, logger)
	}

	a.runner = pipeline.NewRunner(a.paginator, client, a.cache, opts, logger)
}

// Close releases the database and the log file.
func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.logger.Error("closing database", "error", err)
	}
	a.logManager.Close() //nolint:errcheck
}

// loadConfig reads the config named by ENCORE_CONFIG_PATH.
func loadConfig() (*config.Config, string, error) {
	path := config.PathFromEnv()
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}
