// Package maintenance keeps the cache database small and fast: it purges
// expired entries, runs PRAGMA optimize with a WAL checkpoint, and reports
// file and entry statistics.
package maintenance

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sydlexius/encore/internal/database"
	"github.com/sydlexius/encore/internal/tourcache"
)

// DefaultInterval is how often the scheduler runs when none is configured.
const DefaultInterval = 24 * time.Hour

var cacheEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "encore_tourcache_entries",
	Help: "Cache entries by state, as of the last maintenance status read.",
}, []string{"state"})

// CacheStore is the part of the cache store maintenance needs.
// *tourcache.SQLiteStore implements it.
type CacheStore interface {
	PurgeExpired(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (tourcache.Stats, error)
}

// Status holds database maintenance status information.
type Status struct {
	DBFileSize       int64           `json:"db_file_size"`
	WALFileSize      int64           `json:"wal_file_size"`
	PageCount        int64           `json:"page_count"`
	PageSize         int64           `json:"page_size"`
	SchemaVersion    int64           `json:"schema_version"`
	Entries          tourcache.Stats `json:"entries"`
	LastOptimizeAt   string          `json:"last_optimize_at,omitempty"`
	LastPurgeAt      string          `json:"last_purge_at,omitempty"`
	LastPurged       int64           `json:"last_purged"`
	ScheduleInterval string          `json:"schedule_interval"`
}

// Service provides database maintenance operations.
type Service struct {
	db       *sql.DB
	dbPath   string
	store    CacheStore
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time

	mu           sync.Mutex
	lastOptimize time.Time
	lastPurge    time.Time
	lastPurged   int64
}

// NewService creates a maintenance service. A non-positive interval uses
// DefaultInterval.
func NewService(db *sql.DB, dbPath string, store CacheStore, interval time.Duration, logger *slog.Logger) *Service {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Service{
		db:       db,
		dbPath:   dbPath,
		store:    store,
		logger:   logger.With(slog.String("component", "maintenance")),
		interval: interval,
		now:      time.Now,
	}
}

// Status returns current database maintenance status.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	st := &Status{ScheduleInterval: s.interval.String()}

	if s.dbPath != database.MemoryPath {
		if info, err := os.Stat(s.dbPath); err == nil {
			st.DBFileSize = info.Size()
		}
		if info, err := os.Stat(s.dbPath + "-wal"); err == nil {
			st.WALFileSize = info.Size()
		}
	}

	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&st.PageCount); err != nil {
		s.logger.Warn("reading page_count", "error", err)
	}
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&st.PageSize); err != nil {
		s.logger.Warn("reading page_size", "error", err)
	}
	if v, err := database.Version(s.db); err == nil {
		st.SchemaVersion = v
	} else {
		s.logger.Warn("reading schema version", "error", err)
	}

	entries, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	st.Entries = entries
	cacheEntries.WithLabelValues("live").Set(float64(entries.Live))
	cacheEntries.WithLabelValues("expired").Set(float64(entries.Expired))

	s.mu.Lock()
	st.LastOptimizeAt = formatTime(s.lastOptimize)
	st.LastPurgeAt = formatTime(s.lastPurge)
	st.LastPurged = s.lastPurged
	s.mu.Unlock()

	return st, nil
}

// Purge deletes expired cache entries and returns how many were removed.
func (s *Service) Purge(ctx context.Context) (int64, error) {
	n, err := s.store.PurgeExpired(ctx)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.lastPurge = s.now()
	s.lastPurged = n
	s.mu.Unlock()

	s.logger.Info("expired cache entries purged", "removed", n)
	return n, nil
}

// Optimize runs PRAGMA optimize followed by a WAL checkpoint.
func (s *Service) Optimize(ctx context.Context) error {
	s.logger.Info("running PRAGMA optimize")
	if _, err := s.db.ExecContext(ctx, "PRAGMA optimize"); err != nil {
		return fmt.Errorf("PRAGMA optimize: %w", err)
	}

	s.logger.Info("running WAL checkpoint")
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("WAL checkpoint: %w", err)
	}

	s.mu.Lock()
	s.lastOptimize = s.now()
	s.mu.Unlock()

	s.logger.Info("optimize complete")
	return nil
}

// Vacuum runs VACUUM to rebuild the database file.
func (s *Service) Vacuum(ctx context.Context) error {
	s.logger.Info("running VACUUM")
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("VACUUM: %w", err)
	}
	s.logger.Info("vacuum complete")
	return nil
}

// RunOnce purges expired entries, then optimizes. A purge failure does not
// skip the optimize.
func (s *Service) RunOnce(ctx context.Context) error {
	_, purgeErr := s.Purge(ctx)
	if purgeErr != nil {
		s.logger.Error("purge failed", slog.Any("error", purgeErr))
	}
	if err := s.Optimize(ctx); err != nil {
		return err
	}
	return purgeErr
}

// StartScheduler runs maintenance on the configured interval until the
// context is canceled.
func (s *Service) StartScheduler(ctx context.Context) {
	s.logger.Info("maintenance scheduler started",
		slog.String("interval", s.interval.String()))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("maintenance scheduler stopped")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("scheduled maintenance failed", slog.Any("error", err))
			}
		}
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
