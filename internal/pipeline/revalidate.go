package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sydlexius/encore/internal/provider/setlistfm"
	"github.com/sydlexius/encore/internal/tourcache"
)

// DefaultQueueSize bounds the revalidation backlog.
const DefaultQueueSize = 32

// Job asks for the cached tours under Key to be checked upstream.
type Job struct {
	Key   tourcache.Key
	Query setlistfm.Query
	// Force skips the staleness check; used when a run already saw a tour
	// the cache does not list.
	Force bool
}

// Revalidator refreshes cached tour sets in the background, one job at a
// time, so that a pipeline run never waits on tour discovery.
type Revalidator struct {
	cache   TourCache
	shows   ShowSource
	scraper TourScraper
	logger  *slog.Logger
	queue   chan Job

	mu      sync.Mutex
	pending map[string]bool
}

// NewRevalidator creates a revalidator with a queue of size jobs. scraper
// may be nil.
func NewRevalidator(cache TourCache, shows ShowSource, scraper TourScraper, logger *slog.Logger, size int) *Revalidator {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Revalidator{
		cache:   cache,
		shows:   shows,
		scraper: scraper,
		logger:  logger.With(slog.String("component", "revalidator")),
		queue:   make(chan Job, size),
		pending: make(map[string]bool),
	}
}

// Enqueue schedules job unless the same key is already queued. It never
// blocks; a full queue drops the job with a warning.
func (v *Revalidator) Enqueue(job Job) bool {
	k := job.Key.String()

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.pending[k] {
		return false
	}
	select {
	case v.queue <- job:
		v.pending[k] = true
		return true
	default:
		v.logger.Warn("revalidation queue full, dropping job", "key", k)
		revalidations.WithLabelValues("dropped").Inc()
		return false
	}
}

// Pending returns the number of queued jobs.
func (v *Revalidator) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.pending)
}

// Start blocks until ctx is canceled, processing queued jobs.
func (v *Revalidator) Start(ctx context.Context) {
	v.logger.Info("revalidator started", "queue_size", cap(v.queue))
	for {
		select {
		case <-ctx.Done():
			v.logger.Info("revalidator stopped")
			return
		case job := <-v.queue:
			if err := v.Revalidate(ctx, job); err != nil && ctx.Err() == nil {
				v.logger.Warn("revalidation failed", "key", job.Key.String(), "error", err)
			}
			v.mu.Lock()
			delete(v.pending, job.Key.String())
			v.mu.Unlock()
		}
	}
}

// Revalidate checks one cache entry against the upstream and rewrites it
// when a new tour has started.
func (v *Revalidator) Revalidate(ctx context.Context, job Job) error {
	cached := v.cache.GetTours(ctx, job.Key)
	if cached != nil && !job.Force && !v.cache.ShouldCheckAPI(cached) {
		revalidations.WithLabelValues("fresh").Inc()
		return nil
	}

	disc, err := v.shows.DiscoverTours(ctx, job.Query)
	if err != nil {
		revalidations.WithLabelValues("error").Inc()
		return fmt.Errorf("discovering tours: %w", err)
	}

	if cached != nil && !v.cache.ShouldUpdateTours(job.Key, disc.Current, cached) {
		v.cache.UpdateLastChecked(ctx, job.Key)
		revalidations.WithLabelValues("unchanged").Inc()
		return nil
	}

	tours, completeness := v.collect(ctx, job.Key.Slug, disc)
	if err := v.cache.CacheTours(ctx, job.Key, tours, completeness); err != nil {
		if isIncomplete(err) {
			v.logger.Info("tour discovery incomplete, not creating cache entry",
				"key", job.Key.String(), "pages", len(disc.PagesFetched), "total_pages", disc.TotalPages)
			revalidations.WithLabelValues("incomplete").Inc()
			return nil
		}
		revalidations.WithLabelValues("error").Inc()
		return err
	}
	revalidations.WithLabelValues("updated").Inc()
	return nil
}

// collect returns the full tour list from the scraper when one is
// configured, otherwise the tours discovery sampled.
func (v *Revalidator) collect(ctx context.Context, slug string, disc *setlistfm.TourDiscovery) ([]tourcache.Tour, tourcache.Completeness) {
	if v.scraper != nil && v.scraper.Enabled() && slug != "" {
		scraped, err := v.scraper.Tours(ctx, slug)
		switch {
		case err != nil:
			v.logger.Warn("tour scrape failed, using discovered tours", "slug", slug, "error", err)
		case len(scraped) > 0:
			out := make([]tourcache.Tour, 0, len(scraped))
			for _, t := range scraped {
				out = append(out, tourcache.Tour(t))
			}
			return out, tourcache.Complete
		}
	}

	out := make([]tourcache.Tour, 0, len(disc.Tours))
	for i := range disc.Tours {
		out = append(out, tourFromGroup(&disc.Tours[i]))
	}
	if disc.Complete {
		return out, tourcache.Complete
	}
	return out, tourcache.Partial
}
