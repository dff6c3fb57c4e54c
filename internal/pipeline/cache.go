package pipeline

import (
	"context"
	"errors"

	"github.com/sydlexius/encore/internal/provider/setlistfm"
	"github.com/sydlexius/encore/internal/setlist"
	"github.com/sydlexius/encore/internal/tourcache"
)

// consultCache resolves the slug and loads the cached tour set, queueing a
// background check when the entry is due.
func (r *run) consultCache(ctx context.Context) {
	slug := r.resolveSlug(ctx, r.result.Artist, r.result.MBID)
	if slug == "" {
		return
	}
	r.result.Slug = slug
	r.key = tourcache.Key{Slug: slug, MBID: r.result.MBID}
	r.cached = r.cache.GetTours(ctx, r.key)
	if r.cached == nil {
		return
	}

	r.update(StageCache, "Found cached tours", 15, map[string]int{"tours": len(r.cached.Tours)})
	if r.cache.ShouldCheckAPI(r.cached) {
		r.enqueue(false)
	}
}

// maintainCache creates the tour entry when this run walked the complete
// history, or queues a revalidation when the run saw a tour the cache does
// not list.
func (r *run) maintainCache(ctx context.Context, fetched *setlistfm.FetchResult, primary string) {
	if r.key.Slug == "" {
		return
	}

	if r.cached == nil {
		if r.req.Tour != "" || !fetched.Complete() {
			r.enqueue(false)
			return
		}
		tours := toursFromShows(fetched.Shows(), primary)
		if err := r.cache.CacheTours(ctx, r.key, tours, tourcache.Complete); err != nil {
			r.logger.Warn("caching tours failed", "key", r.key.String(), "error", err)
			return
		}
		r.cached = r.cache.GetTours(ctx, r.key)
		return
	}

	current := r.result.Metrics.MostRecentTour
	if r.req.Tour != "" {
		current = r.result.Tour
	}
	if current != "" && r.cache.ShouldUpdateTours(r.key, current, r.cached) {
		r.enqueue(true)
	}
}

func (r *run) enqueue(force bool) {
	if r.revalidator == nil {
		return
	}
	q := r.query()
	q.TourName = ""
	r.revalidator.Enqueue(Job{Key: r.key, Query: q, Force: force})
}

// toursFromShows summarizes the tours of the artist ChooseTour would pick
// for target.
func toursFromShows(shows []setlist.Show, target string) []tourcache.Tour {
	at := setlist.GroupShows(shows).Pick(target)
	if at == nil {
		return nil
	}
	out := make([]tourcache.Tour, 0, len(at.Tours))
	for _, g := range at.Tours {
		out = append(out, tourFromGroup(g))
	}
	return out
}

func tourFromGroup(g *setlist.TourGroup) tourcache.Tour {
	return tourcache.Tour{
		Name:      g.Name,
		ShowCount: g.Count,
		FirstShow: g.FirstShow,
		LastShow:  g.LastShow,
	}
}

// isIncomplete reports whether err is the cache refusing a partial list.
func isIncomplete(err error) bool {
	return errors.Is(err, tourcache.ErrIncompleteTourSet)
}
