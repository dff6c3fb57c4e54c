package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sydlexius/encore/internal/provider/setlistfm"
	"github.com/sydlexius/encore/internal/tourcache"
)

// DefaultWarmArtists is warmed when cache-warm is given no artists.
var DefaultWarmArtists = []string{
	"Taylor Swift",
	"Coldplay",
	"Metallica",
	"Pearl Jam",
	"Foo Fighters",
	"Radiohead",
	"Billie Eilish",
	"Bruce Springsteen",
	"Phish",
	"Dave Matthews Band",
}

// WarmResult reports what Warm stored for one artist.
type WarmResult struct {
	Artist       string `json:"artist"`
	Slug         string `json:"slug"`
	Tours        int    `json:"tours"`
	Completeness string `json:"completeness"`
}

// Warm resolves the slug for artistName and caches its complete tour list.
// A tour list is only cached when it covers every tour: the scraper's list,
// or a history walk that fetched every page. Unlike a pipeline run, Warm
// fails when the cache store cannot be written.
func (r *Runner) Warm(ctx context.Context, artistName string) (*WarmResult, error) {
	artistName = strings.TrimSpace(artistName)
	if artistName == "" {
		return nil, missingArtist()
	}

	slug := r.resolveSlug(ctx, artistName, "")
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if slug == "" {
		return nil, &Error{Kind: KindArtistNotFound, Status: http.StatusNotFound,
			Message: fmt.Sprintf("No catalog artist found for %q.", artistName)}
	}
	key := tourcache.Key{Slug: slug}

	tours, completeness, err := r.warmTours(ctx, artistName, slug)
	if err != nil {
		return nil, err
	}
	if err := r.cache.StoreTours(ctx, key, tours, completeness); err != nil {
		if errors.Is(err, tourcache.ErrIncompleteTourSet) {
			return nil, fmt.Errorf("warming %q: %w", artistName, err)
		}
		return nil, &Error{Kind: KindCacheUnavailable, Status: http.StatusServiceUnavailable,
			Message: "The tour cache could not be written.", Err: err}
	}

	res := &WarmResult{Artist: artistName, Slug: slug, Completeness: completeness.String()}
	if cached := r.cache.GetTours(ctx, key); cached != nil {
		res.Tours = len(cached.Tours)
	}
	r.logger.Info("warmed artist",
		"artist", artistName,
		"slug", slug,
		"tours", res.Tours,
		"completeness", res.Completeness)
	return res, nil
}

func (r *Runner) warmTours(ctx context.Context, artistName, slug string) ([]tourcache.Tour, tourcache.Completeness, error) {
	if r.scraper != nil && r.scraper.Enabled() {
		scraped, err := r.scraper.Tours(ctx, slug)
		if err == nil && len(scraped) > 0 {
			out := make([]tourcache.Tour, 0, len(scraped))
			for _, t := range scraped {
				out = append(out, tourcache.Tour(t))
			}
			return out, tourcache.Complete, nil
		}
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		r.logger.Warn("tour scrape failed, walking show history", "slug", slug, "error", err)
	}

	fetched, err := r.shows.FetchAllShows(ctx, setlistfm.Query{ArtistName: artistName}, nil)
	if err != nil {
		return nil, 0, err
	}
	completeness := tourcache.Partial
	if fetched.Complete() {
		completeness = tourcache.Complete
	}
	return toursFromShows(fetched.Shows(), artistName), completeness, nil
}
