// Package pipeline runs the tally pipeline for one artist: identity checks,
// tour cache lookup, setlist history fetch, strategy selection and song
// tally, reporting each stage on a progress channel.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/sydlexius/encore/internal/provider"
	"github.com/sydlexius/encore/internal/provider/musicbrainz"
	"github.com/sydlexius/encore/internal/provider/setlistfm"
	"github.com/sydlexius/encore/internal/provider/tourscrape"
	"github.com/sydlexius/encore/internal/setlist"
	"github.com/sydlexius/encore/internal/tourcache"
	"github.com/sydlexius/encore/internal/workflow"
)

// Stage names reported on update events.
const (
	StageResolve = "resolve"
	StageCache   = "cache"
	StageFetch   = "fetch"
	StageAnalyze = "analyze"
	StageTally   = "tally"
)

// ProgressBroker receives the events of a run. *event.Broker implements it.
type ProgressBroker interface {
	Update(id, stage, message string, progress int, data any)
	Complete(id string, result any)
	Fail(id string, status int, message string)
}

// ShowSource walks the paginated show history. *setlistfm.Paginator
// implements it.
type ShowSource interface {
	FetchAllShows(ctx context.Context, q setlistfm.Query, onPage setlistfm.ProgressFunc) (*setlistfm.FetchResult, error)
	DiscoverTours(ctx context.Context, q setlistfm.Query) (*setlistfm.TourDiscovery, error)
}

// ArtistSearcher finds catalog artists by name. *setlistfm.Client
// implements it.
type ArtistSearcher interface {
	SearchArtists(ctx context.Context, name string) ([]provider.ArtistSearchResult, error)
}

// URLResolver maps a streaming-service URL to a MusicBrainz artist.
type URLResolver interface {
	LookupURL(ctx context.Context, resource string) (*musicbrainz.URLMatch, error)
}

// NameResolver maps a Spotify artist URL to the artist's display name.
type NameResolver interface {
	ArtistName(ctx context.Context, idOrURL string) (string, error)
}

// TourScraper lists every tour of a catalog artist.
type TourScraper interface {
	Enabled() bool
	Tours(ctx context.Context, slug string) ([]tourscrape.Tour, error)
}

// TourCache is the persisted slug and tour store. *tourcache.Service
// implements it.
type TourCache interface {
	CacheSlug(ctx context.Context, artistName, slug string)
	GetSlug(ctx context.Context, artistName string) string
	CacheTours(ctx context.Context, key tourcache.Key, tours []tourcache.Tour, c tourcache.Completeness) error
	StoreTours(ctx context.Context, key tourcache.Key, tours []tourcache.Tour, c tourcache.Completeness) error
	GetTours(ctx context.Context, key tourcache.Key) *tourcache.CachedTourSet
	ShouldCheckAPI(cached *tourcache.CachedTourSet) bool
	ShouldUpdateTours(key tourcache.Key, currentTour string, cached *tourcache.CachedTourSet) bool
	UpdateLastChecked(ctx context.Context, key tourcache.Key)
}

// Request asks for the live song tally of an artist.
type Request struct {
	ChannelID  string `json:"channel_id"`
	Artist     string `json:"artist,omitempty"`
	SpotifyURL string `json:"spotify_url,omitempty"`
	MBID       string `json:"mbid,omitempty"`
	// Tour restricts the tally to one tour, skipping strategy selection.
	Tour string `json:"tour,omitempty"`
}

// Song is one tallied song with its play likelihood.
type Song struct {
	setlist.SongCount
	// Likelihood is the percentage of shows with data featuring the song.
	Likelihood float64 `json:"likelihood"`
}

// Result is the payload of the complete event.
type Result struct {
	Artist   string            `json:"artist"`
	MBID     string            `json:"mbid,omitempty"`
	Slug     string            `json:"slug,omitempty"`
	Strategy workflow.Strategy `json:"strategy"`
	Tour     string            `json:"tour,omitempty"`
	Metrics  workflow.Metrics  `json:"metrics"`
	Songs    []Song            `json:"songs"`

	TotalShowsWithData int `json:"total_shows_with_data"`
	EmptySetlists      int `json:"empty_setlists"`
	ShowsConsidered    int `json:"shows_considered"`
	PagesFetched       int `json:"pages_fetched"`
	TotalPages         int `json:"total_pages"`
	// Partial is set when some history pages could not be fetched.
	Partial  bool             `json:"partial,omitempty"`
	Tours    []tourcache.Tour `json:"tours,omitempty"`
	Warnings []string         `json:"warnings,omitempty"`
}

// Runner executes pipeline runs. Optional collaborators may be nil.
type Runner struct {
	shows    ShowSource
	searcher ArtistSearcher
	cache    TourCache
	analyzer *workflow.Analyzer
	logger   *slog.Logger
	now      func() time.Time

	mb          URLResolver
	spotify     NameResolver
	scraper     TourScraper
	revalidator *Revalidator
}

// Options holds the optional collaborators of a Runner.
type Options struct {
	MusicBrainz URLResolver
	Spotify     NameResolver
	Scraper     TourScraper
	Revalidator *Revalidator
	Analyzer    *workflow.Analyzer
}

// NewRunner creates a Runner.
func NewRunner(shows ShowSource, searcher ArtistSearcher, cache TourCache, opts Options, logger *slog.Logger) *Runner {
	r := &Runner{
		shows:       shows,
		searcher:    searcher,
		cache:       cache,
		analyzer:    opts.Analyzer,
		logger:      logger.With(slog.String("component", "pipeline")),
		now:         time.Now,
		mb:          opts.MusicBrainz,
		spotify:     opts.Spotify,
		scraper:     opts.Scraper,
		revalidator: opts.Revalidator,
	}
	if r.analyzer == nil {
		r.analyzer = workflow.New()
	}
	return r
}

// run carries the state of one Run call.
type run struct {
	*Runner
	req      Request
	progress ProgressBroker
	result   *Result
	key      tourcache.Key
	cached   *tourcache.CachedTourSet
}

func (r *run) update(stage, message string, progress int, data any) {
	if r.progress != nil && r.req.ChannelID != "" {
		r.progress.Update(r.req.ChannelID, stage, message, progress, data)
	}
}

func (r *run) warn(msg string) {
	r.result.Warnings = append(r.result.Warnings, msg)
}

// Run executes the pipeline for req, reporting on progress. The run stops
// at the next stage or page boundary once ctx is done. A cancelled run emits
// no terminal event and returns context.Canceled; a run that hits the ctx
// deadline fails like any other. Every failure is emitted as a single error
// event and returned as an *Error.
func (r *Runner) Run(ctx context.Context, req Request, progress ProgressBroker) (*Result, error) {
	start := time.Now()
	res, err := r.execute(ctx, req, progress)

	var pe *Error
	if err != nil {
		pe = Classify(err)
	}
	switch {
	case errors.Is(ctx.Err(), context.Canceled) || (err != nil && pe == nil):
		observeRun("", outcomeCanceled, start)
		r.logger.Info("run cancelled", "channel", req.ChannelID, "artist", req.Artist)
		return nil, context.Canceled
	case err != nil:
		observeRun("", string(pe.Kind), start)
		r.logger.Warn("run failed",
			"channel", req.ChannelID,
			"artist", req.Artist,
			"kind", string(pe.Kind),
			"error", err)
		if progress != nil && req.ChannelID != "" {
			progress.Fail(req.ChannelID, pe.Status, pe.Message)
		}
		return nil, pe
	}

	observeRun(res.Strategy, outcomeOK, start)
	if progress != nil && req.ChannelID != "" {
		progress.Complete(req.ChannelID, res)
	}
	r.logger.Info("run complete",
		"channel", req.ChannelID,
		"artist", res.Artist,
		"strategy", string(res.Strategy),
		"songs", len(res.Songs),
		"duration", time.Since(start).String())
	return res, nil
}

func (r *Runner) execute(ctx context.Context, req Request, progress ProgressBroker) (*Result, error) {
	rn := &run{Runner: r, req: req, progress: progress, result: &Result{}}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rn.update(StageResolve, "Resolving artist identity", 5, nil)
	if err := rn.resolveIdentity(ctx); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rn.update(StageCache, "Checking tour cache", 15, nil)
	rn.consultCache(ctx)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rn.update(StageFetch, "Fetching setlists", 20, nil)
	fetched, err := r.shows.FetchAllShows(ctx, rn.query(), func(done, total int) {
		rn.update(StageFetch, "Fetched setlist page", 20+60*done/max(total, 1),
			map[string]int{"page": done, "total_pages": total})
	})
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rn.result.PagesFetched = len(fetched.Pages)
	rn.result.TotalPages = fetched.TotalPages
	if len(fetched.Failures) > 0 {
		rn.result.Partial = true
		rn.warn("Some setlist pages could not be fetched; results are based on the pages that were.")
	}

	rn.update(StageAnalyze, "Selecting aggregation strategy", 85, nil)
	primary := setlist.PrimaryArtist(fetched.Pages)
	shows, err := rn.selectShows(ctx, fetched, primary)
	if err != nil {
		return nil, err
	}
	rn.maintainCache(ctx, fetched, primary)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rn.update(StageTally, "Tallying songs", 95, map[string]string{"strategy": string(rn.result.Strategy)})
	tally := setlist.TallySongs(shows, primary)
	if tally.TotalShowsWithData == 0 {
		return nil, noSongData()
	}
	rn.result.ShowsConsidered = len(shows)
	rn.result.TotalShowsWithData = tally.TotalShowsWithData
	rn.result.EmptySetlists = tally.EmptySetlists
	rn.result.Songs = make([]Song, 0, len(tally.Songs))
	for _, sc := range tally.Songs {
		rn.result.Songs = append(rn.result.Songs, Song{
			SongCount:  sc,
			Likelihood: sc.Likelihood(tally.TotalShowsWithData),
		})
	}
	if rn.result.Artist == "" {
		rn.result.Artist = primary
	}
	if rn.cached != nil {
		rn.result.Tours = rn.cached.Tours
	}
	return rn.result, nil
}

func (r *run) query() setlistfm.Query {
	q := setlistfm.Query{ArtistMBID: r.result.MBID, TourName: strings.TrimSpace(r.req.Tour)}
	if q.ArtistMBID == "" {
		q.ArtistName = r.result.Artist
	}
	return q
}

// selectShows decides which shows to tally. An explicit tour tallies the
// whole (tour filtered) fetch; otherwise the workflow analyzer decides, and
// a tour strategy over a truncated history refetches just that tour.
func (r *run) selectShows(ctx context.Context, fetched *setlistfm.FetchResult, primary string) ([]setlist.Show, error) {
	all := fetched.Shows()

	if r.req.Tour != "" {
		r.result.Strategy = workflow.CurrentTour
		r.result.Tour = strings.TrimSpace(r.req.Tour)
		return all, nil
	}

	d := r.analyzer.Analyze(all, r.now())
	r.result.Strategy = d.Strategy
	r.result.Tour = d.Tour
	r.result.Metrics = d.Metrics
	if d.Warning != "" {
		r.warn(d.Warning)
	}
	r.logger.Debug("strategy selected",
		"artist", primary,
		"strategy", string(d.Strategy),
		"tour", d.Tour,
		"shows_with_songs", d.Metrics.ShowsWithSongs)

	if d.UsesTour() && fetched.Truncated {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.update(StageAnalyze, "Fetching shows for "+d.Tour, 85, nil)
		tourRes, err := r.shows.FetchAllShows(ctx, r.query().WithTour(d.Tour), nil)
		if err != nil {
			var nd *setlistfm.ErrNoData
			if errors.As(err, &nd) {
				return d.Select(all), nil
			}
			return nil, err
		}
		return tourRes.Shows(), nil
	}
	return d.Select(all), nil
}
