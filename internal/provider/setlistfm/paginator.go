package setlistfm

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/sydlexius/encore/internal/provider"
	"github.com/sydlexius/encore/internal/setlist"
)

// DefaultMaxProbePages bounds the middle pages fetched by DiscoverTours.
const DefaultMaxProbePages = 3

// Searcher fetches a single page of search results. *Client implements it.
type Searcher interface {
	SearchSetlists(ctx context.Context, q Query, page int) (*setlist.Page, error)
}

// ProgressFunc is called after each page arrives with the number of pages
// fetched so far and the number that will be fetched. Calls are serialized.
type ProgressFunc func(done, total int)

// FetchResult is the outcome of walking a paginated search.
type FetchResult struct {
	Query Query `json:"query"`
	// Pages holds the pages that were fetched, in page order.
	Pages []setlist.Page `json:"pages"`
	// TotalPages is the page count the upstream reported.
	TotalPages int `json:"total_pages"`
	// Truncated is set when MaxPages cut the walk short.
	Truncated bool          `json:"truncated"`
	Failures  []PageFailure `json:"failures,omitempty"`
}

// Shows returns all fetched shows in page order.
func (r *FetchResult) Shows() []setlist.Show {
	return setlist.Flatten(r.Pages)
}

// Complete reports whether every upstream page was fetched.
func (r *FetchResult) Complete() bool {
	return !r.Truncated && len(r.Failures) == 0
}

// TourDiscovery is the outcome of the sampled tour-name walk.
type TourDiscovery struct {
	Query Query `json:"query"`
	// Artist is the primary artist of the first show.
	Artist string `json:"artist"`
	// Tours are the tours of Artist seen on the sampled pages.
	Tours []setlist.TourGroup `json:"tours"`
	// Current is the canonical current tour among Tours, "" if none.
	Current      string `json:"current"`
	PagesFetched []int  `json:"pages_fetched"`
	TotalPages   int    `json:"total_pages"`
	// Complete is set when every page was read or the first and last pages
	// agree on a single tour.
	Complete bool `json:"complete"`
}

// Paginator walks setlist.fm search results.
type Paginator struct {
	searcher Searcher
	logger   *slog.Logger

	// MaxPages caps FetchAllShows; 0 fetches everything.
	MaxPages int
	// MaxProbePages bounds the middle pages DiscoverTours samples.
	MaxProbePages int
	// Concurrency bounds goroutines issuing page requests. The Fetcher
	// still enforces the upstream's own concurrency limit.
	Concurrency int
}

// NewPaginator creates a Paginator over searcher.
func NewPaginator(searcher Searcher, logger *slog.Logger) *Paginator {
	return &Paginator{
		searcher:      searcher,
		logger:        logger.With(slog.String("component", "paginator")),
		MaxProbePages: DefaultMaxProbePages,
		Concurrency:   8,
	}
}

// FetchAllShows fetches page 1, then the remaining pages concurrently, and
// returns the pages in page order. A failure on page 1 is returned as an
// error; failures on later pages are recorded in FetchResult.Failures and
// the successful pages are kept. Cancellation stops scheduling further
// pages and returns ctx.Err().
func (p *Paginator) FetchAllShows(ctx context.Context, q Query, onPage ProgressFunc) (*FetchResult, error) {
	if err := q.Validate(); err != nil {
		return nil, &ErrNoData{Reason: ReasonInvalidQuery, Query: q, Cause: err}
	}

	first, err := p.firstPage(ctx, q)
	if err != nil {
		return nil, err
	}

	totalPages := pageCount(first.Total, first.ItemsPerPage)
	n := totalPages
	result := &FetchResult{Query: q, TotalPages: totalPages}
	if p.MaxPages > 0 && n > p.MaxPages {
		n = p.MaxPages
		result.Truncated = true
		p.logger.Info("page walk truncated",
			"artist", q.describe(),
			"total_pages", totalPages,
			"max_pages", p.MaxPages)
	}

	progress := newProgress(onPage, n)
	progress.advance()

	pages := make([]*setlist.Page, n)
	pages[0] = first
	failures := p.fetchPages(ctx, q, pageRange(2, n), pages, progress)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, pg := range pages {
		if pg != nil {
			result.Pages = append(result.Pages, *pg)
		}
	}
	result.Failures = failures
	if len(failures) > 0 {
		p.logger.Warn("some pages failed, continuing with partial results",
			"artist", q.describe(),
			"failed", len(failures),
			"fetched", len(result.Pages))
	}
	return result, nil
}

// DiscoverTours samples the search results to enumerate tour names without
// walking every page: page 1 and the last page first, then up to
// MaxProbePages evenly spaced middle pages when they disagree.
func (p *Paginator) DiscoverTours(ctx context.Context, q Query) (*TourDiscovery, error) {
	if err := q.Validate(); err != nil {
		return nil, &ErrNoData{Reason: ReasonInvalidQuery, Query: q, Cause: err}
	}

	first, err := p.firstPage(ctx, q)
	if err != nil {
		return nil, err
	}

	n := pageCount(first.Total, first.ItemsPerPage)
	d := &TourDiscovery{Query: q, TotalPages: n, PagesFetched: []int{1}}
	fetched := map[int]*setlist.Page{1: first}

	if n == 1 {
		d.Complete = true
		return p.finishDiscovery(d, fetched), nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	last, err := p.searcher.SearchSetlists(ctx, q, n)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.logger.Warn("last page failed during tour discovery",
			"artist", q.describe(), "page", n, "error", err)
		return p.finishDiscovery(d, fetched), nil
	}
	fetched[n] = last
	d.PagesFetched = append(d.PagesFetched, n)

	firstTours, lastTours := tourNames(first), tourNames(last)
	if len(firstTours) == 1 && slices.Equal(firstTours, lastTours) {
		d.Complete = true
		return p.finishDiscovery(d, fetched), nil
	}

	middle := probePages(n, p.MaxProbePages)
	pages := make([]*setlist.Page, n)
	failures := p.fetchPages(ctx, q, middle, pages, nil)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, num := range middle {
		if pages[num-1] != nil {
			fetched[num] = pages[num-1]
			d.PagesFetched = append(d.PagesFetched, num)
		}
	}
	slices.Sort(d.PagesFetched)
	d.Complete = len(d.PagesFetched) == n && len(failures) == 0
	return p.finishDiscovery(d, fetched), nil
}

// firstPage fetches page 1 and classifies the outcomes that mean there is
// nothing to aggregate.
func (p *Paginator) firstPage(ctx context.Context, q Query) (*setlist.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	first, err := p.searcher.SearchSetlists(ctx, q, 1)
	if err != nil {
		var (
			nf *provider.ErrNotFound
			iq *provider.ErrInvalidQuery
		)
		switch {
		case errors.As(err, &nf):
			if q.TourName != "" {
				return nil, &ErrNoData{Reason: ReasonNoShowsForTour, Query: q, Cause: err}
			}
			return nil, &ErrNoData{Reason: ReasonArtistNotFound, Query: q, Cause: err}
		case errors.As(err, &iq):
			return nil, &ErrNoData{Reason: ReasonInvalidQuery, Query: q, Cause: err}
		}
		return nil, err
	}
	if len(first.Shows) == 0 {
		if q.TourName != "" {
			return nil, &ErrNoData{Reason: ReasonNoShowsForTour, Query: q}
		}
		return nil, &ErrNoData{Reason: ReasonNoShows, Query: q}
	}
	return first, nil
}

// fetchPages fetches the listed page numbers concurrently into dst (indexed
// by page-1) and returns the failures sorted by page.
func (p *Paginator) fetchPages(ctx context.Context, q Query, nums []int, dst []*setlist.Page, progress *progress) []PageFailure {
	var (
		mu       sync.Mutex
		failures []PageFailure
		g        errgroup.Group
	)
	g.SetLimit(max(p.Concurrency, 1))

	for _, num := range nums {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			page, err := p.searcher.SearchSetlists(ctx, q, num)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				p.logger.Warn("page fetch failed",
					"artist", q.describe(), "page", num, "error", err)
				mu.Lock()
				failures = append(failures, PageFailure{
					Page:       num,
					StatusCode: provider.StatusCode(err),
					Message:    err.Error(),
				})
				mu.Unlock()
				return nil
			}
			dst[num-1] = page
			progress.advance()
			return nil
		})
	}
	_ = g.Wait()

	slices.SortFunc(failures, func(a, b PageFailure) int { return a.Page - b.Page })
	return failures
}

func (p *Paginator) finishDiscovery(d *TourDiscovery, fetched map[int]*setlist.Page) *TourDiscovery {
	pages := make([]setlist.Page, 0, len(fetched))
	for _, num := range d.PagesFetched {
		if pg, ok := fetched[num]; ok {
			pages = append(pages, *pg)
		}
	}
	d.Artist = setlist.PrimaryArtist(pages)

	idx := setlist.GroupShows(setlist.Flatten(pages))
	if at := idx.Artist(d.Artist); at != nil {
		for _, g := range at.Tours {
			d.Tours = append(d.Tours, *g)
		}
	}
	d.Current = setlist.ChooseTour(idx, d.Artist)

	p.logger.Debug("tour discovery finished",
		"artist", d.Artist,
		"pages", d.PagesFetched,
		"total_pages", d.TotalPages,
		"tours", len(d.Tours),
		"complete", d.Complete)
	return d
}

// tourNames returns the distinct non-empty tour names on a page, sorted.
func tourNames(pg *setlist.Page) []string {
	var names []string
	for _, s := range pg.Shows {
		if s.Tour != "" && !slices.Contains(names, s.Tour) {
			names = append(names, s.Tour)
		}
	}
	slices.Sort(names)
	return names
}

// pageCount returns ceil(total/perPage), at least 1.
func pageCount(total, perPage int) int {
	if perPage <= 0 || total <= perPage {
		return 1
	}
	return (total + perPage - 1) / perPage
}

func pageRange(from, to int) []int {
	if to < from {
		return nil
	}
	out := make([]int, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}

// probePages picks up to limit evenly spaced page numbers strictly between
// 1 and n.
func probePages(n, limit int) []int {
	inner := n - 2
	if inner <= 0 || limit <= 0 {
		return nil
	}
	if inner <= limit {
		return pageRange(2, n-1)
	}
	out := make([]int, 0, limit)
	for k := 1; k <= limit; k++ {
		num := 1 + k*(n-1)/(limit+1)
		if num > 1 && num < n && !slices.Contains(out, num) {
			out = append(out, num)
		}
	}
	return out
}

// progress serializes ProgressFunc calls so the reported count only grows.
type progress struct {
	mu    sync.Mutex
	fn    ProgressFunc
	done  int
	total int
}

func newProgress(fn ProgressFunc, total int) *progress {
	return &progress{fn: fn, total: total}
}

func (p *progress) advance() {
	if p == nil || p.fn == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done++
	p.fn(p.done, p.total)
}
