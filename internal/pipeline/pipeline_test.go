package pipeline

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/sydlexius/encore/internal/event"
	"github.com/sydlexius/encore/internal/provider"
	"github.com/sydlexius/encore/internal/provider/musicbrainz"
	"github.com/sydlexius/encore/internal/provider/setlistfm"
	"github.com/sydlexius/encore/internal/setlist"
	"github.com/sydlexius/encore/internal/tourcache"
	"github.com/sydlexius/encore/internal/workflow"
)

func TestRunCurrentTour(t *testing.T) {
	shows := &fakeShows{result: singlePage(tourHistory("The Band", "Now Tour", 12))}
	r := newTestRunner(shows, nil, nil, Options{})
	rec := &recorder{}

	res, err := r.Run(context.Background(), Request{ChannelID: "c1", Artist: "The Band"}, rec)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Strategy != workflow.CurrentTour || res.Tour != "Now Tour" {
		t.Errorf("expected CURRENT_TOUR over Now Tour, got %s %q", res.Strategy, res.Tour)
	}
	if res.TotalShowsWithData != 12 || len(res.Songs) != 3 {
		t.Errorf("unexpected tally: %d shows, %d songs", res.TotalShowsWithData, len(res.Songs))
	}
	if res.Songs[0].Likelihood != 100 {
		t.Errorf("expected 100%% likelihood, got %v", res.Songs[0].Likelihood)
	}
	if q := shows.queries[0]; q.ArtistName != "The Band" || q.TourName != "" {
		t.Errorf("unexpected query %+v", q)
	}

	last := -1
	for _, e := range rec.events {
		if e.Type != event.Update {
			continue
		}
		if *e.Progress < last {
			t.Errorf("progress went backwards: %d after %d (%s)", *e.Progress, last, e.Stage)
		}
		last = *e.Progress
	}
	term := rec.terminal()
	if len(term) != 1 || term[0].Type != event.Complete {
		t.Fatalf("expected a single complete event, got %+v", term)
	}
	if rec.events[len(rec.events)-1].Type != event.Complete {
		t.Error("complete must be the last event")
	}
}

func TestRunStageOrder(t *testing.T) {
	shows := &fakeShows{result: singlePage(tourHistory("The Band", "Now Tour", 12))}
	r := newTestRunner(shows, nil, nil, Options{})
	rec := &recorder{}

	if _, err := r.Run(context.Background(), Request{ChannelID: "c1", Artist: "The Band"}, rec); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var stages []string
	for _, e := range rec.events {
		if e.Type == event.Update && (len(stages) == 0 || stages[len(stages)-1] != e.Stage) {
			stages = append(stages, e.Stage)
		}
	}
	want := []string{StageResolve, StageCache, StageFetch, StageAnalyze, StageTally}
	if strings.Join(stages, ",") != strings.Join(want, ",") {
		t.Errorf("expected stages %v, got %v", want, stages)
	}
}

func TestRunExplicitTour(t *testing.T) {
	shows := &fakeShows{result: singlePage(tourHistory("The Band", "Old Tour", 4))}
	r := newTestRunner(shows, nil, nil, Options{})

	res, err := r.Run(context.Background(), Request{Artist: "The Band", Tour: " Old Tour "}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if shows.queries[0].TourName != "Old Tour" {
		t.Errorf("expected tour filter, got %+v", shows.queries[0])
	}
	if res.Strategy != workflow.CurrentTour || res.Tour != "Old Tour" {
		t.Errorf("unexpected strategy %s %q", res.Strategy, res.Tour)
	}
	if res.ShowsConsidered != 4 {
		t.Errorf("expected all 4 shows, got %d", res.ShowsConsidered)
	}
}

func TestRunRefetchesTourWhenTruncated(t *testing.T) {
	history := singlePage(tourHistory("The Band", "Now Tour", 12))
	history.Truncated = true
	history.TotalPages = 9
	shows := &fakeShows{
		result: history,
		byTour: map[string]*setlistfm.FetchResult{"Now Tour": singlePage(tourHistory("The Band", "Now Tour", 15))},
	}
	r := newTestRunner(shows, nil, nil, Options{})

	res, err := r.Run(context.Background(), Request{Artist: "The Band"}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(shows.queries) != 2 || shows.queries[1].TourName != "Now Tour" {
		t.Fatalf("expected a tour refetch, got %+v", shows.queries)
	}
	if res.TotalShowsWithData != 15 {
		t.Errorf("expected the refetched 15 shows, got %d", res.TotalShowsWithData)
	}
}

func TestRunErrors(t *testing.T) {
	tests := []struct {
		name   string
		req    Request
		err    error
		kind   Kind
		status int
	}{
		{"missing artist", Request{}, nil, KindInvalidQuery, http.StatusBadRequest},
		{"artist not found", Request{Artist: "Nobody"},
			&setlistfm.ErrNoData{Reason: setlistfm.ReasonArtistNotFound}, KindArtistNotFound, http.StatusNotFound},
		{"no shows for tour", Request{Artist: "The Band", Tour: "Ghost Tour"},
			&setlistfm.ErrNoData{Reason: setlistfm.ReasonNoShowsForTour, Query: setlistfm.Query{TourName: "Ghost Tour"}}, KindNoData, http.StatusNotFound},
		{"upstream down", Request{Artist: "The Band"},
			&provider.ErrProviderUnavailable{Provider: provider.NameSetlistFM, StatusCode: 504}, KindUpstreamUnavailable, http.StatusGatewayTimeout},
		{"rate limited", Request{Artist: "The Band"},
			&provider.ErrRateLimited{Provider: provider.NameSetlistFM}, KindRateLimited, http.StatusTooManyRequests},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shows := &fakeShows{err: tt.err}
			r := newTestRunner(shows, nil, nil, Options{})
			rec := &recorder{}
			tt.req.ChannelID = "c1"

			_, err := r.Run(context.Background(), tt.req, rec)
			var pe *Error
			if !errors.As(err, &pe) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if pe.Kind != tt.kind || pe.Status != tt.status {
				t.Errorf("expected %s/%d, got %s/%d", tt.kind, tt.status, pe.Kind, pe.Status)
			}
			term := rec.terminal()
			if len(term) != 1 || term[0].Type != event.Error || term[0].Status != tt.status {
				t.Errorf("expected one error event with status %d, got %+v", tt.status, term)
			}
		})
	}
}

func TestRunNoSongData(t *testing.T) {
	empty := []setlist.Show{
		playedShow("a", "The Band", "", daysAgo(10)),
		playedShow("b", "The Band", "", daysAgo(20)),
	}
	r := newTestRunner(&fakeShows{result: singlePage(empty)}, nil, nil, Options{})

	_, err := r.Run(context.Background(), Request{Artist: "The Band"}, nil)
	var pe *Error
	if !errors.As(err, &pe) || pe.Kind != KindNoData {
		t.Errorf("expected no_data, got %v", err)
	}
}

func TestRunIdentity(t *testing.T) {
	tests := []struct {
		name     string
		spotify  fakeSpotify
		mb       fakeMB
		wantName string
		wantMBID string
		warned   bool
	}{
		{
			name:     "matching names keep the mbid",
			spotify:  fakeSpotify{name: "Beyoncé"},
			mb:       fakeMB{match: &musicbrainz.URLMatch{MBID: "859d0860", Name: "Beyonce"}},
			wantName: "Beyoncé",
			wantMBID: "859d0860",
		},
		{
			name:     "mismatch drops the mbid",
			spotify:  fakeSpotify{name: "Ghost"},
			mb:       fakeMB{match: &musicbrainz.URLMatch{MBID: "deadbeef", Name: "Sleep Token"}},
			wantName: "Ghost",
			warned:   true,
		},
		{
			name:     "lookup failure keeps the name",
			spotify:  fakeSpotify{name: "Ghost"},
			mb:       fakeMB{err: &provider.ErrProviderUnavailable{Provider: provider.NameMusicBrainz}},
			wantName: "Ghost",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shows := &fakeShows{result: singlePage(tourHistory(tt.wantName, "Now Tour", 12))}
			r := newTestRunner(shows, nil, nil, Options{MusicBrainz: tt.mb, Spotify: tt.spotify})

			res, err := r.Run(context.Background(), Request{SpotifyURL: "https://open.spotify.com/artist/6vWDO969PvNqNYHIOW5v0m"}, nil)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if res.Artist != tt.wantName || res.MBID != tt.wantMBID {
				t.Errorf("expected %q/%q, got %q/%q", tt.wantName, tt.wantMBID, res.Artist, res.MBID)
			}
			q := shows.queries[0]
			if tt.wantMBID != "" && (q.ArtistMBID != tt.wantMBID || q.ArtistName != "") {
				t.Errorf("expected mbid query, got %+v", q)
			}
			if tt.wantMBID == "" && q.ArtistName != tt.wantName {
				t.Errorf("expected name query, got %+v", q)
			}
			warned := false
			for _, w := range res.Warnings {
				if strings.Contains(w, "does not match") {
					warned = true
				}
			}
			if warned != tt.warned {
				t.Errorf("mismatch warning = %v, want %v (%v)", warned, tt.warned, res.Warnings)
			}
		})
	}
}

func TestRunCachesCompleteHistory(t *testing.T) {
	cache := setupTestCache(t)
	searcher := &fakeSearcher{results: []provider.ArtistSearchResult{
		{ProviderID: "the-bandits-53d6b3b1", Name: "The Bandits"},
		{ProviderID: "the-band-bd6bd2a", Name: "The Band"},
	}}
	history := append(tourHistory("The Band", "Now Tour", 12),
		playedShow("x", "The Band", "No Tour Info", daysAgo(400), "Jam"))
	shows := &fakeShows{result: singlePage(history)}
	r := newTestRunner(shows, searcher, cache, Options{})
	ctx := context.Background()

	res, err := r.Run(ctx, Request{Artist: "The Band"}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Slug != "the-band-bd6bd2a" {
		t.Errorf("expected exact-name slug, got %q", res.Slug)
	}
	if got := cache.GetSlug(ctx, "the band"); got != "the-band-bd6bd2a" {
		t.Errorf("expected slug cached, got %q", got)
	}
	cached := cache.GetTours(ctx, tourcache.Key{Slug: "the-band-bd6bd2a"})
	if cached == nil || len(cached.Tours) != 1 || cached.Tours[0].Name != "Now Tour" {
		t.Fatalf("expected Now Tour cached without the placeholder, got %+v", cached)
	}
	if len(res.Tours) != 1 {
		t.Errorf("expected cached tours on the result, got %+v", res.Tours)
	}

	// A second run reads the slug from the cache.
	if _, err := r.Run(ctx, Request{Artist: "The Band"}, nil); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if searcher.calls != 1 {
		t.Errorf("expected one catalog search, got %d", searcher.calls)
	}
}

func TestRunDoesNotCachePartialHistory(t *testing.T) {
	cache := setupTestCache(t)
	searcher := &fakeSearcher{results: []provider.ArtistSearchResult{{ProviderID: "the-band-bd6bd2a", Name: "The Band"}}}
	history := singlePage(tourHistory("The Band", "Now Tour", 12))
	history.Failures = []setlistfm.PageFailure{{Page: 2, StatusCode: 502}}
	history.TotalPages = 2
	r := newTestRunner(&fakeShows{result: history}, searcher, cache, Options{})
	ctx := context.Background()

	res, err := r.Run(ctx, Request{Artist: "The Band"}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Partial {
		t.Error("expected partial result")
	}
	if cache.GetTours(ctx, tourcache.Key{Slug: "the-band-bd6bd2a"}) != nil {
		t.Error("partial history must not create a cache entry")
	}
}

// pagedSearcher serves numbered pages and cancels the run when page 2 is
// requested.
type pagedSearcher struct {
	mu        sync.Mutex
	requested []int
	cancel    context.CancelFunc
}

func (p *pagedSearcher) SearchSetlists(_ context.Context, q setlistfm.Query, page int) (*setlist.Page, error) {
	p.mu.Lock()
	p.requested = append(p.requested, page)
	p.mu.Unlock()
	if page == 2 {
		p.cancel()
	}
	shows := make([]setlist.Show, 0, 20)
	for i := range 20 {
		shows = append(shows, playedShow("s", q.ArtistName, "Now Tour", daysAgo(page*20+i), "Song"))
	}
	return &setlist.Page{Number: page, Total: 200, ItemsPerPage: 20, Shows: shows}, nil
}

func TestRunCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	searcher := &pagedSearcher{cancel: cancel}
	pager := setlistfm.NewPaginator(searcher, testLogger())
	pager.Concurrency = 1
	r := newTestRunner(pager, nil, nil, Options{})
	rec := &recorder{}

	_, err := r.Run(ctx, Request{ChannelID: "c1", Artist: "The Band"}, rec)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(rec.terminal()) != 0 {
		t.Errorf("cancelled run must not emit a terminal event, got %+v", rec.terminal())
	}
	for _, p := range searcher.requested {
		if p > 2 {
			t.Errorf("page %d requested after cancellation (requested %v)", p, searcher.requested)
		}
	}
}

func TestClassify(t *testing.T) {
	if Classify(nil) != nil || Classify(context.Canceled) != nil {
		t.Error("nil and cancellation are not failures")
	}
	tests := []struct {
		err  error
		kind Kind
	}{
		{&setlistfm.ErrNoData{Reason: setlistfm.ReasonNoShows}, KindNoData},
		{&setlistfm.ErrNoData{Reason: setlistfm.ReasonInvalidQuery}, KindInvalidQuery},
		{&provider.ErrInvalidQuery{Message: "bad"}, KindInvalidQuery},
		{&provider.ErrNotFound{Provider: provider.NameSetlistFM}, KindArtistNotFound},
		{&provider.ErrAuthRequired{Provider: provider.NameSetlistFM}, KindUpstreamUnavailable},
		{&provider.ErrProviderUnavailable{Provider: provider.NameSetlistFM, StatusCode: 500}, KindUpstreamUnavailable},
		{context.DeadlineExceeded, KindUpstreamUnavailable},
		{errors.New("boom"), KindInternal},
	}
	for _, tt := range tests {
		if got := Classify(tt.err); got == nil || got.Kind != tt.kind {
			t.Errorf("Classify(%v) = %+v, want %s", tt.err, got, tt.kind)
		}
	}
}
