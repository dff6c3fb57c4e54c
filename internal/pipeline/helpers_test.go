package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/sydlexius/encore/internal/database"
	"github.com/sydlexius/encore/internal/event"
	"github.com/sydlexius/encore/internal/provider"
	"github.com/sydlexius/encore/internal/provider/musicbrainz"
	"github.com/sydlexius/encore/internal/provider/setlistfm"
	"github.com/sydlexius/encore/internal/setlist"
	"github.com/sydlexius/encore/internal/tourcache"
)

var testNow = time.Date(2024, 9, 15, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func daysAgo(d int) string {
	return testNow.AddDate(0, 0, -d).Format(setlist.EventDateLayout)
}

func playedShow(id, artistName, tour, date string, songs ...string) setlist.Show {
	s := setlist.Show{ID: id, EventDate: date, Artist: artistName, Tour: tour}
	if len(songs) > 0 {
		set := setlist.Set{}
		for _, name := range songs {
			set.Songs = append(set.Songs, setlist.Song{Name: name})
		}
		s.Sets = []setlist.Set{set}
	}
	return s
}

// tourHistory returns n recent shows of one tour, newest first.
func tourHistory(artistName, tour string, n int) []setlist.Show {
	shows := make([]setlist.Show, 0, n)
	for i := range n {
		shows = append(shows, playedShow(
			fmt.Sprintf("s%d", i), artistName, tour, daysAgo(3+i*4), "Opener", "Hit Single", "Closer"))
	}
	return shows
}

func singlePage(shows []setlist.Show) *setlistfm.FetchResult {
	return &setlistfm.FetchResult{
		Pages:      []setlist.Page{{Number: 1, Total: len(shows), ItemsPerPage: 20, Shows: shows}},
		TotalPages: 1,
	}
}

type fakeShows struct {
	mu        sync.Mutex
	result    *setlistfm.FetchResult
	byTour    map[string]*setlistfm.FetchResult
	err       error
	queries   []setlistfm.Query
	discovery *setlistfm.TourDiscovery
	discErr   error
	discCalls int
}

func (f *fakeShows) FetchAllShows(_ context.Context, q setlistfm.Query, onPage setlistfm.ProgressFunc) (*setlistfm.FetchResult, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	res := f.result
	if r, ok := f.byTour[q.TourName]; ok {
		res = r
	}
	if onPage != nil {
		for i := range res.Pages {
			onPage(i+1, len(res.Pages))
		}
	}
	return res, nil
}

func (f *fakeShows) DiscoverTours(_ context.Context, _ setlistfm.Query) (*setlistfm.TourDiscovery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discCalls++
	return f.discovery, f.discErr
}

type fakeSearcher struct {
	results []provider.ArtistSearchResult
	calls   int
}

func (f *fakeSearcher) SearchArtists(context.Context, string) ([]provider.ArtistSearchResult, error) {
	f.calls++
	return f.results, nil
}

type fakeMB struct {
	match *musicbrainz.URLMatch
	err   error
}

func (f fakeMB) LookupURL(context.Context, string) (*musicbrainz.URLMatch, error) {
	return f.match, f.err
}

type fakeSpotify struct {
	name string
	err  error
}

func (f fakeSpotify) ArtistName(context.Context, string) (string, error) {
	return f.name, f.err
}

// recorder is a ProgressBroker that keeps every event.
type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recorder) Update(_, stage, message string, progress int, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := progress
	r.events = append(r.events, event.Event{Type: event.Update, Stage: stage, Message: message, Progress: &p, Data: data})
}

func (r *recorder) Complete(_ string, result any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event.Event{Type: event.Complete, Data: result})
}

func (r *recorder) Fail(_ string, status int, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event.Event{Type: event.Error, Status: status, Message: message})
}

func (r *recorder) terminal() []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []event.Event
	for _, e := range r.events {
		if e.Type == event.Complete || e.Type == event.Error {
			out = append(out, e)
		}
	}
	return out
}

func setupTestCache(t *testing.T) *tourcache.Service {
	t.Helper()
	db, err := database.Open(database.MemoryPath)
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return tourcache.NewService(tourcache.NewSQLiteStore(db), testLogger())
}

func newTestRunner(shows ShowSource, searcher ArtistSearcher, cache TourCache, opts Options) *Runner {
	r := NewRunner(shows, searcher, cache, opts, testLogger())
	r.now = func() time.Time { return testNow }
	return r
}
