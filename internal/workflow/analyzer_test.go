package workflow

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sydlexius/encore/internal/setlist"
)

var now = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

// played builds n shows with songs on consecutive days ending monthsAgo months before now.
func played(n int, tour string, monthsAgo int) []setlist.Show {
	end := now.AddDate(0, -monthsAgo, 0)
	shows := make([]setlist.Show, 0, n)
	for i := range n {
		d := end.AddDate(0, 0, -i)
		shows = append(shows, setlist.Show{
			ID:        fmt.Sprintf("%s-%d-%d", tour, monthsAgo, i),
			Artist:    "ArtistX",
			Tour:      tour,
			EventDate: d.Format(setlist.EventDateLayout),
			Sets:      []setlist.Set{{Songs: []setlist.Song{{Name: "Song"}}}},
		})
	}
	return shows
}

func concat(groups ...[]setlist.Show) []setlist.Show {
	var out []setlist.Show
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func TestAnalyzeSparseData(t *testing.T) {
	shows := concat(played(4, "Big Tour", 1), []setlist.Show{{Artist: "ArtistX", Tour: "Big Tour", EventDate: "01-06-2024"}})
	d := Analyze(shows, now)
	if d.Strategy != AggregateAll {
		t.Fatalf("expected AGGREGATE_ALL, got %s", d.Strategy)
	}
	if d.Warning == "" {
		t.Error("expected data-quality warning")
	}
	if got := d.Select(shows); len(got) != len(shows) {
		t.Errorf("expected all %d shows, got %d", len(shows), len(got))
	}
}

func TestAnalyzeCurrentTour(t *testing.T) {
	shows := concat(played(12, "Now Tour", 1), played(20, "Old Tour", 30))
	d := Analyze(shows, now)
	if d.Strategy != CurrentTour || d.Tour != "Now Tour" {
		t.Fatalf("expected CURRENT_TOUR Now Tour, got %s %q", d.Strategy, d.Tour)
	}
	if d.Warning != "" {
		t.Errorf("expected no warning, got %q", d.Warning)
	}
	if d.Metrics.TourShowsWithSongs != 12 || d.Metrics.TourAgeMonths != 1 {
		t.Errorf("unexpected metrics %+v", d.Metrics)
	}
	if got := d.Select(shows); len(got) != 12 {
		t.Errorf("expected 12 tour shows, got %d", len(got))
	}
}

func TestAnalyzeEarlyTour(t *testing.T) {
	shows := concat(played(4, "New Tour", 0), played(20, "Old Tour", 30))
	d := Analyze(shows, now)
	if d.Strategy != CurrentTour || d.Tour != "New Tour" {
		t.Fatalf("expected CURRENT_TOUR New Tour, got %s %q", d.Strategy, d.Tour)
	}
	if !strings.Contains(d.Warning, "early tour data") {
		t.Errorf("expected early tour warning, got %q", d.Warning)
	}
}

func TestAnalyzeRecentShowsOverStaleTour(t *testing.T) {
	shows := concat(played(6, "", 2), played(20, "Old Tour", 30))
	d := Analyze(shows, now)
	if d.Strategy != RecentShows {
		t.Fatalf("expected RECENT_SHOWS, got %s", d.Strategy)
	}
	if !strings.Contains(d.Warning, "2.5 years") {
		t.Errorf("expected warning naming tour age in years, got %q", d.Warning)
	}
	got := d.Select(shows)
	if len(got) != 6 {
		t.Fatalf("expected 6 non-tour shows, got %d", len(got))
	}
	for _, s := range got {
		if s.Tour != "" {
			t.Errorf("unexpected tour show %s", s.ID)
		}
	}
}

func TestAnalyzeOldTour(t *testing.T) {
	shows := concat(played(2, "", 2), played(20, "Old Tour", 30))
	d := Analyze(shows, now)
	if d.Strategy != OldTour || d.Tour != "Old Tour" {
		t.Fatalf("expected OLD_TOUR Old Tour, got %s %q", d.Strategy, d.Tour)
	}
	if d.Warning == "" {
		t.Error("expected age warning")
	}
	if got := d.Select(shows); len(got) != 20 {
		t.Errorf("expected 20 tour shows, got %d", len(got))
	}
}

func TestAnalyzeAggregateRecent(t *testing.T) {
	// Tour is 8 months old: neither fresh nor stale.
	shows := concat(played(30, "Mid Tour", 8), played(5, "", 20))
	d := Analyze(shows, now)
	if d.Strategy != AggregateRecent {
		t.Fatalf("expected AGGREGATE_RECENT, got %s", d.Strategy)
	}
	if d.RecentCount != DefaultRecentWindow {
		t.Errorf("expected window %d, got %d", DefaultRecentWindow, d.RecentCount)
	}
	got := d.Select(shows)
	if len(got) != DefaultRecentWindow {
		t.Fatalf("expected %d shows, got %d", DefaultRecentWindow, len(got))
	}
	if got[0].ID != "Mid Tour-8-0" {
		t.Errorf("expected newest show first, got %s", got[0].ID)
	}
}

func TestAnalyzeFreshTourTooFewShows(t *testing.T) {
	shows := concat(played(2, "Brand New Tour", 0), played(20, "Old Tour", 30))
	d := Analyze(shows, now)
	if d.Strategy != AggregateRecent {
		t.Fatalf("expected AGGREGATE_RECENT, got %s", d.Strategy)
	}
}

func TestAnalyzeUndatedTourFallsBack(t *testing.T) {
	shows := played(12, "Mystery Tour", 0)
	for i := range shows {
		shows[i].EventDate = ""
	}
	d := Analyze(shows, now)
	if d.Metrics.MostRecentTour != "Mystery Tour" || d.Metrics.TourDated {
		t.Fatalf("expected an undated Mystery Tour, got %+v", d.Metrics)
	}
	if d.Strategy != AggregateRecent {
		t.Fatalf("expected AGGREGATE_RECENT for a tour with no dates, got %s %q", d.Strategy, d.Tour)
	}
	if got := d.Select(shows); len(got) != len(shows) {
		t.Errorf("expected %d shows, got %d", len(shows), len(got))
	}
}

func TestAnalyzerCustomWindow(t *testing.T) {
	a := &Analyzer{RecentWindow: 5}
	shows := played(30, "Mid Tour", 8)
	d := a.Analyze(shows, now)
	if d.Strategy != AggregateRecent || len(d.Select(shows)) != 5 {
		t.Errorf("expected 5 recent shows, got %s with %d", d.Strategy, len(d.Select(shows)))
	}
}

func TestMonthsBetween(t *testing.T) {
	tests := []struct {
		a, b time.Time
		want int
	}{
		{time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), 5},
		{time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC), time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), 4},
		{time.Date(2021, 12, 15, 0, 0, 0, 0, time.UTC), time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), 30},
		{time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), 0},
	}
	for _, tt := range tests {
		if got := monthsBetween(tt.a, tt.b); got != tt.want {
			t.Errorf("monthsBetween(%s, %s) = %d, want %d", tt.a.Format(time.DateOnly), tt.b.Format(time.DateOnly), got, tt.want)
		}
	}
}
