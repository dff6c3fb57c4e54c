// Package workflow decides how a body of show history should be aggregated
// based on how much usable data there is and how recent the current tour is.
package workflow

import (
	"fmt"
	"sort"
	"time"

	"github.com/sydlexius/encore/internal/setlist"
)

// Strategy names an aggregation approach.
type Strategy string

// Strategies, in the order the decision rules consider them.
const (
	AggregateAll    Strategy = "AGGREGATE_ALL"
	CurrentTour     Strategy = "CURRENT_TOUR"
	RecentShows     Strategy = "RECENT_SHOWS"
	OldTour         Strategy = "OLD_TOUR"
	AggregateRecent Strategy = "AGGREGATE_RECENT"
)

// Thresholds used by the decision rules.
const (
	MinShowsWithSongs     = 5
	FreshTourMonths       = 6
	StaleTourMonths       = 12
	EstablishedTourShows  = 10
	EarlyTourShows        = 3
	MinRecentNonTourShows = 5
	NonTourWindowMonths   = 12
	RecentWindowMonths    = 24
	DefaultRecentWindow   = 20
)

// Metrics are the data-quality measurements the rules are evaluated over.
type Metrics struct {
	ShowsWithSongs int `json:"shows_with_songs"`
	// MostRecentTour is the canonical current tour, "" when none was found.
	MostRecentTour string `json:"most_recent_tour"`
	// TourDated is set when at least one show of MostRecentTour has a
	// parseable date. TourAgeMonths is meaningless without it.
	TourDated bool `json:"tour_dated"`
	// TourAgeMonths is the number of whole months since the tour's latest show.
	TourAgeMonths        int `json:"tour_age_months"`
	TourShowsWithSongs   int `json:"tour_shows_with_songs"`
	RecentNonTourShows   int `json:"recent_non_tour_shows"`
	RecentShowsWithSongs int `json:"recent_shows_with_songs"`
}

// Decision is the chosen strategy with its parameters.
type Decision struct {
	Strategy Strategy `json:"strategy"`
	// Tour is set for CURRENT_TOUR and OLD_TOUR.
	Tour string `json:"tour,omitempty"`
	// RecentCount bounds AGGREGATE_RECENT.
	RecentCount int     `json:"recent_count,omitempty"`
	Warning     string  `json:"warning,omitempty"`
	Metrics     Metrics `json:"metrics"`

	recentNonTour []setlist.Show
}

// Analyzer evaluates the decision rules.
type Analyzer struct {
	// RecentWindow is the number of most recent shows with songs that
	// AGGREGATE_RECENT uses.
	RecentWindow int
}

// New returns an Analyzer with the default recent window.
func New() *Analyzer {
	return &Analyzer{RecentWindow: DefaultRecentWindow}
}

// Analyze is shorthand for New().Analyze.
func Analyze(shows []setlist.Show, now time.Time) Decision {
	return New().Analyze(shows, now)
}

// Analyze applies the rules in priority order. Sparse data short-circuits
// before any tour reasoning because tour ages are unreliable with few shows.
// A tour with no dated shows has no age, so only the fallback applies to it.
func (a *Analyzer) Analyze(shows []setlist.Show, now time.Time) Decision {
	m, recentNonTour := measure(shows, now)
	d := Decision{Metrics: m, recentNonTour: recentNonTour}
	aged := m.MostRecentTour != "" && m.TourDated

	switch {
	case m.ShowsWithSongs < MinShowsWithSongs:
		d.Strategy = AggregateAll
		d.Warning = fmt.Sprintf("Only %d shows with setlist data were found; results include every available show and may not be representative.", m.ShowsWithSongs)

	case aged && m.TourAgeMonths < FreshTourMonths && m.TourShowsWithSongs >= EstablishedTourShows:
		d.Strategy = CurrentTour
		d.Tour = m.MostRecentTour

	case aged && m.TourAgeMonths < FreshTourMonths && m.TourShowsWithSongs >= EarlyTourShows:
		d.Strategy = CurrentTour
		d.Tour = m.MostRecentTour
		d.Warning = fmt.Sprintf("%q has only %d shows with setlist data so far; early tour data may change.", m.MostRecentTour, m.TourShowsWithSongs)

	case aged && m.TourAgeMonths > StaleTourMonths && m.RecentNonTourShows >= MinRecentNonTourShows:
		d.Strategy = RecentShows
		d.Warning = fmt.Sprintf("The last tour, %q, ended %s ago; using %d recent shows without a tour label instead.", m.MostRecentTour, ageText(m.TourAgeMonths), m.RecentNonTourShows)

	case aged && m.TourAgeMonths > StaleTourMonths:
		d.Strategy = OldTour
		d.Tour = m.MostRecentTour
		d.Warning = fmt.Sprintf("The most recent tour, %q, ended %s ago; the setlist may be out of date.", m.MostRecentTour, ageText(m.TourAgeMonths))

	default:
		d.Strategy = AggregateRecent
		d.RecentCount = a.window()
		d.Warning = fmt.Sprintf("No clear current tour; aggregating the %d most recent shows with setlist data.", d.RecentCount)
	}
	return d
}

func (a *Analyzer) window() int {
	if a.RecentWindow > 0 {
		return a.RecentWindow
	}
	return DefaultRecentWindow
}

// Select returns the shows the decision aggregates over.
func (d Decision) Select(shows []setlist.Show) []setlist.Show {
	switch d.Strategy {
	case CurrentTour, OldTour:
		var out []setlist.Show
		for _, s := range shows {
			if s.Tour == d.Tour {
				out = append(out, s)
			}
		}
		return out
	case RecentShows:
		return d.recentNonTour
	case AggregateRecent:
		return mostRecentWithSongs(shows, d.RecentCount)
	default:
		return shows
	}
}

// UsesTour reports whether the strategy aggregates a single named tour.
func (d Decision) UsesTour() bool {
	return d.Strategy == CurrentTour || d.Strategy == OldTour
}

func measure(shows []setlist.Show, now time.Time) (Metrics, []setlist.Show) {
	var m Metrics
	nonTourCutoff := now.AddDate(0, -NonTourWindowMonths, 0)
	recentCutoff := now.AddDate(0, -RecentWindowMonths, 0)
	var recentNonTour []setlist.Show

	for _, s := range shows {
		hasSongs := s.HasSongs()
		if hasSongs {
			m.ShowsWithSongs++
		}
		date, ok := s.Date()
		if !ok {
			continue
		}
		if hasSongs && !date.Before(recentCutoff) {
			m.RecentShowsWithSongs++
		}
		if s.Tour == "" && !date.Before(nonTourCutoff) {
			recentNonTour = append(recentNonTour, s)
		}
	}
	m.RecentNonTourShows = len(recentNonTour)

	idx := setlist.GroupShows(shows)
	tour := setlist.ChooseTour(idx, setlist.PrimaryArtist([]setlist.Page{{Shows: shows}}))
	if tour == "" || tour == setlist.NoTourInfo {
		return m, recentNonTour
	}
	m.MostRecentTour = tour

	var latest time.Time
	for _, s := range shows {
		if s.Tour != tour {
			continue
		}
		if s.HasSongs() {
			m.TourShowsWithSongs++
		}
		if d, ok := s.Date(); ok && (!m.TourDated || d.After(latest)) {
			latest, m.TourDated = d, true
		}
	}
	if m.TourDated {
		m.TourAgeMonths = monthsBetween(latest, now)
	}
	return m, recentNonTour
}

// monthsBetween returns the whole calendar months from a to b, 0 if b is not after a.
func monthsBetween(a, b time.Time) int {
	if !b.After(a) {
		return 0
	}
	months := (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
	if b.Day() < a.Day() {
		months--
	}
	return max(months, 0)
}

func ageText(months int) string {
	years := float64(months) / 12
	if years < 1.05 {
		return fmt.Sprintf("%d months", months)
	}
	return fmt.Sprintf("%.1f years", years)
}

// mostRecentWithSongs returns up to n shows with songs, newest first.
func mostRecentWithSongs(shows []setlist.Show, n int) []setlist.Show {
	type dated struct {
		show setlist.Show
		date time.Time
	}
	var withSongs []dated
	for _, s := range shows {
		if !s.HasSongs() {
			continue
		}
		d, _ := s.Date()
		withSongs = append(withSongs, dated{s, d})
	}
	sort.SliceStable(withSongs, func(i, j int) bool {
		return withSongs[i].date.After(withSongs[j].date)
	})
	if n > 0 && len(withSongs) > n {
		withSongs = withSongs[:n]
	}
	out := make([]setlist.Show, len(withSongs))
	for i, w := range withSongs {
		out[i] = w.show
	}
	return out
}
