// Package setlist holds the show model and the pure aggregation logic built
// on it: tour grouping and selection, and song frequency tallies.
package setlist

import (
	"time"
)

// EventDateLayout is the day-month-year layout the catalog uses for show dates.
const EventDateLayout = "02-01-2006"

// Show is one recorded live performance.
type Show struct {
	ID         string `json:"id"`
	EventDate  string `json:"event_date"`
	Venue      string `json:"venue,omitempty"`
	City       string `json:"city,omitempty"`
	Country    string `json:"country,omitempty"`
	Artist     string `json:"artist"`
	ArtistMBID string `json:"artist_mbid,omitempty"`
	Tour       string `json:"tour,omitempty"`
	Sets       []Set  `json:"sets,omitempty"`
}

// Set is a named portion of a show such as the main set or an encore.
type Set struct {
	Name   string `json:"name,omitempty"`
	Encore int    `json:"encore,omitempty"`
	Songs  []Song `json:"songs"`
}

// Song is a single entry in a set.
type Song struct {
	Name string `json:"name"`
	Info string `json:"info,omitempty"`
	// Tape marks music played from a recording before the band took the stage.
	Tape bool `json:"tape,omitempty"`
	// CoverOf is the original artist when the song is a cover.
	CoverOf string `json:"cover_of,omitempty"`
}

// Page is one page of search results in catalog order.
type Page struct {
	Number       int    `json:"page"`
	Total        int    `json:"total"`
	ItemsPerPage int    `json:"items_per_page"`
	Shows        []Show `json:"shows"`
}

// Date parses EventDate. The second return is false when the date is
// missing or malformed.
func (s Show) Date() (time.Time, bool) {
	if s.EventDate == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(EventDateLayout, s.EventDate)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Year returns the four-digit year of the show, or "" when the date is unknown.
func (s Show) Year() string {
	t, ok := s.Date()
	if !ok {
		return ""
	}
	return t.Format("2006")
}

// HasSets reports whether the show has at least one set section.
func (s Show) HasSets() bool {
	return len(s.Sets) > 0
}

// HasSongs reports whether the show has at least one song that was actually
// performed (tape entries do not count).
func (s Show) HasSongs() bool {
	for _, set := range s.Sets {
		for _, song := range set.Songs {
			if !song.Tape && song.Name != "" {
				return true
			}
		}
	}
	return false
}

// Flatten concatenates the shows of the given pages in page order.
func Flatten(pages []Page) []Show {
	n := 0
	for _, p := range pages {
		n += len(p.Shows)
	}
	shows := make([]Show, 0, n)
	for _, p := range pages {
		shows = append(shows, p.Shows...)
	}
	return shows
}
