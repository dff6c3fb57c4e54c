package setlist

import (
	"strconv"
	"strings"
	"time"

	"github.com/sydlexius/encore/internal/artist"
)

// NoTourInfo is the placeholder tour name for shows without a tour label.
const NoTourInfo = "No Tour Info"

// excludedTourKeywords mark tours that are side events rather than the main run.
var excludedTourKeywords = []string{"vip", "v.i.p.", "sound check", "soundcheck"}

// TourGroup aggregates the shows of one artist under one tour name.
type TourGroup struct {
	Name  string   `json:"name"`
	Count int      `json:"count"`
	Years []string `json:"years"`
	// FirstShow and LastShow are the earliest and latest show dates seen.
	FirstShow string `json:"first_show,omitempty"`
	LastShow  string `json:"last_show,omitempty"`

	first, last time.Time
}

// MaxYear returns the largest year observed for the tour, or 0 if none.
func (g *TourGroup) MaxYear() int {
	best := 0
	for _, y := range g.Years {
		if n, err := strconv.Atoi(y); err == nil && n > best {
			best = n
		}
	}
	return best
}

// ArtistTours holds the tour groups for one artist in first-seen order.
type ArtistTours struct {
	Artist string       `json:"artist"`
	Tours  []*TourGroup `json:"tours"`
	byName map[string]*TourGroup
}

// Tour returns the group for name, or nil.
func (a *ArtistTours) Tour(name string) *TourGroup {
	return a.byName[name]
}

// TourIndex groups shows by artist then tour. Both levels keep insertion order.
type TourIndex struct {
	Artists  []*ArtistTours `json:"artists"`
	byArtist map[string]*ArtistTours
}

// Artist returns the tours for name, or nil.
func (idx *TourIndex) Artist(name string) *ArtistTours {
	return idx.byArtist[name]
}

// GroupShows builds a TourIndex from shows in the order given.
func GroupShows(shows []Show) *TourIndex {
	idx := &TourIndex{byArtist: make(map[string]*ArtistTours)}
	for _, s := range shows {
		at, ok := idx.byArtist[s.Artist]
		if !ok {
			at = &ArtistTours{Artist: s.Artist, byName: make(map[string]*TourGroup)}
			idx.byArtist[s.Artist] = at
			idx.Artists = append(idx.Artists, at)
		}

		name := strings.TrimSpace(s.Tour)
		if name == "" {
			name = NoTourInfo
		}
		g, ok := at.byName[name]
		if !ok {
			g = &TourGroup{Name: name}
			at.byName[name] = g
			at.Tours = append(at.Tours, g)
		}
		g.Count++
		g.observe(s)
	}
	return idx
}

func (g *TourGroup) observe(s Show) {
	t, ok := s.Date()
	if !ok {
		return
	}
	year := t.Format("2006")
	seen := false
	for _, y := range g.Years {
		if y == year {
			seen = true
			break
		}
	}
	if !seen {
		g.Years = append(g.Years, year)
	}
	if g.first.IsZero() || t.Before(g.first) {
		g.first = t
		g.FirstShow = s.EventDate
	}
	if g.last.IsZero() || t.After(g.last) {
		g.last = t
		g.LastShow = s.EventDate
	}
}

// ChooseTour picks the canonical current tour for target from idx.
//
// The artist is the only one present, or the first whose name matches
// target, or else the first artist seen. Within that artist the placeholder
// is dropped when named tours exist, side events (VIP, soundcheck) are
// dropped unless nothing else remains, and the tour with the latest year
// wins. Ties keep first-seen order. An empty result means no usable tour.
func ChooseTour(idx *TourIndex, target string) string {
	at := pickArtist(idx, target)
	if at == nil || len(at.Tours) == 0 {
		return ""
	}

	candidates := at.Tours
	if len(candidates) > 1 {
		named := make([]*TourGroup, 0, len(candidates))
		for _, g := range candidates {
			if g.Name != NoTourInfo {
				named = append(named, g)
			}
		}
		if len(named) > 0 {
			candidates = named
		}
	}
	if len(candidates) == 1 {
		return candidates[0].Name
	}

	kept := make([]*TourGroup, 0, len(candidates))
	for _, g := range candidates {
		if !IsSideEvent(g.Name) {
			kept = append(kept, g)
		}
	}
	if len(kept) > 0 {
		candidates = kept
	}

	best := candidates[0]
	bestYear := best.MaxYear()
	for _, g := range candidates[1:] {
		if y := g.MaxYear(); y > bestYear {
			best, bestYear = g, y
		}
	}
	return best.Name
}

// IsSideEvent reports whether a tour name carries one of the exclusion
// keywords (VIP packages, soundchecks).
func IsSideEvent(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range excludedTourKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func pickArtist(idx *TourIndex, target string) *ArtistTours {
	if idx == nil || len(idx.Artists) == 0 {
		return nil
	}
	if len(idx.Artists) == 1 {
		return idx.Artists[0]
	}
	for _, at := range idx.Artists {
		if artist.Matches(at.Artist, target) {
			return at
		}
	}
	return idx.Artists[0]
}

// Latest returns the date of the group's most recent show.
func (g *TourGroup) Latest() (time.Time, bool) {
	return g.last, !g.last.IsZero()
}

// Pick returns the artist ChooseTour would select for target, or nil.
func (idx *TourIndex) Pick(target string) *ArtistTours {
	return pickArtist(idx, target)
}
