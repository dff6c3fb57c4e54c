package setlist

import (
	"sort"
)

// SongCount is the play count of one song attributed to one artist.
type SongCount struct {
	Artist string `json:"artist"`
	Song   string `json:"song"`
	Count  int    `json:"count"`
	Cover  bool   `json:"cover,omitempty"`
}

// Key returns the tally key "artist|song".
func (c SongCount) Key() string {
	return c.Artist + "|" + c.Song
}

// Likelihood returns the share of shows featuring the song as a percentage,
// capped at 100.
func (c SongCount) Likelihood(totalShows int) float64 {
	if totalShows <= 0 {
		return 0
	}
	return min(float64(c.Count)*100/float64(totalShows), 100)
}

// Tally is the result of counting songs across a body of shows.
type Tally struct {
	Songs              []SongCount `json:"songs"`
	TotalShowsWithData int         `json:"total_shows_with_data"`
	EmptySetlists      int         `json:"empty_setlists"`
}

// PrimaryArtist returns the artist of the first show across pages, or "".
func PrimaryArtist(pages []Page) string {
	for _, p := range pages {
		if len(p.Shows) > 0 {
			return p.Shows[0].Artist
		}
	}
	return ""
}

// TallyPages tallies the shows of pages in order, attributing non-cover
// songs to the artist of the first show.
func TallyPages(pages []Page) Tally {
	return TallySongs(Flatten(pages), PrimaryArtist(pages))
}

// TallySongs counts songs across shows. Tape entries are skipped, covers are
// credited to the covered artist and everything else to primaryArtist.
// Songs are ordered by descending count with ties in first-seen order.
func TallySongs(shows []Show, primaryArtist string) Tally {
	var t Tally
	index := make(map[string]int)

	for _, show := range shows {
		if !show.HasSets() {
			t.EmptySetlists++
			continue
		}
		t.TotalShowsWithData++

		for _, set := range show.Sets {
			for _, song := range set.Songs {
				if song.Tape {
					continue
				}
				entry := SongCount{Artist: primaryArtist, Song: song.Name}
				if song.CoverOf != "" {
					entry.Artist = song.CoverOf
					entry.Cover = true
				}
				key := entry.Key()
				if i, ok := index[key]; ok {
					t.Songs[i].Count++
					continue
				}
				entry.Count = 1
				index[key] = len(t.Songs)
				t.Songs = append(t.Songs, entry)
			}
		}
	}

	sort.SliceStable(t.Songs, func(i, j int) bool {
		return t.Songs[i].Count > t.Songs[j].Count
	})
	return t
}
