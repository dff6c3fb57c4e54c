package setlist

import (
	"testing"
)

func songs(names ...string) []Song {
	out := make([]Song, 0, len(names))
	for _, n := range names {
		out = append(out, Song{Name: n})
	}
	return out
}

func TestTallySongsSkipsTape(t *testing.T) {
	shows := []Show{{
		Artist: "ArtistX",
		Sets: []Set{{Songs: []Song{
			{Name: "Intro", Tape: true},
			{Name: "Opener"},
			{Name: "Closer"},
		}}},
	}}

	tally := TallySongs(shows, "ArtistX")
	if len(tally.Songs) != 2 {
		t.Fatalf("expected 2 entries, got %d: %+v", len(tally.Songs), tally.Songs)
	}
	if tally.TotalShowsWithData != 1 {
		t.Errorf("expected 1 show with data, got %d", tally.TotalShowsWithData)
	}
}

func TestTallySongsCountsAndOrder(t *testing.T) {
	shows := []Show{
		{Artist: "ArtistX", Sets: []Set{{Songs: songs("A", "B")}}},
		{Artist: "ArtistX"},
		{Artist: "ArtistX", Sets: []Set{{Songs: songs("B", "C")}, {Encore: 1, Songs: []Song{{Name: "Heroes", CoverOf: "David Bowie"}}}}},
		{Artist: "ArtistX", Sets: []Set{{Songs: songs("C")}}},
	}

	tally := TallySongs(shows, "ArtistX")
	if tally.TotalShowsWithData != 3 {
		t.Errorf("expected 3 shows with data, got %d", tally.TotalShowsWithData)
	}
	if tally.EmptySetlists != 1 {
		t.Errorf("expected 1 empty setlist, got %d", tally.EmptySetlists)
	}

	want := []struct {
		key   string
		count int
	}{
		{"ArtistX|B", 2},
		{"ArtistX|C", 2},
		{"ArtistX|A", 1},
		{"David Bowie|Heroes", 1},
	}
	if len(tally.Songs) != len(want) {
		t.Fatalf("expected %d songs, got %+v", len(want), tally.Songs)
	}
	for i, w := range want {
		if tally.Songs[i].Key() != w.key || tally.Songs[i].Count != w.count {
			t.Errorf("songs[%d] = %s x%d, want %s x%d", i, tally.Songs[i].Key(), tally.Songs[i].Count, w.key, w.count)
		}
	}
	if !tally.Songs[3].Cover {
		t.Error("expected cover flag on Heroes")
	}
}

func TestTallyPagesUsesFirstShowArtist(t *testing.T) {
	pages := []Page{
		{Number: 1, Shows: []Show{{Artist: "Main", Sets: []Set{{Songs: songs("X")}}}}},
		{Number: 2, Shows: []Show{{Artist: "Main feat. Guest", Sets: []Set{{Songs: songs("X")}}}}},
	}
	tally := TallyPages(pages)
	if len(tally.Songs) != 1 || tally.Songs[0].Artist != "Main" || tally.Songs[0].Count != 2 {
		t.Errorf("expected Main|X x2, got %+v", tally.Songs)
	}
}

func TestTallyOrderIndependentCounts(t *testing.T) {
	p1 := Page{Number: 1, Shows: []Show{
		{Artist: "A", Sets: []Set{{Songs: songs("one", "two")}}},
		{Artist: "A", Sets: []Set{{Songs: songs("two")}}},
	}}
	p2 := Page{Number: 2, Shows: []Show{
		{Artist: "A", Sets: []Set{{Songs: songs("three", "two", "one")}}},
	}}

	forward := TallyPages([]Page{p1, p2})
	reversed := TallyPages([]Page{p2, p1})

	counts := func(tl Tally) map[string]int {
		m := make(map[string]int)
		for _, s := range tl.Songs {
			m[s.Key()] = s.Count
		}
		return m
	}
	f, r := counts(forward), counts(reversed)
	if len(f) != len(r) {
		t.Fatalf("different song sets: %v vs %v", f, r)
	}
	for k, v := range f {
		if r[k] != v {
			t.Errorf("%s: %d vs %d", k, v, r[k])
		}
	}
	if forward.TotalShowsWithData != reversed.TotalShowsWithData {
		t.Error("show totals differ")
	}
}

func TestLikelihood(t *testing.T) {
	c := SongCount{Count: 3}
	if got := c.Likelihood(4); got != 75 {
		t.Errorf("expected 75, got %v", got)
	}
	if got := c.Likelihood(2); got != 100 {
		t.Errorf("expected cap at 100, got %v", got)
	}
	if got := c.Likelihood(0); got != 0 {
		t.Errorf("expected 0 for no shows, got %v", got)
	}
}
