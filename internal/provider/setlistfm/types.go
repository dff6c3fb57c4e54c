package setlistfm

// setlist.fm API response types.

// SearchResponse is the body of /search/setlists. Total, ItemsPerPage and
// Setlists are required; pointers and a nil slice let the decoder tell a
// missing field from a zero value.
type SearchResponse struct {
	Type         string    `json:"type"`
	ItemsPerPage *int      `json:"itemsPerPage"`
	Page         int       `json:"page"`
	Total        *int      `json:"total"`
	Setlists     []Setlist `json:"setlist"`
}

// Setlist is one show as the catalog reports it.
type Setlist struct {
	ID          string `json:"id"`
	VersionID   string `json:"versionId"`
	EventDate   string `json:"eventDate"`
	LastUpdated string `json:"lastUpdated"`
	Artist      Artist `json:"artist"`
	Venue       Venue  `json:"venue"`
	Tour        *Tour  `json:"tour,omitempty"`
	Sets        Sets   `json:"sets"`
	Info        string `json:"info"`
	URL         string `json:"url"`
}

// Artist is a catalog artist entry.
type Artist struct {
	MBID           string `json:"mbid"`
	Name           string `json:"name"`
	SortName       string `json:"sortName"`
	Disambiguation string `json:"disambiguation"`
	URL            string `json:"url"`
}

// Venue is where a show took place.
type Venue struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	City City   `json:"city"`
}

// City holds the venue's city.
type City struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	State   string  `json:"state"`
	Country Country `json:"country"`
}

// Country holds the ISO code and display name.
type Country struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Tour labels a show as part of a named tour.
type Tour struct {
	Name string `json:"name"`
}

// Sets wraps the set list; the API nests it one level deep.
type Sets struct {
	Set []Set `json:"set"`
}

// Set is a set section.
type Set struct {
	Name   string `json:"name"`
	Encore int    `json:"encore"`
	Song   []Song `json:"song"`
}

// Song is one entry within a set.
type Song struct {
	Name  string  `json:"name"`
	Info  string  `json:"info"`
	Tape  bool    `json:"tape"`
	Cover *Artist `json:"cover,omitempty"`
	With  *Artist `json:"with,omitempty"`
}

// ArtistSearchResponse is the body of /search/artists.
type ArtistSearchResponse struct {
	Type         string   `json:"type"`
	ItemsPerPage int      `json:"itemsPerPage"`
	Page         int      `json:"page"`
	Total        int      `json:"total"`
	Artists      []Artist `json:"artist"`
}
