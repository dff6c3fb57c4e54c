// Package tourcache persists artist slug mappings and tour lists and decides
// when cached tour data should be re-validated upstream.
package tourcache

import (
	"strings"
	"time"
)

// Tour summarizes one tour of an artist.
type Tour struct {
	Name      string `json:"name"`
	ID        string `json:"id,omitempty"`
	ShowCount int    `json:"show_count"`
	FirstShow string `json:"first_show,omitempty"`
	LastShow  string `json:"last_show,omitempty"`
}

// CachedTourSet is the persisted tour list for one artist.
type CachedTourSet struct {
	Slug        string    `json:"slug"`
	MBID        string    `json:"mbid,omitempty"`
	Tours       []Tour    `json:"tours"`
	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
	LastChecked time.Time `json:"last_checked"`
}

// Has reports whether the set lists a tour with the given name or id.
func (c *CachedTourSet) Has(nameOrID string) bool {
	nameOrID = strings.TrimSpace(nameOrID)
	if c == nil || nameOrID == "" {
		return false
	}
	for _, t := range c.Tours {
		if strings.EqualFold(t.Name, nameOrID) || (t.ID != "" && t.ID == nameOrID) {
			return true
		}
	}
	return false
}

// Completeness tells CacheTours whether a tour list covers every tour of the
// artist or only the ones a narrower request happened to see.
type Completeness int

const (
	Partial Completeness = iota
	Complete
)

func (c Completeness) String() string {
	if c == Complete {
		return "complete"
	}
	return "partial"
}

// Key identifies a cached tour set: the catalog slug, optionally
// disambiguated by a MusicBrainz id.
type Key struct {
	Slug string
	MBID string
}

// String returns the store key, tours:<slug>[:<mbid>].
func (k Key) String() string {
	if k.MBID == "" {
		return toursPrefix + k.Slug
	}
	return toursPrefix + k.Slug + ":" + k.MBID
}
