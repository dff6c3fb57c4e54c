package provider

import (
	"fmt"
	"time"
)

// ProviderName uniquely identifies an upstream integration.
type ProviderName string

// Known provider names.
const (
	NameSetlistFM   ProviderName = "setlistfm"
	NameMusicBrainz ProviderName = "musicbrainz"
	NameSpotify     ProviderName = "spotify"
	NameTourScrape  ProviderName = "tourscrape"
)

// AllProviderNames returns all known provider names in display order.
func AllProviderNames() []ProviderName {
	return []ProviderName{
		NameSetlistFM,
		NameMusicBrainz,
		NameSpotify,
		NameTourScrape,
	}
}

// DisplayName returns a human-readable name for the provider.
func (n ProviderName) DisplayName() string {
	switch n {
	case NameSetlistFM:
		return "setlist.fm"
	case NameMusicBrainz:
		return "MusicBrainz"
	case NameSpotify:
		return "Spotify"
	case NameTourScrape:
		return "Tour scraper"
	default:
		return string(n)
	}
}

// ArtistSearchResult represents a single search hit from a provider.
type ArtistSearchResult struct {
	ProviderID     string `json:"provider_id"`
	Name           string `json:"name"`
	SortName       string `json:"sort_name,omitempty"`
	Type           string `json:"type,omitempty"`
	Disambiguation string `json:"disambiguation,omitempty"`
	Country        string `json:"country,omitempty"`
	Score          int    `json:"score"`
	MusicBrainzID  string `json:"musicbrainz_id,omitempty"`
	URL            string `json:"url,omitempty"`
	Source         string `json:"source"`
}

// ErrProviderUnavailable indicates a transient failure (timeout, server error,
// malformed response).
type ErrProviderUnavailable struct {
	Provider   ProviderName
	Cause      error
	StatusCode int
	RetryAfter time.Duration
}

func (e *ErrProviderUnavailable) Error() string {
	return fmt.Sprintf("provider %s unavailable: %v", e.Provider, e.Cause)
}

func (e *ErrProviderUnavailable) Unwrap() error { return e.Cause }

// ErrRateLimited indicates the upstream answered 429. The Fetcher retries
// these transparently; callers only see one after retries are exhausted.
type ErrRateLimited struct {
	Provider   ProviderName
	RetryAfter time.Duration
}

func (e *ErrRateLimited) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("provider %s: rate limited (retry after %s)", e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("provider %s: rate limited", e.Provider)
}

// ErrNotFound indicates the provider has no data for the requested ID.
type ErrNotFound struct {
	Provider ProviderName
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("provider %s: %s not found", e.Provider, e.ID)
}

// ErrInvalidQuery indicates the provider rejected the request parameters.
type ErrInvalidQuery struct {
	Provider ProviderName
	Message  string
}

func (e *ErrInvalidQuery) Error() string {
	return fmt.Sprintf("provider %s: invalid query: %s", e.Provider, e.Message)
}

// ErrAuthRequired indicates the provider needs an API key but none is
// configured, or the configured key was rejected.
type ErrAuthRequired struct {
	Provider ProviderName
}

func (e *ErrAuthRequired) Error() string {
	return fmt.Sprintf("provider %s: API key not configured or rejected", e.Provider)
}
