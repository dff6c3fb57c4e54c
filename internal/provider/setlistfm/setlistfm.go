// Package setlistfm talks to the setlist.fm REST API and walks its paginated
// show history.
package setlistfm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sydlexius/encore/internal/provider"
	"github.com/sydlexius/encore/internal/setlist"
	"github.com/sydlexius/encore/internal/version"
)

const defaultBaseURL = "https://api.setlist.fm/rest/1.0"

// Query selects the shows to search for. At least one of ArtistMBID or
// ArtistName is required; TourName narrows the search to one tour.
type Query struct {
	ArtistMBID string `json:"artist_mbid,omitempty"`
	ArtistName string `json:"artist_name,omitempty"`
	TourName   string `json:"tour_name,omitempty"`
}

// Validate checks that the query identifies an artist.
func (q Query) Validate() error {
	if strings.TrimSpace(q.ArtistMBID) == "" && strings.TrimSpace(q.ArtistName) == "" {
		return &provider.ErrInvalidQuery{
			Provider: provider.NameSetlistFM,
			Message:  "artist mbid or name is required",
		}
	}
	return nil
}

// WithTour returns a copy of q restricted to tour.
func (q Query) WithTour(tour string) Query {
	q.TourName = tour
	return q
}

func (q Query) describe() string {
	if q.ArtistMBID != "" {
		return q.ArtistMBID
	}
	return strconv.Quote(q.ArtistName)
}

func (q Query) values(page int) url.Values {
	v := url.Values{}
	if q.ArtistMBID != "" {
		v.Set("artistMbid", q.ArtistMBID)
	}
	if q.ArtistName != "" {
		v.Set("artistName", q.ArtistName)
	}
	if q.TourName != "" {
		v.Set("tourName", q.TourName)
	}
	v.Set("p", strconv.Itoa(page))
	return v
}

// Client is a setlist.fm API client. Every request goes through the shared
// Fetcher for the setlistfm integration.
type Client struct {
	client  *http.Client
	fetcher *provider.Fetcher
	logger  *slog.Logger
	baseURL string
	apiKey  string
}

// New creates a setlist.fm client with the default base URL.
func New(fetcher *provider.Fetcher, apiKey string, logger *slog.Logger) *Client {
	return NewWithBaseURL(fetcher, apiKey, logger, defaultBaseURL)
}

// NewWithBaseURL creates a setlist.fm client with a custom base URL (for testing).
func NewWithBaseURL(fetcher *provider.Fetcher, apiKey string, logger *slog.Logger, baseURL string) *Client {
	return &Client{
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		fetcher: fetcher,
		logger:  logger.With(slog.String("provider", string(provider.NameSetlistFM))),
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

// Name returns the provider name.
func (c *Client) Name() provider.ProviderName { return provider.NameSetlistFM }

// SearchSetlists fetches one page of shows matching q.
func (c *Client) SearchSetlists(ctx context.Context, q Query, page int) (*setlist.Page, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	reqURL := c.baseURL + "/search/setlists?" + q.values(page).Encode()

	body, err := c.doRequest(ctx, reqURL, q.describe())
	if err != nil {
		return nil, err
	}

	var resp SearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &provider.ErrProviderUnavailable{
			Provider: provider.NameSetlistFM,
			Cause:    fmt.Errorf("parsing setlist search response: %w", err),
		}
	}
	if err := resp.validate(); err != nil {
		return nil, &provider.ErrProviderUnavailable{
			Provider: provider.NameSetlistFM,
			Cause:    err,
		}
	}

	out := &setlist.Page{
		Number:       page,
		Total:        *resp.Total,
		ItemsPerPage: *resp.ItemsPerPage,
		Shows:        make([]setlist.Show, 0, len(resp.Setlists)),
	}
	for i := range resp.Setlists {
		out.Shows = append(out.Shows, mapSetlist(&resp.Setlists[i]))
	}
	return out, nil
}

// SearchArtists looks up catalog artists by name, most relevant first.
// ProviderID carries the catalog slug taken from the artist URL.
func (c *Client) SearchArtists(ctx context.Context, name string) ([]provider.ArtistSearchResult, error) {
	if strings.TrimSpace(name) == "" {
		return nil, &provider.ErrInvalidQuery{Provider: provider.NameSetlistFM, Message: "artist name is required"}
	}
	params := url.Values{
		"artistName": {name},
		"sort":       {"relevance"},
		"p":          {"1"},
	}
	reqURL := c.baseURL + "/search/artists?" + params.Encode()

	body, err := c.doRequest(ctx, reqURL, name)
	if err != nil {
		var nf *provider.ErrNotFound
		if errors.As(err, &nf) {
			return nil, nil
		}
		return nil, err
	}

	var resp ArtistSearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &provider.ErrProviderUnavailable{
			Provider: provider.NameSetlistFM,
			Cause:    fmt.Errorf("parsing artist search response: %w", err),
		}
	}

	results := make([]provider.ArtistSearchResult, 0, len(resp.Artists))
	for _, a := range resp.Artists {
		results = append(results, provider.ArtistSearchResult{
			ProviderID:     SlugFromURL(a.URL),
			Name:           a.Name,
			SortName:       a.SortName,
			Disambiguation: a.Disambiguation,
			MusicBrainzID:  a.MBID,
			URL:            a.URL,
			Source:         string(provider.NameSetlistFM),
		})
	}
	return results, nil
}

// doRequest executes an HTTP GET through the fetcher with the API key header.
func (c *Client) doRequest(ctx context.Context, reqURL, id string) ([]byte, error) {
	if c.apiKey == "" {
		return nil, &provider.ErrAuthRequired{Provider: provider.NameSetlistFM}
	}

	return provider.Schedule(ctx, c.fetcher, func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("x-api-key", c.apiKey)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", version.UserAgent())

		c.logger.Debug("requesting", slog.String("url", reqURL))

		resp, err := c.client.Do(req) //nolint:gosec // URL constructed from trusted base + encoded query
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &provider.ErrProviderUnavailable{
				Provider: provider.NameSetlistFM,
				Cause:    err,
			}
		}
		defer resp.Body.Close() //nolint:errcheck

		if err := provider.CheckResponse(provider.NameSetlistFM, resp, id); err != nil {
			return nil, err
		}
		return io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	})
}

func (r *SearchResponse) validate() error {
	var missing []string
	if r.Total == nil {
		missing = append(missing, "total")
	}
	if r.ItemsPerPage == nil {
		missing = append(missing, "itemsPerPage")
	}
	if r.Setlists == nil {
		missing = append(missing, "setlist")
	}
	if len(missing) > 0 {
		return fmt.Errorf("malformed response: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// mapSetlist converts a wire setlist to the show model.
func mapSetlist(s *Setlist) setlist.Show {
	show := setlist.Show{
		ID:         s.ID,
		EventDate:  s.EventDate,
		Venue:      s.Venue.Name,
		City:       s.Venue.City.Name,
		Country:    s.Venue.City.Country.Name,
		Artist:     s.Artist.Name,
		ArtistMBID: s.Artist.MBID,
	}
	if s.Tour != nil {
		show.Tour = strings.TrimSpace(s.Tour.Name)
	}
	for _, set := range s.Sets.Set {
		out := setlist.Set{
			Name:   set.Name,
			Encore: set.Encore,
			Songs:  make([]setlist.Song, 0, len(set.Song)),
		}
		for _, song := range set.Song {
			entry := setlist.Song{
				Name: song.Name,
				Info: song.Info,
				Tape: song.Tape,
			}
			if song.Cover != nil {
				entry.CoverOf = song.Cover.Name
			}
			out.Songs = append(out.Songs, entry)
		}
		show.Sets = append(show.Sets, out)
	}
	return show
}

// SlugFromURL extracts the catalog slug from an artist URL such as
// https://www.setlist.fm/setlists/the-beatles-23d6a88b.html. It returns ""
// when the URL does not have that shape.
func SlugFromURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	dir, file, ok := strings.Cut(strings.Trim(u.Path, "/"), "/")
	if !ok || dir != "setlists" || strings.Contains(file, "/") {
		return ""
	}
	slug, ok := strings.CutSuffix(file, ".html")
	if !ok || slug == "" {
		return ""
	}
	return slug
}
