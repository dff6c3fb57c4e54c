// Package musicbrainz resolves artist identities through the MusicBrainz API.
package musicbrainz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sydlexius/encore/internal/provider"
	"github.com/sydlexius/encore/internal/version"
)

const defaultBaseURL = "https://musicbrainz.org/ws/2"

// URLMatch is the artist a streaming-service URL is attached to.
type URLMatch struct {
	Resource string `json:"resource"`
	MBID     string `json:"mbid"`
	Name     string `json:"name"`
	SortName string `json:"sort_name,omitempty"`
}

// Adapter queries MusicBrainz through the shared musicbrainz Fetcher.
type Adapter struct {
	client  *http.Client
	fetcher *provider.Fetcher
	logger  *slog.Logger
	baseURL string
}

// New creates a MusicBrainz adapter with the default base URL.
func New(fetcher *provider.Fetcher, logger *slog.Logger) *Adapter {
	return NewWithBaseURL(fetcher, logger, defaultBaseURL)
}

// NewWithBaseURL creates a MusicBrainz adapter with a custom base URL (for testing).
func NewWithBaseURL(fetcher *provider.Fetcher, logger *slog.Logger, baseURL string) *Adapter {
	return &Adapter{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		fetcher: fetcher,
		logger:  logger.With(slog.String("provider", "musicbrainz")),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Name returns the provider name.
func (a *Adapter) Name() provider.ProviderName { return provider.NameMusicBrainz }

// SearchArtist searches MusicBrainz for artists matching the given name.
func (a *Adapter) SearchArtist(ctx context.Context, name string) ([]provider.ArtistSearchResult, error) {
	params := url.Values{
		"query": {name},
		"fmt":   {"json"},
		"limit": {"25"},
	}
	reqURL := a.baseURL + "/artist?" + params.Encode()

	body, err := a.doRequest(ctx, reqURL, name)
	if err != nil {
		return nil, err
	}

	var resp SearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing search response: %w", err)
	}

	results := make([]provider.ArtistSearchResult, 0, len(resp.Artists))
	for _, a := range resp.Artists {
		results = append(results, provider.ArtistSearchResult{
			ProviderID:     a.ID,
			Name:           normalizeHyphens(a.Name),
			SortName:       a.SortName,
			Type:           a.Type,
			Disambiguation: a.Disambiguation,
			Country:        a.Country,
			Score:          a.Score,
			MusicBrainzID:  a.ID,
			Source:         string(provider.NameMusicBrainz),
		})
	}
	return results, nil
}

// LookupURL resolves a streaming-service artist URL (for example
// https://open.spotify.com/artist/...) to the MusicBrainz artist linked to
// it. It returns nil without error when MusicBrainz does not know the URL.
func (a *Adapter) LookupURL(ctx context.Context, resource string) (*URLMatch, error) {
	resource = strings.TrimSpace(resource)
	if resource == "" {
		return nil, &provider.ErrInvalidQuery{Provider: provider.NameMusicBrainz, Message: "resource URL is required"}
	}
	params := url.Values{
		"resource": {resource},
		"inc":      {"artist-rels"},
		"fmt":      {"json"},
	}
	reqURL := a.baseURL + "/url?" + params.Encode()

	body, err := a.doRequest(ctx, reqURL, resource)
	if err != nil {
		var nf *provider.ErrNotFound
		if errors.As(err, &nf) {
			return nil, nil
		}
		return nil, err
	}

	var resp URLResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing url response: %w", err)
	}

	for _, rel := range resp.Relations {
		if rel.Artist == nil || rel.Artist.ID == "" {
			continue
		}
		return &URLMatch{
			Resource: resp.Resource,
			MBID:     rel.Artist.ID,
			Name:     normalizeHyphens(rel.Artist.Name),
			SortName: rel.Artist.SortName,
		}, nil
	}
	a.logger.Debug("url has no artist relation", slog.String("resource", resource))
	return nil, nil
}

// TestConnection verifies connectivity to the MusicBrainz API.
func (a *Adapter) TestConnection(ctx context.Context) error {
	params := url.Values{
		"query": {"test"},
		"fmt":   {"json"},
		"limit": {"1"},
	}
	_, err := a.doRequest(ctx, a.baseURL+"/artist?"+params.Encode(), "test")
	return err
}

// doRequest executes an HTTP GET through the fetcher with standard headers.
func (a *Adapter) doRequest(ctx context.Context, reqURL, id string) ([]byte, error) {
	return provider.Schedule(ctx, a.fetcher, func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("User-Agent", version.UserAgent())
		req.Header.Set("Accept", "application/json")

		a.logger.Debug("requesting", slog.String("url", reqURL))

		resp, err := a.client.Do(req) //nolint:gosec // URL constructed from trusted base + encoded query
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &provider.ErrProviderUnavailable{
				Provider: provider.NameMusicBrainz,
				Cause:    err,
			}
		}
		defer resp.Body.Close() //nolint:errcheck

		// MusicBrainz answers 503 when a client exceeds its rate limit.
		if resp.StatusCode == http.StatusServiceUnavailable {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil, &provider.ErrRateLimited{
				Provider:   provider.NameMusicBrainz,
				RetryAfter: provider.ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
			}
		}
		if err := provider.CheckResponse(provider.NameMusicBrainz, resp, id); err != nil {
			return nil, err
		}
		return io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	})
}

// normalizeHyphens replaces the Unicode hyphens MusicBrainz uses in names
// (U+2010, U+2011) with ASCII hyphen-minus so they compare equal to names
// from other catalogs.
func normalizeHyphens(s string) string {
	return strings.NewReplacer("\u2010", "-", "\u2011", "-").Replace(s)
}
