// Package spotify looks up artist names on Spotify using the client
// credentials flow. The wrapped library does not take a context, so
// cancellation is only observed before each call is dispatched.
package spotify

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/zmb3/spotify"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/sydlexius/encore/internal/provider"
)

// artistGetter is the subset of spotify.Client used here; tests replace it.
type artistGetter interface {
	GetArtist(id spotify.ID) (*spotify.FullArtist, error)
}

// Adapter resolves Spotify artist IDs to display names.
type Adapter struct {
	client  artistGetter
	fetcher *provider.Fetcher
	logger  *slog.Logger
}

// New creates an adapter authenticating with the client credentials flow.
// The token is fetched on first use and replaced when it expires.
func New(fetcher *provider.Fetcher, clientID, clientSecret string, logger *slog.Logger) *Adapter {
	config := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     spotify.TokenURL,
	}
	return newWithClient(&tokenClient{ts: config.TokenSource(context.Background())}, fetcher, logger)
}

// tokenClient rebuilds the spotify client whenever the token source hands
// out a new access token.
type tokenClient struct {
	ts oauth2.TokenSource

	mu     sync.Mutex
	token  *oauth2.Token
	client spotify.Client
}

func (c *tokenClient) GetArtist(id spotify.ID) (*spotify.FullArtist, error) {
	client, err := c.current()
	if err != nil {
		return nil, err
	}
	return client.GetArtist(id)
}

func (c *tokenClient) current() (*spotify.Client, error) {
	tok, err := c.ts.Token()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == nil || c.token.AccessToken != tok.AccessToken {
		c.client = spotify.Authenticator{}.NewClient(tok)
		c.token = tok
	}
	client := c.client
	return &client, nil
}

func newWithClient(client artistGetter, fetcher *provider.Fetcher, logger *slog.Logger) *Adapter {
	return &Adapter{
		client:  client,
		fetcher: fetcher,
		logger:  logger.With(slog.String("provider", string(provider.NameSpotify))),
	}
}

// Name returns the provider name.
func (a *Adapter) Name() provider.ProviderName { return provider.NameSpotify }

// ArtistName returns the display name of the Spotify artist identified by a
// bare ID, a spotify:artist: URI or an open.spotify.com artist URL.
func (a *Adapter) ArtistName(ctx context.Context, idOrURL string) (string, error) {
	id, err := ArtistID(idOrURL)
	if err != nil {
		return "", err
	}

	artist, err := provider.Schedule(ctx, a.fetcher, func(context.Context) (*spotify.FullArtist, error) {
		a.logger.Debug("requesting artist", slog.String("id", id))
		artist, err := a.client.GetArtist(spotify.ID(id))
		if err != nil {
			return nil, mapError(err, id)
		}
		return artist, nil
	})
	if err != nil {
		return "", err
	}
	return artist.Name, nil
}

var artistIDPattern = regexp.MustCompile(`^[0-9A-Za-z]{22}$`)

// ArtistID extracts the base62 artist ID from a bare ID, a spotify:artist:
// URI or an open.spotify.com artist URL (locale prefixes and query strings
// are ignored).
func ArtistID(idOrURL string) (string, error) {
	s := strings.TrimSpace(idOrURL)
	invalid := &provider.ErrInvalidQuery{Provider: provider.NameSpotify, Message: "not a Spotify artist reference: " + s}

	switch {
	case artistIDPattern.MatchString(s):
		return s, nil
	case strings.HasPrefix(s, "spotify:artist:"):
		id := strings.TrimPrefix(s, "spotify:artist:")
		if artistIDPattern.MatchString(id) {
			return id, nil
		}
		return "", invalid
	}

	u, err := url.Parse(s)
	if err != nil || !strings.HasSuffix(u.Hostname(), "spotify.com") {
		return "", invalid
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+1 < len(parts); i++ {
		if parts[i] == "artist" && artistIDPattern.MatchString(parts[i+1]) {
			return parts[i+1], nil
		}
	}
	return "", invalid
}

// mapError converts library and token errors to provider errors.
func mapError(err error, id string) error {
	var (
		se spotify.Error
		re *oauth2.RetrieveError
	)
	switch {
	case errors.As(err, &re):
		return &provider.ErrAuthRequired{Provider: provider.NameSpotify}
	case errors.As(err, &se):
		switch se.Status {
		case http.StatusTooManyRequests:
			return &provider.ErrRateLimited{Provider: provider.NameSpotify}
		case http.StatusNotFound:
			return &provider.ErrNotFound{Provider: provider.NameSpotify, ID: id}
		case http.StatusBadRequest:
			return &provider.ErrInvalidQuery{Provider: provider.NameSpotify, Message: se.Message}
		case http.StatusUnauthorized, http.StatusForbidden:
			return &provider.ErrAuthRequired{Provider: provider.NameSpotify}
		default:
			return &provider.ErrProviderUnavailable{
				Provider:   provider.NameSpotify,
				Cause:      err,
				StatusCode: se.Status,
			}
		}
	}
	return &provider.ErrProviderUnavailable{Provider: provider.NameSpotify, Cause: err}
}
