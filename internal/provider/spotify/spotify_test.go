package spotify

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"testing"

	libspotify "github.com/zmb3/spotify"
	"golang.org/x/oauth2"

	"github.com/sydlexius/encore/internal/provider"
)

type fakeArtists struct {
	lastID libspotify.ID
	calls  int
	artist *libspotify.FullArtist
	errs   []error
}

func (f *fakeArtists) GetArtist(id libspotify.ID) (*libspotify.FullArtist, error) {
	f.lastID = id
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	return f.artist, nil
}

func newTestAdapter(f artistGetter) *Adapter {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	fetcher := provider.NewFetcher(provider.NameSpotify, provider.Limits{MaxConcurrent: 1, MaxRetries: 1, BaseBackoff: 1}, logger)
	return newWithClient(f, fetcher, logger)
}

func TestArtistName(t *testing.T) {
	f := &fakeArtists{artist: &libspotify.FullArtist{SimpleArtist: libspotify.SimpleArtist{Name: "Radiohead"}}}
	a := newTestAdapter(f)

	name, err := a.ArtistName(context.Background(), "https://open.spotify.com/artist/4Z8W4fKeB5YxbusRsdQVPb?si=abc")
	if err != nil {
		t.Fatalf("ArtistName: %v", err)
	}
	if name != "Radiohead" {
		t.Errorf("expected Radiohead, got %q", name)
	}
	if f.lastID != "4Z8W4fKeB5YxbusRsdQVPb" {
		t.Errorf("unexpected id %q", f.lastID)
	}
}

func TestArtistNameRetriesRateLimit(t *testing.T) {
	f := &fakeArtists{
		artist: &libspotify.FullArtist{SimpleArtist: libspotify.SimpleArtist{Name: "Radiohead"}},
		errs:   []error{libspotify.Error{Message: "slow down", Status: 429}},
	}
	a := newTestAdapter(f)

	if _, err := a.ArtistName(context.Background(), "4Z8W4fKeB5YxbusRsdQVPb"); err != nil {
		t.Fatalf("ArtistName: %v", err)
	}
	if f.calls != 2 {
		t.Errorf("expected 2 calls, got %d", f.calls)
	}
}

func TestArtistNameErrors(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"not found", libspotify.Error{Message: "non existing id", Status: 404}, func(err error) bool {
			var e *provider.ErrNotFound
			return errors.As(err, &e)
		}},
		{"unauthorized", libspotify.Error{Message: "invalid token", Status: 401}, func(err error) bool {
			var e *provider.ErrAuthRequired
			return errors.As(err, &e)
		}},
		{"server error", libspotify.Error{Message: "oops", Status: 502}, func(err error) bool {
			var e *provider.ErrProviderUnavailable
			return errors.As(err, &e) && e.StatusCode == 502
		}},
		{"transport", errors.New("connection reset"), func(err error) bool {
			var e *provider.ErrProviderUnavailable
			return errors.As(err, &e)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAdapter(&fakeArtists{errs: []error{tt.err}})
			_, err := a.ArtistName(context.Background(), "4Z8W4fKeB5YxbusRsdQVPb")
			if !tt.check(err) {
				t.Errorf("unexpected error %T: %v", err, err)
			}
		})
	}
}

func TestArtistNameCanceled(t *testing.T) {
	f := &fakeArtists{}
	a := newTestAdapter(f)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := a.ArtistName(ctx, "4Z8W4fKeB5YxbusRsdQVPb"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if f.calls != 0 {
		t.Error("expected no call after cancellation")
	}
}

func TestArtistID(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"4Z8W4fKeB5YxbusRsdQVPb", "4Z8W4fKeB5YxbusRsdQVPb", false},
		{"spotify:artist:4Z8W4fKeB5YxbusRsdQVPb", "4Z8W4fKeB5YxbusRsdQVPb", false},
		{"https://open.spotify.com/artist/4Z8W4fKeB5YxbusRsdQVPb", "4Z8W4fKeB5YxbusRsdQVPb", false},
		{"https://open.spotify.com/intl-de/artist/4Z8W4fKeB5YxbusRsdQVPb?si=x", "4Z8W4fKeB5YxbusRsdQVPb", false},
		{"https://open.spotify.com/album/4Z8W4fKeB5YxbusRsdQVPb", "", true},
		{"https://example.com/artist/4Z8W4fKeB5YxbusRsdQVPb", "", true},
		{"spotify:artist:short", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ArtistID(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ArtistID(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ArtistID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

type failingSource struct{}

func (failingSource) Token() (*oauth2.Token, error) {
	return nil, &oauth2.RetrieveError{Response: &http.Response{Status: "401 Unauthorized"}}
}

func TestTokenFailureIsAuthRequired(t *testing.T) {
	a := newTestAdapter(&tokenClient{ts: failingSource{}})

	_, err := a.ArtistName(context.Background(), "4Z8W4fKeB5YxbusRsdQVPb")
	var auth *provider.ErrAuthRequired
	if !errors.As(err, &auth) {
		t.Errorf("expected ErrAuthRequired, got %v", err)
	}
}
