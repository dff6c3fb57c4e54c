package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/sydlexius/encore/internal/artist"
	"github.com/sydlexius/encore/internal/provider"
)

// resolveIdentity settles the artist name and MusicBrainz id for the run.
// A Spotify URL contributes the display name and, through MusicBrainz, the
// id. The id is only trusted when the MusicBrainz name matches.
func (r *run) resolveIdentity(ctx context.Context) error {
	name := strings.TrimSpace(r.req.Artist)
	mbid := strings.TrimSpace(r.req.MBID)

	if url := strings.TrimSpace(r.req.SpotifyURL); url != "" {
		if r.spotify != nil {
			spotifyName, err := r.spotify.ArtistName(ctx, url)
			switch {
			case ctx.Err() != nil:
				return ctx.Err()
			case err != nil:
				r.logger.Warn("spotify lookup failed", "url", url, "error", err)
				if name == "" {
					return err
				}
				r.warn("The Spotify artist could not be looked up; using the name provided.")
			default:
				name = spotifyName
			}
		}

		if mbid == "" && r.mb != nil {
			match, err := r.mb.LookupURL(ctx, url)
			switch {
			case ctx.Err() != nil:
				return ctx.Err()
			case err != nil:
				r.logger.Warn("musicbrainz url lookup failed", "url", url, "error", err)
			case match == nil:
				r.logger.Debug("no musicbrainz artist for url", "url", url)
			case name == "":
				name, mbid = match.Name, match.MBID
			case artist.Matches(name, match.Name):
				mbid = match.MBID
			default:
				r.logger.Warn("musicbrainz artist does not match",
					"spotify_name", name, "musicbrainz_name", match.Name, "mbid", match.MBID)
				r.warn(fmt.Sprintf("MusicBrainz lists this URL under %q, which does not match %q; searching by name instead.", match.Name, name))
			}
		}
	}

	if name == "" && mbid == "" {
		return missingArtist()
	}
	r.result.Artist = name
	r.result.MBID = mbid
	r.update(StageResolve, "Resolved artist", 10, map[string]string{"artist": name, "mbid": mbid})
	return nil
}

// resolveSlug returns the catalog slug for name from the cache, falling back
// to a catalog search. A found slug is cached.
func (r *Runner) resolveSlug(ctx context.Context, name, mbid string) string {
	if r.cache == nil || strings.TrimSpace(name) == "" {
		return ""
	}
	if slug := r.cache.GetSlug(ctx, name); slug != "" {
		return slug
	}
	if r.searcher == nil {
		return ""
	}

	results, err := r.searcher.SearchArtists(ctx, name)
	if err != nil {
		r.logger.Warn("artist search failed", "artist", name, "error", err)
		return ""
	}
	i := pickResult(results, name, mbid)
	if i < 0 || results[i].ProviderID == "" {
		r.logger.Debug("no catalog artist matched", "artist", name, "candidates", len(results))
		return ""
	}
	slug := results[i].ProviderID
	r.cache.CacheSlug(ctx, name, slug)
	return slug
}

// pickResult prefers the result carrying mbid, then the best name match.
func pickResult(results []provider.ArtistSearchResult, name, mbid string) int {
	if mbid != "" {
		for i, res := range results {
			if res.MusicBrainzID == mbid {
				return i
			}
		}
	}
	names := make([]string, len(results))
	for i, res := range results {
		names[i] = res.Name
	}
	return artist.PickMatch(name, names)
}
