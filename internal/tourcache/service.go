package tourcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sydlexius/encore/internal/artist"
)

const (
	slugPrefix  = "slug:"
	toursPrefix = "tours:"

	// DefaultSlugTTL bounds how long an artist name maps to a slug.
	DefaultSlugTTL = 30 * 24 * time.Hour
)

// ErrIncompleteTourSet is returned when a partial tour list would create a
// new cache entry.
var ErrIncompleteTourSet = errors.New("refusing to create cache entry from an incomplete tour set")

var errCorruptEntry = errors.New("corrupt cache entry")

// SlugKey returns the store key for an artist name.
func SlugKey(artistName string) string {
	return slugPrefix + artist.Normalize(artistName)
}

// Service is the tour cache. Lookups and writes made on behalf of a pipeline
// run treat store failures as misses; StoreTours, Inspect and Clear report
// them.
type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time

	SlugTTL time.Duration
}

// NewService creates a tour cache over store.
func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{
		store:   store,
		logger:  logger.With(slog.String("component", "tourcache")),
		now:     time.Now,
		SlugTTL: DefaultSlugTTL,
	}
}

// CacheSlug remembers the catalog slug for an artist name.
func (s *Service) CacheSlug(ctx context.Context, artistName, slug string) {
	if strings.TrimSpace(artistName) == "" || slug == "" {
		return
	}
	if err := s.store.Set(ctx, SlugKey(artistName), []byte(slug), s.SlugTTL); err != nil {
		s.logger.Warn("caching slug failed", "artist", artistName, "error", err)
	}
}

// GetSlug returns the cached slug for an artist name, or "".
func (s *Service) GetSlug(ctx context.Context, artistName string) string {
	if strings.TrimSpace(artistName) == "" {
		return ""
	}
	v, err := s.store.Get(ctx, SlugKey(artistName))
	if err != nil {
		if !errors.Is(err, ErrKeyNotFound) {
			s.logger.Warn("reading slug failed", "artist", artistName, "error", err)
		}
		return ""
	}
	return string(v)
}

// GetTours returns the cached tour set for key, or nil.
func (s *Service) GetTours(ctx context.Context, key Key) *CachedTourSet {
	set, err := s.readTours(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrKeyNotFound) {
			s.logger.Warn("reading tours failed", "key", key.String(), "error", err)
		}
		return nil
	}
	return set
}

// CacheTours stores tours under key after dropping invalid entries. A
// Complete list replaces the cached one. A Partial list is merged by tour
// name into an existing entry and is refused with ErrIncompleteTourSet when
// there is nothing to merge into. Store failures are logged, not returned.
func (s *Service) CacheTours(ctx context.Context, key Key, tours []Tour, c Completeness) error {
	err := s.StoreTours(ctx, key, tours, c)
	if err == nil || errors.Is(err, ErrIncompleteTourSet) {
		return err
	}
	s.logger.Warn("caching tours failed", "key", key.String(), "error", err)
	return nil
}

// StoreTours is CacheTours for administrative callers: store failures
// are returned, and only an undecodable existing entry is overwritten.
func (s *Service) StoreTours(ctx context.Context, key Key, tours []Tour, c Completeness) error {
	valid := FilterTours(tours)
	if dropped := len(tours) - len(valid); dropped > 0 {
		s.logger.Debug("dropped invalid tours", "key", key.String(), "dropped", dropped)
	}

	existing, err := s.readTours(ctx, key)
	switch {
	case err == nil, errors.Is(err, ErrKeyNotFound):
	case errors.Is(err, errCorruptEntry):
		s.logger.Warn("replacing unreadable tour entry", "key", key.String(), "error", err)
	default:
		return fmt.Errorf("reading %s: %w", key.String(), err)
	}
	if c == Partial && existing == nil {
		return ErrIncompleteTourSet
	}

	now := s.now().UTC()
	set := &CachedTourSet{
		Slug:        key.Slug,
		MBID:        key.MBID,
		Tours:       valid,
		CreatedAt:   now,
		LastUpdated: now,
		LastChecked: now,
	}
	if existing != nil {
		set.CreatedAt = existing.CreatedAt
		if c == Partial {
			set.Tours = mergeTours(existing.Tours, valid)
		}
	}

	if err := s.writeTours(ctx, key, set); err != nil {
		return fmt.Errorf("writing %s: %w", key.String(), err)
	}
	s.logger.Info("cached tours",
		"key", key.String(),
		"tours", len(set.Tours),
		"completeness", c.String())
	return nil
}

// UpdateLastChecked records that key was just validated upstream.
func (s *Service) UpdateLastChecked(ctx context.Context, key Key) {
	set := s.GetTours(ctx, key)
	if set == nil {
		return
	}
	set.LastChecked = s.now().UTC()
	if err := s.writeTours(ctx, key, set); err != nil {
		s.logger.Warn("updating last checked failed", "key", key.String(), "error", err)
	}
}

// Inspection describes what the cache holds for one artist.
type Inspection struct {
	Artist  string `json:"artist"`
	SlugKey string `json:"slug_key"`
	Slug    string `json:"slug,omitempty"`
	// SlugTTL is the remaining slug lifetime, zero when no slug is cached.
	SlugTTL time.Duration     `json:"slug_ttl"`
	Entries []InspectionEntry `json:"entries"`
}

// InspectionEntry is one cached tour set with its remaining lifetime.
type InspectionEntry struct {
	Key string         `json:"key"`
	TTL time.Duration  `json:"ttl"`
	Set *CachedTourSet `json:"set"`
}

// Inspect reports the cached slug and tour sets for an artist. Without an
// mbid every tour set cached for the slug is listed.
func (s *Service) Inspect(ctx context.Context, artistName, mbid string) (*Inspection, error) {
	in := &Inspection{Artist: artistName, SlugKey: SlugKey(artistName)}

	v, err := s.store.Get(ctx, in.SlugKey)
	switch {
	case errors.Is(err, ErrKeyNotFound):
		return in, nil
	case err != nil:
		return nil, err
	}
	in.Slug = string(v)
	if in.SlugTTL, err = s.store.TTL(ctx, in.SlugKey); err != nil && !errors.Is(err, ErrKeyNotFound) {
		return nil, err
	}

	var keys []string
	if mbid != "" {
		keys = []string{Key{Slug: in.Slug, MBID: mbid}.String()}
	} else {
		base := Key{Slug: in.Slug}.String()
		all, err := s.store.Keys(ctx, base)
		if err != nil {
			return nil, err
		}
		for _, k := range all {
			if k == base || strings.HasPrefix(k, base+":") {
				keys = append(keys, k)
			}
		}
	}

	for _, k := range keys {
		raw, err := s.store.Get(ctx, k)
		if errors.Is(err, ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var set CachedTourSet
		if err := json.Unmarshal(raw, &set); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", k, err)
		}
		ttl, err := s.store.TTL(ctx, k)
		if err != nil && !errors.Is(err, ErrKeyNotFound) {
			return nil, err
		}
		in.Entries = append(in.Entries, InspectionEntry{Key: k, TTL: ttl, Set: &set})
	}
	return in, nil
}

// Clear removes every entry whose key starts with prefix.
func (s *Service) Clear(ctx context.Context, prefix string) (int64, error) {
	n, err := s.store.DeletePrefix(ctx, prefix)
	if err != nil {
		return 0, err
	}
	s.logger.Info("cleared cache entries", "prefix", prefix, "removed", n)
	return n, nil
}

func (s *Service) readTours(ctx context.Context, key Key) (*CachedTourSet, error) {
	raw, err := s.store.Get(ctx, key.String())
	if err != nil {
		return nil, err
	}
	var set CachedTourSet
	if err := json.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("decoding %s: %w: %w", key.String(), errCorruptEntry, err)
	}
	return &set, nil
}

func (s *Service) writeTours(ctx context.Context, key Key, set *CachedTourSet) error {
	raw, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key.String(), err)
	}
	return s.store.Set(ctx, key.String(), raw, 0)
}

// mergeTours overlays updates onto existing by case-insensitive name,
// appending tours that were not cached yet.
func mergeTours(existing, updates []Tour) []Tour {
	out := make([]Tour, len(existing), len(existing)+len(updates))
	copy(out, existing)
	for _, u := range updates {
		replaced := false
		for i := range out {
			if strings.EqualFold(out[i].Name, u.Name) {
				out[i] = u
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, u)
		}
	}
	return out
}
