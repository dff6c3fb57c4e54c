package tourcache

import "time"

// UpdateFloor is the minimum time between two re-validations of one entry.
const UpdateFloor = time.Hour

// checkTiers map entry age to how often the entry is re-checked. Young
// entries belong to artists whose tour data is still moving.
var checkTiers = []struct {
	maxAge   time.Duration
	interval time.Duration
}{
	{7 * 24 * time.Hour, 6 * time.Hour},
	{30 * 24 * time.Hour, 24 * time.Hour},
	{180 * 24 * time.Hour, 168 * time.Hour},
}

const oldEntryInterval = 720 * time.Hour

// CheckInterval returns the re-check interval for an entry of the given age.
func CheckInterval(age time.Duration) time.Duration {
	for _, tier := range checkTiers {
		if age < tier.maxAge {
			return tier.interval
		}
	}
	return oldEntryInterval
}

// ShouldCheckAPI reports whether cached is due for a check against the
// upstream. A missing entry is always due.
func (s *Service) ShouldCheckAPI(cached *CachedTourSet) bool {
	if cached == nil {
		return true
	}
	now := s.now()
	checked := cached.LastChecked
	if checked.IsZero() {
		checked = cached.LastUpdated
	}
	return now.Sub(checked) >= CheckInterval(now.Sub(cached.CreatedAt))
}

// ShouldUpdateTours reports whether the tour currently reported upstream
// signals a tour the cache does not know about. Entries checked within the
// last UpdateFloor are never updated.
func (s *Service) ShouldUpdateTours(key Key, currentTour string, cached *CachedTourSet) bool {
	if cached == nil {
		return true
	}
	if s.now().Sub(cached.LastChecked) < UpdateFloor {
		return false
	}
	if !ValidTourName(currentTour) {
		return false
	}
	if cached.Has(currentTour) {
		return false
	}
	s.logger.Info("new tour detected",
		"key", key.String(),
		"tour", currentTour,
		"cached_tours", len(cached.Tours))
	return true
}
