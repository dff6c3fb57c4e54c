package tourcache

import (
	"regexp"
	"strings"
)

// invalidNames are placeholder tour names the catalog uses for shows that
// are not part of a real tour.
var invalidNames = map[string]bool{
	"no tour info":  true,
	"unknown":       true,
	"miscellaneous": true,
	"various":       true,
	"other":         true,
	"n/a":           true,
	"tbd":           true,
	"null":          true,
}

var invalidPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*$`),
	regexp.MustCompile(`(?i)^\(?\s*no tour( info(rmation)?)?\s*\)?$`),
	regexp.MustCompile(`(?i)^\(?\s*unknown( tour)?\s*\)?$`),
	regexp.MustCompile(`(?i)^misc(\.|ellaneous)?( shows)?$`),
	regexp.MustCompile(`(?i)^various( shows| dates)?$`),
	regexp.MustCompile(`(?i)^other( shows)?$`),
	regexp.MustCompile(`(?i)^n\s*/?\s*a$`),
	regexp.MustCompile(`(?i)^tb[ad]$`),
	regexp.MustCompile(`(?i)^(null|undefined|none)$`),
}

// ValidTourName reports whether name is a real tour name.
func ValidTourName(name string) bool {
	trimmed := strings.TrimSpace(name)
	if invalidNames[strings.ToLower(trimmed)] {
		return false
	}
	for _, re := range invalidPatterns {
		if re.MatchString(trimmed) {
			return false
		}
	}
	return true
}

// ValidTour reports whether t may be cached.
func ValidTour(t Tour) bool {
	return t.ShowCount > 0 && ValidTourName(t.Name)
}

// FilterTours returns the valid tours in their original order.
func FilterTours(tours []Tour) []Tour {
	out := make([]Tour, 0, len(tours))
	for _, t := range tours {
		if ValidTour(t) {
			t.Name = strings.TrimSpace(t.Name)
			out = append(out, t)
		}
	}
	return out
}
