// Package artist compares artist names coming from independent catalogs.
package artist

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize folds an artist name for comparison: lowercase, canonical
// decomposition with combining marks removed, then trimmed.
func Normalize(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	s, _, err := transform.String(t, strings.ToLower(name))
	if err != nil {
		s = strings.ToLower(name)
	}
	return strings.TrimSpace(s)
}

// Matches reports whether two names plausibly refer to the same artist: the
// normalized forms are equal or one contains the other. An empty name never
// matches anything.
func Matches(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return false
	}
	return na == nb || strings.Contains(na, nb) || strings.Contains(nb, na)
}

// PickMatch returns the index of the first candidate matching target, or -1.
// An exact normalized match is preferred over a containment match so that
// "Muse" picks "Muse" before "Muse Tribute Band".
func PickMatch(target string, candidates []string) int {
	nt := Normalize(target)
	if nt == "" {
		return -1
	}
	for i, c := range candidates {
		if Normalize(c) == nt {
			return i
		}
	}
	for i, c := range candidates {
		if Matches(target, c) {
			return i
		}
	}
	return -1
}
