package setlistfm

import "fmt"

// NoDataReason explains why a search produced nothing usable.
type NoDataReason string

// No-data reasons.
const (
	ReasonArtistNotFound NoDataReason = "artist_not_found"
	ReasonNoShowsForTour NoDataReason = "no_shows_for_tour"
	ReasonNoShows        NoDataReason = "no_shows"
	ReasonInvalidQuery   NoDataReason = "invalid_query"
)

// ErrNoData is returned when the first page of a search yields no shows.
type ErrNoData struct {
	Reason NoDataReason
	Query  Query
	Cause  error
}

func (e *ErrNoData) Error() string {
	switch e.Reason {
	case ReasonArtistNotFound:
		return fmt.Sprintf("setlistfm: artist %s not found", e.Query.describe())
	case ReasonNoShowsForTour:
		return fmt.Sprintf("setlistfm: no shows for %s on tour %q", e.Query.describe(), e.Query.TourName)
	case ReasonInvalidQuery:
		return fmt.Sprintf("setlistfm: invalid query for %s: %v", e.Query.describe(), e.Cause)
	default:
		return fmt.Sprintf("setlistfm: no shows for %s", e.Query.describe())
	}
}

func (e *ErrNoData) Unwrap() error { return e.Cause }

// PageFailure records a non-first page that could not be fetched.
type PageFailure struct {
	Page       int    `json:"page"`
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
}
