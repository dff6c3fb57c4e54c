package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sydlexius/encore/internal/provider"
	"github.com/sydlexius/encore/internal/provider/setlistfm"
)

// Kind classifies a pipeline failure for the client.
type Kind string

// Failure kinds.
const (
	KindNoData              Kind = "no_data"
	KindArtistNotFound      Kind = "artist_not_found"
	KindInvalidQuery        Kind = "invalid_query"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	KindRateLimited         Kind = "rate_limited"
	KindCacheUnavailable    Kind = "cache_unavailable"
	KindInternal            Kind = "internal"
)

// Error is a failure reported on the progress channel as the terminal error
// event.
type Error struct {
	Kind    Kind   `json:"kind"`
	Status  int    `json:"status"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Classify maps err onto an *Error. Cancellation is not a pipeline failure
// and yields nil.
func Classify(err error) *Error {
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}

	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}

	var (
		noData *setlistfm.ErrNoData
		nf     *provider.ErrNotFound
		iq     *provider.ErrInvalidQuery
		rl     *provider.ErrRateLimited
		auth   *provider.ErrAuthRequired
		unavl  *provider.ErrProviderUnavailable
	)
	switch {
	case errors.As(err, &noData):
		switch noData.Reason {
		case setlistfm.ReasonArtistNotFound:
			return &Error{Kind: KindArtistNotFound, Status: http.StatusNotFound,
				Message: "No information available for this artist.", Err: err}
		case setlistfm.ReasonInvalidQuery:
			return &Error{Kind: KindInvalidQuery, Status: http.StatusBadRequest,
				Message: "The artist query is invalid.", Err: err}
		case setlistfm.ReasonNoShowsForTour:
			return &Error{Kind: KindNoData, Status: http.StatusNotFound,
				Message: fmt.Sprintf("No shows found for tour %q.", noData.Query.TourName), Err: err}
		default:
			return &Error{Kind: KindNoData, Status: http.StatusNotFound,
				Message: "No shows found for this artist.", Err: err}
		}
	case errors.As(err, &iq):
		return &Error{Kind: KindInvalidQuery, Status: http.StatusBadRequest, Message: iq.Message, Err: err}
	case errors.As(err, &nf):
		return &Error{Kind: KindArtistNotFound, Status: http.StatusNotFound,
			Message: "No information available for this artist.", Err: err}
	case errors.As(err, &rl):
		return &Error{Kind: KindRateLimited, Status: http.StatusTooManyRequests,
			Message: fmt.Sprintf("%s is rate limiting requests, try again shortly.", rl.Provider.DisplayName()), Err: err}
	case errors.As(err, &auth):
		return &Error{Kind: KindUpstreamUnavailable, Status: http.StatusBadGateway,
			Message: fmt.Sprintf("%s rejected the configured credentials.", auth.Provider.DisplayName()), Err: err}
	case errors.As(err, &unavl):
		status := http.StatusServiceUnavailable
		if unavl.StatusCode == http.StatusGatewayTimeout || errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		return &Error{Kind: KindUpstreamUnavailable, Status: status,
			Message: fmt.Sprintf("%s is unavailable, try again later.", unavl.Provider.DisplayName()), Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindUpstreamUnavailable, Status: http.StatusGatewayTimeout,
			Message: "The request timed out.", Err: err}
	}
	return &Error{Kind: KindInternal, Status: http.StatusInternalServerError,
		Message: "Internal error.", Err: err}
}

func noSongData() *Error {
	return &Error{Kind: KindNoData, Status: http.StatusNotFound,
		Message: "The selected shows have no setlist data."}
}

func missingArtist() *Error {
	return &Error{Kind: KindInvalidQuery, Status: http.StatusBadRequest,
		Message: "An artist name, MusicBrainz id or Spotify URL is required."}
}
