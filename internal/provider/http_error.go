package provider

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// maxRetryAfter bounds server-supplied retry delays.
const maxRetryAfter = time.Hour

// CheckResponse maps a non-2xx response onto the typed provider errors. The
// body is drained (and a short excerpt kept for the message) so the
// connection can be reused. A nil return means the status was 2xx and the
// body is untouched.
func CheckResponse(name ProviderName, resp *http.Response, id string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	_, _ = io.Copy(io.Discard, resp.Body)
	msg := strings.TrimSpace(string(excerpt))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &ErrRateLimited{
			Provider:   name,
			RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
	case resp.StatusCode == http.StatusNotFound:
		return &ErrNotFound{Provider: name, ID: id}
	case resp.StatusCode == http.StatusBadRequest:
		if msg == "" {
			msg = "bad request"
		}
		return &ErrInvalidQuery{Provider: name, Message: msg}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &ErrAuthRequired{Provider: name}
	default:
		return &ErrProviderUnavailable{
			Provider:   name,
			Cause:      fmt.Errorf("HTTP %d", resp.StatusCode),
			StatusCode: resp.StatusCode,
		}
	}
}

// ParseRetryAfter understands both delta-seconds and HTTP-date forms of the
// Retry-After header. Unparseable or non-positive values yield 0.
func ParseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if sec, err := strconv.Atoi(v); err == nil {
		if sec <= 0 {
			return 0
		}
		return min(time.Duration(sec)*time.Second, maxRetryAfter)
	}
	if t, err := http.ParseTime(v); err == nil {
		d := t.Sub(now)
		if d <= 0 {
			return 0
		}
		return min(d, maxRetryAfter)
	}
	return 0
}

// StatusCode extracts the upstream HTTP status carried by a provider error,
// or 0 when there is none.
func StatusCode(err error) int {
	var (
		rl    *ErrRateLimited
		nf    *ErrNotFound
		iq    *ErrInvalidQuery
		auth  *ErrAuthRequired
		unavl *ErrProviderUnavailable
	)
	switch {
	case errors.As(err, &rl):
		return http.StatusTooManyRequests
	case errors.As(err, &nf):
		return http.StatusNotFound
	case errors.As(err, &iq):
		return http.StatusBadRequest
	case errors.As(err, &auth):
		return http.StatusUnauthorized
	case errors.As(err, &unavl):
		return unavl.StatusCode
	}
	return 0
}
