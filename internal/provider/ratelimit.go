package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limits configures how requests to one upstream integration are scheduled.
type Limits struct {
	MinInterval   time.Duration // minimum spacing between dispatched requests
	MaxConcurrent int           // requests in flight at once
	MaxRetries    int           // retries after a 429 (not counting the first attempt)
	BaseBackoff   time.Duration // first backoff when the server gives no Retry-After
}

// Default limits per provider. setlist.fm allows 2 req/s on the standard key,
// MusicBrainz asks for 1 req/s per client.
var defaultLimits = map[ProviderName]Limits{
	NameSetlistFM:   {MinInterval: 500 * time.Millisecond, MaxConcurrent: 2, MaxRetries: 3, BaseBackoff: time.Second},
	NameMusicBrainz: {MinInterval: time.Second, MaxConcurrent: 1, MaxRetries: 3, BaseBackoff: 2 * time.Second},
	NameSpotify:     {MinInterval: 100 * time.Millisecond, MaxConcurrent: 4, MaxRetries: 3, BaseBackoff: time.Second},
	NameTourScrape:  {MinInterval: time.Second, MaxConcurrent: 1, MaxRetries: 2, BaseBackoff: 2 * time.Second},
}

// DefaultLimits returns the built-in limits for a provider. Unknown providers
// get a conservative one request per second.
func DefaultLimits(name ProviderName) Limits {
	if l, ok := defaultLimits[name]; ok {
		return l
	}
	return Limits{MinInterval: time.Second, MaxConcurrent: 1, MaxRetries: 2, BaseBackoff: time.Second}
}

// Fetcher schedules outbound requests for a single upstream integration. It
// spaces dispatches by MinInterval, admits at most MaxConcurrent requests at
// a time in submission order, and retries rate-limited requests with
// exponential backoff. A Fetcher is safe for concurrent use and is shared by
// every pipeline run talking to the same upstream.
type Fetcher struct {
	name    ProviderName
	limits  Limits
	limiter *rate.Limiter
	logger  *slog.Logger

	mu     sync.Mutex
	active int
	queue  []chan struct{}

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() time.Duration
}

// NewFetcher creates a Fetcher for the named provider.
func NewFetcher(name ProviderName, limits Limits, logger *slog.Logger) *Fetcher {
	if limits.MaxConcurrent < 1 {
		limits.MaxConcurrent = 1
	}
	if limits.MaxRetries < 0 {
		limits.MaxRetries = 0
	}
	if limits.BaseBackoff <= 0 {
		limits.BaseBackoff = time.Second
	}
	limit := rate.Inf
	if limits.MinInterval > 0 {
		limit = rate.Every(limits.MinInterval)
	}
	return &Fetcher{
		name:    name,
		limits:  limits,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.With(slog.String("provider", string(name))),
		sleep:   sleepContext,
		jitter:  defaultJitter,
	}
}

// Name returns the provider this fetcher schedules for.
func (f *Fetcher) Name() ProviderName { return f.name }

// Limits returns the effective limits.
func (f *Fetcher) Limits() Limits { return f.limits }

// Do runs fn under the fetcher's scheduling policy. fn signals a rate-limit
// response by returning *ErrRateLimited; those are retried up to MaxRetries
// times. Any other error is returned immediately.
func (f *Fetcher) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	for attempt := 0; ; attempt++ {
		queued := time.Now()
		if err := f.acquire(ctx); err != nil {
			return err
		}
		if err := f.limiter.Wait(ctx); err != nil {
			f.release()
			return &ErrProviderUnavailable{
				Provider: f.name,
				Cause:    fmt.Errorf("rate limiter: %w", err),
			}
		}
		upstreamQueueWait.WithLabelValues(string(f.name)).Observe(time.Since(queued).Seconds())

		upstreamInFlight.WithLabelValues(string(f.name)).Inc()
		err := fn(ctx)
		upstreamInFlight.WithLabelValues(string(f.name)).Dec()
		f.release()

		upstreamRequests.WithLabelValues(string(f.name), outcomeLabel(err)).Inc()

		var rl *ErrRateLimited
		if !errors.As(err, &rl) {
			return err
		}
		if attempt >= f.limits.MaxRetries {
			f.logger.Warn("rate limit retries exhausted", "attempts", attempt+1)
			return err
		}

		delay := f.backoff(attempt, rl.RetryAfter)
		upstreamRetries.WithLabelValues(string(f.name)).Inc()
		f.logger.Warn("rate limited, backing off",
			"attempt", attempt+1,
			"delay", delay.String(),
			"retry_after", rl.RetryAfter.String())
		if err := f.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// Schedule runs fn through the fetcher and returns its value.
func Schedule[T any](ctx context.Context, f *Fetcher, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := f.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// backoff returns the delay before retry number attempt+1. A server-supplied
// delay wins over the doubling schedule; both get jitter added.
func (f *Fetcher) backoff(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		return retryAfter + f.jitter()
	}
	return f.limits.BaseBackoff<<attempt + f.jitter()
}

// acquire blocks until the caller holds one of the MaxConcurrent slots.
// Waiters are admitted strictly in arrival order.
func (f *Fetcher) acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	if f.active < f.limits.MaxConcurrent && len(f.queue) == 0 {
		f.active++
		f.mu.Unlock()
		return nil
	}
	ready := make(chan struct{})
	f.queue = append(f.queue, ready)
	f.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		f.mu.Lock()
		for i, w := range f.queue {
			if w == ready {
				f.queue = append(f.queue[:i], f.queue[i+1:]...)
				f.mu.Unlock()
				return ctx.Err()
			}
		}
		f.mu.Unlock()
		// The slot was handed over concurrently with cancellation.
		f.release()
		return ctx.Err()
	}
}

// release frees a slot, handing it directly to the oldest waiter if any.
func (f *Fetcher) release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) > 0 {
		next := f.queue[0]
		f.queue = f.queue[1:]
		close(next)
		return
	}
	f.active--
}

// Pending reports the number of requests holding a slot and waiting for one.
func (f *Fetcher) Pending() (active, queued int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active, len(f.queue)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// defaultJitter spreads retries over 100-400ms so concurrent callers that
// were limited together do not retry together.
func defaultJitter() time.Duration {
	return 100*time.Millisecond + time.Duration(rand.N(301))*time.Millisecond
}
