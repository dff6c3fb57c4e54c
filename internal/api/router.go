// Package api serves the HTTP surface: the progress event stream, the tally
// trigger, cache administration, health and metrics.
package api

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sydlexius/encore/internal/api/middleware"
	"github.com/sydlexius/encore/internal/event"
	"github.com/sydlexius/encore/internal/maintenance"
	"github.com/sydlexius/encore/internal/pipeline"
	"github.com/sydlexius/encore/internal/provider"
	"github.com/sydlexius/encore/internal/tourcache"
)

// DefaultKeepAlive is how often an idle event stream gets a comment line.
const DefaultKeepAlive = 15 * time.Second

// TallyRunner runs the pipeline for one request. *pipeline.Runner
// implements it.
type TallyRunner interface {
	Run(ctx context.Context, req pipeline.Request, progress pipeline.ProgressBroker) (*pipeline.Result, error)
}

// CacheAdmin exposes cache inspection and clearing. *tourcache.Service
// implements it.
type CacheAdmin interface {
	Inspect(ctx context.Context, artistName, mbid string) (*tourcache.Inspection, error)
	Clear(ctx context.Context, prefix string) (int64, error)
}

// RouterDeps bundles all dependencies needed by the HTTP router.
type RouterDeps struct {
	Runner           TallyRunner
	Broker           *event.Broker
	Cache            CacheAdmin
	Maintenance      *maintenance.Service
	ProviderRegistry *provider.Registry
	Revalidator      *pipeline.Revalidator
	TallyLimiter     *middleware.RateLimiter
	DB               *sql.DB
	Logger           *slog.Logger
	BasePath         string
	// RunTimeout bounds a single pipeline run; 0 means no bound beyond the
	// stream's own lifetime.
	RunTimeout time.Duration
	KeepAlive  time.Duration
}

// Router sets up all HTTP routes for the application.
type Router struct {
	runner           TallyRunner
	broker           *event.Broker
	cache            CacheAdmin
	maintenance      *maintenance.Service
	providerRegistry *provider.Registry
	revalidator      *pipeline.Revalidator
	tallyLimiter     *middleware.RateLimiter
	db               *sql.DB
	logger           *slog.Logger
	basePath         string
	runTimeout       time.Duration
	keepAlive        time.Duration

	// running holds the channel ids with a pipeline run in flight.
	running sync.Map
	runs    sync.WaitGroup
}

// NewRouter creates a new Router with all routes configured.
func NewRouter(deps RouterDeps) *Router {
	keepAlive := deps.KeepAlive
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}
	return &Router{
		runner:           deps.Runner,
		broker:           deps.Broker,
		cache:            deps.Cache,
		maintenance:      deps.Maintenance,
		providerRegistry: deps.ProviderRegistry,
		revalidator:      deps.Revalidator,
		tallyLimiter:     deps.TallyLimiter,
		db:               deps.DB,
		logger:           deps.Logger.With(slog.String("component", "api")),
		basePath:         deps.BasePath,
		runTimeout:       deps.RunTimeout,
		keepAlive:        keepAlive,
	}
}

// Handler returns the root HTTP handler with all routes and middleware.
func (r *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	bp := r.basePath

	mux.HandleFunc("GET "+bp+"/api/v1/health", r.handleHealth)
	mux.Handle("GET "+bp+"/metrics", promhttp.Handler())
	mux.HandleFunc("GET "+bp+"/api/v1/providers", r.handleProviders)

	mux.HandleFunc("GET "+bp+"/api/v1/stream", r.handleStream)
	mux.HandleFunc("DELETE "+bp+"/api/v1/stream/{id}", r.handleCancelStream)
	mux.Handle("POST "+bp+"/api/v1/tallies", r.limitTallies(http.HandlerFunc(r.handleTally)))

	mux.HandleFunc("GET "+bp+"/api/v1/cache/artists/{name}", r.handleCacheInspect)
	mux.HandleFunc("DELETE "+bp+"/api/v1/cache", r.handleCacheClear)
	mux.HandleFunc("GET "+bp+"/api/v1/cache/status", r.handleCacheStatus)
	mux.HandleFunc("POST "+bp+"/api/v1/cache/maintenance", r.handleCacheMaintenance)

	return middleware.Logging(r.logger)(middleware.SecurityHeaders(mux))
}

// Wait blocks until every pipeline run started by the router has returned.
func (r *Router) Wait() {
	r.runs.Wait()
}

func (r *Router) limitTallies(next http.Handler) http.Handler {
	if r.tallyLimiter == nil {
		return next
	}
	return r.tallyLimiter.Middleware(next)
}
