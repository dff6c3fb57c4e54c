package provider

import (
	"log/slog"
	"sync"
)

// Registry holds one shared Fetcher per upstream integration so every
// pipeline run talking to the same upstream observes the same limits.
type Registry struct {
	mu       sync.RWMutex
	fetchers map[ProviderName]*Fetcher
	logger   *slog.Logger
}

// NewRegistry creates an empty fetcher registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		fetchers: make(map[ProviderName]*Fetcher),
		logger:   logger,
	}
}

// Configure installs a fetcher for name with the given limits, replacing any
// existing one.
func (r *Registry) Configure(name ProviderName, limits Limits) *Fetcher {
	f := NewFetcher(name, limits, r.logger)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetchers[name] = f
	return f
}

// Get returns the fetcher for name, creating one with DefaultLimits on first use.
func (r *Registry) Get(name ProviderName) *Fetcher {
	r.mu.RLock()
	f, ok := r.fetchers[name]
	r.mu.RUnlock()
	if ok {
		return f
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.fetchers[name]; ok {
		return f
	}
	f = NewFetcher(name, DefaultLimits(name), r.logger)
	r.fetchers[name] = f
	return f
}

// All returns the configured fetchers in display order.
func (r *Registry) All() []*Fetcher {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*Fetcher
	for _, name := range AllProviderNames() {
		if f, ok := r.fetchers[name]; ok {
			result = append(result, f)
		}
	}
	return result
}
