package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sydlexius/encore/internal/database"
	"github.com/sydlexius/encore/internal/version"
)

const healthTimeout = 2 * time.Second

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	status := http.StatusOK
	body := map[string]any{
		"status":   "ok",
		"version":  version.Version,
		"commit":   version.Commit,
		"time":     time.Now().UTC().Format(time.RFC3339),
		"database": "ok",
	}
	if r.db != nil {
		if err := database.Healthy(req.Context(), r.db, healthTimeout); err != nil {
			r.logger.Warn("health check: database unreachable", "error", err)
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body["database"] = err.Error()
		}
	}
	if r.broker != nil {
		body["open_streams"] = r.broker.Len()
	}
	if r.revalidator != nil {
		body["revalidations_pending"] = r.revalidator.Pending()
	}
	writeJSON(w, status, body)
}

type providerStatus struct {
	Name          string `json:"name"`
	DisplayName   string `json:"display_name"`
	MinInterval   string `json:"min_interval"`
	MaxConcurrent int    `json:"max_concurrent"`
	MaxRetries    int    `json:"max_retries"`
	Active        int    `json:"active"`
	Queued        int    `json:"queued"`
}

// handleProviders reports each upstream fetcher's limits and current load.
func (r *Router) handleProviders(w http.ResponseWriter, req *http.Request) {
	out := []providerStatus{}
	if r.providerRegistry != nil {
		for _, f := range r.providerRegistry.All() {
			limits := f.Limits()
			active, queued := f.Pending()
			out = append(out, providerStatus{
				Name:          string(f.Name()),
				DisplayName:   f.Name().DisplayName(),
				MinInterval:   limits.MinInterval.String(),
				MaxConcurrent: limits.MaxConcurrent,
				MaxRetries:    limits.MaxRetries,
				Active:        active,
				Queued:        queued,
			})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// writeError writes a JSON error body. kind is omitted when empty.
func writeError(w http.ResponseWriter, status int, kind, message string) {
	body := map[string]string{"error": message}
	if kind != "" {
		body["kind"] = kind
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encode error", http.StatusInternalServerError)
	}
}
