package api

import (
	"net/http"
	"strings"
)

func (r *Router) handleCacheInspect(w http.ResponseWriter, req *http.Request) {
	name := strings.TrimSpace(req.PathValue("name"))
	if name == "" {
		writeError(w, http.StatusBadRequest, "", "artist name is required")
		return
	}
	insp, err := r.cache.Inspect(req.Context(), name, strings.TrimSpace(req.URL.Query().Get("mbid")))
	if err != nil {
		r.logger.Error("inspecting cache", "artist", name, "error", err)
		writeError(w, http.StatusServiceUnavailable, "", "cache unavailable")
		return
	}
	writeJSON(w, http.StatusOK, insp)
}

// handleCacheClear deletes entries under ?prefix=. The parameter must be
// present; an empty value clears everything.
func (r *Router) handleCacheClear(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	if !q.Has("prefix") {
		writeError(w, http.StatusBadRequest, "", "prefix parameter is required (use prefix= to clear everything)")
		return
	}
	prefix := q.Get("prefix")
	removed, err := r.cache.Clear(req.Context(), prefix)
	if err != nil {
		r.logger.Error("clearing cache", "prefix", prefix, "error", err)
		writeError(w, http.StatusServiceUnavailable, "", "cache unavailable")
		return
	}
	r.logger.Info("cache cleared", "prefix", prefix, "removed", removed)
	writeJSON(w, http.StatusOK, map[string]any{"prefix": prefix, "removed": removed})
}

func (r *Router) handleCacheStatus(w http.ResponseWriter, req *http.Request) {
	if r.maintenance == nil {
		writeError(w, http.StatusNotFound, "", "maintenance is not configured")
		return
	}
	st, err := r.maintenance.Status(req.Context())
	if err != nil {
		r.logger.Error("reading cache status", "error", err)
		writeError(w, http.StatusServiceUnavailable, "", "cache unavailable")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleCacheMaintenance runs a purge and optimize pass immediately.
func (r *Router) handleCacheMaintenance(w http.ResponseWriter, req *http.Request) {
	if r.maintenance == nil {
		writeError(w, http.StatusNotFound, "", "maintenance is not configured")
		return
	}
	if err := r.maintenance.RunOnce(req.Context()); err != nil {
		r.logger.Error("manual maintenance failed", "error", err)
		writeError(w, http.StatusInternalServerError, "", err.Error())
		return
	}
	st, err := r.maintenance.Status(req.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "", "cache unavailable")
		return
	}
	writeJSON(w, http.StatusOK, st)
}
