package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sydlexius/encore/internal/event"
	"github.com/sydlexius/encore/internal/pipeline"
)

const maxTallyBody = 64 << 10

// handleStream opens a progress channel and relays its events as
// server-sent events until a terminal event or client disconnect. A
// disconnect closes the channel, which cancels any run writing to it.
func (r *Router) handleStream(w http.ResponseWriter, req *http.Request) {
	rc := http.NewResponseController(w)

	id := r.broker.Open()
	defer r.broker.Close(id)
	events, ok := r.broker.Events(id)
	if !ok {
		writeError(w, http.StatusInternalServerError, string(pipeline.KindInternal), "stream closed before it opened")
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		r.logger.Warn("event stream not flushable", "channel", id, "error", err)
		return
	}

	ticker := time.NewTicker(r.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-req.Context().Done():
			r.logger.Debug("stream client disconnected", "channel", id)
			return
		case e, open := <-events:
			if !open {
				return
			}
			if err := event.WriteSSE(w, e); err != nil {
				r.logger.Debug("writing event", "channel", id, "error", err)
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case <-ticker.C:
			if err := event.WriteComment(w, "keep-alive"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func (r *Router) handleCancelStream(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	if !r.broker.Exists(id) {
		writeError(w, http.StatusNotFound, "", "unknown channel")
		return
	}
	r.broker.Close(id)
	w.WriteHeader(http.StatusNoContent)
}

type tallyRequest struct {
	ChannelID  string `json:"channel_id"`
	Artist     string `json:"artist"`
	SpotifyURL string `json:"spotify_url"`
	MBID       string `json:"mbid"`
	Tour       string `json:"tour"`
}

// handleTally starts a pipeline run that reports on an open channel. The
// result arrives on the stream; this handler only acknowledges.
func (r *Router) handleTally(w http.ResponseWriter, req *http.Request) {
	var body tallyRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxTallyBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, string(pipeline.KindInvalidQuery), "invalid request body")
		return
	}

	id := strings.TrimSpace(body.ChannelID)
	if id == "" {
		writeError(w, http.StatusBadRequest, string(pipeline.KindInvalidQuery), "channel_id is required")
		return
	}
	if strings.TrimSpace(body.Artist) == "" && strings.TrimSpace(body.SpotifyURL) == "" && strings.TrimSpace(body.MBID) == "" {
		writeError(w, http.StatusBadRequest, string(pipeline.KindInvalidQuery), "one of artist, spotify_url or mbid is required")
		return
	}
	if !r.broker.Exists(id) {
		writeError(w, http.StatusNotFound, "", "unknown channel")
		return
	}
	if _, busy := r.running.LoadOrStore(id, struct{}{}); busy {
		writeError(w, http.StatusConflict, "", "a tally is already running on this channel")
		return
	}

	preq := pipeline.Request{
		ChannelID:  id,
		Artist:     strings.TrimSpace(body.Artist),
		SpotifyURL: strings.TrimSpace(body.SpotifyURL),
		MBID:       strings.TrimSpace(body.MBID),
		Tour:       strings.TrimSpace(body.Tour),
	}
	r.runs.Add(1)
	go r.runTally(preq)

	writeJSON(w, http.StatusAccepted, map[string]string{
		"channel_id": id,
		"status":     "accepted",
	})
}

func (r *Router) runTally(req pipeline.Request) {
	defer r.runs.Done()
	defer r.running.Delete(req.ChannelID)

	ctx := r.broker.Context(req.ChannelID)
	if r.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.runTimeout)
		defer cancel()
	}

	if _, err := r.runner.Run(ctx, req, r.broker); err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Info("tally failed", "channel", req.ChannelID, "error", err)
	}
}
