/*
Copyright (C) 2026 AdVero Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api exposes the agent's HTTP surface: playback status for
// screen clients, session control, the event stream, and operational
// introspection (logs, activity).
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/adverolabs/advero/internal/cache"
	"github.com/adverolabs/advero/internal/events"
	"github.com/adverolabs/advero/internal/logbuffer"
	"github.com/adverolabs/advero/internal/playback"
	"github.com/adverolabs/advero/internal/store"
	"github.com/adverolabs/advero/internal/version"
)

// API exposes HTTP handlers.
type API struct {
	engine    *playback.Engine
	store     *store.Service
	cache     *cache.Cache
	bus       *events.Bus
	logBuffer *logbuffer.Buffer
	baseURL   string
	logger    zerolog.Logger
}

// New creates the API.
func New(engine *playback.Engine, storeSvc *store.Service, cacheSvc *cache.Cache, bus *events.Bus, logBuf *logbuffer.Buffer, baseURL string, logger zerolog.Logger) *API {
	return &API{
		engine:    engine,
		store:     storeSvc,
		cache:     cacheSvc,
		bus:       bus,
		logBuffer: logBuf,
		baseURL:   strings.TrimRight(baseURL, "/"),
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

// Routes mounts all handlers on the router.
func (a *API) Routes(r chi.Router) {
	r.Get("/healthz", a.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/screens", a.handleScreensList)
		r.Get("/logs", a.handleLogs)
		r.Get("/logs/stats", a.handleLogStats)
		r.Get("/activity", a.handleActivity)

		r.Route("/screens/{screenID}", func(r chi.Router) {
			r.Get("/now-playing", a.handleNowPlaying)
			r.Get("/playlist", a.handlePlaylist)
			r.Get("/activity", a.handleActivity)
			r.Get("/events", a.handleEvents)
			r.Post("/session", a.handleSessionStart)
			r.Delete("/session", a.handleSessionStop)
		})
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": version.Version,
		"screens": a.engine.Screens(),
	})
}

func (a *API) handleScreensList(w http.ResponseWriter, r *http.Request) {
	ids := a.engine.Screens()
	out := make([]playback.Status, 0, len(ids))
	for _, id := range ids {
		if h, ok := a.engine.Session(id); ok {
			out = append(out, h.Status())
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleNowPlaying is the screen client's polling endpoint. While an
// item is playing it mirrors the now-playing event; while idle it
// carries the venue branding and upload link for the house slide.
func (a *API) handleNowPlaying(w http.ResponseWriter, r *http.Request) {
	screenID := chi.URLParam(r, "screenID")
	h, ok := a.engine.Session(screenID)
	if !ok {
		writeError(w, http.StatusNotFound, "session_not_found")
		return
	}

	st := h.Status()
	resp := map[string]any{
		"screen_id":        st.ScreenID,
		"state":            st.State,
		"progress":         st.Progress,
		"playlist_version": st.PlaylistVersion,
		"playlist_len":     st.PlaylistLen,
	}

	switch {
	case st.Current != nil:
		resp["kind"] = st.Current.Kind
		resp["media_id"] = st.Current.ID()
		resp["started_at"] = st.StartedAt
		if st.Current.Kind == playback.KindAd {
			resp["file_url"] = st.Current.Media.FileURL
			resp["media_type"] = st.Current.Media.MediaType
		}
	case st.State == playback.StateIdle:
		resp["idle"] = a.idlePayload(r, screenID)
	}

	writeJSON(w, http.StatusOK, resp)
}

// idlePayload assembles the house slide shown between ads. Metadata
// lookups go through the cache; a miss or store error degrades to the
// bare upload link rather than failing the request.
func (a *API) idlePayload(r *http.Request, screenID string) map[string]any {
	ctx := r.Context()
	payload := map[string]any{
		"upload_url": a.baseURL + "/upload/" + screenID,
	}

	screen, ok := a.cache.GetScreen(ctx, screenID)
	if !ok {
		var err error
		screen, err = a.store.GetScreen(ctx, screenID)
		if err != nil {
			a.logger.Debug().Err(err).Str("screen_id", screenID).Msg("screen lookup failed for idle payload")
			return payload
		}
		a.cache.SetScreen(ctx, screen)
	}
	payload["screen_name"] = screen.Name

	venue, ok := a.cache.GetVenue(ctx, screen.OwnerID)
	if !ok {
		var err error
		venue, err = a.store.GetVenueProfile(ctx, screen.OwnerID)
		if err != nil {
			return payload
		}
		a.cache.SetVenue(ctx, venue)
	}
	payload["venue_name"] = venue.VenueName
	payload["venue_category"] = venue.Category
	payload["venue_location"] = venue.Location
	return payload
}

func (a *API) handlePlaylist(w http.ResponseWriter, r *http.Request) {
	screenID := chi.URLParam(r, "screenID")
	h, ok := a.engine.Session(screenID)
	if !ok {
		writeError(w, http.StatusNotFound, "session_not_found")
		return
	}

	pl := h.Playlist()
	writeJSON(w, http.StatusOK, map[string]any{
		"screen_id": screenID,
		"version":   pl.Version,
		"items":     pl.Items,
	})
}

func (a *API) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	screenID := chi.URLParam(r, "screenID")
	if screenID == "" {
		writeError(w, http.StatusBadRequest, "screen_id_required")
		return
	}

	h := a.engine.Start(screenID)
	writeJSON(w, http.StatusCreated, h.Status())
}

func (a *API) handleSessionStop(w http.ResponseWriter, r *http.Request) {
	screenID := chi.URLParam(r, "screenID")
	if !a.engine.Stop(screenID) {
		writeError(w, http.StatusNotFound, "session_not_found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (a *API) handleActivity(w http.ResponseWriter, r *http.Request) {
	screenID := chi.URLParam(r, "screenID")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	rows, err := a.store.QueryActivity(r.Context(), screenID, limit)
	if err != nil {
		a.logger.Error().Err(err).Msg("activity query failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (a *API) handleLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := logbuffer.QueryParams{
		Level:      q.Get("level"),
		Component:  q.Get("component"),
		ScreenID:   q.Get("screen_id"),
		Search:     q.Get("search"),
		Descending: q.Get("order") != "asc",
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil {
		params.Limit = limit
	}
	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_since")
			return
		}
		params.Since = t
	}

	writeJSON(w, http.StatusOK, a.logBuffer.Query(params))
}

func (a *API) handleLogStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.logBuffer.Stats())
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
