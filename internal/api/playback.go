package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"rvslideshow/internal/playback"
	"rvslideshow/internal/remote"
	"rvslideshow/internal/slideshow"
	"rvslideshow/internal/storage"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

// Source handlers

func (h *Handler) ResetSource(w http.ResponseWriter, r *http.Request) {
	if !h.requireSource(w) {
		return
	}
	if err := h.source.ResetSession(r.Context()); err != nil {
		h.logger.Error().Err(err).Msg("failed to reset source")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to reset pointer")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListSource(w http.ResponseWriter, r *http.Request) {
	if !h.requireSource(w) {
		return
	}

	var req remote.ListRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body")
		return
	}

	ids, err := h.source.List(r.Context(), req.Selection)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list selection")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list selection")
		return
	}

	writeJSON(w, http.StatusOK, remote.ListResponse{IDs: ids})
}

// NextSource advances the stored pointer. A repeated seq returns the same
// id; an exhausted selection answers 204.
func (h *Handler) NextSource(w http.ResponseWriter, r *http.Request) {
	if !h.requireSource(w) {
		return
	}

	var req remote.NextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body")
		return
	}

	id, err := h.source.Next(r.Context(), req.Selection, req.Seq)
	switch {
	case errors.Is(err, playback.ErrEndOfSequence):
		w.WriteHeader(http.StatusNoContent)
		return
	case errors.Is(err, slideshow.ErrInvalidSeq):
		writeError(w, http.StatusBadRequest, "INVALID_SEQ", err.Error())
		return
	case err != nil:
		h.logger.Error().Err(err).Uint64("seq", req.Seq).Msg("failed to advance pointer")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to advance")
		return
	}

	writeJSON(w, http.StatusOK, remote.NextResponse{ID: id})
}

func (h *Handler) requireSource(w http.ResponseWriter) bool {
	if h.source == nil {
		writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Media source not initialized")
		return false
	}
	return true
}

// Session handlers

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	if !h.requirePlayer(w) {
		return
	}
	writeJSON(w, http.StatusOK, h.sessionResponse())
}

// StartSession decodes a session configuration over the server defaults,
// so a request only names what it changes.
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	if !h.requirePlayer(w) {
		return
	}

	cfg := h.defaults
	cfg.SelectedFolders = append([]string(nil), h.defaults.SelectedFolders...)
	cfg.SelectedMusic = append([]string(nil), h.defaults.SelectedMusic...)
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body")
		return
	}

	_, err := h.player.Start(r.Context(), cfg)
	if err != nil {
		var (
			cfgErr  *playback.ConfigurationError
			termErr *playback.TerminalError
		)
		switch {
		case errors.As(err, &cfgErr):
			writeError(w, http.StatusBadRequest, "INVALID_CONFIG", cfgErr.Reason)
		case errors.As(err, &termErr):
			writeError(w, http.StatusUnprocessableEntity, "SESSION_FAILED", termErr.Error())
		case errors.Is(err, playback.ErrSessionStopped):
			writeError(w, http.StatusConflict, "SESSION_STOPPED", "Session stopped while starting")
		default:
			h.logger.Error().Err(err).Msg("failed to start session")
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to start session")
		}
		return
	}

	writeJSON(w, http.StatusCreated, h.sessionResponse())
}

func (h *Handler) PauseSession(w http.ResponseWriter, r *http.Request) {
	if !h.requirePlayer(w) {
		return
	}
	h.control(w, h.player.Pause())
}

func (h *Handler) ResumeSession(w http.ResponseWriter, r *http.Request) {
	if !h.requirePlayer(w) {
		return
	}
	h.control(w, h.player.Resume())
}

func (h *Handler) StopSession(w http.ResponseWriter, r *http.Request) {
	if !h.requirePlayer(w) {
		return
	}
	h.player.Stop()
	writeJSON(w, http.StatusOK, h.sessionResponse())
}

func (h *Handler) control(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, playback.ErrNoActiveSession):
		writeError(w, http.StatusConflict, "NO_ACTIVE_SESSION", "No active session")
	case errors.Is(err, playback.ErrInvalidState):
		writeError(w, http.StatusConflict, "INVALID_STATE", "Session cannot do that in its current state")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	default:
		writeJSON(w, http.StatusOK, h.sessionResponse())
	}
}

func (h *Handler) sessionResponse() SessionResponse {
	resp := SessionResponse{Status: h.player.Status()}
	if h.slides != nil && resp.State.Active() {
		resp.Slide = h.slides.Current()
	}
	return resp
}

func (h *Handler) requirePlayer(w http.ResponseWriter) bool {
	if h.player == nil {
		writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Playback engine not initialized")
		return false
	}
	return true
}

// GetSessions lists finished sessions, newest first.
func (h *Handler) GetSessions(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "BAD_REQUEST", "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	records, err := h.storage.GetRecentSessions(limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to get sessions")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get sessions")
		return
	}
	if records == nil {
		records = []storage.SessionRecord{}
	}

	writeJSON(w, http.StatusOK, SessionsResponse{Sessions: records})
}
