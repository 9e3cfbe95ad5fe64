package api

import (
	"errors"
	"net/http"

	"github.com/user/floatlab/internal/session"
)

type executeRequest struct {
	WindowID string `json:"window_id"`
}

func (h *handler) listSessions(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, h.sessions.List())
}

func (h *handler) getSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessions.Get(r.PathValue("id"))
	if !ok {
		jsonError(w, http.StatusNotFound, "session not found")
		return
	}
	jsonResponse(w, http.StatusOK, s.Info())
}

func (h *handler) closeSession(w http.ResponseWriter, r *http.Request) {
	err := h.sessions.Close(r.Context(), r.PathValue("id"))
	if errors.Is(err, session.ErrSessionNotFound) {
		jsonError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResponse(w, http.StatusNoContent, nil)
}

func (h *handler) saveSession(w http.ResponseWriter, r *http.Request) {
	err := h.sessions.Save(r.Context(), r.PathValue("id"))
	if errors.Is(err, session.ErrSessionNotFound) {
		jsonError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResponse(w, http.StatusNoContent, nil)
}

func (h *handler) executeWindow(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.WindowID == "" {
		jsonError(w, http.StatusBadRequest, "window_id is required")
		return
	}

	err := h.sessions.Execute(r.Context(), r.PathValue("id"), req.WindowID)
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		jsonError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, session.ErrWindowNotFound):
		jsonError(w, http.StatusNotFound, "window not found")
	case errors.Is(err, session.ErrNotExecutable):
		jsonError(w, http.StatusBadRequest, "only editor windows can be executed")
	case err != nil:
		jsonError(w, http.StatusBadGateway, err.Error())
	default:
		jsonResponse(w, http.StatusNoContent, nil)
	}
}

func (h *handler) interruptKernel(w http.ResponseWriter, r *http.Request) {
	err := h.sessions.InterruptKernel(r.Context(), r.PathValue("id"))
	if errors.Is(err, session.ErrSessionNotFound) {
		jsonError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		jsonError(w, http.StatusBadGateway, err.Error())
		return
	}
	jsonResponse(w, http.StatusNoContent, nil)
}

func (h *handler) restartKernel(w http.ResponseWriter, r *http.Request) {
	err := h.sessions.RestartKernel(r.Context(), r.PathValue("id"))
	if errors.Is(err, session.ErrSessionNotFound) {
		jsonError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		jsonError(w, http.StatusBadGateway, err.Error())
		return
	}
	jsonResponse(w, http.StatusNoContent, nil)
}
