package api

import (
	"net/http"

	"github.com/user/floatlab/internal/session"
	"github.com/user/floatlab/internal/windows"
)

type createWindowRequest struct {
	Kind    string `json:"kind"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

type updateWindowRequest struct {
	X         *float64 `json:"x"`
	Y         *float64 `json:"y"`
	Width     *float64 `json:"width"`
	Height    *float64 `json:"height"`
	Title     *string  `json:"title"`
	Content   *string  `json:"content"`
	Minimized *bool    `json:"minimized"`
	Front     bool     `json:"front"`
}

func (h *handler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, ok := h.sessions.Get(r.PathValue("id"))
	if !ok {
		jsonError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return s, true
}

func (h *handler) listWindows(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	jsonResponse(w, http.StatusOK, s.Registry.List())
}

func (h *handler) createWindow(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req createWindowRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	kind := windows.Kind(req.Kind)
	switch kind {
	case windows.KindEditor, windows.KindMarkdown:
	default:
		jsonError(w, http.StatusBadRequest, "kind must be editor or markdown")
		return
	}

	id := s.Registry.Create(kind, req.Title, req.Content, "")
	rec, _ := s.Registry.Get(id)
	jsonResponse(w, http.StatusCreated, rec)
}

func (h *handler) updateWindow(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	wid := r.PathValue("wid")
	if _, ok := s.Registry.Get(wid); !ok {
		jsonError(w, http.StatusNotFound, "window not found")
		return
	}

	var req updateWindowRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.X != nil && req.Y != nil {
		s.Registry.SetPosition(wid, *req.X, *req.Y)
	}
	if req.Width != nil && req.Height != nil {
		s.Registry.SetSize(wid, *req.Width, *req.Height)
	}
	if req.Title != nil {
		s.Registry.SetTitle(wid, *req.Title)
	}
	if req.Content != nil {
		s.Registry.SetContent(wid, *req.Content)
	}
	if req.Minimized != nil {
		if rec, ok := s.Registry.Get(wid); ok && rec.Minimized != *req.Minimized {
			s.Registry.ToggleMinimize(wid)
		}
	}
	if req.Front {
		s.Registry.BringToFront(wid)
	}

	rec, _ := s.Registry.Get(wid)
	jsonResponse(w, http.StatusOK, rec)
}

func (h *handler) closeWindow(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	s.Registry.Close(r.PathValue("wid"))
	jsonResponse(w, http.StatusNoContent, nil)
}
