package api

import (
	"errors"
	"net/http"

	"github.com/user/floatlab/internal/db"
	"github.com/user/floatlab/internal/notebook"
)

type createNotebookRequest struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type renameNotebookRequest struct {
	Name string `json:"name"`
}

func (h *handler) createNotebook(w http.ResponseWriter, r *http.Request) {
	var req createNotebookRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" {
		jsonError(w, http.StatusBadRequest, "name is required")
		return
	}

	content := req.Content
	if content == "" {
		data, err := notebook.Serialize(notebook.EmptyDocument())
		if err != nil {
			jsonError(w, http.StatusInternalServerError, err.Error())
			return
		}
		content = string(data)
	}

	nb := &db.Notebook{Name: req.Name, Content: content}
	if err := h.notebookRepo.Create(r.Context(), nb); err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResponse(w, http.StatusCreated, nb)
}

func (h *handler) listNotebooks(w http.ResponseWriter, r *http.Request) {
	notebooks, err := h.notebookRepo.List(r.Context())
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, notebooks)
}

func (h *handler) getNotebook(w http.ResponseWriter, r *http.Request) {
	nb, err := h.notebookRepo.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, db.ErrNotFound) {
		jsonError(w, http.StatusNotFound, "notebook not found")
		return
	}
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, nb)
}

func (h *handler) renameNotebook(w http.ResponseWriter, r *http.Request) {
	var req renameNotebookRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" {
		jsonError(w, http.StatusBadRequest, "name cannot be empty")
		return
	}

	id := r.PathValue("id")
	if err := h.notebookRepo.Rename(r.Context(), id, req.Name); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			jsonError(w, http.StatusNotFound, "notebook not found")
			return
		}
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}

	nb, err := h.notebookRepo.Get(r.Context(), id)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, nb)
}

func (h *handler) deleteNotebook(w http.ResponseWriter, r *http.Request) {
	if err := h.notebookRepo.Delete(r.Context(), r.PathValue("id")); err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResponse(w, http.StatusNoContent, nil)
}

func (h *handler) openNotebook(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Open(r.Context(), r.PathValue("id"))
	if errors.Is(err, db.ErrNotFound) {
		jsonError(w, http.StatusNotFound, "notebook not found")
		return
	}
	if err != nil {
		jsonError(w, http.StatusBadGateway, err.Error())
		return
	}
	jsonResponse(w, http.StatusCreated, s.Info())
}
