package api

import (
	"net/http"

	"github.com/user/floatlab/internal/render"
)

type renderRequest struct {
	Source string `json:"source"`
}

type renderResponse struct {
	HTML string `json:"html"`
}

func (h *handler) renderMarkdown(w http.ResponseWriter, r *http.Request) {
	var req renderRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	html, err := render.Markdown(req.Source)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, renderResponse{HTML: html})
}
