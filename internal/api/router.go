package api

import (
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/user/floatlab/internal/db"
	"github.com/user/floatlab/internal/session"
)

type handler struct {
	notebookRepo *db.NotebookRepo
	sessions     *session.Manager
}

func NewRouter(conn *sql.DB, sessions *session.Manager, token string) http.Handler {
	handler := &handler{
		notebookRepo: db.NewNotebookRepo(conn),
		sessions:     sessions,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/notebooks", handler.createNotebook)
	mux.HandleFunc("GET /api/notebooks", handler.listNotebooks)
	mux.HandleFunc("GET /api/notebooks/{id}", handler.getNotebook)
	mux.HandleFunc("PUT /api/notebooks/{id}", handler.renameNotebook)
	mux.HandleFunc("DELETE /api/notebooks/{id}", handler.deleteNotebook)
	mux.HandleFunc("POST /api/notebooks/{id}/open", handler.openNotebook)

	mux.HandleFunc("GET /api/sessions", handler.listSessions)
	mux.HandleFunc("GET /api/sessions/{id}", handler.getSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", handler.closeSession)
	mux.HandleFunc("POST /api/sessions/{id}/save", handler.saveSession)
	mux.HandleFunc("POST /api/sessions/{id}/execute", handler.executeWindow)
	mux.HandleFunc("POST /api/sessions/{id}/kernel/interrupt", handler.interruptKernel)
	mux.HandleFunc("POST /api/sessions/{id}/kernel/restart", handler.restartKernel)

	mux.HandleFunc("GET /api/sessions/{id}/windows", handler.listWindows)
	mux.HandleFunc("POST /api/sessions/{id}/windows", handler.createWindow)
	mux.HandleFunc("PATCH /api/sessions/{id}/windows/{wid}", handler.updateWindow)
	mux.HandleFunc("DELETE /api/sessions/{id}/windows/{wid}", handler.closeWindow)

	mux.HandleFunc("POST /api/render/markdown", handler.renderMarkdown)

	wrapped := authMiddleware(token)(jsonMiddleware(corsMiddleware(mux)))
	return wrapped
}

func authMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
			if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
				if strings.TrimSpace(authHeader[7:]) == token {
					next.ServeHTTP(w, r)
					return
				}
			}

			if r.URL.Query().Get("token") == token {
				next.ServeHTTP(w, r)
				return
			}

			jsonError(w, http.StatusUnauthorized, "unauthorized")
		})
	}
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,PUT,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization,Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return io.ErrUnexpectedEOF
	}
	return nil
}
