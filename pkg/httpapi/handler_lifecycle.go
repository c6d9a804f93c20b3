package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleLifecycleDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entries, err := s.Sink.ByDocumentID(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": filterToAuthorizedProjects(r, entries)})
}

func (s *Server) handleLifecycleFile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	entries, err := s.Sink.ByFileName(name)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": filterToAuthorizedProjects(r, entries)})
}

func (s *Server) handleLifecycleHash(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	entries, err := s.Sink.ByContentHash(hash)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": filterToAuthorizedProjects(r, entries)})
}
