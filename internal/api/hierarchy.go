package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

func (s *Server) handleHierarchy(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["projectID"]

	if r.URL.Query().Get("nested") == "true" {
		proj, requests, err := s.db.NestedHierarchy(projectID)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"project": proj, "requests": requests})
		return
	}

	h, err := s.db.ProjectHierarchy(projectID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h)
}

func (s *Server) handleActiveSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.db.ActiveSessions()
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sessions)
}
