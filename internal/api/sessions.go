package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ronylicha/agentctx-core/internal/apierr"
)

type createSessionRequest struct {
	ProjectID string `json:"project_id"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	limitRequestSize(r)
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.ProjectID == "" {
		respondError(w, apierr.Field("project_id", "required"))
		return
	}

	sess, err := s.db.StartSession(req.ProjectID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("project_id")
	if projectID == "" {
		respondError(w, apierr.Field("project_id", "required"))
		return
	}
	sessions, err := s.db.ListSessions(projectID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sess, err := s.db.SessionByID(id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

type patchSessionRequest struct {
	Ended bool `json:"ended"`
}

func (s *Server) handlePatchSession(w http.ResponseWriter, r *http.Request) {
	limitRequestSize(r)
	id := mux.Vars(r)["id"]
	var req patchSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if !req.Ended {
		respondError(w, apierr.Field("ended", "only {\"ended\": true} is supported"))
		return
	}

	sess, err := s.db.EndSession(id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleSessionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.SessionStats()
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}
