package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ronylicha/agentctx-core/internal/apierr"
)

type createProjectRequest struct {
	Path     string          `json:"path"`
	Name     string          `json:"name"`
	Metadata json.RawMessage `json:"metadata"`
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	limitRequestSize(r)
	var req createProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.Path == "" {
		respondError(w, apierr.Field("path", "required"))
		return
	}

	p, err := s.db.CreateProject(req.Path, req.Name, req.Metadata)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.db.ListProjects()
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, projects)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	p, err := s.db.ProjectByID(id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleProjectByPath(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		respondError(w, apierr.Field("path", "required"))
		return
	}
	p, err := s.db.ProjectByPath(path)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}
