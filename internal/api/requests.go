package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ronylicha/agentctx-core/internal/apierr"
	"github.com/ronylicha/agentctx-core/internal/store"
)

type createRequestBody struct {
	ProjectID string                `json:"project_id"`
	SessionID string                `json:"session_id"`
	Prompt    string                `json:"prompt"`
	Category  store.RequestCategory `json:"category"`
	Metadata  json.RawMessage       `json:"metadata"`
}

func (s *Server) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	limitRequestSize(r)
	var req createRequestBody
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.ProjectID == "" || req.SessionID == "" || req.Prompt == "" {
		respondError(w, apierr.Validation("missing required fields", map[string]string{
			"project_id": "required", "session_id": "required", "prompt": "required",
		}))
		return
	}
	if _, err := s.db.ProjectByID(req.ProjectID); err != nil {
		respondError(w, err)
		return
	}

	created, err := s.db.CreateRequest(req.ProjectID, req.SessionID, req.Prompt, req.Category, req.Metadata)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		respondError(w, apierr.Field("session_id", "required"))
		return
	}
	reqs, err := s.db.ListRequestsBySession(sessionID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, reqs)
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	req, err := s.db.RequestByID(id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, req)
}

type patchRequestBody struct {
	Status string `json:"status"`
}

func (s *Server) handlePatchRequest(w http.ResponseWriter, r *http.Request) {
	limitRequestSize(r)
	id := mux.Vars(r)["id"]
	var body patchRequestBody
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, err)
		return
	}
	if body.Status != "completed" {
		respondError(w, apierr.Field("status", "only \"completed\" is supported"))
		return
	}

	req, err := s.db.CompleteRequest(id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, req)
}
