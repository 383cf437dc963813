package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ronylicha/agentctx-core/internal/apierr"
)

func (s *Server) handleAgentContext(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["agentID"]
	projectID := r.URL.Query().Get("project_id")
	if projectID == "" {
		respondError(w, apierr.Field("project_id", "required"))
		return
	}
	ctx, err := s.db.AgentContextByAgent(projectID, agentID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ctx)
}

type generateBriefBody struct {
	ProjectID     string `json:"project_id"`
	SessionID     string `json:"session_id"`
	AgentID       string `json:"agent_id"`
	AgentCategory string `json:"agent_category"`
	MaxTokens     int    `json:"max_tokens"`
}

func (s *Server) handleGenerateBrief(w http.ResponseWriter, r *http.Request) {
	limitRequestSize(r)
	var body generateBriefBody
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, err)
		return
	}
	if body.ProjectID == "" || body.SessionID == "" || body.AgentID == "" || body.AgentCategory == "" {
		respondError(w, apierr.Validation("missing required fields", map[string]string{
			"project_id": "required", "session_id": "required",
			"agent_id": "required", "agent_category": "required",
		}))
		return
	}

	b, err := s.briefGen.GenerateBrief(body.ProjectID, body.SessionID, body.AgentCategory, body.AgentID, body.MaxTokens)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, b)
}

type compactSaveBody struct {
	ProjectID string `json:"project_id"`
	SessionID string `json:"session_id"`
	Trigger   string `json:"trigger"`
}

func (s *Server) handleCompactSave(w http.ResponseWriter, r *http.Request) {
	limitRequestSize(r)
	var body compactSaveBody
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, err)
		return
	}
	if body.ProjectID == "" || body.SessionID == "" {
		respondError(w, apierr.Validation("missing required fields", map[string]string{
			"project_id": "required", "session_id": "required",
		}))
		return
	}
	if body.Trigger == "" {
		body.Trigger = "manual"
	}

	snap, err := s.briefGen.Save(body.ProjectID, body.SessionID, body.Trigger)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, snap)
}

type compactRestoreBody struct {
	ProjectID     string `json:"project_id"`
	SessionID     string `json:"session_id"`
	AgentID       string `json:"agent_id"`
	AgentCategory string `json:"agent_category"`
	MaxTokens     int    `json:"max_tokens"`
}

func (s *Server) handleCompactRestore(w http.ResponseWriter, r *http.Request) {
	limitRequestSize(r)
	var body compactRestoreBody
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, err)
		return
	}
	if body.ProjectID == "" || body.SessionID == "" {
		respondError(w, apierr.Validation("missing required fields", map[string]string{
			"project_id": "required", "session_id": "required",
		}))
		return
	}

	b, snap, err := s.briefGen.Restore(body.ProjectID, body.SessionID, body.AgentCategory, body.AgentID, body.MaxTokens)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"brief": b, "snapshot": snap})
}

func (s *Server) handleCompactStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionID"]
	snap, err := s.db.LatestSnapshotForSession(sessionID)
	if err != nil {
		if errors.Is(err, apierr.ErrNotFound) {
			respondJSON(w, http.StatusOK, map[string]bool{"has_snapshot": false})
			return
		}
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"has_snapshot": true, "trigger": snap.Trigger, "created_at": snap.CreatedAt})
}

func (s *Server) handleCompactSnapshot(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionID"]
	snap, err := s.db.LatestSnapshotForSession(sessionID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}
