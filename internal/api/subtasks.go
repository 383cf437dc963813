package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ronylicha/agentctx-core/internal/apierr"
	"github.com/ronylicha/agentctx-core/internal/store"
)

type createSubtaskBody struct {
	TaskListID    string   `json:"task_list_id"`
	AgentCategory string   `json:"agent_category"`
	AgentInstance string   `json:"agent_instance"`
	Description   string   `json:"description"`
	BlockingDeps  []string `json:"blocking_deps"`
}

func (s *Server) handleCreateSubtask(w http.ResponseWriter, r *http.Request) {
	limitRequestSize(r)
	var body createSubtaskBody
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, err)
		return
	}
	if body.TaskListID == "" || body.AgentCategory == "" || body.AgentInstance == "" {
		respondError(w, apierr.Validation("missing required fields", map[string]string{
			"task_list_id": "required", "agent_category": "required", "agent_instance": "required",
		}))
		return
	}
	if _, err := s.db.TaskListByID(body.TaskListID); err != nil {
		respondError(w, err)
		return
	}

	sub, err := s.db.CreateSubtask(body.TaskListID, body.AgentCategory, body.AgentInstance, body.Description, body.BlockingDeps)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, sub)
}

func (s *Server) handleListSubtasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if taskListID := q.Get("task_list_id"); taskListID != "" {
		subs, err := s.db.ListSubtasksByTaskList(taskListID)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, subs)
		return
	}
	category, instance := q.Get("agent_category"), q.Get("agent_instance")
	if category != "" && instance != "" {
		subs, err := s.db.ListSubtasksByAgent(category, instance)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, subs)
		return
	}
	respondError(w, apierr.Validation("provide task_list_id, or agent_category and agent_instance", nil))
}

func (s *Server) handleGetSubtask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sub, err := s.db.SubtaskByID(id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sub)
}

type patchSubtaskBody struct {
	Status string          `json:"status"`
	Result json.RawMessage `json:"result"`
}

func (s *Server) handlePatchSubtask(w http.ResponseWriter, r *http.Request) {
	limitRequestSize(r)
	id := mux.Vars(r)["id"]
	var body patchSubtaskBody
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, err)
		return
	}
	if body.Status == "" {
		respondError(w, apierr.Field("status", "required"))
		return
	}

	sub, err := s.db.TransitionSubtask(id, store.SubtaskStatus(body.Status))
	if err != nil {
		respondError(w, err)
		return
	}
	if body.Result != nil {
		if err := s.db.SetSubtaskResult(id, body.Result); err != nil {
			respondError(w, err)
			return
		}
		sub, err = s.db.SubtaskByID(id)
		if err != nil {
			respondError(w, err)
			return
		}
	}
	respondJSON(w, http.StatusOK, sub)
}
