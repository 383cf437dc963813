package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ronylicha/agentctx-core/internal/apierr"
)

type createTaskListBody struct {
	RequestID string `json:"request_id"`
	Name      string `json:"name"`
}

func (s *Server) handleCreateTaskList(w http.ResponseWriter, r *http.Request) {
	limitRequestSize(r)
	var body createTaskListBody
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, err)
		return
	}
	if body.RequestID == "" {
		respondError(w, apierr.Field("request_id", "required"))
		return
	}
	if _, err := s.db.RequestByID(body.RequestID); err != nil {
		respondError(w, err)
		return
	}

	wave, err := s.db.CreateTaskList(body.RequestID, body.Name)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, wave)
}

func (s *Server) handleListTaskLists(w http.ResponseWriter, r *http.Request) {
	requestID := r.URL.Query().Get("request_id")
	if requestID == "" {
		respondError(w, apierr.Field("request_id", "required"))
		return
	}
	waves, err := s.db.ListTaskLists(requestID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, waves)
}

func (s *Server) handleGetTaskList(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	wave, err := s.db.TaskListByID(id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, wave)
}

type patchTaskListBody struct {
	Status string `json:"status"`
}

func (s *Server) handlePatchTaskList(w http.ResponseWriter, r *http.Request) {
	limitRequestSize(r)
	id := mux.Vars(r)["id"]
	var body patchTaskListBody
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, err)
		return
	}
	wave, err := s.db.AdvanceTaskListStatus(id, body.Status)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, wave)
}
