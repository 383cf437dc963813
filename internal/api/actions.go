package api

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/ronylicha/agentctx-core/internal/apierr"
	"github.com/ronylicha/agentctx-core/internal/store"
)

type createActionBody struct {
	SubtaskID     string           `json:"subtask_id"`
	ToolName      string           `json:"tool_name"`
	ToolCategory  store.ToolCategory `json:"tool_category"`
	Input         string           `json:"input"`
	Output        string           `json:"output"`
	AffectedPaths []string         `json:"affected_paths"`
	ExitCode      int              `json:"exit_code"`
	DurationMS    int              `json:"duration_ms"`
	Metadata      json.RawMessage  `json:"metadata"`
}

func (s *Server) handleCreateAction(w http.ResponseWriter, r *http.Request) {
	limitRequestSize(r)
	var body createActionBody
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, err)
		return
	}
	if body.ToolName == "" {
		respondError(w, apierr.Field("tool_name", "required"))
		return
	}

	input, err := decodeBlobField("input", body.Input)
	if err != nil {
		respondError(w, err)
		return
	}
	output, err := decodeBlobField("output", body.Output)
	if err != nil {
		respondError(w, err)
		return
	}

	act, err := s.db.RecordAction(body.SubtaskID, body.ToolName, body.ToolCategory, input, output,
		body.AffectedPaths, body.ExitCode, body.DurationMS, body.Metadata)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, actionResponse(act))
}

func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	subtaskID := r.URL.Query().Get("subtask_id")
	if subtaskID == "" {
		respondError(w, apierr.Field("subtask_id", "required"))
		return
	}
	actions, err := s.db.ListActionsBySubtask(subtaskID)
	if err != nil {
		respondError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(actions))
	for _, a := range actions {
		out = append(out, actionResponse(a))
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleActionsHourly(w http.ResponseWriter, r *http.Request) {
	hours := queryInt(r, "hours", 24)
	buckets, err := s.db.ActionsHourly(hours)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, buckets)
}

func decodeBlobField(field, encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, nil
	}
	b, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, apierr.Field(field, "must be base64-encoded")
	}
	return b, nil
}

// actionResponse re-encodes an Action's decompressed blobs as base64
// for JSON transport.
func actionResponse(a *store.Action) map[string]any {
	return map[string]any{
		"id":             a.ID,
		"subtask_id":     a.SubtaskID,
		"tool_name":      a.ToolName,
		"tool_category":  a.ToolCategory,
		"input":          base64.StdEncoding.EncodeToString(a.Input),
		"output":         base64.StdEncoding.EncodeToString(a.Output),
		"affected_paths": a.AffectedPaths,
		"exit_code":      a.ExitCode,
		"duration_ms":    a.DurationMS,
		"metadata":       a.Metadata,
		"created_at":     a.CreatedAt,
	}
}
