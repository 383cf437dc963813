package api

import (
	"net/http"
	"strings"

	"github.com/ronylicha/agentctx-core/internal/apierr"
	"github.com/ronylicha/agentctx-core/internal/store"
)

func (s *Server) handleRoutingSuggest(w http.ResponseWriter, r *http.Request) {
	csv := r.URL.Query().Get("keywords")
	if csv == "" {
		respondError(w, apierr.Field("keywords", "required"))
		return
	}
	var keywords []string
	for _, kw := range strings.Split(csv, ",") {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			keywords = append(keywords, kw)
		}
	}
	if len(keywords) == 0 {
		respondJSON(w, http.StatusOK, []any{})
		return
	}
	limit := queryInt(r, "limit", 5)
	scores, err := s.db.RankToolsForKeywords(keywords, limit)
	if err != nil {
		respondError(w, err)
		return
	}
	if toolType := r.URL.Query().Get("tool_type"); toolType != "" {
		filtered := make([]*store.RoutingScore, 0, len(scores))
		for _, sc := range scores {
			if sc.ToolCategory == toolType {
				filtered = append(filtered, sc)
			}
		}
		respondJSON(w, http.StatusOK, filtered)
		return
	}
	respondJSON(w, http.StatusOK, scores)
}

func (s *Server) handleRoutingStats(w http.ResponseWriter, r *http.Request) {
	keyword := r.URL.Query().Get("keyword")
	if keyword == "" {
		respondError(w, apierr.Field("keyword", "required"))
		return
	}
	scores, err := s.db.RankToolsForKeyword(keyword, queryInt(r, "limit", 10))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, scores)
}

type routingFeedbackBody struct {
	Keyword      string `json:"keyword"`
	ToolName     string `json:"tool_name"`
	ToolCategory string `json:"tool_category"`
	Success      bool   `json:"success"`
}

func (s *Server) handleRoutingFeedback(w http.ResponseWriter, r *http.Request) {
	limitRequestSize(r)
	var body routingFeedbackBody
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, err)
		return
	}
	if body.Keyword == "" || body.ToolName == "" {
		respondError(w, apierr.Validation("missing required fields", map[string]string{
			"keyword": "required", "tool_name": "required",
		}))
		return
	}
	if err := s.db.RecordRoutingOutcome(body.Keyword, body.ToolName, body.ToolCategory, body.Success); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
