package api

import (
	"net/http"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ronylicha/agentctx-core/internal/apierr"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok", "mode": s.cfg.Mode}
	if err := s.db.Ping(); err != nil {
		_ = s.banner.ShowCriticalAlert("database unreachable: " + err.Error())
		body["status"] = "degraded"
		body["database"] = "unreachable"
		body["banner"] = s.banner.GetState()
		respondJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	_ = s.banner.Clear()
	body["database"] = "ok"
	if s.banner.IsVisible() {
		body["banner"] = s.banner.GetState()
	}
	respondJSON(w, http.StatusOK, body)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.db.Stats()
	if err != nil {
		respondError(w, err)
		return
	}
	body := map[string]any{"counts": counts}
	if fi, err := os.Stat(s.db.Path()); err == nil {
		body["database_size"] = humanize.Bytes(uint64(fi.Size()))
		body["database_size_bytes"] = fi.Size()
	}
	respondJSON(w, http.StatusOK, body)
}

func (s *Server) handleToolsSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.db.ToolsSummary()
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (s *Server) handleCleanupStats(w http.ResponseWriter, r *http.Request) {
	staleCutoff := time.Now().UTC().Add(-time.Duration(s.cfg.StaleSessionHours * float64(time.Hour)))
	snapshotCutoff := time.Now().UTC().Add(-time.Duration(s.cfg.SnapshotMaxHours * float64(time.Hour)))
	stats, err := s.db.CleanupStats(staleCutoff, snapshotCutoff)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"stale_session_cutoff":   humanize.Time(staleCutoff),
		"snapshot_max_age_cutoff": humanize.Time(snapshotCutoff),
		"cleanup":                stats,
	})
}

type authTokenBody struct {
	AgentID   string `json:"agent_id"`
	SessionID string `json:"session_id"`
}

// handleAuthToken issues bearer tokens, rate-limited to ten requests
// per fifteen-minute window per source IP (spec.md §5).
func (s *Server) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	limitRequestSize(r)
	if !s.tokens.Allow(sourceIP(r)) {
		respondError(w, apierr.RateLimited("too many token requests, try again later"))
		return
	}

	var body authTokenBody
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, err)
		return
	}
	if body.AgentID == "" {
		respondError(w, apierr.Field("agent_id", "required"))
		return
	}

	token, err := GenerateToken(s.cfg.AuthSecret, body.AgentID, body.SessionID)
	if err != nil {
		respondError(w, apierr.Dependency("generate token", err))
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"token": token})
}
