package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ronylicha/agentctx-core/internal/brief"
	"github.com/ronylicha/agentctx-core/internal/config"
	"github.com/ronylicha/agentctx-core/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.DB) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(dbPath, 5, 0)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{Mode: config.ModeDevelopment, MessageTTLSeconds: 3600}
	return New(db, cfg, config.DefaultCatalog(), brief.New(db)), db
}

func do(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

// TestFullIngestionFlow walks the write path spec.md §4.2 describes end
// to end: project -> session -> request -> task list -> subtask ->
// action -> message, confirming each handler both persists through the
// store and returns the shape the next step in the chain needs.
func TestFullIngestionFlow(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/projects", map[string]string{
		"path": "/repo/flow", "name": "flow-repo",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var project struct {
		ID string `json:"id"`
	}
	decodeBody(t, rec, &project)
	require.NotEmpty(t, project.ID)

	rec = do(t, s, http.MethodPost, "/api/sessions", map[string]string{"project_id": project.ID})
	require.Equal(t, http.StatusCreated, rec.Code)
	var session struct {
		ID string `json:"id"`
	}
	decodeBody(t, rec, &session)
	require.NotEmpty(t, session.ID)

	rec = do(t, s, http.MethodPost, "/api/requests", map[string]string{
		"project_id": project.ID, "session_id": session.ID, "prompt": "add a retry", "category": "feature",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var request struct {
		ID string `json:"id"`
	}
	decodeBody(t, rec, &request)
	require.NotEmpty(t, request.ID)

	rec = do(t, s, http.MethodPost, "/api/tasks", map[string]string{
		"request_id": request.ID, "name": "wave-1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var taskList struct {
		ID string `json:"id"`
	}
	decodeBody(t, rec, &taskList)
	require.NotEmpty(t, taskList.ID)

	rec = do(t, s, http.MethodPost, "/api/subtasks", map[string]interface{}{
		"task_list_id": taskList.ID, "agent_category": "backend", "agent_instance": "backend-1", "description": "wire the retry",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var subtask struct {
		ID string `json:"id"`
	}
	decodeBody(t, rec, &subtask)
	require.NotEmpty(t, subtask.ID)

	rec = do(t, s, http.MethodPost, "/api/actions", map[string]interface{}{
		"subtask_id": subtask.ID, "tool_name": "edit_file", "tool_category": "builtin", "exit_code": 0,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/messages", map[string]interface{}{
		"project_id": project.ID, "sender_agent_id": "backend-1", "topic": "build_failed", "category": "info",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/hierarchy/"+project.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateProjectRejectsMissingPath(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodPost, "/api/projects", map[string]string{"name": "no-path"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetUnknownProjectReturnsNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/api/projects/does-not-exist", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndStatsAreUnauthenticatedEvenOutsideDevMode(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"), 5, 0)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{Mode: config.ModeProduction, AuthSecret: "production-secret-padded-to-32-bytes!!"}
	s := New(db, cfg, config.DefaultCatalog(), brief.New(db))

	rec := do(t, s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/projects", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code, "production mode must require a bearer token on /api routes")
}

func TestSecurityHeadersAreAlwaysSet(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/health", nil)
	require.Equal(t, "agentctx", rec.Header().Get("Server"))
	require.Empty(t, rec.Header().Get("X-Powered-By"))
}

func TestCreateRequestRequiresKnownProject(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodPost, "/api/requests", map[string]string{
		"project_id": "missing-project", "session_id": "sess-1", "prompt": "do a thing",
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMessageTTLDefaultsFromConfigWhenUnset(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/projects", map[string]string{"path": "/repo/ttl", "name": "ttl-repo"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var project struct {
		ID string `json:"id"`
	}
	decodeBody(t, rec, &project)

	rec = do(t, s, http.MethodPost, "/api/messages", map[string]interface{}{
		"project_id": project.ID, "topic": "build_failed", "category": "info",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var msg struct {
		ExpiresAt string `json:"expires_at"`
	}
	decodeBody(t, rec, &msg)
	require.NotEmpty(t, msg.ExpiresAt)
}

func TestSendMessageRejectsTopicOutsideCatalog(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodPost, "/api/projects", map[string]string{"path": "/repo/badtopic", "name": "badtopic-repo"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var project struct {
		ID string `json:"id"`
	}
	decodeBody(t, rec, &project)

	rec = do(t, s, http.MethodPost, "/api/messages", map[string]interface{}{
		"project_id": project.ID, "topic": "not_a_real_topic", "category": "info",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteSubscriptionByIDRemovesRowAndRejectsUnknownID(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/subscribe", map[string]string{
		"agent_id": "agent-1", "topic": "build_failed",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var sub struct {
		ID string `json:"id"`
	}
	decodeBody(t, rec, &sub)
	require.NotEmpty(t, sub.ID)

	rec = do(t, s, http.MethodDelete, "/api/subscriptions/"+sub.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodDelete, "/api/subscriptions/"+sub.ID, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteBlockingByIDRemovesRowAndRejectsUnknownID(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/blocking", map[string]string{
		"blocker_id": "agent-1", "blocked_id": "agent-2", "reason": "waiting on review",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var blocking struct {
		ID string `json:"id"`
	}
	decodeBody(t, rec, &blocking)
	require.NotEmpty(t, blocking.ID)

	rec = do(t, s, http.MethodDelete, "/api/blocking/"+blocking.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodDelete, "/api/blocking/"+blocking.ID, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnknownRouteIsNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/api/does-not-exist", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
