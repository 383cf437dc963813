package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ronylicha/agentctx-core/internal/apierr"
)

// AgentContext is the live, continuously-updated working state of one
// agent within a project (spec.md §3) — distinct from
// AgentContextSnapshot, which is a point-in-time archival copy taken
// at compact time (resolved Open Question, see SPEC_FULL.md §9).
type AgentContext struct {
	ID               string          `json:"id"`
	ProjectID        string          `json:"project_id"`
	AgentID          string          `json:"agent_id"`
	AgentCategory    string          `json:"agent_category"`
	RoleContext      json.RawMessage `json:"role_context"`
	SkillsToRestore  []string        `json:"skills_to_restore"`
	ToolsUsed        []string        `json:"tools_used"`
	ProgressSummary  string          `json:"progress_summary"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// UpsertAgentContext creates or replaces the live context for
// (projectID, agentID).
func (d *DB) UpsertAgentContext(projectID, agentID, agentCategory string, roleContext json.RawMessage, skillsToRestore, toolsUsed []string, progressSummary string) (*AgentContext, error) {
	if roleContext == nil {
		roleContext = json.RawMessage("{}")
	}
	if skillsToRestore == nil {
		skillsToRestore = []string{}
	}
	if toolsUsed == nil {
		toolsUsed = []string{}
	}
	skills, err := json.Marshal(skillsToRestore)
	if err != nil {
		return nil, err
	}
	tools, err := json.Marshal(toolsUsed)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	err = d.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO agent_contexts (id, project_id, agent_id, agent_category, role_context,
			                             skills_to_restore, tools_used, progress_summary)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(project_id, agent_id) DO UPDATE SET
			   agent_category = excluded.agent_category,
			   role_context = excluded.role_context,
			   skills_to_restore = excluded.skills_to_restore,
			   tools_used = excluded.tools_used,
			   progress_summary = excluded.progress_summary`,
			id, projectID, agentID, agentCategory, string(roleContext), string(skills), string(tools), progressSummary,
		)
		return err
	})
	if err != nil {
		return nil, err
	}
	return d.AgentContextByAgent(projectID, agentID)
}

// AgentContextByAgent fetches the live context for (projectID, agentID).
func (d *DB) AgentContextByAgent(projectID, agentID string) (*AgentContext, error) {
	row := d.conn.QueryRow(
		`SELECT id, project_id, agent_id, agent_category, role_context, skills_to_restore,
		        tools_used, progress_summary, updated_at
		 FROM agent_contexts WHERE project_id = ? AND agent_id = ?`, projectID, agentID,
	)
	return scanAgentContext(row)
}

// ListAgentContexts returns every agent context for a project.
func (d *DB) ListAgentContexts(projectID string) ([]*AgentContext, error) {
	rows, err := d.conn.Query(
		`SELECT id, project_id, agent_id, agent_category, role_context, skills_to_restore,
		        tools_used, progress_summary, updated_at
		 FROM agent_contexts WHERE project_id = ? ORDER BY updated_at DESC`, projectID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*AgentContext
	for rows.Next() {
		ac, err := scanAgentContext(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ac)
	}
	return out, rows.Err()
}

func scanAgentContext(row scannable) (*AgentContext, error) {
	var ac AgentContext
	var roleContext, skills, tools, updatedAt string
	err := row.Scan(&ac.ID, &ac.ProjectID, &ac.AgentID, &ac.AgentCategory, &roleContext,
		&skills, &tools, &ac.ProgressSummary, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, apierr.NotFound("agent_context", "")
	}
	if err != nil {
		return nil, err
	}
	ac.RoleContext = json.RawMessage(roleContext)
	if err := json.Unmarshal([]byte(skills), &ac.SkillsToRestore); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tools), &ac.ToolsUsed); err != nil {
		return nil, err
	}
	ac.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	return &ac, nil
}

// AgentContextSnapshot is an archival copy of the Brief Generator's
// compact-time state, preserved separately from the live
// AgentContext rows so the external /api/compact/* contract keeps
// returning a stable history even as agent_contexts continues to be
// overwritten in place.
type AgentContextSnapshot struct {
	ID              string          `json:"id"`
	ProjectID       string          `json:"project_id"`
	SessionID       string          `json:"session_id"`
	Trigger         string          `json:"trigger"`
	ActiveTasks     json.RawMessage `json:"active_tasks"`
	ModifiedFiles   json.RawMessage `json:"modified_files"`
	RecentDecisions json.RawMessage `json:"recent_decisions"`
	AgentStates     json.RawMessage `json:"agent_states"`
	Summary         string          `json:"summary"`
	RecentMessages  json.RawMessage `json:"recent_messages"`
	CreatedAt       time.Time       `json:"created_at"`
}

func validSnapshotTrigger(t string) bool {
	switch t {
	case "auto", "manual", "proactive":
		return true
	}
	return false
}

// SaveSnapshot archives a compact-time snapshot. trigger must be one
// of auto, manual, proactive.
func (d *DB) SaveSnapshot(s *AgentContextSnapshot) (*AgentContextSnapshot, error) {
	if !validSnapshotTrigger(s.Trigger) {
		return nil, apierr.Field("trigger", "must be one of auto, manual, proactive")
	}
	for _, raw := range []*json.RawMessage{&s.ActiveTasks, &s.ModifiedFiles, &s.RecentDecisions, &s.AgentStates, &s.RecentMessages} {
		if *raw == nil {
			*raw = json.RawMessage("[]")
		}
	}

	id := uuid.New().String()
	err := d.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO agent_context_snapshots (id, project_id, session_id, trigger, active_tasks,
			                                      modified_files, recent_decisions, agent_states, summary, recent_messages)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, s.ProjectID, s.SessionID, s.Trigger, string(s.ActiveTasks), string(s.ModifiedFiles),
			string(s.RecentDecisions), string(s.AgentStates), s.Summary, string(s.RecentMessages),
		)
		return err
	})
	if err != nil {
		return nil, err
	}
	return d.SnapshotByID(id)
}

// SnapshotByID fetches a snapshot by id.
func (d *DB) SnapshotByID(id string) (*AgentContextSnapshot, error) {
	row := d.conn.QueryRow(
		`SELECT id, project_id, session_id, trigger, active_tasks, modified_files, recent_decisions,
		        agent_states, summary, recent_messages, created_at
		 FROM agent_context_snapshots WHERE id = ?`, id,
	)
	return scanSnapshot(row)
}

// LatestSnapshotForSession returns the most recent snapshot taken
// during sessionID, used by the external /api/compact/restore
// contract.
func (d *DB) LatestSnapshotForSession(sessionID string) (*AgentContextSnapshot, error) {
	row := d.conn.QueryRow(
		`SELECT id, project_id, session_id, trigger, active_tasks, modified_files, recent_decisions,
		        agent_states, summary, recent_messages, created_at
		 FROM agent_context_snapshots WHERE session_id = ? ORDER BY created_at DESC LIMIT 1`, sessionID,
	)
	return scanSnapshot(row)
}

// PurgeSnapshotsOlderThan deletes snapshots older than cutoff, used by
// the periodic snapshot-age-out worker.
func (d *DB) PurgeSnapshotsOlderThan(cutoff time.Time) (int64, error) {
	var n int64
	err := d.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`DELETE FROM agent_context_snapshots WHERE created_at <= ?`, cutoff.UTC().Format(timeLayout))
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

func scanSnapshot(row scannable) (*AgentContextSnapshot, error) {
	var s AgentContextSnapshot
	var activeTasks, modifiedFiles, recentDecisions, agentStates, recentMessages, createdAt string
	err := row.Scan(&s.ID, &s.ProjectID, &s.SessionID, &s.Trigger, &activeTasks, &modifiedFiles,
		&recentDecisions, &agentStates, &s.Summary, &recentMessages, &createdAt)
	if err == sql.ErrNoRows {
		return nil, apierr.NotFound("agent_context_snapshot", "")
	}
	if err != nil {
		return nil, err
	}
	s.ActiveTasks = json.RawMessage(activeTasks)
	s.ModifiedFiles = json.RawMessage(modifiedFiles)
	s.RecentDecisions = json.RawMessage(recentDecisions)
	s.AgentStates = json.RawMessage(agentStates)
	s.RecentMessages = json.RawMessage(recentMessages)
	s.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	return &s, nil
}
