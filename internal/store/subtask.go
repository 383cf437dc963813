package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ronylicha/agentctx-core/internal/apierr"
)

// SubtaskStatus is the closed lifecycle from spec.md §3.
type SubtaskStatus string

const (
	SubtaskPending   SubtaskStatus = "pending"
	SubtaskRunning   SubtaskStatus = "running"
	SubtaskPaused    SubtaskStatus = "paused"
	SubtaskBlocked   SubtaskStatus = "blocked"
	SubtaskCompleted SubtaskStatus = "completed"
	SubtaskFailed    SubtaskStatus = "failed"
)

var subtaskTransitions = map[SubtaskStatus]map[SubtaskStatus]bool{
	SubtaskPending: {SubtaskRunning: true, SubtaskBlocked: true, SubtaskFailed: true},
	SubtaskRunning: {SubtaskPaused: true, SubtaskBlocked: true, SubtaskCompleted: true, SubtaskFailed: true},
	SubtaskPaused:  {SubtaskRunning: true, SubtaskFailed: true},
	SubtaskBlocked: {SubtaskPending: true, SubtaskRunning: true, SubtaskFailed: true},
}

// Subtask is one unit of agent work within a wave.
type Subtask struct {
	ID              string          `json:"id"`
	TaskListID      string          `json:"task_list_id"`
	AgentCategory   string          `json:"agent_category"`
	AgentInstance   string          `json:"agent_instance"`
	Description     string          `json:"description"`
	Status          SubtaskStatus   `json:"status"`
	BlockingDeps    []string        `json:"blocking_deps"`
	ContextSnapshot json.RawMessage `json:"context_snapshot"`
	Result          json.RawMessage `json:"result"`
	CreatedAt       time.Time       `json:"created_at"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

// CreateSubtask adds a subtask to a wave. blockingDeps names sibling
// subtask ids that must complete before this one is eligible to run;
// it is not validated against the deps' own task_list_id, matching
// spec.md's allowance for cross-wave dependencies.
func (d *DB) CreateSubtask(taskListID, agentCategory, agentInstance, description string, blockingDeps []string) (*Subtask, error) {
	if blockingDeps == nil {
		blockingDeps = []string{}
	}
	deps, err := json.Marshal(blockingDeps)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	status := SubtaskPending
	if len(blockingDeps) > 0 {
		status = SubtaskBlocked
	}
	err = d.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO subtasks (id, task_list_id, agent_category, agent_instance, description, status, blocking_deps)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, taskListID, agentCategory, agentInstance, description, string(status), string(deps),
		)
		return err
	})
	if err != nil {
		return nil, err
	}
	d.wake.Publish(WakeEnvelope{Kind: "subtask", Action: "created", ID: id, At: nowRFC3339()})
	return d.SubtaskByID(id)
}

// TransitionSubtask applies a status change, rejecting transitions not
// in subtaskTransitions.
func (d *DB) TransitionSubtask(id string, to SubtaskStatus) (*Subtask, error) {
	cur, err := d.SubtaskByID(id)
	if err != nil {
		return nil, err
	}
	if !subtaskTransitions[cur.Status][to] {
		return nil, apierr.Conflict("invalid subtask transition from " + string(cur.Status) + " to " + string(to))
	}

	now := nowRFC3339()
	err = d.withTx(func(tx *sql.Tx) error {
		switch to {
		case SubtaskRunning:
			if cur.StartedAt == nil {
				_, err := tx.Exec(`UPDATE subtasks SET status = ?, started_at = ? WHERE id = ?`, to, now, id)
				return err
			}
			_, err := tx.Exec(`UPDATE subtasks SET status = ? WHERE id = ?`, to, id)
			return err
		case SubtaskCompleted, SubtaskFailed:
			_, err := tx.Exec(`UPDATE subtasks SET status = ?, completed_at = ? WHERE id = ?`, to, now, id)
			return err
		default:
			_, err := tx.Exec(`UPDATE subtasks SET status = ? WHERE id = ?`, to, id)
			return err
		}
	})
	if err != nil {
		return nil, err
	}
	d.wake.Publish(WakeEnvelope{Kind: "subtask", Action: "updated", ID: id, At: nowRFC3339()})
	return d.SubtaskByID(id)
}

// SetSubtaskResult stores the final payload of a completed or failed
// subtask.
func (d *DB) SetSubtaskResult(id string, result json.RawMessage) error {
	if result == nil {
		result = json.RawMessage("{}")
	}
	return d.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE subtasks SET result = ? WHERE id = ?`, string(result), id)
		return err
	})
}

// DependenciesSatisfied reports whether every subtask named in
// BlockingDeps has completed.
func (d *DB) DependenciesSatisfied(s *Subtask) (bool, error) {
	for _, depID := range s.BlockingDeps {
		dep, err := d.SubtaskByID(depID)
		if err != nil {
			return false, err
		}
		if dep.Status != SubtaskCompleted {
			return false, nil
		}
	}
	return true, nil
}

// SubtaskByID fetches a subtask by id.
func (d *DB) SubtaskByID(id string) (*Subtask, error) {
	row := d.conn.QueryRow(
		`SELECT id, task_list_id, agent_category, agent_instance, description, status,
		        blocking_deps, context_snapshot, result, created_at, started_at, completed_at
		 FROM subtasks WHERE id = ?`, id,
	)
	return scanSubtask(row)
}

// ListSubtasksByTaskList returns every subtask in a wave, oldest first.
func (d *DB) ListSubtasksByTaskList(taskListID string) ([]*Subtask, error) {
	rows, err := d.conn.Query(
		`SELECT id, task_list_id, agent_category, agent_instance, description, status,
		        blocking_deps, context_snapshot, result, created_at, started_at, completed_at
		 FROM subtasks WHERE task_list_id = ? ORDER BY created_at ASC`, taskListID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Subtask
	for rows.Next() {
		s, err := scanSubtask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListSubtasksByAgent returns every subtask assigned to an
// (agentCategory, agentInstance) pair, most recently created first.
func (d *DB) ListSubtasksByAgent(agentCategory, agentInstance string) ([]*Subtask, error) {
	rows, err := d.conn.Query(
		`SELECT id, task_list_id, agent_category, agent_instance, description, status,
		        blocking_deps, context_snapshot, result, created_at, started_at, completed_at
		 FROM subtasks WHERE agent_category = ? AND agent_instance = ? ORDER BY created_at DESC`,
		agentCategory, agentInstance,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Subtask
	for rows.Next() {
		s, err := scanSubtask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSubtask(row scannable) (*Subtask, error) {
	var s Subtask
	var status, blockingDeps, contextSnapshot, result, createdAt string
	var startedAt, completedAt sql.NullString
	err := row.Scan(&s.ID, &s.TaskListID, &s.AgentCategory, &s.AgentInstance, &s.Description, &status,
		&blockingDeps, &contextSnapshot, &result, &createdAt, &startedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, apierr.NotFound("subtask", "")
	}
	if err != nil {
		return nil, err
	}
	s.Status = SubtaskStatus(status)
	if err := json.Unmarshal([]byte(blockingDeps), &s.BlockingDeps); err != nil {
		return nil, err
	}
	s.ContextSnapshot = json.RawMessage(contextSnapshot)
	s.Result = json.RawMessage(result)
	s.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	if startedAt.Valid {
		t, _ := time.Parse(timeLayout, startedAt.String)
		s.StartedAt = &t
	}
	if completedAt.Valid {
		t, _ := time.Parse(timeLayout, completedAt.String)
		s.CompletedAt = &t
	}
	return &s, nil
}
