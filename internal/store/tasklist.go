package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/ronylicha/agentctx-core/internal/apierr"
)

// TaskList is a wave: an ordered batch of subtasks scheduled together
// within a Request (spec.md §3). wave_number is unique per request and
// increases monotonically; it is the ordering the Brief Generator and
// the hierarchy endpoint walk.
type TaskList struct {
	ID         string    `json:"id"`
	RequestID  string    `json:"request_id"`
	Name       string    `json:"name"`
	WaveNumber int       `json:"wave_number"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CreateTaskList appends the next wave to requestID. The wave number
// is assigned as one past the highest existing wave for that request
// (starting at 1), so callers never race on an explicit number.
func (d *DB) CreateTaskList(requestID, name string) (*TaskList, error) {
	id := uuid.New().String()
	err := d.withTx(func(tx *sql.Tx) error {
		var maxWave sql.NullInt64
		if err := tx.QueryRow(
			`SELECT MAX(wave_number) FROM task_lists WHERE request_id = ?`, requestID,
		).Scan(&maxWave); err != nil {
			return err
		}
		next := int64(1)
		if maxWave.Valid {
			next = maxWave.Int64 + 1
		}
		_, err := tx.Exec(
			`INSERT INTO task_lists (id, request_id, name, wave_number) VALUES (?, ?, ?, ?)`,
			id, requestID, name, next,
		)
		return err
	})
	if err != nil {
		return nil, err
	}
	d.wake.Publish(WakeEnvelope{Kind: "task_list", Action: "created", ID: id, At: nowRFC3339()})
	return d.TaskListByID(id)
}

// AdvanceTaskListStatus transitions a wave's status. Valid transitions
// are pending -> running -> completed; callers enforce which
// transition applies (the store does not infer it from subtask state).
func (d *DB) AdvanceTaskListStatus(id, status string) (*TaskList, error) {
	switch status {
	case "pending", "running", "completed":
	default:
		return nil, apierr.Field("status", "must be one of pending, running, completed")
	}
	err := d.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE task_lists SET status = ? WHERE id = ?`, status, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return apierr.NotFound("task_list", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	d.wake.Publish(WakeEnvelope{Kind: "task_list", Action: "updated", ID: id, At: nowRFC3339()})
	return d.TaskListByID(id)
}

// TaskListByID fetches a wave by id.
func (d *DB) TaskListByID(id string) (*TaskList, error) {
	row := d.conn.QueryRow(
		`SELECT id, request_id, name, wave_number, status, created_at, updated_at FROM task_lists WHERE id = ?`, id,
	)
	return scanTaskList(row)
}

// ListTaskLists returns every wave for a request, in wave order.
func (d *DB) ListTaskLists(requestID string) ([]*TaskList, error) {
	rows, err := d.conn.Query(
		`SELECT id, request_id, name, wave_number, status, created_at, updated_at
		 FROM task_lists WHERE request_id = ? ORDER BY wave_number ASC`, requestID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*TaskList
	for rows.Next() {
		tl, err := scanTaskList(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tl)
	}
	return out, rows.Err()
}

func scanTaskList(row scannable) (*TaskList, error) {
	var tl TaskList
	var createdAt, updatedAt string
	err := row.Scan(&tl.ID, &tl.RequestID, &tl.Name, &tl.WaveNumber, &tl.Status, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, apierr.NotFound("task_list", "")
	}
	if err != nil {
		return nil, err
	}
	tl.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	tl.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	return &tl, nil
}
