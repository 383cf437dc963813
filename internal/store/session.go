package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/ronylicha/agentctx-core/internal/apierr"
)

// Session tracks one coding-assistant run against a Project. Sessions
// are referenced by Requests through a plain string identifier, not a
// foreign-key cascade (spec.md §3): a session can outlive, or end
// independently of, any single request made during it.
type Session struct {
	ID           string     `json:"id"`
	ProjectID    string     `json:"project_id"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	TotalTools   int        `json:"total_tools"`
	SuccessTools int        `json:"success_tools"`
	ErrorTools   int        `json:"error_tools"`
}

// StartSession opens a new session under projectID.
func (d *DB) StartSession(projectID string) (*Session, error) {
	if _, err := d.ProjectByID(projectID); err != nil {
		return nil, err
	}

	id := uuid.New().String()
	err := d.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO sessions (id, project_id) VALUES (?, ?)`, id, projectID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return d.SessionByID(id)
}

// EndSession stamps ended_at on an open session, leaving its tool
// tallies as they are. An unknown or already-ended session is a
// not-found error.
func (d *DB) EndSession(id string) (*Session, error) {
	err := d.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(
			`UPDATE sessions SET ended_at = ? WHERE id = ? AND ended_at IS NULL`,
			nowRFC3339(), id,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return apierr.NotFound("session", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d.SessionByID(id)
}

// RecordToolOutcome increments a session's tool-call counters. success
// distinguishes success_tools from error_tools; total_tools always
// increments.
func (d *DB) RecordToolOutcome(sessionID string, success bool) error {
	col := "error_tools"
	if success {
		col = "success_tools"
	}
	return d.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`UPDATE sessions SET total_tools = total_tools + 1, `+col+` = `+col+` + 1 WHERE id = ?`,
			sessionID,
		)
		return err
	})
}

// SessionByID fetches a session by id.
func (d *DB) SessionByID(id string) (*Session, error) {
	row := d.conn.QueryRow(
		`SELECT id, project_id, started_at, ended_at, total_tools, success_tools, error_tools
		 FROM sessions WHERE id = ?`, id,
	)
	return scanSession(row)
}

// ListSessions returns every session for a project, most recently
// started first.
func (d *DB) ListSessions(projectID string) ([]*Session, error) {
	rows, err := d.conn.Query(
		`SELECT id, project_id, started_at, ended_at, total_tools, success_tools, error_tools
		 FROM sessions WHERE project_id = ? ORDER BY started_at DESC`, projectID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSession(row scannable) (*Session, error) {
	var s Session
	var startedAt string
	var endedAt sql.NullString
	err := row.Scan(&s.ID, &s.ProjectID, &startedAt, &endedAt, &s.TotalTools, &s.SuccessTools, &s.ErrorTools)
	if err == sql.ErrNoRows {
		return nil, apierr.NotFound("session", "")
	}
	if err != nil {
		return nil, err
	}
	s.StartedAt, _ = time.Parse(timeLayout, startedAt)
	if endedAt.Valid {
		t, _ := time.Parse(timeLayout, endedAt.String)
		s.EndedAt = &t
	}
	return &s, nil
}
