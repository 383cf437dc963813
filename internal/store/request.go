package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ronylicha/agentctx-core/internal/apierr"
)

// RequestCategory is the closed classification set from spec.md §3.
type RequestCategory string

const (
	RequestFeature RequestCategory = "feature"
	RequestDebug   RequestCategory = "debug"
	RequestExplain RequestCategory = "explain"
	RequestSearch  RequestCategory = "search"
)

func validRequestCategory(c RequestCategory) bool {
	switch c {
	case RequestFeature, RequestDebug, RequestExplain, RequestSearch:
		return true
	}
	return false
}

// Request is one user-facing ask within a Session.
type Request struct {
	ID          string          `json:"id"`
	ProjectID   string          `json:"project_id"`
	SessionID   string          `json:"session_id"`
	Prompt      string          `json:"prompt"`
	Category    RequestCategory `json:"category"`
	Status      string          `json:"status"`
	Metadata    json.RawMessage `json:"metadata"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// CreateRequest records a new request against sessionID.
func (d *DB) CreateRequest(projectID, sessionID, prompt string, category RequestCategory, metadata json.RawMessage) (*Request, error) {
	if !validRequestCategory(category) {
		return nil, apierr.Field("category", "must be one of feature, debug, explain, search")
	}
	if metadata == nil {
		metadata = json.RawMessage("{}")
	}

	id := uuid.New().String()
	err := d.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO requests (id, project_id, session_id, prompt, category, metadata) VALUES (?, ?, ?, ?, ?, ?)`,
			id, projectID, sessionID, prompt, string(category), string(metadata),
		)
		return err
	})
	if err != nil {
		return nil, err
	}
	req, err := d.RequestByID(id)
	if err != nil {
		return nil, err
	}
	d.wake.Publish(WakeEnvelope{Kind: "request", Action: "created", ProjectID: projectID, ID: id, At: nowRFC3339()})
	return req, nil
}

// CompleteRequest marks a request completed, stamping completion time
// on the transition edge. A request already completed is a no-op
// (spec.md §4.2: "second call is a no-op"), not a conflict.
func (d *DB) CompleteRequest(id string) (*Request, error) {
	if _, err := d.RequestByID(id); err != nil {
		return nil, err
	}
	err := d.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`UPDATE requests SET status = 'completed', completed_at = ? WHERE id = ? AND status = 'active'`,
			nowRFC3339(), id,
		)
		return err
	})
	if err != nil {
		return nil, err
	}
	return d.RequestByID(id)
}

// RequestByID fetches a request by id.
func (d *DB) RequestByID(id string) (*Request, error) {
	row := d.conn.QueryRow(
		`SELECT id, project_id, session_id, prompt, category, status, metadata, created_at, completed_at
		 FROM requests WHERE id = ?`, id,
	)
	return scanRequest(row)
}

// ListRequestsBySession returns every request made during a session,
// oldest first.
func (d *DB) ListRequestsBySession(sessionID string) ([]*Request, error) {
	rows, err := d.conn.Query(
		`SELECT id, project_id, session_id, prompt, category, status, metadata, created_at, completed_at
		 FROM requests WHERE session_id = ? ORDER BY created_at ASC`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// StampLastSnapshot records the timestamp of the most recent compact
// snapshot taken for a request, inside its metadata JSON (the
// expression index in migrations/002_add_indexes.sql covers this
// path).
func (d *DB) StampLastSnapshot(requestID string, at time.Time) error {
	return d.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`UPDATE requests SET metadata = json_set(metadata, '$.last_snapshot_at', ?) WHERE id = ?`,
			at.UTC().Format(timeLayout), requestID,
		)
		return err
	})
}

func scanRequest(row scannable) (*Request, error) {
	var r Request
	var category, metadata, createdAt string
	var completedAt sql.NullString
	err := row.Scan(&r.ID, &r.ProjectID, &r.SessionID, &r.Prompt, &category, &r.Status, &metadata, &createdAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, apierr.NotFound("request", "")
	}
	if err != nil {
		return nil, err
	}
	r.Category = RequestCategory(category)
	r.Metadata = json.RawMessage(metadata)
	r.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	if completedAt.Valid {
		t, _ := time.Parse(timeLayout, completedAt.String)
		r.CompletedAt = &t
	}
	return &r, nil
}
