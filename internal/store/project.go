package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ronylicha/agentctx-core/internal/apierr"
)

// Project is the root of the ownership hierarchy (spec.md §3): every
// Session, Request, Agent Message, Agent Context, and Agent Context
// Snapshot either belongs to one directly or descends from one that
// does.
type Project struct {
	ID        string          `json:"id"`
	Path      string          `json:"path"`
	Name      string          `json:"name"`
	Metadata  json.RawMessage `json:"metadata"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// CreateProject creates a project for path, or returns the existing
// one if path is already registered (spec.md §3: Project identity is
// its filesystem path; re-registering the same path is idempotent,
// not a conflict).
func (d *DB) CreateProject(path, name string, metadata json.RawMessage) (*Project, error) {
	if existing, err := d.ProjectByPath(path); err == nil {
		return existing, nil
	} else if !isNotFound(err) {
		return nil, err
	}

	if metadata == nil {
		metadata = json.RawMessage("{}")
	}

	p := &Project{
		ID:       uuid.New().String(),
		Path:     path,
		Name:     name,
		Metadata: metadata,
	}

	err := d.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO projects (id, path, name, metadata) VALUES (?, ?, ?, ?)`,
			p.ID, p.Path, p.Name, string(p.Metadata),
		)
		return err
	})
	if err != nil {
		return nil, err
	}

	created, err := d.ProjectByID(p.ID)
	if err != nil {
		return nil, err
	}
	d.wake.Publish(WakeEnvelope{Kind: "project", Action: "created", ID: created.ID, At: nowRFC3339()})
	return created, nil
}

// ProjectByID fetches a project by id.
func (d *DB) ProjectByID(id string) (*Project, error) {
	row := d.conn.QueryRow(
		`SELECT id, path, name, metadata, created_at, updated_at FROM projects WHERE id = ?`, id,
	)
	return scanProject(row)
}

// ProjectByPath fetches a project by its registered filesystem path.
func (d *DB) ProjectByPath(path string) (*Project, error) {
	row := d.conn.QueryRow(
		`SELECT id, path, name, metadata, created_at, updated_at FROM projects WHERE path = ?`, path,
	)
	return scanProject(row)
}

// ListProjects returns every registered project, most recently
// created first.
func (d *DB) ListProjects() ([]*Project, error) {
	rows, err := d.conn.Query(
		`SELECT id, path, name, metadata, created_at, updated_at FROM projects ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Project
	for rows.Next() {
		p, err := scanProjectRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanProject(row scannable) (*Project, error) {
	var p Project
	var metadata string
	var createdAt, updatedAt string
	err := row.Scan(&p.ID, &p.Path, &p.Name, &metadata, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, apierr.NotFound("project", "")
	}
	if err != nil {
		return nil, err
	}
	p.Metadata = json.RawMessage(metadata)
	p.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	p.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	return &p, nil
}

func scanProjectRows(rows *sql.Rows) (*Project, error) {
	return scanProject(rows)
}

func isNotFound(err error) bool {
	ae, ok := apierr.As(err)
	return ok && ae.Kind == apierr.KindNotFound
}

const timeLayout = "2006-01-02T15:04:05.999999999Z"

func nowRFC3339() string {
	return time.Now().UTC().Format(timeLayout)
}
