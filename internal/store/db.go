// Package store is the SQLite-backed persistence layer for every
// entity in spec.md §3 (projects through agent context snapshots), and
// owns the embedded NATS wake channel that stands in for a
// Postgres-style LISTEN/NOTIFY bridge: SQLite has no native pub/sub,
// writes publish a wake envelope on an embedded NATS server the
// Notification Bridge process subscribes to (see wake.go). Creating a
// project, request, task list, subtask, action, message or blocking
// publishes one, as do task-list and subtask status changes; the other
// writes (sessions, subscriptions, unblocking, read marks, request
// completion, subtask results, routing scores, agent contexts,
// snapshots and the cleanup deletes) publish nothing.
package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ronylicha/agentctx-core/internal/logging"
)

//go:embed schema.sql
var schemaSQL string

//go:embed migrations/002_add_indexes.sql
var migration002 string

//go:embed migrations/003_add_triggers.sql
var migration003 string

const currentSchemaVersion = 3

// DB wraps the SQLite connection pool and the embedded wake publisher.
type DB struct {
	conn *sql.DB
	wake *WakePublisher
	log  *logging.Logger
	path string
}

// Path returns the SQLite file path DB was opened against.
func (d *DB) Path() string {
	return d.path
}

// Open creates (or reuses) the SQLite file at path, runs migrations,
// and starts the embedded wake-channel server. maxConns mirrors
// DB_MAX_CONNS from config.Config.
func Open(path string, maxConns int, wakePort int) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	conn.SetMaxOpenConns(maxConns)
	idle := maxConns / 2
	if idle < 1 {
		idle = 1
	}
	conn.SetMaxIdleConns(idle)

	d := &DB{conn: conn, log: logging.New("store"), path: path}

	if err := d.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}

	wake, err := NewWakePublisher(filepath.Join(dir, "wake"), wakePort)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("start wake channel: %w", err)
	}
	d.wake = wake

	return d, nil
}

func (d *DB) migrate() error {
	if _, err := d.conn.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute base schema: %w", err)
	}

	var version int
	err := d.conn.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("check schema version: %w", err)
	}

	if version < 2 {
		d.log.Info("running migration to v2: add secondary indexes")
		if _, err := d.conn.Exec(migration002); err != nil {
			return fmt.Errorf("run migration 002: %w", err)
		}
	}

	if version < 3 {
		d.log.Info("running migration to v3: add updated_at triggers")
		if _, err := d.conn.Exec(migration003); err != nil {
			return fmt.Errorf("run migration 003: %w", err)
		}
	}

	if version < currentSchemaVersion {
		if _, err := d.conn.Exec("DELETE FROM schema_version"); err != nil {
			return fmt.Errorf("clear schema_version: %w", err)
		}
		if _, err := d.conn.Exec("INSERT INTO schema_version (version) VALUES (?)", currentSchemaVersion); err != nil {
			return fmt.Errorf("stamp schema_version: %w", err)
		}
	}

	return nil
}

// Close closes the SQLite connection and stops the embedded wake server.
func (d *DB) Close() error {
	if d.wake != nil {
		d.wake.Close()
	}
	if d.conn != nil {
		return d.conn.Close()
	}
	return nil
}

// Wake exposes the embedded wake publisher so callers (store entity
// methods) can announce committed changes after a transaction commits.
func (d *DB) Wake() *WakePublisher { return d.wake }

// withTx runs fn inside a transaction, rolling back on error and
// committing otherwise.
func (d *DB) withTx(fn func(*sql.Tx) error) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// nullString converts an empty string to a NULL column value.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullStringPtr converts a nil string pointer to a NULL column value.
func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: *s, Valid: true}
}
