package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/ronylicha/agentctx-core/internal/apierr"
)

// ToolCategory is the closed set of action sources from spec.md §3.
type ToolCategory string

const (
	ToolBuiltin ToolCategory = "builtin"
	ToolAgent   ToolCategory = "agent"
	ToolSkill   ToolCategory = "skill"
	ToolMCP     ToolCategory = "mcp"
	ToolCommand ToolCategory = "command"
)

func validToolCategory(c ToolCategory) bool {
	switch c {
	case ToolBuiltin, ToolAgent, ToolSkill, ToolMCP, ToolCommand:
		return true
	}
	return false
}

// Action is one recorded tool invocation, optionally attached to a
// subtask. Input/output are stored zstd-compressed (the store's
// built-in blob compression from spec.md §3) and transparently
// expanded on read.
type Action struct {
	ID            string   `json:"id"`
	SubtaskID     string   `json:"subtask_id,omitempty"`
	ToolName      string   `json:"tool_name"`
	ToolCategory  ToolCategory `json:"tool_category"`
	Input         []byte   `json:"input,omitempty"`
	Output        []byte   `json:"output,omitempty"`
	AffectedPaths []string `json:"affected_paths"`
	ExitCode      int      `json:"exit_code"`
	DurationMS    int      `json:"duration_ms"`
	Metadata      json.RawMessage `json:"metadata"`
	CreatedAt     time.Time `json:"created_at"`
}

var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zstdDecoder, _ = zstd.NewReader(nil)
)

func compressBlob(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return zstdEncoder.EncodeAll(b, make([]byte, 0, len(b)))
}

func decompressBlob(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, nil
	}
	return zstdDecoder.DecodeAll(b, nil)
}

// RecordAction stores a completed tool invocation and bumps the
// owning session's tool tallies when subtaskID resolves to one (a
// bare action with no subtask, e.g. during a quick lookup, does not
// affect any session counters).
func (d *DB) RecordAction(subtaskID, toolName string, toolCategory ToolCategory, input, output []byte, affectedPaths []string, exitCode, durationMS int, metadata json.RawMessage) (*Action, error) {
	if !validToolCategory(toolCategory) {
		return nil, apierr.Field("tool_category", "must be one of builtin, agent, skill, mcp, command")
	}
	if affectedPaths == nil {
		affectedPaths = []string{}
	}
	if metadata == nil {
		metadata = json.RawMessage("{}")
	}
	paths, err := json.Marshal(affectedPaths)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	err = d.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO actions (id, subtask_id, tool_name, tool_category, input_blob, output_blob,
			                      affected_paths, exit_code, duration_ms, metadata)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, nullString(subtaskID), toolName, string(toolCategory),
			compressBlob(input), compressBlob(output), string(paths), exitCode, durationMS, string(metadata),
		)
		if err != nil || subtaskID == "" {
			return err
		}
		col := "error_tools"
		if exitCode == 0 {
			col = "success_tools"
		}
		_, err = tx.Exec(
			`UPDATE sessions SET total_tools = total_tools + 1, `+col+` = `+col+` + 1
			 WHERE id = (SELECT r.session_id FROM subtasks s
			             JOIN task_lists tl ON tl.id = s.task_list_id
			             JOIN requests r ON r.id = tl.request_id
			             WHERE s.id = ?)`, subtaskID,
		)
		return err
	})
	if err != nil {
		return nil, err
	}
	act, err := d.ActionByID(id)
	if err != nil {
		return nil, err
	}
	d.wake.Publish(WakeEnvelope{Kind: "action", Action: "created", ID: id, At: nowRFC3339()})
	return act, nil
}

// ActionByID fetches an action by id, decompressing its input/output
// blobs.
func (d *DB) ActionByID(id string) (*Action, error) {
	row := d.conn.QueryRow(
		`SELECT id, subtask_id, tool_name, tool_category, input_blob, output_blob,
		        affected_paths, exit_code, duration_ms, metadata, created_at
		 FROM actions WHERE id = ?`, id,
	)
	return scanAction(row)
}

// ListActionsBySubtask returns every action recorded against a
// subtask, most recent first.
func (d *DB) ListActionsBySubtask(subtaskID string) ([]*Action, error) {
	rows, err := d.conn.Query(
		`SELECT id, subtask_id, tool_name, tool_category, input_blob, output_blob,
		        affected_paths, exit_code, duration_ms, metadata, created_at
		 FROM actions WHERE subtask_id = ? ORDER BY created_at DESC`, subtaskID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAction(row scannable) (*Action, error) {
	var a Action
	var subtaskID sql.NullString
	var category, affectedPaths, metadata, createdAt string
	var input, output []byte
	err := row.Scan(&a.ID, &subtaskID, &a.ToolName, &category, &input, &output,
		&affectedPaths, &a.ExitCode, &a.DurationMS, &metadata, &createdAt)
	if err == sql.ErrNoRows {
		return nil, apierr.NotFound("action", "")
	}
	if err != nil {
		return nil, err
	}
	a.SubtaskID = subtaskID.String
	a.ToolCategory = ToolCategory(category)
	if err := json.Unmarshal([]byte(affectedPaths), &a.AffectedPaths); err != nil {
		return nil, err
	}
	a.Metadata = json.RawMessage(metadata)
	a.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	if a.Input, err = decompressBlob(input); err != nil {
		return nil, apierr.Dependency("decompress action input", err)
	}
	if a.Output, err = decompressBlob(output); err != nil {
		return nil, apierr.Dependency("decompress action output", err)
	}
	return &a, nil
}
