package store

// RecentActionsForProject returns the most recent actions recorded
// anywhere under projectID (joined through subtasks, waves, and
// requests), newest first. Used by compact-save to derive "modified
// files" and a session summary.
func (d *DB) RecentActionsForProject(projectID string, limit int) ([]*Action, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.conn.Query(
		`SELECT a.id, a.subtask_id, a.tool_name, a.tool_category, a.input_blob, a.output_blob,
		        a.affected_paths, a.exit_code, a.duration_ms, a.metadata, a.created_at
		 FROM actions a
		 JOIN subtasks s ON s.id = a.subtask_id
		 JOIN task_lists tl ON tl.id = s.task_list_id
		 JOIN requests r ON r.id = tl.request_id
		 WHERE r.project_id = ?
		 ORDER BY a.created_at DESC LIMIT ?`,
		projectID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Action
	for rows.Next() {
		act, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, act)
	}
	return out, rows.Err()
}

// ActiveSubtasksForProject returns every subtask not yet completed or
// failed, anywhere under projectID.
func (d *DB) ActiveSubtasksForProject(projectID string) ([]*Subtask, error) {
	rows, err := d.conn.Query(
		`SELECT s.id, s.task_list_id, s.agent_category, s.agent_instance, s.description, s.status,
		        s.blocking_deps, s.context_snapshot, s.result, s.created_at, s.started_at, s.completed_at
		 FROM subtasks s
		 JOIN task_lists tl ON tl.id = s.task_list_id
		 JOIN requests r ON r.id = tl.request_id
		 WHERE r.project_id = ? AND s.status NOT IN ('completed', 'failed')
		 ORDER BY s.created_at ASC`,
		projectID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Subtask
	for rows.Next() {
		st, err := scanSubtask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// RecentMessagesForProject returns the most recently published
// messages under projectID, newest first.
func (d *DB) RecentMessagesForProject(projectID string, limit int) ([]*AgentMessage, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.conn.Query(
		`SELECT id, project_id, sender_agent_id, recipient_agent_id, topic, category, payload,
		        priority, read_by, created_at, expires_at
		 FROM agent_messages WHERE project_id = ? ORDER BY created_at DESC LIMIT ?`,
		projectID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*AgentMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
