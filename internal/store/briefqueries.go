package store

// Cross-entity read paths used only by the Brief Generator (spec.md
// §4.5), kept separate from the entity-owning files above since they
// join across tables rather than operating on a single one.

// UnreadMessagesForAgent returns messages addressed to agentID — either
// direct (recipient_agent_id = agentID) or broadcast on one of its
// subscribed topics — that agentID has not yet read and that have not
// expired, highest priority first and newest first within a priority.
func (d *DB) UnreadMessagesForAgent(projectID, agentID string, limit int) ([]*AgentMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.conn.Query(
		`SELECT id, project_id, sender_agent_id, recipient_agent_id, topic, category, payload,
		        priority, read_by, created_at, expires_at
		 FROM agent_messages
		 WHERE project_id = ?
		   AND (expires_at IS NULL OR expires_at > ?)
		   AND (read_by NOT LIKE '%' || ? || '%')
		   AND (recipient_agent_id = ? OR topic IN (SELECT topic FROM subscriptions WHERE agent_id = ?))
		 ORDER BY priority DESC, created_at DESC LIMIT ?`,
		projectID, nowRFC3339(), agentID, agentID, agentID, limit,
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

// BlockingsFor returns every active blocking where agentID is the
// blocked party, carrying the blocker id and reason.
func (d *DB) BlockingsFor(agentID string) ([]*Blocking, error) {
	rows, err := d.conn.Query(
		`SELECT id, blocker_id, blocked_id, reason FROM blockings WHERE blocked_id = ?`, agentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Blocking
	for rows.Next() {
		var b Blocking
		if err := rows.Scan(&b.ID, &b.BlockerID, &b.BlockedID, &b.Reason); err != nil {
			return nil, err
		}
		out = append(out, &b)
	}
	return out, rows.Err()
}

// ActionsForAgent returns the most recent actions recorded against
// subtasks assigned to (agentCategory, agentInstance), newest first.
func (d *DB) ActionsForAgent(agentCategory, agentInstance string, limit int) ([]*Action, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := d.conn.Query(
		`SELECT a.id, a.subtask_id, a.tool_name, a.tool_category, a.input_blob, a.output_blob,
		        a.affected_paths, a.exit_code, a.duration_ms, a.metadata, a.created_at
		 FROM actions a
		 JOIN subtasks s ON s.id = a.subtask_id
		 WHERE s.agent_category = ? AND s.agent_instance = ?
		 ORDER BY a.created_at DESC LIMIT ?`,
		agentCategory, agentInstance, limit,
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

// LatestRequestForSession returns the most recently created request on
// sessionID.
func (d *DB) LatestRequestForSession(sessionID string) (*Request, error) {
	row := d.conn.QueryRow(
		`SELECT id, project_id, session_id, prompt, category, status, metadata, created_at, completed_at
		 FROM requests WHERE session_id = ? ORDER BY created_at DESC LIMIT 1`, sessionID,
	)
	return scanRequest(row)
}

// HighPriorityMessagesForProject returns messages with priority >= 5
// published within projectID, used by compact-save to derive "recent
// decisions".
func (d *DB) HighPriorityMessagesForProject(projectID string, limit int) ([]*AgentMessage, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.conn.Query(
		`SELECT id, project_id, sender_agent_id, recipient_agent_id, topic, category, payload,
		        priority, read_by, created_at, expires_at
		 FROM agent_messages WHERE project_id = ? AND priority >= 5
		 ORDER BY created_at DESC LIMIT ?`, projectID, limit,
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
