package store

import (
	"database/sql"
	"time"
)

// SessionActivity pairs an open session with the most recent action
// recorded anywhere in its request/wave/subtask chain (or its
// started_at, if it has none yet), for the periodic stale-session
// sweep (spec.md §4.6).
type SessionActivity struct {
	Session      *Session
	LastActivity time.Time
}

// ActiveSessionActivity returns every session still open (ended_at IS
// NULL) along with its last-activity timestamp.
func (d *DB) ActiveSessionActivity() ([]*SessionActivity, error) {
	rows, err := d.conn.Query(
		`SELECT s.id, s.project_id, s.started_at, s.ended_at, s.total_tools, s.success_tools, s.error_tools,
		        COALESCE(MAX(a.created_at), s.started_at) AS last_activity
		 FROM sessions s
		 LEFT JOIN requests r ON r.session_id = s.id
		 LEFT JOIN task_lists tl ON tl.request_id = r.id
		 LEFT JOIN subtasks sub ON sub.task_list_id = tl.id
		 LEFT JOIN actions a ON a.subtask_id = sub.id
		 WHERE s.ended_at IS NULL
		 GROUP BY s.id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*SessionActivity
	for rows.Next() {
		var s Session
		var startedAt, lastActivity string
		var endedAt sql.NullString
		if err := rows.Scan(&s.ID, &s.ProjectID, &startedAt, &endedAt, &s.TotalTools, &s.SuccessTools, &s.ErrorTools, &lastActivity); err != nil {
			return nil, err
		}
		s.StartedAt, _ = time.Parse(timeLayout, startedAt)
		if endedAt.Valid {
			t, _ := time.Parse(timeLayout, endedAt.String)
			s.EndedAt = &t
		}
		last, _ := time.Parse(timeLayout, lastActivity)
		out = append(out, &SessionActivity{Session: &s, LastActivity: last})
	}
	return out, rows.Err()
}

// ActiveAgentCount returns the number of distinct (agent_category,
// agent_instance) pairs with a non-terminal subtask, for the periodic
// metric snapshot.
func (d *DB) ActiveAgentCount() (int, error) {
	var n int
	err := d.conn.QueryRow(
		`SELECT COUNT(DISTINCT agent_category || ':' || agent_instance)
		 FROM subtasks WHERE status NOT IN ('completed', 'failed')`,
	).Scan(&n)
	return n, err
}

// TaskStatusCounts returns the current pending/running backlog and the
// number of subtasks completed since since, for the periodic metric
// snapshot.
func (d *DB) TaskStatusCounts(since time.Time) (pendingRunning, completedSince int, err error) {
	err = d.conn.QueryRow(
		`SELECT
		   SUM(CASE WHEN status IN ('pending','running') THEN 1 ELSE 0 END),
		   SUM(CASE WHEN status = 'completed' AND completed_at >= ? THEN 1 ELSE 0 END)
		 FROM subtasks`,
		since.UTC().Format(timeLayout),
	).Scan(&pendingRunning, &completedSince)
	return pendingRunning, completedSince, err
}

// RecentMessageCount returns the number of messages created since
// since.
func (d *DB) RecentMessageCount(since time.Time) (int, error) {
	var n int
	err := d.conn.QueryRow(
		`SELECT COUNT(*) FROM agent_messages WHERE created_at >= ?`, since.UTC().Format(timeLayout),
	).Scan(&n)
	return n, err
}

// ActionsSince returns the count of actions recorded since since; the
// caller divides it by its window to get a per-minute rate.
func (d *DB) ActionsSince(since time.Time) (int, error) {
	var n int
	err := d.conn.QueryRow(
		`SELECT COUNT(*) FROM actions WHERE created_at >= ?`, since.UTC().Format(timeLayout),
	).Scan(&n)
	return n, err
}

// AverageSubtaskDurationSeconds averages completed_at-started_at over
// subtasks completed since since (0 when there are none).
func (d *DB) AverageSubtaskDurationSeconds(since time.Time) (float64, error) {
	rows, err := d.conn.Query(
		`SELECT started_at, completed_at FROM subtasks
		 WHERE status = 'completed' AND completed_at IS NOT NULL AND started_at IS NOT NULL
		   AND completed_at >= ?`, since.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var total float64
	var n int
	for rows.Next() {
		var startedAt, completedAt string
		if err := rows.Scan(&startedAt, &completedAt); err != nil {
			return 0, err
		}
		st, err1 := time.Parse(timeLayout, startedAt)
		ct, err2 := time.Parse(timeLayout, completedAt)
		if err1 != nil || err2 != nil {
			continue
		}
		total += ct.Sub(st).Seconds()
		n++
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	return total / float64(n), nil
}
