package store

import (
	"time"
)

// Counts is the GET /stats payload: a row count for each table listed
// below. Agent contexts, snapshots and routing scores are not counted.
type Counts struct {
	Projects      int64 `json:"projects"`
	Sessions      int64 `json:"sessions"`
	Requests      int64 `json:"requests"`
	TaskLists     int64 `json:"task_lists"`
	Subtasks      int64 `json:"subtasks"`
	Actions       int64 `json:"actions"`
	Messages      int64 `json:"agent_messages"`
	Subscriptions int64 `json:"subscriptions"`
	Blockings     int64 `json:"blockings"`
}

// Stats reports the row counts listed in Counts.
func (d *DB) Stats() (*Counts, error) {
	var c Counts
	queries := []struct {
		table string
		dest  *int64
	}{
		{"projects", &c.Projects},
		{"sessions", &c.Sessions},
		{"requests", &c.Requests},
		{"task_lists", &c.TaskLists},
		{"subtasks", &c.Subtasks},
		{"actions", &c.Actions},
		{"agent_messages", &c.Messages},
		{"subscriptions", &c.Subscriptions},
		{"blockings", &c.Blockings},
	}
	for _, q := range queries {
		if err := d.conn.QueryRow("SELECT COUNT(*) FROM " + q.table).Scan(q.dest); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

// SessionStatsResult is the GET /api/sessions/stats payload.
type SessionStatsResult struct {
	Total       int64   `json:"total"`
	Active      int64   `json:"active"`
	AvgToolsRun float64 `json:"avg_tools_run"`
}

// SessionStats aggregates totals across all sessions.
func (d *DB) SessionStats() (*SessionStatsResult, error) {
	var r SessionStatsResult
	err := d.conn.QueryRow(`SELECT COUNT(*), SUM(CASE WHEN ended_at IS NULL THEN 1 ELSE 0 END) FROM sessions`).
		Scan(&r.Total, &r.Active)
	if err != nil {
		return nil, err
	}
	if r.Total > 0 {
		var totalTools int64
		if err := d.conn.QueryRow(`SELECT COALESCE(SUM(total_tools), 0) FROM sessions`).Scan(&totalTools); err != nil {
			return nil, err
		}
		r.AvgToolsRun = float64(totalTools) / float64(r.Total)
	}
	return &r, nil
}

// ActiveSessions returns every session with no ended_at, most
// recently started first.
func (d *DB) ActiveSessions() ([]*Session, error) {
	rows, err := d.conn.Query(
		`SELECT id, project_id, started_at, ended_at, total_tools, success_tools, error_tools
		 FROM sessions WHERE ended_at IS NULL ORDER BY started_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// HourlyActionCount is one bucket of the actions/hourly report.
type HourlyActionCount struct {
	Hour  string `json:"hour"`
	Count int64  `json:"count"`
}

// ActionsHourly buckets action counts by hour over the last n hours.
func (d *DB) ActionsHourly(hours int) ([]*HourlyActionCount, error) {
	if hours <= 0 {
		hours = 24
	}
	cutoff := time.Now().UTC().Add(-time.Duration(hours) * time.Hour).Format(timeLayout)
	rows, err := d.conn.Query(
		`SELECT strftime('%Y-%m-%dT%H:00:00Z', created_at) AS hour, COUNT(*)
		 FROM actions WHERE created_at >= ? GROUP BY hour ORDER BY hour ASC`, cutoff,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*HourlyActionCount
	for rows.Next() {
		var h HourlyActionCount
		if err := rows.Scan(&h.Hour, &h.Count); err != nil {
			return nil, err
		}
		out = append(out, &h)
	}
	return out, rows.Err()
}

// ToolSummary is one row of the tools-usage report.
type ToolSummary struct {
	ToolName     string  `json:"tool_name"`
	ToolCategory string  `json:"tool_category"`
	Invocations  int64   `json:"invocations"`
	AvgDuration  float64 `json:"avg_duration_ms"`
	ErrorRate    float64 `json:"error_rate"`
}

// ToolsSummary aggregates invocation counts, average duration, and
// error rate per tool, busiest first.
func (d *DB) ToolsSummary() ([]*ToolSummary, error) {
	rows, err := d.conn.Query(
		`SELECT tool_name, tool_category, COUNT(*),
		        AVG(duration_ms),
		        CAST(SUM(CASE WHEN exit_code != 0 THEN 1 ELSE 0 END) AS REAL) / COUNT(*)
		 FROM actions GROUP BY tool_name, tool_category ORDER BY COUNT(*) DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ToolSummary
	for rows.Next() {
		var t ToolSummary
		if err := rows.Scan(&t.ToolName, &t.ToolCategory, &t.Invocations, &t.AvgDuration, &t.ErrorRate); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

// CleanupStatsResult reports how much each periodic worker would
// reclaim right now, without performing the cleanup.
type CleanupStatsResult struct {
	ExpiredMessages  int64 `json:"expired_messages"`
	StaleSessions    int64 `json:"stale_sessions"`
	AgedSnapshots    int64 `json:"aged_snapshots"`
}

// CleanupStats counts expired messages, aged snapshots, and open
// sessions started before staleSessionCutoff. The stale-session sweep
// judges a session by its last action rather than its start time, so
// it can close fewer sessions than StaleSessions reports; read-message
// purges are not counted.
func (d *DB) CleanupStats(staleSessionCutoff, snapshotCutoff time.Time) (*CleanupStatsResult, error) {
	var r CleanupStatsResult
	err := d.conn.QueryRow(
		`SELECT COUNT(*) FROM agent_messages WHERE expires_at IS NOT NULL AND expires_at <= ?`, nowRFC3339(),
	).Scan(&r.ExpiredMessages)
	if err != nil {
		return nil, err
	}
	err = d.conn.QueryRow(
		`SELECT COUNT(*) FROM sessions WHERE ended_at IS NULL AND started_at <= ?`,
		staleSessionCutoff.UTC().Format(timeLayout),
	).Scan(&r.StaleSessions)
	if err != nil {
		return nil, err
	}
	err = d.conn.QueryRow(
		`SELECT COUNT(*) FROM agent_context_snapshots WHERE created_at <= ?`,
		snapshotCutoff.UTC().Format(timeLayout),
	).Scan(&r.AgedSnapshots)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Ping verifies the connection is alive, used by the /health handler.
func (d *DB) Ping() error {
	return d.conn.Ping()
}
