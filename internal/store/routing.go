package store

import (
	"database/sql"
)

// RoutingScore is one (keyword, tool) affinity record used by the
// router to rank candidate tools for a free-text request (spec.md
// §3/§4.3). score is exponentially nudged on each observed outcome
// rather than recomputed from scratch, so frequently-right tools pull
// ahead over time without a full rescan.
type RoutingScore struct {
	Keyword      string   `json:"keyword"`
	ToolName     string   `json:"tool_name"`
	ToolCategory string   `json:"tool_category"`
	Score        float64  `json:"score"`
	UsageCount   int      `json:"usage_count"`
	SuccessCount int      `json:"success_count"`
	LastUsedAt   *string  `json:"last_used_at,omitempty"`
}

const (
	scoreRewardSuccess = 0.15
	scorePenaltyFail   = 0.05
)

// RecordRoutingOutcome upserts the (keyword, tool) pair and nudges its
// score toward 1 on success or toward 0 on failure, clamped to [0, 1].
func (d *DB) RecordRoutingOutcome(keyword, toolName, toolCategory string, success bool) error {
	return d.withTx(func(tx *sql.Tx) error {
		var score float64
		var usage, succ int
		err := tx.QueryRow(
			`SELECT score, usage_count, success_count FROM routing_scores WHERE keyword = ? AND tool_name = ?`,
			keyword, toolName,
		).Scan(&score, &usage, &succ)
		switch {
		case err == sql.ErrNoRows:
			score = 0.5
		case err != nil:
			return err
		}

		if success {
			score += (1 - score) * scoreRewardSuccess
			succ++
		} else {
			score -= score * scorePenaltyFail
		}
		usage++

		_, err = tx.Exec(
			`INSERT INTO routing_scores (keyword, tool_name, tool_category, score, usage_count, success_count, last_used_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(keyword, tool_name) DO UPDATE SET
			   tool_category = excluded.tool_category,
			   score = excluded.score,
			   usage_count = excluded.usage_count,
			   success_count = excluded.success_count,
			   last_used_at = excluded.last_used_at`,
			keyword, toolName, toolCategory, score, usage, succ, nowRFC3339(),
		)
		return err
	})
}

// RankToolsForKeyword returns the tools associated with keyword,
// highest score first, capped at limit.
func (d *DB) RankToolsForKeyword(keyword string, limit int) ([]*RoutingScore, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := d.conn.Query(
		`SELECT keyword, tool_name, tool_category, score, usage_count, success_count, last_used_at
		 FROM routing_scores WHERE keyword = ? ORDER BY score DESC LIMIT ?`, keyword, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*RoutingScore
	for rows.Next() {
		var rs RoutingScore
		var lastUsed sql.NullString
		if err := rows.Scan(&rs.Keyword, &rs.ToolName, &rs.ToolCategory, &rs.Score, &rs.UsageCount, &rs.SuccessCount, &lastUsed); err != nil {
			return nil, err
		}
		if lastUsed.Valid {
			rs.LastUsedAt = &lastUsed.String
		}
		out = append(out, &rs)
	}
	return out, rows.Err()
}

// RankToolsForKeywords merges rankings across several keywords
// (spec.md §4.3: a request is tokenized into multiple keywords, and
// candidate tools are ranked by their best score across any matching
// keyword).
func (d *DB) RankToolsForKeywords(keywords []string, limit int) ([]*RoutingScore, error) {
	best := map[string]*RoutingScore{}
	for _, kw := range keywords {
		scores, err := d.RankToolsForKeyword(kw, limit)
		if err != nil {
			return nil, err
		}
		for _, s := range scores {
			if cur, ok := best[s.ToolName]; !ok || s.Score > cur.Score {
				best[s.ToolName] = s
			}
		}
	}
	out := make([]*RoutingScore, 0, len(best))
	for _, s := range best {
		out = append(out, s)
	}
	sortRoutingScoresDesc(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortRoutingScoresDesc(scores []*RoutingScore) {
	for i := 1; i < len(scores); i++ {
		for j := i; j > 0 && scores[j].Score > scores[j-1].Score; j-- {
			scores[j], scores[j-1] = scores[j-1], scores[j]
		}
	}
}
