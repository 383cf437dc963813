package store

import (
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"github.com/ronylicha/agentctx-core/internal/apierr"
)

// Blocking is a directed "blocker blocks blocked" relationship between
// two agents (spec.md §3): the agent named as blocked waits on the
// blocker. Existence of a row means the
// relationship is active; Unblock deletes it outright rather than
// carrying a soft "inactive" flag.
type Blocking struct {
	ID        string `json:"id"`
	BlockerID string `json:"blocker_id"`
	BlockedID string `json:"blocked_id"`
	Reason    string `json:"reason"`
}

// Block records that blockerID blocks blockedID. Self-blocks
// are rejected; the pair must be unique while active.
func (d *DB) Block(blockerID, blockedID, reason string) (*Blocking, error) {
	if blockerID == blockedID {
		return nil, apierr.Field("blocked_id", "an agent cannot block itself")
	}

	id := uuid.New().String()
	err := d.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO blockings (id, blocker_id, blocked_id, reason) VALUES (?, ?, ?, ?)`,
			id, blockerID, blockedID, reason,
		)
		return err
	})
	if err != nil {
		if isUniqueConstraint(err) {
			return nil, apierr.Conflict("this blocking relationship already exists")
		}
		return nil, err
	}

	d.wake.Publish(WakeEnvelope{Kind: "blocking", Action: "created", ID: id, At: nowRFC3339()})
	return &Blocking{ID: id, BlockerID: blockerID, BlockedID: blockedID, Reason: reason}, nil
}

// Unblock removes every active blocking of blockedID by blockerID.
func (d *DB) Unblock(blockerID, blockedID string) error {
	return d.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`DELETE FROM blockings WHERE blocker_id = ? AND blocked_id = ?`, blockerID, blockedID)
		return err
	})
}

// DeleteBlockingByID removes a blocking by its row id, unlike
// Unblock's idempotent delete-by-pair: an unknown id is a not-found
// error rather than a silent no-op.
func (d *DB) DeleteBlockingByID(id string) error {
	return d.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`DELETE FROM blockings WHERE id = ?`, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return apierr.NotFound("blocking", id)
		}
		return nil
	})
}

// BlockersOf returns every agent currently blocking agentID.
func (d *DB) BlockersOf(agentID string) ([]string, error) {
	rows, err := d.conn.Query(`SELECT blocker_id FROM blockings WHERE blocked_id = ?`, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// IsBlocked reports whether agentID has any active blocker.
func (d *DB) IsBlocked(agentID string) (bool, error) {
	blockers, err := d.BlockersOf(agentID)
	if err != nil {
		return false, err
	}
	return len(blockers) > 0, nil
}

func isUniqueConstraint(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
