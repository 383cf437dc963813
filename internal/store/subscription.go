package store

import (
	"database/sql"

	"github.com/google/uuid"

	"github.com/ronylicha/agentctx-core/internal/apierr"
	"github.com/ronylicha/agentctx-core/internal/config"
)

// Subscription is an (agent, topic) pub/sub registration. topic must
// belong to the catalog's closed topic set (spec.md §3).
type Subscription struct {
	ID      string `json:"id"`
	AgentID string `json:"agent_id"`
	Topic   string `json:"topic"`
}

// Subscribe registers agentID for topic, idempotently returning the
// existing row if the pair is already subscribed.
func (d *DB) Subscribe(cat *config.Catalog, agentID, topic string) (*Subscription, error) {
	if !cat.IsAllowedTopic(topic) {
		return nil, apierr.Field("topic", "not in the allowed topic catalog")
	}

	if existing, err := d.subscriptionByPair(agentID, topic); err == nil {
		return existing, nil
	} else if !isNotFound(err) {
		return nil, err
	}

	id := uuid.New().String()
	err := d.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO subscriptions (id, agent_id, topic) VALUES (?, ?, ?)`, id, agentID, topic)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Subscription{ID: id, AgentID: agentID, Topic: topic}, nil
}

// Unsubscribe removes an (agent, topic) subscription. It is not an
// error to unsubscribe from a pair that was never subscribed.
func (d *DB) Unsubscribe(agentID, topic string) error {
	return d.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`DELETE FROM subscriptions WHERE agent_id = ? AND topic = ?`, agentID, topic)
		return err
	})
}

// DeleteSubscriptionByID removes a subscription by its row id, unlike
// Unsubscribe's idempotent delete-by-pair: an unknown id is a
// not-found error rather than a silent no-op.
func (d *DB) DeleteSubscriptionByID(id string) error {
	return d.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`DELETE FROM subscriptions WHERE id = ?`, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return apierr.NotFound("subscription", id)
		}
		return nil
	})
}

// SubscribersForTopic returns every agent subscribed to topic.
func (d *DB) SubscribersForTopic(topic string) ([]string, error) {
	rows, err := d.conn.Query(`SELECT agent_id FROM subscriptions WHERE topic = ?`, topic)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var agentID string
		if err := rows.Scan(&agentID); err != nil {
			return nil, err
		}
		out = append(out, agentID)
	}
	return out, rows.Err()
}

// TopicsForAgent returns every topic agentID is subscribed to.
func (d *DB) TopicsForAgent(agentID string) ([]string, error) {
	rows, err := d.conn.Query(`SELECT topic FROM subscriptions WHERE agent_id = ?`, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var topic string
		if err := rows.Scan(&topic); err != nil {
			return nil, err
		}
		out = append(out, topic)
	}
	return out, rows.Err()
}

func (d *DB) subscriptionByPair(agentID, topic string) (*Subscription, error) {
	var s Subscription
	err := d.conn.QueryRow(
		`SELECT id, agent_id, topic FROM subscriptions WHERE agent_id = ? AND topic = ?`, agentID, topic,
	).Scan(&s.ID, &s.AgentID, &s.Topic)
	if err == sql.ErrNoRows {
		return nil, apierr.NotFound("subscription", "")
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}
