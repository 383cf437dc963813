package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ronylicha/agentctx-core/internal/apierr"
)

// MessageCategory is the closed set from spec.md §3.
type MessageCategory string

const (
	MessageInfo         MessageCategory = "info"
	MessageRequest      MessageCategory = "request"
	MessageResponse     MessageCategory = "response"
	MessageNotification MessageCategory = "notification"
)

func validMessageCategory(c MessageCategory) bool {
	switch c {
	case MessageInfo, MessageRequest, MessageResponse, MessageNotification:
		return true
	}
	return false
}

// AgentMessage is a pub/sub or direct message routed through the
// fanout hub (spec.md §3). An empty RecipientAgentID (NULL in the
// table) means topic broadcast; a non-empty one means direct delivery
// on that agent's channel.
type AgentMessage struct {
	ID               string          `json:"id"`
	ProjectID        string          `json:"project_id"`
	SenderAgentID    string          `json:"sender_agent_id,omitempty"`
	RecipientAgentID string          `json:"recipient_agent_id,omitempty"`
	Topic            string          `json:"topic"`
	Category         MessageCategory `json:"category"`
	Payload          json.RawMessage `json:"payload"`
	Priority         int             `json:"priority"`
	ReadBy           []string        `json:"read_by"`
	CreatedAt        time.Time       `json:"created_at"`
	ExpiresAt        *time.Time      `json:"expires_at,omitempty"`
}

// PublishMessage records a message and wakes the Notification Bridge.
// ttl of zero means the default from config.Config.MessageTTLSeconds,
// applied by the caller before this is invoked.
func (d *DB) PublishMessage(projectID, senderAgentID, recipientAgentID, topic string, category MessageCategory, payload json.RawMessage, priority int, ttl time.Duration) (*AgentMessage, error) {
	if !validMessageCategory(category) {
		return nil, apierr.Field("category", "must be one of info, request, response, notification")
	}
	if priority < 0 || priority > 10 {
		return nil, apierr.Field("priority", "must be between 0 and 10")
	}
	if payload == nil {
		payload = json.RawMessage("{}")
	}

	id := uuid.New().String()
	var expiresAt sql.NullString
	if ttl > 0 {
		expiresAt = sql.NullString{String: time.Now().UTC().Add(ttl).Format(timeLayout), Valid: true}
	}

	err := d.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO agent_messages (id, project_id, sender_agent_id, recipient_agent_id, topic,
			                            category, payload, priority, read_by, expires_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, '[]', ?)`,
			id, projectID, nullString(senderAgentID), nullString(recipientAgentID), topic,
			string(category), string(payload), priority, expiresAt,
		)
		return err
	})
	if err != nil {
		return nil, err
	}
	msg, err := d.MessageByID(id)
	if err != nil {
		return nil, err
	}
	d.wake.Publish(WakeEnvelope{
		Kind: "agent_message", Action: "created", ProjectID: projectID, ID: id,
		Payload: mustMarshal(msg), At: nowRFC3339(),
	})
	return msg, nil
}

// MarkMessageRead appends agentID to a message's read_by set,
// idempotently.
func (d *DB) MarkMessageRead(id, agentID string) error {
	return d.withTx(func(tx *sql.Tx) error {
		var readByRaw string
		if err := tx.QueryRow(`SELECT read_by FROM agent_messages WHERE id = ?`, id).Scan(&readByRaw); err != nil {
			if err == sql.ErrNoRows {
				return apierr.NotFound("agent_message", id)
			}
			return err
		}
		var readBy []string
		if err := json.Unmarshal([]byte(readByRaw), &readBy); err != nil {
			return err
		}
		for _, a := range readBy {
			if a == agentID {
				return nil
			}
		}
		readBy = append(readBy, agentID)
		out, err := json.Marshal(readBy)
		if err != nil {
			return err
		}
		_, err = tx.Exec(`UPDATE agent_messages SET read_by = ? WHERE id = ?`, string(out), id)
		return err
	})
}

// MessageByID fetches a message by id.
func (d *DB) MessageByID(id string) (*AgentMessage, error) {
	row := d.conn.QueryRow(
		`SELECT id, project_id, sender_agent_id, recipient_agent_id, topic, category, payload,
		        priority, read_by, created_at, expires_at
		 FROM agent_messages WHERE id = ?`, id,
	)
	return scanMessage(row)
}

// MessagesForTopic returns unexpired messages on topic, newest first.
func (d *DB) MessagesForTopic(projectID, topic string, limit int) ([]*AgentMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.conn.Query(
		`SELECT id, project_id, sender_agent_id, recipient_agent_id, topic, category, payload,
		        priority, read_by, created_at, expires_at
		 FROM agent_messages
		 WHERE project_id = ? AND topic = ? AND (expires_at IS NULL OR expires_at > ?)
		 ORDER BY created_at DESC LIMIT ?`,
		projectID, topic, nowRFC3339(), limit,
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

// ExpireMessages deletes messages whose expires_at has passed,
// returning the count removed. Used by the periodic TTL-expiry
// worker.
func (d *DB) ExpireMessages() (int64, error) {
	var n int64
	err := d.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`DELETE FROM agent_messages WHERE expires_at IS NOT NULL AND expires_at <= ?`, nowRFC3339())
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

// PurgeReadMessagesOlderThan deletes messages older than cutoff that at
// least one agent has read (a non-empty read_by), direct and broadcast
// alike — used by the read-message retention worker (spec.md §8,
// default 168h).
func (d *DB) PurgeReadMessagesOlderThan(cutoff time.Time) (int64, error) {
	var n int64
	err := d.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(
			`DELETE FROM agent_messages
			 WHERE created_at <= ? AND read_by != '[]'`,
			cutoff.UTC().Format(timeLayout),
		)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

func scanMessage(row scannable) (*AgentMessage, error) {
	var m AgentMessage
	var sender, recipient sql.NullString
	var category, payload, readBy, createdAt string
	var expiresAt sql.NullString
	err := row.Scan(&m.ID, &m.ProjectID, &sender, &recipient, &m.Topic, &category, &payload,
		&m.Priority, &readBy, &createdAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, apierr.NotFound("agent_message", "")
	}
	if err != nil {
		return nil, err
	}
	m.SenderAgentID = sender.String
	m.RecipientAgentID = recipient.String
	m.Category = MessageCategory(category)
	m.Payload = json.RawMessage(payload)
	if err := json.Unmarshal([]byte(readBy), &m.ReadBy); err != nil {
		return nil, err
	}
	m.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	if expiresAt.Valid {
		t, _ := time.Parse(timeLayout, expiresAt.String)
		m.ExpiresAt = &t
	}
	return &m, nil
}

func mustMarshal(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return b
}
