package hub

import "encoding/json"

// Error codes named in spec.md §6's real-time surface.
const (
	ErrParse            = "PARSE_ERROR"
	ErrUnknownType       = "UNKNOWN_MESSAGE_TYPE"
	ErrInvalidChannel    = "INVALID_CHANNEL"
	ErrMissingCredentials = "4003"
)

// inboundFrame is the superset of every client -> server shape named
// in spec.md §6: {type:"auth", agent_id?, session_id?, token?},
// {type:"subscribe", channel, id}, {type:"unsubscribe", channel},
// {type:"publish", channel, event, data}, {type:"ping"},
// {type:"ack", id}.
type inboundFrame struct {
	Type      string          `json:"type"`
	AgentID   string          `json:"agent_id,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Token     string          `json:"token,omitempty"`
	Channel   string          `json:"channel,omitempty"`
	ID        string          `json:"id,omitempty"`
	Event     string          `json:"event,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// connectedFrame is sent immediately after upgrade.
type connectedFrame struct {
	Type      string `json:"type"`
	ClientID  string `json:"client_id"`
	Timestamp string `json:"timestamp"`
}

// ackFrame acknowledges a subscribe/unsubscribe/publish request, or
// carries a subscriber's ack of a tracked delivery back out (mirrored
// shape, distinguished by context).
type ackFrame struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// pongFrame answers a ping, from either side.
type pongFrame struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

// pingFrame is sent server -> client every pingInterval.
type pingFrame struct {
	Type string `json:"type"`
}

// deliveryFrame is an event pushed to a channel's subscribers. It
// carries no "type" field, matching the literal wire shape in
// spec.md §6.
type deliveryFrame struct {
	ID        string          `json:"id,omitempty"`
	Channel   string          `json:"channel"`
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
}

// errorFrame reports a protocol-level failure.
type errorFrame struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Timestamp string `json:"timestamp"`
}
