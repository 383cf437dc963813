package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	nc "github.com/nats-io/nats.go"

	"github.com/ronylicha/agentctx-core/internal/logging"
)

// WakeSubject is the single subject every wake envelope is published
// to. The Notification Bridge is its sole subscriber, matching the
// spec's requirement that no other process LISTEN on the wake
// channel; this module is the entire "database-notification bridge"
// half of that design.
const WakeSubject = "core.wake"

// WakeEnvelope is the payload published after a commit. Kind names
// the entity that changed (e.g. "agent_message", "subtask",
// "blocking"); Action is "created", "updated", or "deleted".
type WakeEnvelope struct {
	Kind      string          `json:"kind"`
	Action    string          `json:"action"`
	ProjectID string          `json:"project_id,omitempty"`
	ID        string          `json:"id"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	At        string          `json:"at"`
}

// WakePublisher owns an embedded NATS server and a loopback client
// that publishes onto it.
type WakePublisher struct {
	srv  *server.Server
	conn *nc.Conn
	log  *logging.Logger
}

// NewWakePublisher starts an embedded NATS server bound to 127.0.0.1
// on port (falling back to 4222 when port <= 0) with JetStream
// storage under dataDir, then connects a loopback client to it.
func NewWakePublisher(dataDir string, port int) (*WakePublisher, error) {
	if port <= 0 {
		port = 4222
	}

	opts := &server.Options{
		Host:       "127.0.0.1",
		Port:       port,
		NoLog:      true,
		NoSigs:     true,
		MaxPayload: 1024 * 1024,
		JetStream:  true,
		StoreDir:   dataDir,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create wake channel server: %w", err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		return nil, fmt.Errorf("wake channel server not ready for connections")
	}

	conn, err := nc.Connect(fmt.Sprintf("nats://127.0.0.1:%d", port),
		nc.ReconnectWait(2*time.Second),
		nc.MaxReconnects(-1),
	)
	if err != nil {
		ns.Shutdown()
		return nil, fmt.Errorf("connect wake channel publisher: %w", err)
	}

	return &WakePublisher{srv: ns, conn: conn, log: logging.New("wake")}, nil
}

// URL returns the connection string external bridge processes use to
// subscribe to WakeSubject.
func (w *WakePublisher) URL() string { return w.conn.ConnectedUrl() }

// Publish announces a committed change. Failures are logged but never
// returned to callers: the wake channel is a best-effort nudge, not a
// part of the write's durability contract (the row is already
// committed by the time Publish is called).
func (w *WakePublisher) Publish(env WakeEnvelope) {
	data, err := json.Marshal(env)
	if err != nil {
		w.log.Error("marshal wake envelope: %v", err)
		return
	}
	if err := w.conn.Publish(WakeSubject, data); err != nil {
		w.log.Warn("publish wake envelope for %s/%s: %v", env.Kind, env.ID, err)
	}
}

// Close drains the publisher connection and shuts down the embedded
// server.
func (w *WakePublisher) Close() {
	if w.conn != nil {
		w.conn.Close()
	}
	if w.srv != nil {
		w.srv.Shutdown()
		w.srv.WaitForShutdown()
	}
}
