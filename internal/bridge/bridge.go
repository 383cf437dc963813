// Package bridge is the Notification Bridge from spec.md §4.3: the
// sole subscriber on the store's wake channel, translating committed
// writes into Fanout Hub events. It keeps no per-subscriber state of
// its own; every piece of subscriber/channel bookkeeping lives in
// internal/hub.
package bridge

import (
	"encoding/json"

	"github.com/ronylicha/agentctx-core/internal/hub"
	"github.com/ronylicha/agentctx-core/internal/logging"
	natslib "github.com/ronylicha/agentctx-core/internal/nats"
	"github.com/ronylicha/agentctx-core/internal/store"
)

var log = logging.New("bridge")

// Bridge owns the NATS subscription and forwards every wake envelope
// to hub, routed onto the channel its kind and payload imply.
type Bridge struct {
	url string
	hub *hub.Hub

	client *natslib.Client
	sub    interface{ Unsubscribe() error }
}

// New builds a Bridge that will connect to wakeURL (store.WakePublisher.URL())
// once Start is called.
func New(wakeURL string, h *hub.Hub) *Bridge {
	return &Bridge{url: wakeURL, hub: h}
}

// Start connects and subscribes to store.WakeSubject. On disconnect
// the nats.go client handles reconnects itself (internal/nats.Client's
// capped-exponential backoff); Start only needs to run once per
// process lifetime.
func (b *Bridge) Start() error {
	client, err := natslib.NewClient(b.url)
	if err != nil {
		return err
	}
	b.client = client

	sub, err := client.Subscribe(store.WakeSubject, b.handleEnvelope)
	if err != nil {
		client.Close()
		return err
	}
	b.sub = sub
	log.Info("subscribed to %s at %s", store.WakeSubject, b.url)
	return nil
}

// Stop closes the subscription and the underlying connection.
func (b *Bridge) Stop() {
	if b.sub != nil {
		_ = b.sub.Unsubscribe()
	}
	if b.client != nil {
		b.client.Close()
	}
}

func (b *Bridge) handleEnvelope(msg *natslib.Message) {
	var env store.WakeEnvelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		log.Warn("malformed wake envelope: %v", err)
		return
	}

	event := eventName(env)
	data := env.Payload
	if data == nil {
		data = mustJSON(map[string]interface{}{
			"id":         env.ID,
			"project_id": env.ProjectID,
			"at":         env.At,
		})
	}
	b.hub.Publish(channelFor(env), event, data)
}

// eventName maps a wake envelope's (kind, action) onto the hub's
// closed event-name set, aliasing the store's "agent_message" kind to
// the "message" tracked family.
func eventName(env store.WakeEnvelope) string {
	kind := env.Kind
	if kind == "agent_message" {
		kind = "message"
	}
	return kind + "." + env.Action
}

// channelFor routes the periodic metric snapshot (internal/workers)
// onto the hub's dedicated "metrics" channel, an agent_message onto
// its recipient's private channel or its topic's channel, and every
// other wake kind onto "global".
func channelFor(env store.WakeEnvelope) string {
	switch env.Kind {
	case "metric":
		return "metrics"
	case "agent_message":
		var msg store.AgentMessage
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			log.Warn("malformed agent_message payload, routing to global: %v", err)
			return "global"
		}
		if msg.RecipientAgentID != "" {
			return "agents/" + msg.RecipientAgentID
		}
		if msg.Topic != "" {
			return "topics/" + msg.Topic
		}
		return "global"
	default:
		return "global"
	}
}

func mustJSON(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return b
}
