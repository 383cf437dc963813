package bridge

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/ronylicha/agentctx-core/internal/config"
	"github.com/ronylicha/agentctx-core/internal/hub"
	"github.com/ronylicha/agentctx-core/internal/store"
)

func TestEventNameJoinsKindAndAction(t *testing.T) {
	cases := []struct {
		env  store.WakeEnvelope
		want string
	}{
		{store.WakeEnvelope{Kind: "task_list", Action: "created"}, "task_list.created"},
		{store.WakeEnvelope{Kind: "subtask", Action: "updated"}, "subtask.updated"},
		{store.WakeEnvelope{Kind: "agent_message", Action: "created"}, "message.created"},
		{store.WakeEnvelope{Kind: "metric", Action: "update"}, "metric.update"},
	}
	for _, c := range cases {
		require.Equal(t, c.want, eventName(c.env))
	}
}

func TestChannelForRoutesMetricsSeparately(t *testing.T) {
	require.Equal(t, "metrics", channelFor(store.WakeEnvelope{Kind: "metric", Action: "update"}))
	require.Equal(t, "global", channelFor(store.WakeEnvelope{Kind: "task_list", Action: "created"}))
}

func TestChannelForRoutesDirectMessageToRecipient(t *testing.T) {
	payload, err := json.Marshal(store.AgentMessage{RecipientAgentID: "agent-2", Topic: "build_failed"})
	require.NoError(t, err)
	require.Equal(t, "agents/agent-2", channelFor(store.WakeEnvelope{Kind: "agent_message", Action: "created", Payload: payload}))
}

func TestChannelForRoutesBroadcastMessageToTopic(t *testing.T) {
	payload, err := json.Marshal(store.AgentMessage{Topic: "build_failed"})
	require.NoError(t, err)
	require.Equal(t, "topics/build_failed", channelFor(store.WakeEnvelope{Kind: "agent_message", Action: "created", Payload: payload}))
}

func TestChannelForFallsBackToGlobalOnMalformedMessagePayload(t *testing.T) {
	require.Equal(t, "global", channelFor(store.WakeEnvelope{Kind: "agent_message", Action: "created", Payload: json.RawMessage(`not-json`)}))
}

func TestMustJSONFallsBackOnUnmarshalableValue(t *testing.T) {
	require.JSONEq(t, `{"id":"tl-1"}`, string(mustJSON(map[string]interface{}{"id": "tl-1"})))
	require.Equal(t, `{}`, string(mustJSON(make(chan int))))
}

// TestBridgeDeliversWakeEnvelopeToSubscriber exercises the full path a
// committed write travels in production: store.WakePublisher.Publish ->
// the bridge's NATS subscription -> hub.Publish -> a real WebSocket
// client, standing up the embedded server and driving it end to end
// rather than mocking the transport.
func TestBridgeDeliversWakeEnvelopeToSubscriber(t *testing.T) {
	dataDir := t.TempDir()
	// A dedicated port (rather than 0, which falls back to the default
	// 4222) keeps this test from racing internal/store's own wake-channel
	// tests when `go test ./...` runs packages concurrently.
	pub, err := store.NewWakePublisher(dataDir, 42289)
	require.NoError(t, err)
	defer pub.Close()

	h := hub.New(&config.Config{Mode: config.ModeDevelopment})
	h.Start()
	defer h.Stop()

	srv := httptest.NewServer(h.Handler())
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	_, _, err = conn.ReadMessage() // connected frame
	require.NoError(t, err)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "auth", "agent_id": "agent-1"}))

	br := New(pub.URL(), h)
	require.NoError(t, br.Start())
	defer br.Stop()

	// drain the agent.connected broadcast triggered by auth
	_, _, err = conn.ReadMessage()
	require.NoError(t, err)

	pub.Publish(store.WakeEnvelope{
		Kind:    "task_list",
		Action:  "created",
		Payload: json.RawMessage(`{"id":"tl-1","title":"rollout"}`),
		At:      time.Now().UTC().Format(time.RFC3339Nano),
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var delivered struct {
		ID      string          `json:"id"`
		Channel string          `json:"channel"`
		Event   string          `json:"event"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &delivered))
	require.Equal(t, "global", delivered.Channel)
	require.Equal(t, "task_list.created", delivered.Event)
	require.NotEmpty(t, delivered.ID, "task_list events are a tracked family and must carry a retry id")
	require.JSONEq(t, `{"id":"tl-1","title":"rollout"}`, string(delivered.Data))
}
