package hub

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ronylicha/agentctx-core/internal/config"
)

// newTestSubscriber builds a Subscriber with no underlying connection —
// safe for tests that only exercise Join/Leave/Broadcast/enqueue, since
// only evict() ever touches conn.
func newTestSubscriber(id string, h *Hub) *Subscriber {
	return newSubscriber(id, nil, h)
}

func testHub() *Hub {
	return New(&config.Config{Mode: config.ModeDevelopment})
}

func TestJoinLeaveTracksRoomMembership(t *testing.T) {
	h := testHub()
	s := newTestSubscriber("sub-1", h)

	h.Join(s, "global")
	require.True(t, s.joined("global"))
	require.Len(t, h.roomFor("global").snapshot(), 1)

	h.Leave(s, "global")
	require.False(t, s.joined("global"))
	require.Empty(t, h.roomFor("global").snapshot())
}

func TestLeaveAllClearsEveryChannel(t *testing.T) {
	h := testHub()
	s := newTestSubscriber("sub-1", h)

	h.Join(s, "global")
	h.Join(s, "metrics")
	h.Join(s, "agents/agent-1")

	h.LeaveAll(s)
	require.Empty(t, s.channelList())
	require.Empty(t, h.roomFor("global").snapshot())
	require.Empty(t, h.roomFor("metrics").snapshot())
}

func TestBroadcastDeliversOnlyToRoomMembers(t *testing.T) {
	h := testHub()
	member := newTestSubscriber("member", h)
	outsider := newTestSubscriber("outsider", h)

	h.Join(member, "global")
	h.Join(outsider, "metrics")

	h.Broadcast("global", "project.created", []byte(`{"id":"p1"}`), "")

	select {
	case raw := <-member.send:
		var frame deliveryFrame
		require.NoError(t, json.Unmarshal(raw, &frame))
		require.Equal(t, "global", frame.Channel)
		require.Equal(t, "project.created", frame.Event)
	case <-time.After(time.Second):
		t.Fatal("member did not receive broadcast")
	}

	select {
	case <-outsider.send:
		t.Fatal("outsider on a different channel must not receive the broadcast")
	default:
	}
}

func TestPublishAssignsIDOnlyToTrackedFamilies(t *testing.T) {
	h := testHub()
	s := newTestSubscriber("sub-1", h)
	h.Join(s, "global")

	h.Publish("global", "task_list.created", []byte(`{}`))
	raw := <-s.send
	var frame deliveryFrame
	require.NoError(t, json.Unmarshal(raw, &frame))
	require.NotEmpty(t, frame.ID, "tracked family must get a server-assigned id")

	s2 := newTestSubscriber("sub-2", h)
	h.Join(s2, "global")
	h.Publish("global", "agent.connected", []byte(`{}`))
	raw2 := <-s2.send
	var frame2 deliveryFrame
	require.NoError(t, json.Unmarshal(raw2, &frame2))
	require.Empty(t, frame2.ID, "untracked events are not assigned a retry id")
}

func TestTrackedDeliveryRetriesUntilAckThenStops(t *testing.T) {
	h := testHub()
	s := newTestSubscriber("sub-1", h)
	h.Join(s, "global")

	h.Publish("global", "subtask.updated", []byte(`{}`))
	raw := <-s.send
	var frame deliveryFrame
	require.NoError(t, json.Unmarshal(raw, &frame))
	require.NotEmpty(t, frame.ID)

	resend, expired := s.pendingRetries(0, retryMaxAttempts)
	require.Len(t, resend, 1)
	require.Empty(t, expired)

	s.ack(frame.ID)
	resend, expired = s.pendingRetries(0, retryMaxAttempts)
	require.Empty(t, resend)
	require.Empty(t, expired)
}

func TestPendingRetriesExpireAfterMaxAttempts(t *testing.T) {
	h := testHub()
	s := newTestSubscriber("sub-1", h)
	h.Join(s, "global")

	h.Publish("global", "message.created", []byte(`{}`))
	<-s.send // drain the initial delivery

	var lastID string
	for i := 0; i < retryMaxAttempts; i++ {
		resend, _ := s.pendingRetries(0, retryMaxAttempts)
		require.Len(t, resend, 1)
		lastID = resend[0].frame.ID
	}
	_, expired := s.pendingRetries(0, retryMaxAttempts)
	require.Equal(t, []string{lastID}, expired)
}

func TestValidChannel(t *testing.T) {
	cases := map[string]bool{
		"global":         true,
		"metrics":        true,
		"agents/a1":      true,
		"sessions/s1":    true,
		"topics/deploy":  true,
		"agents/":        false,
		"topics":         false,
		"unknown-room":   false,
	}
	for ch, want := range cases {
		require.Equal(t, want, validChannel(ch), "channel %q", ch)
	}
}

func TestIsAllowedEventClosedSet(t *testing.T) {
	require.True(t, isAllowedEvent("task_list.created"))
	require.True(t, isAllowedEvent("agent.connected"))
	require.False(t, isAllowedEvent("arbitrary.event"))
}

func TestClientCountTracksRegistration(t *testing.T) {
	h := testHub()
	s := newTestSubscriber("sub-1", h)
	require.Equal(t, 0, h.ClientCount())

	h.register(s)
	require.Equal(t, 1, h.ClientCount())

	h.unregister(s)
	require.Equal(t, 0, h.ClientCount())
}
