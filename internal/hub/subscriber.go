package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	sendBufferSize = 256
	pingInterval   = 30 * time.Second
	silenceLimit   = 60 * time.Second
)

// trackedEvent is one outstanding delivery awaiting an ack, kept in a
// subscriber's own retry queue (spec.md §4.4).
type trackedEvent struct {
	frame    deliveryFrame
	raw      []byte
	sentAt   time.Time
	attempts int
}

// Subscriber is one live real-time connection: an authenticated,
// multi-channel member with its own tracked-delivery retry queue.
type Subscriber struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	authMu    sync.RWMutex
	authed    bool
	agentID   string
	sessionID string

	chMu     sync.Mutex
	channels map[string]bool

	activityMu sync.Mutex
	lastActive time.Time

	retryMu sync.Mutex
	retries map[string]*trackedEvent
}

func newSubscriber(id string, conn *websocket.Conn, h *Hub) *Subscriber {
	return &Subscriber{
		id:         id,
		hub:        h,
		conn:       conn,
		send:       make(chan []byte, sendBufferSize),
		channels:   make(map[string]bool),
		retries:    make(map[string]*trackedEvent),
		lastActive: time.Now(),
	}
}

func (s *Subscriber) touch() {
	s.activityMu.Lock()
	s.lastActive = time.Now()
	s.activityMu.Unlock()
}

func (s *Subscriber) idleSince() time.Duration {
	s.activityMu.Lock()
	defer s.activityMu.Unlock()
	return time.Since(s.lastActive)
}

func (s *Subscriber) isAuthed() bool {
	s.authMu.RLock()
	defer s.authMu.RUnlock()
	return s.authed
}

func (s *Subscriber) setAuthed(agentID, sessionID string) {
	s.authMu.Lock()
	s.authed = true
	s.agentID = agentID
	s.sessionID = sessionID
	s.authMu.Unlock()
}

func (s *Subscriber) joined(ch string) bool {
	s.chMu.Lock()
	defer s.chMu.Unlock()
	return s.channels[ch]
}

func (s *Subscriber) join(ch string) {
	s.chMu.Lock()
	s.channels[ch] = true
	s.chMu.Unlock()
}

func (s *Subscriber) leave(ch string) {
	s.chMu.Lock()
	delete(s.channels, ch)
	s.chMu.Unlock()
}

func (s *Subscriber) channelList() []string {
	s.chMu.Lock()
	defer s.chMu.Unlock()
	out := make([]string, 0, len(s.channels))
	for ch := range s.channels {
		out = append(out, ch)
	}
	return out
}

// enqueue writes data to the subscriber's send buffer, non-blocking:
// a full buffer means a slow subscriber and is treated as a delivery
// failure by the caller (hub.go), not a reason to block every other
// subscriber's broadcast.
func (s *Subscriber) enqueue(data []byte) bool {
	select {
	case s.send <- data:
		return true
	default:
		return false
	}
}

// trackDelivery records a tracked event for retry-until-ack. attempts
// counts resends only, not the original send, so maxAttempts resends
// happen before pendingRetries gives up on it.
func (s *Subscriber) trackDelivery(frame deliveryFrame, raw []byte) {
	s.retryMu.Lock()
	s.retries[frame.ID] = &trackedEvent{frame: frame, raw: raw, sentAt: time.Now(), attempts: 0}
	s.retryMu.Unlock()
}

// ack removes a tracked event once the subscriber confirms receipt.
func (s *Subscriber) ack(id string) {
	s.retryMu.Lock()
	delete(s.retries, id)
	s.retryMu.Unlock()
}

// pendingRetries snapshots tracked events older than staleness that
// have not yet been resent maxAttempts times, for the hub's scan loop.
// A tracked event is resent up to maxAttempts times before it expires,
// on top of its original send.
func (s *Subscriber) pendingRetries(staleness time.Duration, maxAttempts int) (resend []*trackedEvent, expired []string) {
	s.retryMu.Lock()
	defer s.retryMu.Unlock()
	now := time.Now()
	for id, ev := range s.retries {
		if now.Sub(ev.sentAt) < staleness {
			continue
		}
		if ev.attempts >= maxAttempts {
			expired = append(expired, id)
			delete(s.retries, id)
			continue
		}
		ev.attempts++
		ev.sentAt = now
		resend = append(resend, ev)
	}
	return resend, expired
}

func mustJSON(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte(`{}`)
	}
	return b
}
