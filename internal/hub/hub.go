// Package hub is the Fanout Hub from spec.md §4.4: a WebSocket
// broadcast surface on github.com/gorilla/websocket, organized into
// channel-sharded rooms with per-channel locking, a tracked-event
// retry queue for task_list.*/subtask.*/message.* deliveries, and
// ping/pong liveness eviction.
package hub

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ronylicha/agentctx-core/internal/config"
	"github.com/ronylicha/agentctx-core/internal/logging"
)

var log = logging.New("hub")

const (
	retryScanInterval = 2 * time.Second
	retryStaleAfter   = 5 * time.Second
	retryMaxAttempts  = 3
)

// room is one channel's membership set, locked independently of every
// other room so a slow broadcast on one channel never blocks another.
type room struct {
	mu      sync.RWMutex
	members map[*Subscriber]bool
}

func newRoom() *room { return &room{members: make(map[*Subscriber]bool)} }

func (r *room) add(s *Subscriber) {
	r.mu.Lock()
	r.members[s] = true
	r.mu.Unlock()
}

func (r *room) remove(s *Subscriber) {
	r.mu.Lock()
	delete(r.members, s)
	r.mu.Unlock()
}

func (r *room) snapshot() []*Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Subscriber, 0, len(r.members))
	for s := range r.members {
		out = append(out, s)
	}
	return out
}

// Hub owns every channel room and the auth mode switch.
type Hub struct {
	cfg *config.Config

	roomsMu sync.RWMutex
	rooms   map[string]*room

	subsMu       sync.RWMutex
	subscribers  map[string]*Subscriber
	nextClientID uint64

	stop chan struct{}
	wg   sync.WaitGroup
}

// New builds a Hub; cfg.Mode governs whether auth frames require a
// verified bearer token (production) or accept a bare agent id
// (development).
func New(cfg *config.Config) *Hub {
	return &Hub{
		cfg:         cfg,
		rooms:       make(map[string]*room),
		subscribers: make(map[string]*Subscriber),
		stop:        make(chan struct{}),
	}
}

// Start launches the retry-scan loop. Call once; Stop ends it.
func (h *Hub) Start() {
	h.wg.Add(1)
	go h.retryLoop()
}

// Stop ends the retry-scan loop and blocks until it exits.
func (h *Hub) Stop() {
	close(h.stop)
	h.wg.Wait()
}

func (h *Hub) roomFor(ch string) *room {
	h.roomsMu.RLock()
	r, ok := h.rooms[ch]
	h.roomsMu.RUnlock()
	if ok {
		return r
	}
	h.roomsMu.Lock()
	defer h.roomsMu.Unlock()
	if r, ok := h.rooms[ch]; ok {
		return r
	}
	r = newRoom()
	h.rooms[ch] = r
	return r
}

// Join adds s to channel ch's room and records the membership on s
// itself so eviction/cleanup can walk it in one place.
func (h *Hub) Join(s *Subscriber, ch string) {
	h.roomFor(ch).add(s)
	s.join(ch)
}

// Leave removes s from ch.
func (h *Hub) Leave(s *Subscriber, ch string) {
	h.roomFor(ch).remove(s)
	s.leave(ch)
}

// LeaveAll removes s from every room it had joined, used on eviction
// and on graceful disconnect.
func (h *Hub) LeaveAll(s *Subscriber) {
	for _, ch := range s.channelList() {
		h.roomFor(ch).remove(s)
		s.leave(ch)
	}
}

func (h *Hub) register(s *Subscriber) {
	h.subsMu.Lock()
	h.subscribers[s.id] = s
	h.subsMu.Unlock()
}

func (h *Hub) unregister(s *Subscriber) {
	h.subsMu.Lock()
	delete(h.subscribers, s.id)
	h.subsMu.Unlock()
}

func (h *Hub) nextID() uint64 {
	h.subsMu.Lock()
	defer h.subsMu.Unlock()
	h.nextClientID++
	return h.nextClientID
}

// Broadcast delivers event/data to every subscriber of ch. An event in
// a tracked family (task_list.*, subtask.*, message.*) that carries an
// id (Publish assigns one) is recorded in each recipient's retry
// queue; everything else is fire-and-forget. A full send buffer marks
// that recipient a slow subscriber: it is evicted rather than allowed
// to stall the room.
func (h *Hub) Broadcast(ch, event string, data []byte, id string) {
	frame := deliveryFrame{
		ID:        id,
		Channel:   ch,
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	raw := mustJSON(frame)
	tracked := isTracked(event)

	for _, s := range h.roomFor(ch).snapshot() {
		if !s.enqueue(raw) {
			log.Warn("subscriber %s send buffer full on %s, evicting", s.id, ch)
			h.evict(s)
			continue
		}
		if tracked && frame.ID != "" {
			s.trackDelivery(frame, raw)
		}
	}
}

// Publish is the entry point external translators (the Notification
// Bridge, periodic workers) use to push an event onto ch. Tracked
// families get a server-assigned id per spec.md §4.4; everything else
// is published bare.
func (h *Hub) Publish(ch, event string, data []byte) {
	id := ""
	if isTracked(event) {
		id = uuid.New().String()
	}
	h.Broadcast(ch, event, data, id)
}

// evict removes a subscriber from every room and closes its
// connection; used for both slow-consumer and silence-timeout paths.
func (h *Hub) evict(s *Subscriber) {
	h.LeaveAll(s)
	h.unregister(s)
	_ = s.conn.Close()
}

func (h *Hub) retryLoop() {
	defer h.wg.Done()
	ticker := time.NewTicker(retryScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			h.scanRetries()
		}
	}
}

func (h *Hub) scanRetries() {
	h.subsMu.RLock()
	subs := make([]*Subscriber, 0, len(h.subscribers))
	for _, s := range h.subscribers {
		subs = append(subs, s)
	}
	h.subsMu.RUnlock()

	for _, s := range subs {
		if s.idleSince() > silenceLimit {
			log.Warn("subscriber %s silent for %s, evicting", s.id, silenceLimit)
			h.broadcastDisconnect(s)
			h.evict(s)
			continue
		}
		resend, expired := s.pendingRetries(retryStaleAfter, retryMaxAttempts)
		for _, ev := range resend {
			if !s.enqueue(ev.raw) {
				log.Warn("subscriber %s send buffer full during retry, evicting", s.id)
				h.evict(s)
				break
			}
		}
		for _, id := range expired {
			log.Warn("tracked event %s to subscriber %s exhausted retries, dropping", id, s.id)
		}
	}
}

func (h *Hub) broadcastDisconnect(s *Subscriber) {
	if !s.isAuthed() {
		return
	}
	h.Broadcast("global", "agent.disconnected", mustJSON(map[string]string{"agent_id": s.agentID}), "")
}

// ClientCount reports the number of currently-registered subscribers.
func (h *Hub) ClientCount() int {
	h.subsMu.RLock()
	defer h.subsMu.RUnlock()
	return len(h.subscribers)
}
