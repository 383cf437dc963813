package hub

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ronylicha/agentctx-core/internal/authtoken"
	"github.com/ronylicha/agentctx-core/internal/config"
)

// Handler upgrades an HTTP request to the real-time duplex surface
// (spec.md §6). Register it on whatever router owns the process's
// /realtime (or similar) route.
func (h *Hub) Handler() http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("upgrade failed: %v", err)
			return
		}
		h.serve(conn)
	}
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if h.cfg.Mode != config.ModeProduction {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range h.cfg.CORSAllowedOrigins {
		if o == origin {
			return true
		}
	}
	return false
}

func (h *Hub) serve(conn *websocket.Conn) {
	id := uuid.New().String()
	s := newSubscriber(id, conn, h)
	h.register(s)

	h.send(s, connectedFrame{Type: "connected", ClientID: id, Timestamp: now()})

	done := make(chan struct{})
	go h.writePump(s, done)
	h.readPump(s, done)
}

func (h *Hub) readPump(s *Subscriber, done chan struct{}) {
	defer func() {
		close(done)
		h.evict(s)
	}()
	s.conn.SetReadLimit(1 << 20)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		s.touch()
		h.dispatch(s, data)
	}
}

func (h *Hub) writePump(s *Subscriber, done chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case msg, ok := <-s.send:
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			h.send(s, pingFrame{Type: "ping"})
		}
	}
}

func (h *Hub) send(s *Subscriber, v interface{}) {
	if !s.enqueue(mustJSON(v)) {
		log.Warn("subscriber %s send buffer full, evicting", s.id)
		h.evict(s)
	}
}

func (h *Hub) dispatch(s *Subscriber, data []byte) {
	var in inboundFrame
	if err := json.Unmarshal(data, &in); err != nil {
		h.send(s, errorFrame{Error: "could not parse frame", Code: ErrParse, Timestamp: now()})
		return
	}

	switch in.Type {
	case "auth":
		h.handleAuth(s, in)
	case "subscribe":
		h.handleSubscribe(s, in)
	case "unsubscribe":
		h.handleUnsubscribe(s, in)
	case "publish":
		h.handlePublish(s, in)
	case "ping":
		h.send(s, pongFrame{Type: "pong", Timestamp: now()})
	case "ack":
		s.ack(in.ID)
	default:
		h.send(s, errorFrame{Error: "unknown message type " + in.Type, Code: ErrUnknownType, Timestamp: now()})
	}
}

func (h *Hub) handleAuth(s *Subscriber, in inboundFrame) {
	agentID := in.AgentID
	if h.cfg.Mode == config.ModeProduction {
		if in.Token == "" {
			h.send(s, errorFrame{Error: "missing credentials", Code: ErrMissingCredentials, Timestamp: now()})
			return
		}
		payload, err := authtoken.Verify(h.cfg.AuthSecret, in.Token)
		if err != nil {
			h.send(s, errorFrame{Error: err.Error(), Code: ErrMissingCredentials, Timestamp: now()})
			return
		}
		agentID = payload.AgentID
		if in.SessionID == "" {
			in.SessionID = payload.SessionID
		}
	} else if agentID == "" {
		h.send(s, errorFrame{Error: "missing credentials", Code: ErrMissingCredentials, Timestamp: now()})
		return
	}

	s.setAuthed(agentID, in.SessionID)
	h.Join(s, "global")
	h.Join(s, agentChannel(agentID))
	if in.SessionID != "" {
		h.Join(s, sessionChannel(in.SessionID))
	}
	h.Broadcast("global", "agent.connected", mustJSON(map[string]string{"agent_id": agentID}), "")
}

func (h *Hub) handleSubscribe(s *Subscriber, in inboundFrame) {
	if !validChannel(in.Channel) {
		h.send(s, errorFrame{Error: "invalid channel " + in.Channel, Code: ErrInvalidChannel, Timestamp: now()})
		return
	}
	h.Join(s, in.Channel)
	h.send(s, ackFrame{Type: "ack", ID: in.ID, Success: true})
}

func (h *Hub) handleUnsubscribe(s *Subscriber, in inboundFrame) {
	if !validChannel(in.Channel) {
		h.send(s, errorFrame{Error: "invalid channel " + in.Channel, Code: ErrInvalidChannel, Timestamp: now()})
		return
	}
	h.Leave(s, in.Channel)
	h.send(s, ackFrame{Type: "ack", ID: in.ID, Success: true})
}

func (h *Hub) handlePublish(s *Subscriber, in inboundFrame) {
	if !isAllowedEvent(in.Event) {
		h.send(s, ackFrame{Type: "ack", ID: in.ID, Success: false, Error: "event not in allowed set"})
		return
	}
	if !validChannel(in.Channel) {
		h.send(s, errorFrame{Error: "invalid channel " + in.Channel, Code: ErrInvalidChannel, Timestamp: now()})
		return
	}
	h.Broadcast(in.Channel, in.Event, in.Data, "")
	h.send(s, ackFrame{Type: "ack", ID: in.ID, Success: true})
}

func now() string { return time.Now().UTC().Format(time.RFC3339Nano) }
