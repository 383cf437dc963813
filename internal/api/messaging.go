package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ronylicha/agentctx-core/internal/apierr"
	"github.com/ronylicha/agentctx-core/internal/store"
)

type sendMessageBody struct {
	ProjectID        string                `json:"project_id"`
	SenderAgentID    string                `json:"sender_agent_id"`
	RecipientAgentID string                `json:"recipient_agent_id"`
	Topic            string                `json:"topic"`
	Category         store.MessageCategory `json:"category"`
	Payload          json.RawMessage       `json:"payload"`
	Priority         int                   `json:"priority"`
	TTLSeconds       int                   `json:"ttl_seconds"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	limitRequestSize(r)
	var body sendMessageBody
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, err)
		return
	}
	if body.ProjectID == "" || body.Topic == "" {
		respondError(w, apierr.Validation("missing required fields", map[string]string{
			"project_id": "required", "topic": "required",
		}))
		return
	}
	if !s.catalog.IsAllowedTopic(body.Topic) {
		respondError(w, apierr.Field("topic", "not in the allowed topic catalog"))
		return
	}
	if body.Priority < 0 {
		body.Priority = 0
	}
	if body.Priority > 10 {
		body.Priority = 10
	}

	ttl := time.Duration(body.TTLSeconds) * time.Second
	if body.TTLSeconds == 0 {
		ttl = time.Duration(s.cfg.MessageTTLSeconds) * time.Second
	}

	msg, err := s.db.PublishMessage(body.ProjectID, body.SenderAgentID, body.RecipientAgentID, body.Topic,
		body.Category, body.Payload, body.Priority, ttl)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, msg)
}

func (s *Server) handleMessagesForAgent(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["agentID"]
	projectID := r.URL.Query().Get("project_id")
	if projectID == "" {
		respondError(w, apierr.Field("project_id", "required"))
		return
	}

	topics, err := s.db.TopicsForAgent(agentID)
	if err != nil {
		respondError(w, err)
		return
	}
	limit := queryInt(r, "limit", 50)

	seen := map[string]bool{}
	var out []*store.AgentMessage
	for _, topic := range topics {
		msgs, err := s.db.MessagesForTopic(projectID, topic, limit)
		if err != nil {
			respondError(w, err)
			return
		}
		for _, m := range msgs {
			if !seen[m.ID] {
				seen[m.ID] = true
				out = append(out, m)
			}
		}
	}
	respondJSON(w, http.StatusOK, out)
}

type subscribeBody struct {
	AgentID string `json:"agent_id"`
	Topic   string `json:"topic"`
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	limitRequestSize(r)
	var body subscribeBody
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, err)
		return
	}
	if body.AgentID == "" || body.Topic == "" {
		respondError(w, apierr.Validation("missing required fields", map[string]string{
			"agent_id": "required", "topic": "required",
		}))
		return
	}
	sub, err := s.db.Subscribe(s.catalog, body.AgentID, body.Topic)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, sub)
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	limitRequestSize(r)
	var body subscribeBody
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, err)
		return
	}
	if err := s.db.Unsubscribe(body.AgentID, body.Topic); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("topic")
	if topic == "" {
		respondError(w, apierr.Field("topic", "required"))
		return
	}
	agents, err := s.db.SubscribersForTopic(topic)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, agents)
}

func (s *Server) handleSubscriptionsForAgent(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["agentID"]
	topics, err := s.db.TopicsForAgent(agentID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, topics)
}

func (s *Server) handleDeleteSubscription(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.db.DeleteSubscriptionByID(id); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type blockBody struct {
	BlockerID string `json:"blocker_id"`
	BlockedID string `json:"blocked_id"`
	Reason    string `json:"reason"`
}

func (s *Server) handleBlock(w http.ResponseWriter, r *http.Request) {
	limitRequestSize(r)
	var body blockBody
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, err)
		return
	}
	if body.BlockerID == "" || body.BlockedID == "" {
		respondError(w, apierr.Validation("missing required fields", map[string]string{
			"blocker_id": "required", "blocked_id": "required",
		}))
		return
	}
	b, err := s.db.Block(body.BlockerID, body.BlockedID, body.Reason)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, b)
}

func (s *Server) handleUnblock(w http.ResponseWriter, r *http.Request) {
	limitRequestSize(r)
	var body blockBody
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, err)
		return
	}
	if err := s.db.Unblock(body.BlockerID, body.BlockedID); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleBlockingCheck(w http.ResponseWriter, r *http.Request) {
	blocker := r.URL.Query().Get("blocker")
	blocked := r.URL.Query().Get("blocked")
	if blocker == "" || blocked == "" {
		respondError(w, apierr.Validation("missing required fields", map[string]string{
			"blocker": "required", "blocked": "required",
		}))
		return
	}
	blockers, err := s.db.BlockersOf(blocked)
	if err != nil {
		respondError(w, err)
		return
	}
	active := false
	for _, b := range blockers {
		if b == blocker {
			active = true
			break
		}
	}
	respondJSON(w, http.StatusOK, map[string]bool{"blocked": active})
}

func (s *Server) handleBlockingForAgent(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["agentID"]
	blockers, err := s.db.BlockersOf(agentID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, blockers)
}

func (s *Server) handleDeleteBlocking(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.db.DeleteBlockingByID(id); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
