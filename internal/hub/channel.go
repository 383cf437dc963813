package hub

import "strings"

// validChannel reports whether ch is one of the five shapes spec.md
// §4.4 allows: global, metrics, agents/{id}, sessions/{id}, or
// topics/{name}. The {id}/{name} segment must be non-empty.
func validChannel(ch string) bool {
	switch ch {
	case "global", "metrics":
		return true
	}
	for _, prefix := range []string{"agents/", "sessions/", "topics/"} {
		if strings.HasPrefix(ch, prefix) {
			return len(ch) > len(prefix)
		}
	}
	return false
}

func agentChannel(agentID string) string   { return "agents/" + agentID }
func sessionChannel(sessionID string) string { return "sessions/" + sessionID }

// trackedFamilies names the three event-name prefixes spec.md §4.4
// tracks with per-subscriber retry (task_list.*, subtask.*, message.*).
var trackedFamilies = []string{"task_list.", "subtask.", "message."}

func isTracked(event string) bool {
	for _, prefix := range trackedFamilies {
		if strings.HasPrefix(event, prefix) {
			return true
		}
	}
	return false
}

// allowedEvents is the closed set of event names a publish frame may
// carry (spec.md §4.4 "accepted iff the event name is in the closed
// set"): the kind.action pairs the store's wake envelopes produce,
// request.updated and blocking.deleted (which no store path
// publishes), and the hub's own lifecycle and worker-originated events.
var allowedEvents = map[string]bool{
	"project.created": true,

	"request.created": true,
	"request.updated": true,

	"task_list.created": true,
	"task_list.updated": true,

	"subtask.created": true,
	"subtask.updated": true,

	"action.created": true,

	"agent_message.created": true,
	"message.created":       true,

	"blocking.created": true,
	"blocking.deleted": true,

	"agent.connected":    true,
	"agent.disconnected": true,

	"metric.update": true,
}

func isAllowedEvent(event string) bool {
	return allowedEvents[event]
}
