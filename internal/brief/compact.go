package brief

import (
	"encoding/json"
	"fmt"

	"github.com/ronylicha/agentctx-core/internal/store"
)

// Save assembles a compact-time snapshot for sessionID under
// projectID and archives it (spec.md §4.5). trigger must be one of
// auto, manual, proactive.
func (g *Generator) Save(projectID, sessionID, trigger string) (*store.AgentContextSnapshot, error) {
	activeTasks, err := g.db.ActiveSubtasksForProject(projectID)
	if err != nil {
		return nil, err
	}
	recentActions, err := g.db.RecentActionsForProject(projectID, 50)
	if err != nil {
		return nil, err
	}
	decisions, err := g.db.HighPriorityMessagesForProject(projectID, 20)
	if err != nil {
		return nil, err
	}
	agentStates, err := g.db.ListAgentContexts(projectID)
	if err != nil {
		return nil, err
	}
	recentMessages, err := g.db.RecentMessagesForProject(projectID, 20)
	if err != nil {
		return nil, err
	}
	session, err := g.db.SessionByID(sessionID)
	if err != nil {
		return nil, err
	}

	modifiedFiles := map[string]bool{}
	var modifiedList []string
	for _, a := range recentActions {
		for _, p := range a.AffectedPaths {
			if !modifiedFiles[p] {
				modifiedFiles[p] = true
				modifiedList = append(modifiedList, p)
			}
		}
	}

	summary := fmt.Sprintf("session %s: %d tools run (%d ok, %d failed), %d active tasks, %d files touched",
		sessionID, session.TotalTools, session.SuccessTools, session.ErrorTools, len(activeTasks), len(modifiedList))

	snap := &store.AgentContextSnapshot{
		ProjectID:       projectID,
		SessionID:       sessionID,
		Trigger:         trigger,
		ActiveTasks:     mustMarshalJSON(activeTasks),
		ModifiedFiles:   mustMarshalJSON(modifiedList),
		RecentDecisions: mustMarshalJSON(decisions),
		AgentStates:     mustMarshalJSON(agentStates),
		Summary:         summary,
		RecentMessages:  mustMarshalJSON(recentMessages),
	}
	saved, err := g.db.SaveSnapshot(snap)
	if err != nil {
		return nil, err
	}
	// Stamping last-snapshot time is best-effort and per-request (spec.md
	// §4.5); a session with no requests yet simply has nothing to stamp.
	if reqs, rerr := g.db.ListRequestsBySession(sessionID); rerr == nil {
		for _, r := range reqs {
			_ = g.db.StampLastSnapshot(r.ID, nowTimestampTime())
		}
	}
	return saved, nil
}

// Restore reads the latest snapshot for sessionID, then runs the
// Brief Generator to produce a fresh brief using live state plus the
// snapshot as supplementary context, returning both (spec.md §4.5).
func (g *Generator) Restore(projectID, sessionID, agentCategory, agentID string, maxTokens int) (*Brief, *store.AgentContextSnapshot, error) {
	snap, err := g.db.LatestSnapshotForSession(sessionID)
	if err != nil {
		return nil, nil, err
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	src := g.gather(projectID, sessionID, agentCategory, agentID, restoreActionLimit)
	b, err := g.render(agentCategory, src, maxTokens, snap)
	if err != nil {
		return nil, nil, err
	}
	b.Sources = append(b.Sources, SourceRef{Type: "snapshot", ID: snap.ID, Relevance: 1.0})
	return b, snap, nil
}

func mustMarshalJSON(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return b
}
