// Package brief renders the per-agent context brief described in
// spec.md §4.5: a concurrent, six-source read followed by a
// relevance-ordered, token-budgeted plain-text render. Fan-out uses a
// bare sync.WaitGroup rather than a dependency like
// golang.org/x/sync/errgroup.
package brief

import (
	"sync"
	"time"

	"github.com/ronylicha/agentctx-core/internal/logging"
	"github.com/ronylicha/agentctx-core/internal/store"
)

var log = logging.New("brief")

// Generator produces briefs and owns the compact save/restore
// pipeline against a single store.DB.
type Generator struct {
	db *store.DB
}

// New builds a Generator backed by db.
func New(db *store.DB) *Generator {
	return &Generator{db: db}
}

// SourceRef names one piece of evidence consulted while assembling a
// brief or a restore, carrying the relevance score it was ranked
// with (spec.md §4.5).
type SourceRef struct {
	Type      string  `json:"type"`
	ID        string  `json:"id"`
	Relevance float64 `json:"relevance"`
}

// Brief is the rendered output of GenerateBrief.
type Brief struct {
	Text          string      `json:"text"`
	TokenEstimate int         `json:"token_estimate"`
	Truncated     bool        `json:"truncated"`
	Sources       []SourceRef `json:"sources"`
}

// Relevance weights fixed by spec.md §4.5.
const (
	relRunningTask    = 1.0
	relPendingTask    = 0.8
	relMessageHigh    = 1.0
	relMessageLow     = 0.6
	relActiveBlocking = 0.9
	relAction         = 0.7
	relSessionInfo    = 0.8
	relProjectInfo    = 0.7
)

const defaultActionLimit = 10
const restoreActionLimit = 15
const defaultMaxTokens = 2000

type gatheredSources struct {
	project      *store.Project
	latestReq    *store.Request
	subtasks     []*store.Subtask
	messages     []*store.AgentMessage
	blockings    []*store.Blocking
	actions      []*store.Action
	sessionErr   error
	subtasksErr  error
	messagesErr  error
	blockingsErr error
	actionsErr   error
	requestErr   error
	projectErr   error
}

// gather runs the six spec.md §4.5 reads concurrently against a
// single projectID/sessionID/agent pair.
func (g *Generator) gather(projectID, sessionID, agentCategory, agentID string, actionLimit int) *gatheredSources {
	var wg sync.WaitGroup
	out := &gatheredSources{}

	wg.Add(6)
	go func() {
		defer wg.Done()
		out.subtasks, out.subtasksErr = g.db.ListSubtasksByAgent(agentCategory, agentID)
	}()
	go func() {
		defer wg.Done()
		out.messages, out.messagesErr = g.db.UnreadMessagesForAgent(projectID, agentID, 50)
	}()
	go func() {
		defer wg.Done()
		out.blockings, out.blockingsErr = g.db.BlockingsFor(agentID)
	}()
	go func() {
		defer wg.Done()
		out.actions, out.actionsErr = g.db.ActionsForAgent(agentCategory, agentID, actionLimit)
	}()
	go func() {
		defer wg.Done()
		out.latestReq, out.requestErr = g.db.LatestRequestForSession(sessionID)
	}()
	go func() {
		defer wg.Done()
		out.project, out.projectErr = g.db.ProjectByID(projectID)
	}()
	wg.Wait()

	for _, err := range []error{out.subtasksErr, out.messagesErr, out.blockingsErr, out.actionsErr, out.requestErr, out.projectErr} {
		if err != nil {
			log.Warn("brief source read failed: %v", err)
		}
	}
	return out
}

// GenerateBrief assembles a brief for agentID (category agentCategory)
// within sessionID. maxTokens of zero uses the default budget.
func (g *Generator) GenerateBrief(projectID, sessionID, agentCategory, agentID string, maxTokens int) (*Brief, error) {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	src := g.gather(projectID, sessionID, agentCategory, agentID, defaultActionLimit)
	return g.render(agentCategory, src, maxTokens, nil)
}

func nowTimestampTime() time.Time {
	return time.Now().UTC()
}
