package brief

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ronylicha/agentctx-core/internal/store"
)

// entry is one scored line within a section, prior to final rendering.
type entry struct {
	relevance float64
	line      string
	ref       SourceRef
}

// section is a named, ordered-by-relevance block of the rendered
// brief. The header line is never dropped by truncation (spec.md
// §4.5), even when its body ends up empty.
type section struct {
	header  string
	entries []entry
}

func (s *section) sortDesc() {
	sort.SliceStable(s.entries, func(i, j int) bool { return s.entries[i].relevance > s.entries[j].relevance })
}

// buildSections turns gathered sources into the ordered section list,
// tagging every entry with the relevance weights fixed in spec.md
// §4.5 and collecting the flat SourceRef list the compact-restore
// contract returns.
func buildSections(src *gatheredSources) ([]*section, []SourceRef) {
	var refs []SourceRef

	tasks := &section{header: "# Active Tasks"}
	for _, st := range src.subtasks {
		rel := relPendingTask
		if st.Status == store.SubtaskRunning {
			rel = relRunningTask
		}
		tasks.entries = append(tasks.entries, entry{
			relevance: rel,
			line:      fmt.Sprintf("- [%s] %s (%s)", st.Status, st.Description, st.ID),
			ref:       SourceRef{Type: "subtask", ID: st.ID, Relevance: rel},
		})
	}
	tasks.sortDesc()

	messages := &section{header: "# Messages"}
	for _, m := range src.messages {
		rel := relMessageLow
		if m.Priority >= 5 {
			rel = relMessageHigh
		}
		messages.entries = append(messages.entries, entry{
			relevance: rel,
			line:      fmt.Sprintf("- [%s] topic=%s priority=%d", m.Category, m.Topic, m.Priority),
			ref:       SourceRef{Type: "message", ID: m.ID, Relevance: rel},
		})
	}
	messages.sortDesc()

	blockings := &section{header: "# Blocked By"}
	for _, b := range src.blockings {
		blockings.entries = append(blockings.entries, entry{
			relevance: relActiveBlocking,
			line:      fmt.Sprintf("- blocked by %s: %s", b.BlockerID, b.Reason),
			ref:       SourceRef{Type: "blocking", ID: b.ID, Relevance: relActiveBlocking},
		})
	}

	actions := &section{header: "# Recent Actions"}
	for _, a := range src.actions {
		actions.entries = append(actions.entries, entry{
			relevance: relAction,
			line:      fmt.Sprintf("- %s (%s) exit=%d %dms", a.ToolName, a.ToolCategory, a.ExitCode, a.DurationMS),
			ref:       SourceRef{Type: "action", ID: a.ID, Relevance: relAction},
		})
	}

	session := &section{header: "# Current Request"}
	if src.latestReq != nil {
		session.entries = append(session.entries, entry{
			relevance: relSessionInfo,
			line:      fmt.Sprintf("- [%s/%s] %s", src.latestReq.Category, src.latestReq.Status, src.latestReq.Prompt),
			ref:       SourceRef{Type: "request", ID: src.latestReq.ID, Relevance: relSessionInfo},
		})
	}

	project := &section{header: "# Project"}
	if src.project != nil {
		project.entries = append(project.entries, entry{
			relevance: relProjectInfo,
			line:      fmt.Sprintf("- %s (%s)", src.project.Name, src.project.Path),
			ref:       SourceRef{Type: "project", ID: src.project.ID, Relevance: relProjectInfo},
		})
	}

	sections := []*section{tasks, messages, blockings, actions, session, project}
	for _, sec := range sections {
		for _, e := range sec.entries {
			refs = append(refs, e.ref)
		}
	}
	return sections, refs
}

// templateOrder returns the section headers in the order a given
// agent category's template presents them (spec.md §4.5: one of three
// templates chosen by agent category).
func templateOrder(agentCategory string) []string {
	switch agentCategory {
	case "orchestrator":
		return []string{"# Project", "# Current Request", "# Active Tasks", "# Blocked By", "# Messages", "# Recent Actions"}
	case "developer":
		return []string{"# Active Tasks", "# Recent Actions", "# Blocked By", "# Messages", "# Current Request", "# Project"}
	default: // specialist
		return []string{"# Messages", "# Active Tasks", "# Blocked By", "# Recent Actions", "# Current Request", "# Project"}
	}
}

// render lays out sections per the agent category's template, then
// estimates tokens and truncates if the budget is exceeded. snapshot,
// when non-nil, is rendered as a supplementary section ahead of the
// template's own sections (used by compact-restore).
func (g *Generator) render(agentCategory string, src *gatheredSources, maxTokens int, snapshot *store.AgentContextSnapshot) (*Brief, error) {
	sections, refs := buildSections(src)
	byHeader := make(map[string]*section, len(sections))
	for _, s := range sections {
		byHeader[s.header] = s
	}

	var lines []string
	if snapshot != nil {
		lines = append(lines, "# Restored Snapshot", "- trigger: "+snapshot.Trigger, "- "+snapshot.Summary)
	}
	for _, header := range templateOrder(agentCategory) {
		sec := byHeader[header]
		lines = append(lines, sec.header)
		for _, e := range sec.entries {
			lines = append(lines, e.line)
		}
	}

	text := strings.Join(lines, "\n")
	truncated := false
	for estimateTokens(text) > maxTokens {
		idx := lastBodyLineIndex(lines)
		if idx < 0 {
			break
		}
		lines = append(lines[:idx], lines[idx+1:]...)
		text = strings.Join(lines, "\n")
		truncated = true
	}
	if truncated {
		text += "\n[truncated: brief exceeded token budget]"
	}

	return &Brief{
		Text:          text,
		TokenEstimate: estimateTokens(text),
		Truncated:     truncated,
		Sources:       refs,
	}, nil
}

// estimateTokens approximates token count at one token per four
// characters, rounded up (spec.md §4.5).
func estimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + 3) / 4
}

// lastBodyLineIndex finds the last line in lines that is not a header
// (does not start with '#'), so truncation never removes a header.
func lastBodyLineIndex(lines []string) int {
	for i := len(lines) - 1; i >= 0; i-- {
		if !strings.HasPrefix(lines[i], "#") {
			return i
		}
	}
	return -1
}
