package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ronylicha/agentctx-core/internal/config"
)

// setupTestDB opens a store backed by a temp-dir SQLite file and an
// embedded wake channel on an ephemeral port.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	tempDir := t.TempDir()
	dbPath := filepath.Join(tempDir, "test.db")

	d, err := Open(dbPath, 5, 0)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestCreateProjectIsIdempotentByPath(t *testing.T) {
	d := setupTestDB(t)

	p1, err := d.CreateProject("/repo/a", "repo-a", nil)
	require.NoError(t, err)
	require.NotEmpty(t, p1.ID)

	p2, err := d.CreateProject("/repo/a", "repo-a-renamed", nil)
	require.NoError(t, err)
	require.Equal(t, p1.ID, p2.ID)
}

func TestSessionLifecycleTracksToolOutcomes(t *testing.T) {
	d := setupTestDB(t)
	proj, err := d.CreateProject("/repo/b", "repo-b", nil)
	require.NoError(t, err)

	sess, err := d.StartSession(proj.ID)
	require.NoError(t, err)
	require.Nil(t, sess.EndedAt)

	require.NoError(t, d.RecordToolOutcome(sess.ID, true))
	require.NoError(t, d.RecordToolOutcome(sess.ID, false))

	ended, err := d.EndSession(sess.ID)
	require.NoError(t, err)
	require.NotNil(t, ended.EndedAt)
	require.Equal(t, 2, ended.TotalTools)
	require.Equal(t, 1, ended.SuccessTools)
	require.Equal(t, 1, ended.ErrorTools)

	_, err = d.EndSession(sess.ID)
	require.Error(t, err, "ending an already-ended session should fail")
}

func TestRequestRejectsUnknownCategory(t *testing.T) {
	d := setupTestDB(t)
	proj, err := d.CreateProject("/repo/c", "repo-c", nil)
	require.NoError(t, err)
	sess, err := d.StartSession(proj.ID)
	require.NoError(t, err)

	_, err = d.CreateRequest(proj.ID, sess.ID, "do a thing", RequestCategory("not-real"), nil)
	require.Error(t, err)
}

func TestTaskListWaveNumbersAutoIncrement(t *testing.T) {
	d := setupTestDB(t)
	proj, err := d.CreateProject("/repo/d", "repo-d", nil)
	require.NoError(t, err)
	sess, err := d.StartSession(proj.ID)
	require.NoError(t, err)
	req, err := d.CreateRequest(proj.ID, sess.ID, "build x", RequestFeature, nil)
	require.NoError(t, err)

	w1, err := d.CreateTaskList(req.ID, "wave one")
	require.NoError(t, err)
	require.Equal(t, 1, w1.WaveNumber)

	w2, err := d.CreateTaskList(req.ID, "wave two")
	require.NoError(t, err)
	require.Equal(t, 2, w2.WaveNumber)
}

func TestSubtaskWithDependenciesStartsBlocked(t *testing.T) {
	d := setupTestDB(t)
	proj, err := d.CreateProject("/repo/e", "repo-e", nil)
	require.NoError(t, err)
	sess, err := d.StartSession(proj.ID)
	require.NoError(t, err)
	req, err := d.CreateRequest(proj.ID, sess.ID, "build y", RequestFeature, nil)
	require.NoError(t, err)
	wave, err := d.CreateTaskList(req.ID, "wave one")
	require.NoError(t, err)

	dep, err := d.CreateSubtask(wave.ID, "backend", "backend-1", "prep", nil)
	require.NoError(t, err)
	require.Equal(t, SubtaskPending, dep.Status)

	blocked, err := d.CreateSubtask(wave.ID, "backend", "backend-2", "build on prep", []string{dep.ID})
	require.NoError(t, err)
	require.Equal(t, SubtaskBlocked, blocked.Status)

	ok, err := d.DependenciesSatisfied(blocked)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = d.TransitionSubtask(dep.ID, SubtaskRunning)
	require.NoError(t, err)
	_, err = d.TransitionSubtask(dep.ID, SubtaskCompleted)
	require.NoError(t, err)

	ok, err = d.DependenciesSatisfied(blocked)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSubtaskRejectsInvalidTransition(t *testing.T) {
	d := setupTestDB(t)
	proj, err := d.CreateProject("/repo/f", "repo-f", nil)
	require.NoError(t, err)
	sess, err := d.StartSession(proj.ID)
	require.NoError(t, err)
	req, err := d.CreateRequest(proj.ID, sess.ID, "build z", RequestFeature, nil)
	require.NoError(t, err)
	wave, err := d.CreateTaskList(req.ID, "wave one")
	require.NoError(t, err)
	st, err := d.CreateSubtask(wave.ID, "backend", "backend-1", "work", nil)
	require.NoError(t, err)

	_, err = d.TransitionSubtask(st.ID, SubtaskCompleted)
	require.Error(t, err, "pending cannot jump straight to completed")
}

func TestActionBlobsRoundTripThroughCompression(t *testing.T) {
	d := setupTestDB(t)
	proj, err := d.CreateProject("/repo/g", "repo-g", nil)
	require.NoError(t, err)
	sess, err := d.StartSession(proj.ID)
	require.NoError(t, err)
	req, err := d.CreateRequest(proj.ID, sess.ID, "run a tool", RequestFeature, nil)
	require.NoError(t, err)
	wave, err := d.CreateTaskList(req.ID, "wave one")
	require.NoError(t, err)
	st, err := d.CreateSubtask(wave.ID, "backend", "backend-1", "work", nil)
	require.NoError(t, err)

	input := []byte(`{"cmd": "go test ./..."}`)
	output := []byte("ok  	github.com/ronylicha/agentctx-core/internal/store	0.4s")

	act, err := d.RecordAction(st.ID, "shell", ToolCommand, input, output, []string{"internal/store"}, 0, 412, nil)
	require.NoError(t, err)

	fetched, err := d.ActionByID(act.ID)
	require.NoError(t, err)
	require.Equal(t, input, fetched.Input)
	require.Equal(t, output, fetched.Output)
}

func TestRoutingScoreConvergesTowardSuccess(t *testing.T) {
	d := setupTestDB(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, d.RecordRoutingOutcome("deploy", "kubectl-apply", "command", true))
	}
	require.NoError(t, d.RecordRoutingOutcome("deploy", "rm-rf", "command", false))

	ranked, err := d.RankToolsForKeyword("deploy", 5)
	require.NoError(t, err)
	require.NotEmpty(t, ranked)
	require.Equal(t, "kubectl-apply", ranked[0].ToolName)
}

func TestSubscribeIsIdempotentAndRejectsUnknownTopic(t *testing.T) {
	d := setupTestDB(t)
	cat := config.DefaultCatalog()

	_, err := d.Subscribe(cat, "agent-1", "not_a_real_topic")
	require.Error(t, err)

	s1, err := d.Subscribe(cat, "agent-1", "build_failed")
	require.NoError(t, err)
	s2, err := d.Subscribe(cat, "agent-1", "build_failed")
	require.NoError(t, err)
	require.Equal(t, s1.ID, s2.ID)

	subs, err := d.SubscribersForTopic("build_failed")
	require.NoError(t, err)
	require.Contains(t, subs, "agent-1")

	require.NoError(t, d.Unsubscribe("agent-1", "build_failed"))
	subs, err = d.SubscribersForTopic("build_failed")
	require.NoError(t, err)
	require.NotContains(t, subs, "agent-1")
}

func TestBlockRejectsSelfBlockAndDuplicate(t *testing.T) {
	d := setupTestDB(t)

	_, err := d.Block("agent-1", "agent-1", "cannot happen")
	require.Error(t, err)

	_, err = d.Block("agent-1", "agent-2", "waiting on review")
	require.NoError(t, err)
	_, err = d.Block("agent-1", "agent-2", "waiting on review again")
	require.Error(t, err, "duplicate active blocking should conflict")

	blocked, err := d.IsBlocked("agent-2")
	require.NoError(t, err)
	require.True(t, blocked)

	require.NoError(t, d.Unblock("agent-1", "agent-2"))
	blocked, err = d.IsBlocked("agent-2")
	require.NoError(t, err)
	require.False(t, blocked)
}

func TestPublishMessageAndMarkRead(t *testing.T) {
	d := setupTestDB(t)
	proj, err := d.CreateProject("/repo/h", "repo-h", nil)
	require.NoError(t, err)

	msg, err := d.PublishMessage(proj.ID, "agent-1", "", "build_failed", MessageNotification, nil, 5, 0)
	require.NoError(t, err)
	require.Empty(t, msg.ReadBy)

	require.NoError(t, d.MarkMessageRead(msg.ID, "agent-2"))
	require.NoError(t, d.MarkMessageRead(msg.ID, "agent-2"))

	fetched, err := d.MessageByID(msg.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"agent-2"}, fetched.ReadBy)
}

func TestAgentContextUpsertOverwritesInPlace(t *testing.T) {
	d := setupTestDB(t)
	proj, err := d.CreateProject("/repo/i", "repo-i", nil)
	require.NoError(t, err)

	_, err = d.UpsertAgentContext(proj.ID, "agent-1", "backend", nil, nil, nil, "starting out")
	require.NoError(t, err)
	updated, err := d.UpsertAgentContext(proj.ID, "agent-1", "backend", nil, []string{"go-testing"}, nil, "halfway done")
	require.NoError(t, err)

	require.Equal(t, "halfway done", updated.ProgressSummary)
	require.Equal(t, []string{"go-testing"}, updated.SkillsToRestore)

	fetched, err := d.AgentContextByAgent(proj.ID, "agent-1")
	require.NoError(t, err)
	require.Equal(t, updated.ID, fetched.ID)
}

func TestSnapshotsAreSeparateFromLiveContext(t *testing.T) {
	d := setupTestDB(t)
	proj, err := d.CreateProject("/repo/j", "repo-j", nil)
	require.NoError(t, err)
	sess, err := d.StartSession(proj.ID)
	require.NoError(t, err)

	snap, err := d.SaveSnapshot(&AgentContextSnapshot{
		ProjectID: proj.ID,
		SessionID: sess.ID,
		Trigger:   "manual",
		Summary:   "checkpoint before risky refactor",
	})
	require.NoError(t, err)

	latest, err := d.LatestSnapshotForSession(sess.ID)
	require.NoError(t, err)
	require.Equal(t, snap.ID, latest.ID)

	_, err = d.SaveSnapshot(&AgentContextSnapshot{ProjectID: proj.ID, SessionID: sess.ID, Trigger: "bogus"})
	require.Error(t, err)
}
