package workers

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ronylicha/agentctx-core/internal/config"
	"github.com/ronylicha/agentctx-core/internal/store"
)

func setupTestDB(t *testing.T) *store.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	d, err := store.Open(dbPath, 5, 0)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func testConfig() *config.Config {
	return &config.Config{Mode: config.ModeDevelopment}
}

func TestSweepSessionsClosesStaleSessions(t *testing.T) {
	db := setupTestDB(t)
	proj, err := db.CreateProject("/repo/stale", "stale-repo", nil)
	require.NoError(t, err)

	sess, err := db.StartSession(proj.ID)
	require.NoError(t, err)

	cfg := testConfig()
	cfg.InactiveMinutes = 1.0 / 6000     // ~10ms
	cfg.StaleSessionHours = 1.0 / 180000 // ~20ms

	s := New(db, cfg)

	time.Sleep(50 * time.Millisecond)
	s.sweepSessions()

	got, err := db.SessionByID(sess.ID)
	require.NoError(t, err)
	require.NotNil(t, got.EndedAt, "expected stale session to be closed")
}

func TestSweepSessionsFlagsInactiveWithoutClosing(t *testing.T) {
	db := setupTestDB(t)
	proj, err := db.CreateProject("/repo/inactive", "inactive-repo", nil)
	require.NoError(t, err)

	sess, err := db.StartSession(proj.ID)
	require.NoError(t, err)

	cfg := testConfig()
	cfg.InactiveMinutes = 1.0 / 6000 // ~10ms
	cfg.StaleSessionHours = 24       // far in the future, never trips

	s := New(db, cfg)

	time.Sleep(50 * time.Millisecond)
	s.sweepSessions()

	got, err := db.SessionByID(sess.ID)
	require.NoError(t, err)
	require.Nil(t, got.EndedAt, "inactive session must not be closed, only flagged")

	require.Contains(t, s.InactiveSessionIDs(), sess.ID)
}

func TestSweepSessionsLeavesFreshSessionsAlone(t *testing.T) {
	db := setupTestDB(t)
	proj, err := db.CreateProject("/repo/fresh", "fresh-repo", nil)
	require.NoError(t, err)

	sess, err := db.StartSession(proj.ID)
	require.NoError(t, err)

	cfg := testConfig()
	cfg.InactiveMinutes = 10
	cfg.StaleSessionHours = 24

	s := New(db, cfg)
	s.sweepSessions()

	got, err := db.SessionByID(sess.ID)
	require.NoError(t, err)
	require.Nil(t, got.EndedAt)
	require.Empty(t, s.InactiveSessionIDs())
}

func TestBroadcastMetricsDoesNotPanicWithNoSubscribers(t *testing.T) {
	db := setupTestDB(t)
	proj, err := db.CreateProject("/repo/metrics", "metrics-repo", nil)
	require.NoError(t, err)
	_, err = db.StartSession(proj.ID)
	require.NoError(t, err)

	cfg := testConfig()
	s := New(db, cfg)

	require.NotPanics(t, func() { s.broadcastMetrics() })
}

func TestExpireMessagesRunsCleanupQueries(t *testing.T) {
	db := setupTestDB(t)
	cfg := testConfig()
	cfg.ReadMessageMaxHours = 168

	s := New(db, cfg)
	require.NotPanics(t, func() { s.expireMessages() })
}

func TestPurgeSnapshotsRunsCleanupQuery(t *testing.T) {
	db := setupTestDB(t)
	cfg := testConfig()
	cfg.SnapshotMaxHours = 24

	s := New(db, cfg)
	require.NotPanics(t, func() { s.purgeSnapshots() })
}
