// Package workers runs the periodic background sweeps from spec.md
// §4.6: message expiry, snapshot age-out, stale-session closing, and a
// metrics broadcast. The metric snapshot is announced the same way the
// store announces its committed writes: as a wake envelope, so the
// Notification Bridge running in the realtime process delivers it onto
// the Fanout Hub's "metrics" channel without this package needing a
// hub of its own. Start is context-cancellable and launches one
// goroutine per sweep, since each runs on its own interval.
package workers

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ronylicha/agentctx-core/internal/config"
	"github.com/ronylicha/agentctx-core/internal/logging"
	"github.com/ronylicha/agentctx-core/internal/store"
)

var log = logging.New("workers")

const (
	sessionSweepInterval     = 60 * time.Second
	metricsBroadcastInterval = 5 * time.Second
	metricsAggregationWindow = time.Hour
)

// Supervisor owns the four background loops and the in-memory view of
// sessions currently flagged inactive (spec.md §4.6: inactive sessions
// are flagged in memory; only sessions past the longer stale threshold
// are actually closed).
type Supervisor struct {
	db  *store.DB
	cfg *config.Config

	wg sync.WaitGroup

	inactiveMu  sync.RWMutex
	inactiveIDs map[string]time.Time
}

// New builds a Supervisor. Call Start to launch its loops and Stop to
// wait for them to exit after ctx is canceled.
func New(db *store.DB, cfg *config.Config) *Supervisor {
	return &Supervisor{
		db:          db,
		cfg:         cfg,
		inactiveIDs: make(map[string]time.Time),
	}
}

// Start launches the four sweep loops. They exit when ctx is canceled.
func (s *Supervisor) Start(ctx context.Context) {
	s.wg.Add(4)
	go s.runMessageExpiry(ctx)
	go s.runSnapshotPurge(ctx)
	go s.runStaleSessionSweep(ctx)
	go s.runMetricsBroadcast(ctx)
	log.Info("background sweeps started")
}

// Stop blocks until every loop has exited. Callers cancel the context
// passed to Start first.
func (s *Supervisor) Stop() {
	s.wg.Wait()
	log.Info("background sweeps stopped")
}

// InactiveSessionIDs returns the ids currently flagged inactive, as of
// the last stale-session sweep.
func (s *Supervisor) InactiveSessionIDs() []string {
	s.inactiveMu.RLock()
	defer s.inactiveMu.RUnlock()
	out := make([]string, 0, len(s.inactiveIDs))
	for id := range s.inactiveIDs {
		out = append(out, id)
	}
	return out
}

func (s *Supervisor) runMessageExpiry(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.expireMessages()
		}
	}
}

func (s *Supervisor) expireMessages() {
	expired, err := s.db.ExpireMessages()
	if err != nil {
		log.Error("expire messages: %v", err)
	} else if expired > 0 {
		log.Info("expired %d messages past their ttl", expired)
	}

	cutoff := time.Now().UTC().Add(-durationHours(s.cfg.ReadMessageMaxHours))
	purged, err := s.db.PurgeReadMessagesOlderThan(cutoff)
	if err != nil {
		log.Error("purge read messages: %v", err)
	} else if purged > 0 {
		log.Info("purged %d read messages older than %s", purged, cutoff)
	}
}

func (s *Supervisor) runSnapshotPurge(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.purgeSnapshots()
		}
	}
}

func (s *Supervisor) purgeSnapshots() {
	cutoff := time.Now().UTC().Add(-durationHours(s.cfg.SnapshotMaxHours))
	purged, err := s.db.PurgeSnapshotsOlderThan(cutoff)
	if err != nil {
		log.Error("purge snapshots: %v", err)
	} else if purged > 0 {
		log.Info("purged %d context snapshots older than %s", purged, cutoff)
	}
}

func (s *Supervisor) runStaleSessionSweep(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepSessions()
		}
	}
}

func (s *Supervisor) sweepSessions() {
	activity, err := s.db.ActiveSessionActivity()
	if err != nil {
		log.Error("list active session activity: %v", err)
		return
	}

	now := time.Now().UTC()
	inactiveCutoff := now.Add(-time.Duration(s.cfg.InactiveMinutes * float64(time.Minute)))
	staleCutoff := now.Add(-durationHours(s.cfg.StaleSessionHours))

	inactive := make(map[string]time.Time)
	var closed int
	for _, sa := range activity {
		if sa.LastActivity.Before(staleCutoff) {
			if _, err := s.db.EndSession(sa.Session.ID); err != nil {
				log.Error("end stale session %s: %v", sa.Session.ID, err)
			} else {
				closed++
			}
			continue
		}
		if sa.LastActivity.Before(inactiveCutoff) {
			inactive[sa.Session.ID] = sa.LastActivity
		}
	}

	s.inactiveMu.Lock()
	s.inactiveIDs = inactive
	s.inactiveMu.Unlock()

	if len(inactive) > 0 {
		log.Info("%d sessions flagged inactive (no activity since %s)", len(inactive), inactiveCutoff)
	}
	if closed > 0 {
		log.Info("closed %d stale sessions (no activity since %s)", closed, staleCutoff)
	}
}

func (s *Supervisor) runMetricsBroadcast(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(metricsBroadcastInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.broadcastMetrics()
		}
	}
}

type metricSnapshot struct {
	ActiveSessions      int     `json:"active_sessions"`
	ActiveAgents        int     `json:"active_agents"`
	PendingRunningTasks int     `json:"pending_running_tasks"`
	CompletedTasksHour  int     `json:"completed_tasks_last_hour"`
	MessagesLastHour    int     `json:"messages_last_hour"`
	ActionsPerMinute    float64 `json:"actions_per_minute"`
	AvgTaskDurationSecs float64 `json:"avg_task_duration_seconds"`
	Timestamp           string  `json:"timestamp"`
}

// broadcastMetrics runs its six aggregation queries (spec.md §4.6)
// concurrently and publishes the result on the hub's "metrics" channel.
func (s *Supervisor) broadcastMetrics() {
	var (
		activity                  []*store.SessionActivity
		activeAgents              int
		pendingRunning, completed int
		messages, actions         int
		avgDuration               float64
	)

	since := time.Now().UTC().Add(-metricsAggregationWindow)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs []error
	run := func(fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}()
	}

	run(func() (err error) { activity, err = s.db.ActiveSessionActivity(); return })
	run(func() (err error) { activeAgents, err = s.db.ActiveAgentCount(); return })
	run(func() (err error) { pendingRunning, completed, err = s.db.TaskStatusCounts(since); return })
	run(func() (err error) { messages, err = s.db.RecentMessageCount(since); return })
	run(func() (err error) { actions, err = s.db.ActionsSince(since); return })
	run(func() (err error) { avgDuration, err = s.db.AverageSubtaskDurationSeconds(since); return })
	wg.Wait()

	for _, err := range errs {
		log.Error("metrics aggregation: %v", err)
	}

	snap := metricSnapshot{
		ActiveSessions:      len(activity),
		ActiveAgents:        activeAgents,
		PendingRunningTasks: pendingRunning,
		CompletedTasksHour:  completed,
		MessagesLastHour:    messages,
		ActionsPerMinute:    float64(actions) / metricsAggregationWindow.Minutes(),
		AvgTaskDurationSecs: avgDuration,
		Timestamp:           time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(snap)
	if err != nil {
		log.Error("marshal metric snapshot: %v", err)
		return
	}
	s.db.Wake().Publish(store.WakeEnvelope{
		Kind:    "metric",
		Action:  "update",
		Payload: data,
		At:      snap.Timestamp,
	})
}

func durationHours(hours float64) time.Duration {
	return time.Duration(hours * float64(time.Hour))
}
