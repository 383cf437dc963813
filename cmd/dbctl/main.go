// Command dbctl is an operator-facing maintenance CLI for the SQLite
// store: stats, cleanup sweeps, and session inspection without going
// through the HTTP API, driven directly against store.DB.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ronylicha/agentctx-core/internal/store"
)

func main() {
	dbPath := flag.String("db", "data/memory.db", "Path to SQLite database")
	action := flag.String("action", "", "Action to perform: stats, cleanup-stats, active-sessions, tools-summary, expire-messages, purge-snapshots")
	sessionHours := flag.Float64("stale-session-hours", 4, "Hours of inactivity before a session is considered stale")
	snapshotHours := flag.Float64("snapshot-max-hours", 168, "Hours before an agent_context_snapshot is eligible for purge")
	jsonOutput := flag.Bool("json", true, "Output as JSON")
	flag.Parse()

	if *action == "" {
		fmt.Fprintf(os.Stderr, "Usage: dbctl -db <path> -action <action> [flags]\n")
		fmt.Fprintf(os.Stderr, "Actions: stats, cleanup-stats, active-sessions, tools-summary, expire-messages, purge-snapshots\n")
		os.Exit(1)
	}

	db, err := store.Open(*dbPath, 4, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	var result interface{}
	switch *action {
	case "stats":
		result, err = db.Stats()
	case "cleanup-stats":
		staleCutoff := time.Now().UTC().Add(-time.Duration(*sessionHours * float64(time.Hour)))
		snapshotCutoff := time.Now().UTC().Add(-time.Duration(*snapshotHours * float64(time.Hour)))
		result, err = db.CleanupStats(staleCutoff, snapshotCutoff)
	case "active-sessions":
		result, err = db.ActiveSessions()
	case "tools-summary":
		result, err = db.ToolsSummary()
	case "expire-messages":
		var n int64
		n, err = db.ExpireMessages()
		result = map[string]int64{"expired": n}
	case "purge-snapshots":
		cutoff := time.Now().UTC().Add(-time.Duration(*snapshotHours * float64(time.Hour)))
		var n int64
		n, err = db.PurgeSnapshotsOlderThan(cutoff)
		result = map[string]int64{"purged": n}
	default:
		fmt.Fprintf(os.Stderr, "unknown action: %s\n", *action)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "action %s failed: %v\n", *action, err)
		os.Exit(1)
	}

	if *jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(result)
		return
	}
	fmt.Printf("%+v\n", result)
}
