// Command api serves the REST surface from spec.md §4.2: project,
// session, request, task, subtask, action, messaging, routing and
// context endpoints, plus the background sweeps from §4.6. Process
// lifecycle follows instance-lock acquisition, a pre-flight port
// check, a PID file, and graceful shutdown on signal.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ronylicha/agentctx-core/internal/api"
	"github.com/ronylicha/agentctx-core/internal/brief"
	"github.com/ronylicha/agentctx-core/internal/config"
	"github.com/ronylicha/agentctx-core/internal/instance"
	"github.com/ronylicha/agentctx-core/internal/logging"
	"github.com/ronylicha/agentctx-core/internal/store"
	"github.com/ronylicha/agentctx-core/internal/workers"
)

func main() {
	catalogPath := flag.String("catalog", "", "Topic catalog YAML file (defaults to the built-in catalog)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		if cfg.Mode == config.ModeProduction {
			fmt.Fprintf(os.Stderr, "configuration invalid: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	logging.SetFormat(logging.Format(cfg.LogFormat))
	log := logging.New("api")

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "create data dir: %v\n", err)
		os.Exit(1)
	}

	pidFilePath := filepath.Join(cfg.DataDir, "api.pid")
	instanceMgr := instance.NewManager(pidFilePath, filepath.Join(cfg.DataDir, "api-instance.json"), cfg.APIPort, "api")
	if existing, err := instanceMgr.CheckExistingInstance(); err != nil {
		fmt.Fprintf(os.Stderr, "check existing instance: %v\n", err)
		os.Exit(1)
	} else if existing != nil && existing.IsRunning {
		fmt.Fprintf(os.Stderr, "an api instance is already running (pid %d, port %d)\n", existing.PID, existing.Port)
		os.Exit(1)
	}
	if !instance.IsPortAvailable(cfg.APIPort) {
		fmt.Fprintf(os.Stderr, "port %d is already in use\n", cfg.APIPort)
		os.Exit(1)
	}
	if err := instanceMgr.AcquireLock(); err != nil {
		fmt.Fprintf(os.Stderr, "acquire instance lock: %v\n", err)
		os.Exit(1)
	}
	defer instanceMgr.ReleaseLock()

	dbPath := filepath.Join(cfg.DataDir, "memory.db")
	db, err := store.Open(dbPath, cfg.DBMaxConns, cfg.WakeChannelPort)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	catalog, err := config.LoadCatalog(*catalogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load catalog: %v\n", err)
		os.Exit(1)
	}

	briefGen := brief.New(db)
	srv := api.New(db, cfg, catalog, briefGen)

	sweeps := workers.New(db, cfg)
	sweepCtx, cancelSweeps := context.WithCancel(context.Background())
	sweeps.Start(sweepCtx)

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort),
		Handler: srv,
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpSrv.ListenAndServe()
	}()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if instance.HealthCheck(cfg.APIPort) == nil {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	if err := instanceMgr.WritePIDFile(os.Getpid(), cfg.APIPort, cfg.DataDir); err != nil {
		log.Warn("write pid file: %v", err)
	}
	log.Info("api server listening on %s", httpSrv.Addr)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			log.Error("server error: %v", err)
		}
	case <-shutdown:
		log.Info("shutdown signal received")
	}

	cancelSweeps()
	sweeps.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown: %v", err)
	}
	instanceMgr.RemovePIDFile()
	log.Info("api server stopped")
}
