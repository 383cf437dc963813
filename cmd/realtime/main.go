// Command realtime runs the Fanout Hub and Notification Bridge from
// spec.md §4.3/§4.4: it upgrades WebSocket connections at /ws and
// forwards every committed write, relayed through the wake channel the
// api process owns, onto the matching hub channel and its closed
// event-name set.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ronylicha/agentctx-core/internal/bridge"
	"github.com/ronylicha/agentctx-core/internal/config"
	"github.com/ronylicha/agentctx-core/internal/hub"
	"github.com/ronylicha/agentctx-core/internal/instance"
	"github.com/ronylicha/agentctx-core/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		if cfg.Mode == config.ModeProduction {
			fmt.Fprintf(os.Stderr, "configuration invalid: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	logging.SetFormat(logging.Format(cfg.LogFormat))
	log := logging.New("realtime")

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "create data dir: %v\n", err)
		os.Exit(1)
	}

	pidFilePath := filepath.Join(cfg.DataDir, "realtime.pid")
	instanceMgr := instance.NewManager(pidFilePath, filepath.Join(cfg.DataDir, "realtime-instance.json"), cfg.RealtimePort, "realtime")
	if existing, err := instanceMgr.CheckExistingInstance(); err != nil {
		fmt.Fprintf(os.Stderr, "check existing instance: %v\n", err)
		os.Exit(1)
	} else if existing != nil && existing.IsRunning {
		fmt.Fprintf(os.Stderr, "a realtime instance is already running (pid %d, port %d)\n", existing.PID, existing.Port)
		os.Exit(1)
	}
	if !instance.IsPortAvailable(cfg.RealtimePort) {
		fmt.Fprintf(os.Stderr, "port %d is already in use\n", cfg.RealtimePort)
		os.Exit(1)
	}
	if err := instanceMgr.AcquireLock(); err != nil {
		fmt.Fprintf(os.Stderr, "acquire instance lock: %v\n", err)
		os.Exit(1)
	}
	defer instanceMgr.ReleaseLock()

	h := hub.New(cfg)
	h.Start()
	defer h.Stop()

	wakeURL := fmt.Sprintf("nats://127.0.0.1:%d", cfg.WakeChannelPort)
	br := bridge.New(wakeURL, h)
	if err := retryStart(br, 10*time.Second); err != nil {
		fmt.Fprintf(os.Stderr, "connect to wake channel: %v\n", err)
		os.Exit(1)
	}
	defer br.Stop()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.Handler())
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.APIHost, cfg.RealtimePort),
		Handler: mux,
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpSrv.ListenAndServe()
	}()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if instance.HealthCheck(cfg.RealtimePort) == nil {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	if err := instanceMgr.WritePIDFile(os.Getpid(), cfg.RealtimePort, cfg.DataDir); err != nil {
		log.Warn("write pid file: %v", err)
	}
	log.Info("realtime server listening on %s (ws at /ws, %d clients)", httpSrv.Addr, h.ClientCount())

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

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown: %v", err)
	}
	instanceMgr.RemovePIDFile()
	log.Info("realtime server stopped")
}

// retryStart gives the api process (which owns the embedded wake
// channel server) time to come up first, rather than failing hard the
// first time the wake channel isn't listening yet.
func retryStart(br *bridge.Bridge, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		if err := br.Start(); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(500 * time.Millisecond)
	}
	return lastErr
}
