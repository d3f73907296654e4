// Command scened runs the 3D scene collaboration server: a WebSocket
// relay that keeps every connected editor's view of a shared scene graph
// converged via last-write-wins transform/property merges.
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

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/scened/internal/config"
	"github.com/ehrlich-b/scened/internal/conn"
	"github.com/ehrlich-b/scened/internal/logger"
	"github.com/ehrlich-b/scened/internal/registry"
	"github.com/ehrlich-b/scened/internal/telemetry"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "scened",
		Short: "scened collaboration server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	root.Flags().StringVar(&configPath, "config", "", "path to scened.yaml (optional, defaults apply if absent)")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	log := logger.For("main")

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	store, err := telemetry.Open(filepath.Join(cfg.DataDir, "telemetry.db"))
	if err != nil {
		return fmt.Errorf("open telemetry store: %w", err)
	}
	defer store.Close()

	recorder := telemetry.NewRecorder(cfg.MetricsWindowSize, store)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := registry.New(ctx, registry.Config{
		DataDir:            cfg.DataDir,
		GlobalSessionLimit: cfg.GlobalSessionLimit,
		SessionUserLimit:   cfg.SessionUserLimit,
		EgressQueueSize:    cfg.EgressQueueSize,
		CompactionInterval: cfg.CompactionInterval,
	}, recorder)

	log.Info("recovering persisted sessions")
	if err := reg.Boot(); err != nil {
		return fmt.Errorf("recovery boot: %w", err)
	}

	connCfg := conn.Config{
		JoinTimeout:         cfg.JoinTimeout,
		ConnectionIdle:      cfg.ConnectionIdle,
		ConnectionPingGrace: cfg.ConnectionPingGrace,
		MessageRateLimit:    cfg.MessageRateLimit,
		MessageRateBurst:    cfg.MessageRateBurst,
		ClockSkewForward:    cfg.ClockSkewForward,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn.Serve(w, r, reg, connCfg, recorder)
	})
	mux.HandleFunc("/metrics", recorder.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	})
	mux.HandleFunc("/sessions/close", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		sessionID := r.URL.Query().Get("session_id")
		if sessionID == "" || !reg.Close(sessionID) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	httpSrv := &http.Server{
		Addr:    cfg.Addr,
		Handler: mux,
	}

	go watchConfigFile(configPath, log)
	go syncCountersPeriodically(ctx, recorder, log)

	errCh := make(chan error, 1)
	go func() {
		log.Info("scened listening", "addr", cfg.Addr)
		err := httpSrv.ListenAndServe()
		if err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		reg.WaitAll()
		recorder.SyncToStore()
		return nil
	case err := <-errCh:
		return err
	}
}

// watchConfigFile logs config changes on the fly; the reloaded values are
// not applied to running session actors or to new connections (hot-reload
// of live sessions is out of scope, spec.md Non-goals).
func watchConfigFile(path string, log interface{ Warn(string, ...any) }) {
	if path == "" {
		return
	}
	if err := config.Watch(path, logger.For("config"), func(*config.Server) {}); err != nil {
		log.Warn("config watch failed", "error", err)
	}
}

func syncCountersPeriodically(ctx context.Context, recorder *telemetry.Recorder, log interface{ Warn(string, ...any) }) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := recorder.SyncToStore(); err != nil {
				log.Warn("telemetry sync failed", "error", err)
			}
			recorder.LogSummary(logger.For("telemetry"))
		}
	}
}
