// Command dronehubd is the DroneHub control plane daemon: it owns the
// registry, the repo sync engine, the prompt dispatcher, the terminal hub
// and the PR controller, and fronts all of them with the HTTP API (C8).
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dronehub/internal/api"
	"dronehub/internal/config"
	"dronehub/internal/containeradapter"
	"dronehub/internal/events"
	"dronehub/internal/logging"
	"dronehub/internal/orchestrator"
	"dronehub/internal/prcontroller"
	"dronehub/internal/promptqueue"
	"dronehub/internal/registry"
	"dronehub/internal/reposync"
	"dronehub/internal/store"
	"dronehub/internal/terminalhub"
)

var version = "dev"
var commit = "unknown"

func versionString() string {
	if commit != "" && commit != "unknown" {
		return version + " (" + commit + ")"
	}
	return version
}

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.LogJSON)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	fmt.Println("DroneHub " + versionString())
	fmt.Println("=============================================")
	fmt.Printf("DRONEHUB_LISTEN_ADDR=%s\n", cfg.ListenAddr)
	fmt.Printf("DRONEHUB_DATA_DIR=%s\n", cfg.DataDir)
	fmt.Printf("DRONEHUB_DB_PATH=%s\n", cfg.DBPath)
	fmt.Printf("DRONEHUB_METRICS=%t\n", cfg.MetricsEnabled)

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	bus := events.New()

	reg, err := registry.Open(db, bus)
	if err != nil {
		log.Error("failed to open registry", "error", err)
		os.Exit(1)
	}

	adapter := containeradapter.New(cfg.DvmPath, log)
	repoEngine := reposync.New(adapter, cfg.DataDir, log)

	dispatcher := promptqueue.New(adapter, reg, db, bus, log)
	if err := dispatcher.Restore(); err != nil {
		log.Error("failed to restore pending prompts", "error", err)
		os.Exit(1)
	}

	orch := orchestrator.New(adapter, reg, repoEngine, dispatcher, cfg, log)
	if cfg.OrphanGCSchedule != "" {
		stop, err := orch.StartOrphanGC(cfg.OrphanGCSchedule)
		if err != nil {
			log.Error("failed to start orphan gc", "error", err)
			os.Exit(1)
		}
		defer stop()
	}

	hub := terminalhub.New(adapter, cfg, log)

	var prCtrl api.PullRequests
	if cfg.GitHubToken != "" {
		prCtrl = prcontroller.New(cfg.GitHubToken, cfg, log)
	} else {
		log.Warn("DRONEHUB_GITHUB_TOKEN not set, pull request endpoints disabled")
	}

	srv := api.New(api.Dependencies{
		Lifecycle:      orch,
		Fleet:          reg,
		Prompts:        dispatcher,
		Terminals:      hub,
		RepoOps:        repoEngine,
		PullRequests:   prCtrl,
		Ports:          adapter,
		ExecTimeout:    cfg.ExecTimeout,
		SeedTimeout:    cfg.SeedTimeout,
		UnstickAfter:   cfg.UnstickAfter,
		MetricsEnabled: cfg.MetricsEnabled,
		Log:            log,
	})

	go func() {
		if err := srv.ListenAndServe(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http api error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutCancel()
		_ = srv.Shutdown(shutCtx)
	}()

	log.Info("dronehub started", "version", version, "commit", commit, "addr", cfg.ListenAddr)

	<-ctx.Done()
	log.Info("dronehub shutdown complete")
}
