package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/stratumhq/stratum/internal/archive"
	"github.com/stratumhq/stratum/internal/config"
	"github.com/stratumhq/stratum/internal/engine"
	"github.com/stratumhq/stratum/internal/notify"
	"github.com/stratumhq/stratum/internal/redact"
	"github.com/stratumhq/stratum/internal/server"
	"github.com/stratumhq/stratum/internal/storage"
	"github.com/stratumhq/stratum/internal/storage/postgres"
	"github.com/stratumhq/stratum/internal/storage/sqlite"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (overrides STRATUM_CONFIG_FILE)")
	flag.Parse()

	if *configPath != "" {
		os.Setenv("STRATUM_CONFIG_FILE", *configPath)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := os.MkdirAll(cfg.Storage.DataPath, 0o700); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := notify.NewEventWriter(cfg.Storage.DataPath)
	chain := archive.NewChain(store, redact.NewRedactor())

	engineCfg := engine.DefaultConfig()
	engineCfg.HotCapacity = cfg.Engine.HotCapacity
	engineCfg.HotWindow = cfg.Engine.HotWindow
	engineCfg.WarmThreshold = cfg.Engine.WarmThreshold
	engineCfg.RetentionFloor = cfg.Engine.RetentionFloor
	engineCfg.WarmRetention = cfg.Engine.WarmRetention

	controller, err := engine.NewTierController(store, chain, engineCfg, events)
	if err != nil {
		log.Fatalf("Failed to initialize tier controller: %v", err)
	}

	addr, wsHub := server.Start(ctx, cfg, controller)
	log.Printf("Stratum API listening on http://%s", addr)

	// Forward tier events to connected WebSocket clients.
	watcher := notify.NewEventWatcher(cfg.Storage.DataPath, func(evt notify.Event) {
		wsHub.Broadcast(evt)
	})
	if err := watcher.Start(); err != nil {
		log.Fatalf("Failed to start event watcher: %v", err)
	}

	go sweepLoop(ctx, controller, cfg.Engine.SweepInterval)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down gracefully...")
	cancel()
	watcher.Stop()
	time.Sleep(1 * time.Second) // Give time for connections to close
}

// openStore builds the storage stack: sqlite for items and the warm
// graph, with the cold archive optionally moved to postgres behind the
// retry/breaker wrapper.
func openStore(cfg *config.Config) (storage.Store, error) {
	base, err := sqlite.Open(filepath.Join(cfg.Storage.DataPath, "stratum.db"))
	if err != nil {
		return nil, err
	}

	if cfg.Storage.ArchiveBackend != "postgres" {
		return base, nil
	}

	pg, err := postgres.NewArchiveStore(cfg.Storage.ArchiveDSN)
	if err != nil {
		base.Close()
		return nil, err
	}
	log.Println("Cold archive backend: postgres")
	resilient := storage.NewResilientArchiveStore(pg, storage.ResilientConfig{})
	return storage.WithArchive(base, resilient), nil
}

// sweepLoop periodically expires stale hot items and ages warm items
// out to the archive.
func sweepLoop(ctx context.Context, controller *engine.TierController, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			controller.SweepAll(ctx)
		case <-ctx.Done():
			return
		}
	}
}
