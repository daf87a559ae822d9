// Command stratum-backup snapshots the Stratum database on a schedule
// or on demand.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/stratumhq/stratum/internal/backup"
	"github.com/stratumhq/stratum/internal/config"
)

var (
	dbPath    = flag.String("db", "", "Path to database file (overrides config)")
	backupDir = flag.String("backup-dir", "", "Snapshot directory (default: <data_path>/backups)")
	interval  = flag.Duration("interval", time.Hour, "Snapshot interval when running as a service")
	keep      = flag.Int("keep", 24, "Number of snapshots to retain")
	oneshot   = flag.Bool("oneshot", false, "Take a single snapshot and exit")
	restore   = flag.String("restore", "", "Restore the database from a snapshot file and exit")
	listCmd   = flag.Bool("list", false, "List available snapshots and exit")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	path := *dbPath
	if path == "" {
		path = filepath.Join(cfg.Storage.DataPath, "stratum.db")
	}
	dir := *backupDir
	if dir == "" {
		dir = filepath.Join(cfg.Storage.DataPath, "backups")
	}

	svc, err := backup.NewService(path, dir, *keep)
	if err != nil {
		log.Fatalf("Failed to create backup service: %v", err)
	}

	switch {
	case *restore != "":
		if err := svc.Restore(*restore); err != nil {
			log.Fatalf("Restore failed: %v", err)
		}
		fmt.Printf("Restored %s from %s\n", path, *restore)

	case *listCmd:
		snaps, err := svc.List()
		if err != nil {
			log.Fatalf("Failed to list snapshots: %v", err)
		}
		if len(snaps) == 0 {
			fmt.Println("No snapshots found")
			return
		}
		for _, s := range snaps {
			fmt.Printf("%s  %8d bytes  %s\n", s.Timestamp.Format(time.RFC3339), s.Size, s.Path)
		}

	case *oneshot:
		snap, err := svc.Run()
		if err != nil {
			log.Fatalf("Snapshot failed: %v", err)
		}
		fmt.Printf("Snapshot written to %s (%d bytes)\n", snap.Path, snap.Size)

	default:
		runService(svc, *interval)
	}
}

func runService(svc *backup.Service, interval time.Duration) {
	log.Printf("Snapshotting every %s", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// First snapshot immediately, then on the ticker.
	for {
		snap, err := svc.Run()
		if err != nil {
			log.Printf("ERROR: snapshot failed: %v", err)
		} else {
			log.Printf("Snapshot written to %s (%d bytes)", snap.Path, snap.Size)
		}

		select {
		case <-ticker.C:
		case <-sigChan:
			log.Println("Shutting down")
			return
		}
	}
}
