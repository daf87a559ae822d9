// Command stratum-import replays transcript files into an owner's
// memory, directly against the database.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/stratumhq/stratum/internal/archive"
	"github.com/stratumhq/stratum/internal/config"
	"github.com/stratumhq/stratum/internal/engine"
	"github.com/stratumhq/stratum/internal/importer"
	"github.com/stratumhq/stratum/internal/redact"
	"github.com/stratumhq/stratum/internal/storage/sqlite"
	"github.com/stratumhq/stratum/pkg/types"
)

var (
	dbPath    = flag.String("db", "", "Path to database file (overrides config)")
	ownerID   = flag.String("owner", "", "Owner to import into (required)")
	dirPath   = flag.String("dir", "", "Directory of .txt/.md transcripts (required)")
	novelty   = flag.Float64("novelty", 5, "Semantic novelty assigned to imported turns (0-10)")
	sentiment = flag.Float64("sentiment", 3, "Sentiment intensity assigned to imported turns (0-10)")
)

func main() {
	flag.Parse()

	if *ownerID == "" || *dirPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: stratum-import -owner <id> -dir <path> [-db <path>]")
		os.Exit(2)
	}

	path := *dbPath
	if path == "" {
		cfg, err := config.LoadConfig()
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
		path = filepath.Join(cfg.Storage.DataPath, "stratum.db")
	}

	store, err := sqlite.Open(path)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	chain := archive.NewChain(store, redact.NewRedactor())

	// The hot tier is in-process and would vanish when this command
	// exits, so the recency window is collapsed and a final sweep
	// forces every imported turn into a durable tier.
	engineCfg := engine.DefaultConfig()
	engineCfg.HotWindow = time.Nanosecond

	controller, err := engine.NewTierController(store, chain, engineCfg, nil)
	if err != nil {
		log.Fatalf("Failed to initialize tier controller: %v", err)
	}

	imp := importer.NewImporter(controller, types.Signals{
		SemanticNovelty:    *novelty,
		SentimentIntensity: *sentiment,
	})

	ctx := context.Background()
	result, err := imp.ImportDir(ctx, *ownerID, *dirPath)
	if err != nil {
		log.Fatalf("Import failed: %v", err)
	}

	if err := controller.Sweep(ctx, *ownerID); err != nil {
		log.Printf("WARNING: post-import sweep failed: %v", err)
	}

	fmt.Printf("Imported %d turns from %d files (%d skipped, %d failed)\n",
		result.Turns, result.Files, result.Skipped, result.Failed)
	if result.LastError != "" {
		fmt.Printf("Last error: %s\n", result.LastError)
	}
}
