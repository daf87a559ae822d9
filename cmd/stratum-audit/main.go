// Command stratum-audit verifies and exports cold archive chains
// directly from a Stratum database, without a running server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/stratumhq/stratum/internal/archive"
	"github.com/stratumhq/stratum/internal/config"
	"github.com/stratumhq/stratum/internal/redact"
	"github.com/stratumhq/stratum/internal/storage/sqlite"
)

var (
	dbPath    = flag.String("db", "", "Path to database file (overrides config)")
	ownerID   = flag.String("owner", "", "Owner whose chain to operate on (required)")
	verifyCmd = flag.Bool("verify", false, "Verify the owner's hash chain and exit")
	exportCmd = flag.Bool("export", false, "Export the owner's reconstructed history as JSON")
	output    = flag.String("out", "", "Write export to file instead of stdout")
)

func main() {
	flag.Parse()

	if *ownerID == "" {
		fmt.Fprintln(os.Stderr, "Usage: stratum-audit -owner <id> [-verify | -export] [-db <path>] [-out <file>]")
		os.Exit(2)
	}
	if !*verifyCmd && !*exportCmd {
		fmt.Fprintln(os.Stderr, "Specify -verify or -export")
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
	if _, err := os.Stat(path); err != nil {
		log.Fatalf("Database not found: %s", path)
	}

	store, err := sqlite.Open(path)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	chain := archive.NewChain(store, redact.NewRedactor())
	ctx := context.Background()

	if *verifyCmd {
		handleVerify(ctx, store, chain, *ownerID)
		return
	}
	handleExport(ctx, store, chain, *ownerID)
}

func handleVerify(ctx context.Context, store *sqlite.Store, chain *archive.Chain, owner string) {
	chunks, err := store.ListChunks(ctx, owner)
	if err != nil {
		log.Fatalf("Failed to list chunks: %v", err)
	}
	if err := chain.Verify(ctx, owner); err != nil {
		fmt.Printf("FAIL: chain for %s is broken: %v\n", owner, err)
		os.Exit(1)
	}
	fmt.Printf("OK: chain for %s verified (%d chunks)\n", owner, len(chunks))
}

func handleExport(ctx context.Context, store *sqlite.Store, chain *archive.Chain, owner string) {
	chunks, err := store.ListChunks(ctx, owner)
	if err != nil {
		log.Fatalf("Failed to list chunks: %v", err)
	}
	if len(chunks) == 0 {
		log.Fatalf("No archive chunks for owner %s", owner)
	}

	payloads, err := chain.Reconstruct(ctx, owner, chunks[len(chunks)-1].ChunkID)
	if err != nil {
		log.Fatalf("Failed to reconstruct chain: %v", err)
	}

	type exportEntry struct {
		ChunkID      string  `json:"chunk_id"`
		Seq          int     `json:"seq"`
		ContentHash  string  `json:"content_hash"`
		PreviousHash string  `json:"previous_hash,omitempty"`
		Redacted     bool    `json:"redacted"`
		Importance   float64 `json:"importance"`
		Payload      string  `json:"payload"`
	}

	entries := make([]exportEntry, len(chunks))
	for i, c := range chunks {
		entries[i] = exportEntry{
			ChunkID:      c.ChunkID,
			Seq:          c.Seq,
			ContentHash:  c.ContentHash,
			PreviousHash: c.PreviousHash,
			Redacted:     c.Redacted,
			Importance:   c.Importance,
			Payload:      payloads[i],
		}
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		log.Fatalf("Failed to encode export: %v", err)
	}

	if *output == "" {
		fmt.Println(string(data))
		return
	}
	if err := os.WriteFile(*output, data, 0o600); err != nil {
		log.Fatalf("Failed to write %s: %v", *output, err)
	}
	fmt.Printf("Exported %d chunks to %s\n", len(entries), *output)
}
