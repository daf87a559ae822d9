// Package importer parses conversation transcript files and replays
// them through the tier controller as scored turns. Transcripts use
// plain "speaker: text" lines and may mark entities inline with
// [[wiki-link]] syntax.
package importer

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/stratumhq/stratum/internal/engine"
	"github.com/stratumhq/stratum/pkg/types"
)

// Turn is one parsed transcript line.
type Turn struct {
	Speaker  string
	Content  string
	Entities []string
}

// Result summarizes one import run.
type Result struct {
	Files     int    `json:"files"`
	Turns     int    `json:"turns"`
	Skipped   int    `json:"skipped"` // malformed lines
	Failed    int    `json:"failed"`  // turns the controller rejected
	LastError string `json:"last_error,omitempty"`
}

// Importer replays transcripts into an owner's memory.
type Importer struct {
	controller *engine.TierController
	signals    types.Signals
}

// NewImporter creates an importer. Imported turns all carry the same
// baseline signals; sig controls where they land after hot eviction.
func NewImporter(controller *engine.TierController, sig types.Signals) *Importer {
	return &Importer{controller: controller, signals: sig}
}

// ImportDir imports every .txt and .md transcript under dirPath for the
// given owner. Files are replayed in name order; each file becomes one
// session.
func (imp *Importer) ImportDir(ctx context.Context, ownerID, dirPath string) (*Result, error) {
	files, err := collectTranscripts(dirPath)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no transcript files under %s", dirPath)
	}

	result := &Result{}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := imp.importFile(ctx, ownerID, path, result); err != nil {
			return result, err
		}
		result.Files++
	}
	return result, nil
}

func (imp *Importer) importFile(ctx context.Context, ownerID, path string, result *Result) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	sessionID := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		turn, ok := ParseLine(scanner.Text())
		if !ok {
			result.Skipped++
			continue
		}

		_, err := imp.controller.RecordTurn(ctx, engine.TurnInput{
			OwnerID:   ownerID,
			SessionID: sessionID,
			Content:   turn.Content,
			Entities:  turn.Entities,
			Signals:   imp.signals,
		})
		if err != nil {
			result.Failed++
			result.LastError = err.Error()
			continue
		}
		result.Turns++
	}
	return scanner.Err()
}

// ParseLine parses one "speaker: text" transcript line. Entities are
// taken from [[wiki-link]] markers and stripped from the content.
// Blank lines, comments (#) and lines without a speaker are rejected.
func ParseLine(line string) (Turn, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return Turn{}, false
	}

	speaker, text, found := strings.Cut(line, ":")
	if !found {
		return Turn{}, false
	}
	speaker = strings.TrimSpace(speaker)
	text = strings.TrimSpace(text)
	if speaker == "" || text == "" || strings.ContainsAny(speaker, "[]") {
		return Turn{}, false
	}

	entities := ExtractEntities(text)
	return Turn{
		Speaker:  speaker,
		Content:  StripEntityMarkers(text),
		Entities: entities,
	}, true
}

func collectTranscripts(dirPath string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dirPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch filepath.Ext(path) {
		case ".txt", ".md":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dirPath, err)
	}
	sort.Strings(files)
	return files, nil
}
