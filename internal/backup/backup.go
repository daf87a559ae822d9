// Package backup produces consistent point-in-time snapshots of the
// Stratum database. The cold archive's tamper evidence only helps if
// the database itself survives, so snapshots are first-class.
package backup

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Snapshot is one backup file on disk.
type Snapshot struct {
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
	Size      int64     `json:"size"`
}

// Service snapshots one database into a directory with a keep-newest
// retention policy.
type Service struct {
	dbPath string
	dir    string
	keep   int
}

// NewService creates a backup service. keep is the number of snapshots
// retained after each run; values below 1 keep everything.
func NewService(dbPath, dir string, keep int) (*Service, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("backup: database path is required")
	}
	if dir == "" {
		return nil, fmt.Errorf("backup: backup directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("backup: create directory: %w", err)
	}
	return &Service{dbPath: dbPath, dir: dir, keep: keep}, nil
}

// Run takes one snapshot, verifies it and prunes old snapshots.
// Returns the new snapshot.
func (s *Service) Run() (*Snapshot, error) {
	name := fmt.Sprintf("stratum-%s.db", time.Now().UTC().Format("20060102-150405"))
	dest := filepath.Join(s.dir, name)

	if err := snapshotDatabase(s.dbPath, dest); err != nil {
		_ = os.Remove(dest)
		return nil, err
	}
	if err := VerifySnapshot(dest); err != nil {
		_ = os.Remove(dest)
		return nil, err
	}

	info, err := os.Stat(dest)
	if err != nil {
		return nil, fmt.Errorf("backup: stat snapshot: %w", err)
	}

	if err := s.prune(); err != nil {
		return nil, err
	}

	return &Snapshot{Path: dest, Timestamp: info.ModTime(), Size: info.Size()}, nil
}

// List returns the snapshots in the backup directory, newest first.
func (s *Service) List() ([]Snapshot, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("backup: read directory: %w", err)
	}

	var snaps []Snapshot
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".db") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		snaps = append(snaps, Snapshot{
			Path:      filepath.Join(s.dir, entry.Name()),
			Timestamp: info.ModTime(),
			Size:      info.Size(),
		})
	}

	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].Timestamp.After(snaps[j].Timestamp)
	})
	return snaps, nil
}

// Restore copies a verified snapshot over the service's database path.
// The database must not be in use.
func (s *Service) Restore(snapshotPath string) error {
	if err := VerifySnapshot(snapshotPath); err != nil {
		return err
	}

	src, err := os.Open(snapshotPath)
	if err != nil {
		return fmt.Errorf("backup: open snapshot: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(s.dbPath)
	if err != nil {
		return fmt.Errorf("backup: create target: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("backup: copy snapshot: %w", err)
	}
	if err := dst.Sync(); err != nil {
		return fmt.Errorf("backup: sync target: %w", err)
	}
	return VerifySnapshot(s.dbPath)
}

func (s *Service) prune() error {
	if s.keep < 1 {
		return nil
	}
	snaps, err := s.List()
	if err != nil {
		return err
	}
	for _, old := range snaps[min(s.keep, len(snaps)):] {
		if err := os.Remove(old.Path); err != nil {
			return fmt.Errorf("backup: prune %s: %w", old.Path, err)
		}
	}
	return nil
}

// snapshotDatabase copies a live database with VACUUM INTO, which is
// consistent even under WAL mode.
func snapshotDatabase(sourcePath, destPath string) error {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", sourcePath))
	if err != nil {
		return fmt.Errorf("backup: open source: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("backup: ping source: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("VACUUM INTO '%s'", destPath)); err != nil {
		return fmt.Errorf("backup: vacuum into: %w", err)
	}
	return nil
}

// VerifySnapshot runs SQLite's integrity check against a snapshot file.
func VerifySnapshot(path string) error {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return fmt.Errorf("backup: open snapshot: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("backup: integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("backup: integrity check failed: %s", result)
	}
	return nil
}
