// Package dedup finds files with identical content and replaces the
// copies with hard links to the first occurrence. A scan report is
// persisted between runs so unchanged files are not re-hashed.
package dedup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"repofs/internal/logging"
)

var reportLogger = logging.New("dedup-report")

// Occurrence records one path seen with a given content hash.
type Occurrence struct {
	Path    string    `json:"path"`
	ModTime time.Time `json:"mod_time"`
}

// Report is the persisted scan state: every content hash seen so far
// with its occurrences, plus the time of the last completed scan.
// Files not modified since LastScan are skipped on the next run.
type Report struct {
	LastScan time.Time               `json:"last_scan"`
	Files    map[string][]Occurrence `json:"files"` // md5 hex -> occurrences
}

// Store handles loading and saving the scan report, keeping a few
// timestamped backups of previous reports.
type Store struct {
	reportPath  string
	backupDir   string
	backupCount int
}

// NewStore creates a report store at the given path. The parent
// directory is created if needed and verified writable.
func NewStore(reportPath string) (*Store, error) {
	abs, err := filepath.Abs(reportPath)
	if err != nil {
		return nil, fmt.Errorf("resolving report path: %w", err)
	}

	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating report directory %s: %w", dir, err)
	}

	f, err := os.OpenFile(abs, os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("creating report file %s: %w", abs, err)
	}
	f.Close()

	backupDir := filepath.Join(dir, ".repofs-dedup-backups")
	if err := os.MkdirAll(backupDir, 0755); err != nil {
		return nil, fmt.Errorf("creating backup directory %s: %w", backupDir, err)
	}

	return &Store{
		reportPath:  abs,
		backupDir:   backupDir,
		backupCount: 5,
	}, nil
}

// Load reads the report from disk, returning an empty report when no
// previous scan exists.
func (s *Store) Load() (*Report, error) {
	info, err := os.Stat(s.reportPath)
	if os.IsNotExist(err) || (err == nil && info.Size() == 0) {
		reportLogger.Debug().Str("path", s.reportPath).Msg("no previous report, starting fresh")
		return &Report{Files: make(map[string][]Occurrence)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("checking report file: %w", err)
	}

	data, err := os.ReadFile(s.reportPath)
	if err != nil {
		return nil, fmt.Errorf("reading report file: %w", err)
	}

	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("parsing report file: %w", err)
	}
	if report.Files == nil {
		report.Files = make(map[string][]Occurrence)
	}

	reportLogger.Debug().Str("path", s.reportPath).Int("hashes", len(report.Files)).Msg("report loaded")
	return &report, nil
}

// Save writes the report to disk, creating a backup of the previous
// report first. A failed backup is logged and does not block the save.
func (s *Store) Save(report *Report) error {
	if err := s.createBackup(); err != nil {
		reportLogger.Warn().Err(err).Msg("failed to back up previous report")
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}

	if err := os.WriteFile(s.reportPath, data, 0644); err != nil {
		return fmt.Errorf("writing report file: %w", err)
	}
	return nil
}

func (s *Store) createBackup() error {
	info, err := os.Stat(s.reportPath)
	if os.IsNotExist(err) || (err == nil && info.Size() == 0) {
		return nil
	}
	if err != nil {
		return err
	}

	data, err := os.ReadFile(s.reportPath)
	if err != nil {
		return err
	}

	timestamp := time.Now().Format("20060102-150405")
	backupPath := filepath.Join(s.backupDir, fmt.Sprintf("report-%s.json", timestamp))
	if err := os.WriteFile(backupPath, data, 0644); err != nil {
		return fmt.Errorf("writing backup: %w", err)
	}

	return s.cleanupOldBackups()
}

// cleanupOldBackups removes old backups, keeping only the most recent ones.
func (s *Store) cleanupOldBackups() error {
	entries, err := os.ReadDir(s.backupDir)
	if err != nil {
		return err
	}

	type backup struct {
		path    string
		modTime time.Time
	}

	backups := make([]backup, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, backup{
			path:    filepath.Join(s.backupDir, entry.Name()),
			modTime: info.ModTime(),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].modTime.After(backups[j].modTime)
	})

	for i := s.backupCount; i < len(backups); i++ {
		if err := os.Remove(backups[i].path); err != nil {
			return fmt.Errorf("removing old backup %s: %w", backups[i].path, err)
		}
	}
	return nil
}
