package dedup

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"time"

	"repofs/internal/logging"
)

var logger = logging.New("dedup")

// Stats summarizes one deduplication run.
type Stats struct {
	Scanned int // files hashed this run
	Linked  int // duplicates replaced with hard links
	Skipped int // already-linked files and symlinks left alone
}

// Deduper replaces same-content files under a tree with hard links,
// persisting its scan report through the given store.
type Deduper struct {
	store *Store
}

// New returns a Deduper backed by the given report store.
func New(store *Store) *Deduper {
	return &Deduper{store: store}
}

// Run walks the tree rooted at root and replaces duplicate regular
// files with hard links to the first occurrence of their content.
// Files not modified since the last completed scan are skipped.
func (d *Deduper) Run(root string) (*Stats, error) {
	report, err := d.store.Load()
	if err != nil {
		return nil, err
	}

	newLastScan := time.Now()
	stats := &Stats{}

	err = filepath.WalkDir(root, func(path string, entry iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		return d.handleFile(path, entry, report, stats)
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}

	report.LastScan = newLastScan
	if err := d.store.Save(report); err != nil {
		return nil, err
	}

	logger.Info().
		Int("scanned", stats.Scanned).
		Int("linked", stats.Linked).
		Int("skipped", stats.Skipped).
		Msg("deduplication run complete")
	return stats, nil
}

// handleFile hashes one file and either records its first occurrence
// or replaces it with a hard link to the canonical copy. Symlinks and
// files already linked to the canonical copy are left alone.
func (d *Deduper) handleFile(path string, entry iofs.DirEntry, report *Report, stats *Stats) error {
	info, err := entry.Info()
	if err != nil {
		return err
	}

	// Unchanged since the last scan; already accounted for.
	if !report.LastScan.IsZero() && !info.ModTime().After(report.LastScan) {
		return nil
	}

	if info.Mode()&os.ModeSymlink != 0 {
		// Never replace the link itself; its target is handled on its
		// own visit.
		stats.Skipped++
		logger.Debug().Str("path", path).Msg("skipping symlink")
		return nil
	}
	if !info.Mode().IsRegular() {
		return nil
	}

	sum, err := hashFile(path)
	if err != nil {
		return err
	}
	stats.Scanned++

	occurrences, seen := report.Files[sum]
	if !seen || len(occurrences) == 0 {
		report.Files[sum] = []Occurrence{{Path: path, ModTime: info.ModTime()}}
		logger.Debug().Str("path", path).Str("md5", sum).Msg("first occurrence stored")
		return nil
	}

	canonical := occurrences[0].Path
	same, err := sameFile(canonical, path)
	if err != nil {
		return err
	}
	if same {
		stats.Skipped++
		logger.Debug().Str("path", path).Str("canonical", canonical).Msg("already hard linked")
	} else {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("removing duplicate %s: %w", path, err)
		}
		if err := os.Link(canonical, path); err != nil {
			return fmt.Errorf("linking %s to %s: %w", path, canonical, err)
		}
		stats.Linked++
		logger.Info().Str("path", path).Str("canonical", canonical).Str("md5", sum).Msg("replaced duplicate with hard link")
	}

	report.Files[sum] = append(occurrences, Occurrence{Path: path, ModTime: info.ModTime()})
	return nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func sameFile(a, b string) (bool, error) {
	infoA, err := os.Stat(a)
	if err != nil {
		return false, err
	}
	infoB, err := os.Stat(b)
	if err != nil {
		return false, err
	}
	return os.SameFile(infoA, infoB), nil
}
