// Package stager prepares the backing tree the passthrough filesystem
// serves: it clones a repository into a staging directory and marks
// the checkout read-only, leaving the .git control subtree untouched.
package stager

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"repofs/internal/logging"
)

var logger = logging.New("stager")

const (
	fileMode os.FileMode = 0444
	dirMode  os.FileMode = 0555
)

// Stager stages repository checkouts under a fixed staging root.
type Stager struct {
	stagingRoot string
}

// New returns a Stager that places checkouts under stagingRoot.
func New(stagingRoot string) *Stager {
	return &Stager{stagingRoot: stagingRoot}
}

// RepoName extracts the repository name from its URL or path,
// dropping any trailing ".git".
func RepoName(url string) string {
	trimmed := strings.TrimRight(url, "/")
	name := trimmed[strings.LastIndex(trimmed, "/")+1:]
	return strings.TrimSuffix(name, ".git")
}

// CheckoutPath returns the staging location for the given repository.
func (s *Stager) CheckoutPath(url string) string {
	return filepath.Join(s.stagingRoot, RepoName(url))
}

// Stage produces a fresh read-only checkout of the repository and
// returns its absolute path: any stale checkout is removed, the
// repository is cloned, and the tree is swept read-only.
func (s *Stager) Stage(ctx context.Context, url string) (string, error) {
	dest, err := s.StageWritable(ctx, url)
	if err != nil {
		return "", err
	}
	if err := MakeReadOnly(dest); err != nil {
		return "", fmt.Errorf("marking checkout read-only: %w", err)
	}
	return dest, nil
}

// StageWritable clones the repository without the read-only sweep.
func (s *Stager) StageWritable(ctx context.Context, url string) (string, error) {
	// A URL with no final path segment would resolve the checkout to
	// the staging root itself and wipe it during stale cleanup.
	if RepoName(url) == "" {
		return "", fmt.Errorf("cannot determine repository name from %q", url)
	}

	if err := os.MkdirAll(s.stagingRoot, 0755); err != nil {
		return "", fmt.Errorf("creating staging root %s: %w", s.stagingRoot, err)
	}

	dest, err := filepath.Abs(s.CheckoutPath(url))
	if err != nil {
		return "", fmt.Errorf("resolving checkout path: %w", err)
	}

	if err := RemoveStale(dest); err != nil {
		return "", fmt.Errorf("removing stale checkout: %w", err)
	}

	if err := clone(ctx, url, dest); err != nil {
		return "", err
	}

	logger.Info().Str("url", url).Str("dest", dest).Msg("repository staged")
	return dest, nil
}

// clone runs the git CLI. Stderr is captured separately and included
// in error messages on failure.
func clone(ctx context.Context, url, dest string) error {
	cloneURL := url
	if !strings.HasSuffix(cloneURL, ".git") {
		cloneURL += ".git"
	}

	logger.Info().Str("url", cloneURL).Msg("cloning repository")

	var stderr bytes.Buffer
	command := exec.CommandContext(ctx, "git", "clone", cloneURL, dest)
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return fmt.Errorf("git clone %s: %w (stderr: %s)",
			cloneURL, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// RemoveStale deletes the directory at dest if it exists. Write bits
// are restored first so a previously staged read-only checkout can be
// removed.
func RemoveStale(dest string) error {
	if _, err := os.Stat(dest); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	logger.Info().Str("dest", dest).Msg("removing stale checkout")
	err := filepath.WalkDir(dest, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return os.Chmod(path, 0755)
		}
		return os.Chmod(path, 0644)
	})
	if err != nil {
		return fmt.Errorf("restoring write permissions under %s: %w", dest, err)
	}
	return os.RemoveAll(dest)
}

// MakeReadOnly strips write permission from every file and directory
// under root, skipping the .git control subtree. Files become 0444,
// directories 0555 (read and traverse stay available so the tree can
// still be served).
func MakeReadOnly(root string) error {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" && path != root {
				return filepath.SkipDir
			}
			dirs = append(dirs, path)
			return nil
		}
		return os.Chmod(path, fileMode)
	})
	if err != nil {
		return err
	}

	// Directories last, deepest first, so the sweep itself never needs
	// write permission it already gave up.
	for i := len(dirs) - 1; i >= 0; i-- {
		if err := os.Chmod(dirs[i], dirMode); err != nil {
			return err
		}
	}

	logger.Info().Str("root", root).Int("dirs", len(dirs)).Msg("checkout marked read-only")
	return nil
}
