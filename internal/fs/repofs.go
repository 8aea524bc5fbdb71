package fs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"repofs/internal/logging"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"
	"golang.org/x/sys/unix"
)

var fsLogger = logging.New("fs")

// RepoFS is the passthrough filesystem. Every operation translates its
// virtual path to the corresponding real path under the backing root
// and issues the equivalent host filesystem call. The filesystem holds
// no cache and no index; the backing root is fixed at construction and
// never changes for the lifetime of a mounted instance.
type RepoFS struct {
	translator *Translator
	conn       *fuse.Conn
	serveDone  chan error
}

// NewRepoFS creates a passthrough filesystem over the given backing
// root, which must be an existing directory.
func NewRepoFS(backingRoot string) (*RepoFS, error) {
	abs, err := filepath.Abs(backingRoot)
	if err != nil {
		return nil, fmt.Errorf("resolving backing root: %w", err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("backing root not accessible: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("backing root %s is not a directory", abs)
	}

	fsLogger.Info().Str("backing_root", abs).Msg("creating passthrough filesystem")
	return &RepoFS{
		translator: NewTranslator(abs),
		serveDone:  make(chan error, 1),
	}, nil
}

// BackingRoot returns the directory this filesystem serves from.
func (rfs *RepoFS) BackingRoot() string {
	return rfs.translator.Root()
}

// Root implements the fusefs.FS interface, returning the root directory node.
func (rfs *RepoFS) Root() (fusefs.Node, error) {
	return &Dir{fs: rfs, path: NewVirtualPath("/")}, nil
}

// Statfs implements fusefs.FSStatfser, forwarding filesystem
// statistics for the backing root. The reported field set is fixed:
// block counts, inode counts, block sizes, and the name length limit.
func (rfs *RepoFS) Statfs(_ context.Context, _ *fuse.StatfsRequest, resp *fuse.StatfsResponse) error {
	var st unix.Statfs_t
	if err := unix.Statfs(rfs.translator.Root(), &st); err != nil {
		return hostErr(OpStatfs, NewVirtualPath("/"), err)
	}

	resp.Blocks = st.Blocks
	resp.Bfree = st.Bfree
	resp.Bavail = st.Bavail
	resp.Files = st.Files
	resp.Ffree = st.Ffree
	resp.Bsize = uint32(st.Bsize)
	resp.Namelen = uint32(st.Namelen)
	resp.Frsize = uint32(st.Frsize)
	return nil
}

func waitForMount(mountpoint string) error {
	for i := 0; i < 30; i++ {
		info, err := os.Stat(mountpoint)
		if err == nil && info.IsDir() {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("mount point not available after 3 seconds")
}

// Mount mounts the filesystem and starts serving in the background.
// It returns once the mount point is ready; Wait blocks until the
// serve loop exits (after Unmount).
func (rfs *RepoFS) Mount(mountPoint string) error {
	fsLogger.Info().
		Str("mount_point", mountPoint).
		Str("backing_root", rfs.translator.Root()).
		Msg("mounting filesystem")

	// Check if the backing root is readable before involving the kernel
	if _, err := os.ReadDir(rfs.translator.Root()); err != nil {
		return fmt.Errorf("backing root not readable: %w", err)
	}

	c, err := fuse.Mount(mountPoint,
		fuse.FSName("repofs"),
		fuse.Subtype("repofs"),
		fuse.DefaultPermissions(),
		fuse.AsyncRead(),
		fuse.AllowNonEmptyMount(),
	)
	if err != nil {
		return fmt.Errorf("mount failed: %w", err)
	}
	rfs.conn = c

	go func() {
		err := fusefs.Serve(c, rfs)
		if err != nil {
			fsLogger.Error().Err(err).Msg("FUSE server error")
		}
		rfs.serveDone <- err
	}()

	if err := waitForMount(mountPoint); err != nil {
		c.Close()
		return fmt.Errorf("mount point failed to initialize: %w", err)
	}

	fsLogger.Info().Msg("filesystem mounted")
	return nil
}

// Wait blocks until the serve loop exits and returns its error, if any.
func (rfs *RepoFS) Wait() error {
	return <-rfs.serveDone
}

// Unmount cleanly unmounts the filesystem.
func (rfs *RepoFS) Unmount(mountPoint string) error {
	fsLogger.Info().Str("mount_point", mountPoint).Msg("unmounting filesystem")
	if rfs.conn == nil {
		return nil
	}
	if err := fuse.Unmount(mountPoint); err != nil {
		fsLogger.Error().Err(err).Msg("unmount failed")
		return err
	}
	return rfs.conn.Close()
}
