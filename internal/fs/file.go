package fs

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	"repofs/internal/logging"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"
	"golang.org/x/sys/unix"
)

var fileLogger = logging.New("file")

// File represents any non-directory entry in the virtual namespace:
// regular files, symlinks, and special files. Like Dir it carries only
// the virtual path; the host filesystem holds all state.
type File struct {
	fs   *RepoFS
	path *VirtualPath
}

// Attr implements the Node interface. The link-aware stat variant is
// used so a symlink reports its own metadata, not its target's.
func (f *File) Attr(_ context.Context, a *fuse.Attr) error {
	real, err := f.fs.translator.Resolve(f.path)
	if err != nil {
		return hostErr(OpGetattr, f.path, err)
	}
	if err := fillAttr(real, a); err != nil {
		return hostErr(OpGetattr, f.path, err)
	}
	return nil
}

// Access implements the NodeAccesser interface; see Dir.Access.
func (f *File) Access(_ context.Context, req *fuse.AccessRequest) error {
	real, err := f.fs.translator.Resolve(f.path)
	if err != nil {
		return hostErr(OpAccess, f.path, err)
	}
	if err := unix.Access(real, req.Mask); err != nil {
		fileLogger.Debug().Str("path", f.path.String()).Uint32("mask", req.Mask).Msg("access denied")
		return fuse.Errno(unix.EACCES)
	}
	return nil
}

// Open implements the NodeOpener interface, opening the real file with
// the caller-supplied flags. No mode is applied; mode is only
// meaningful on create.
func (f *File) Open(_ context.Context, req *fuse.OpenRequest, _ *fuse.OpenResponse) (fusefs.Handle, error) {
	real, err := f.fs.translator.Resolve(f.path)
	if err != nil {
		return nil, hostErr(OpOpen, f.path, err)
	}

	flags := int(req.Flags)
	fileLogger.Debug().Str("path", f.path.String()).Int("flags", flags).Msg("open")

	file, err := os.OpenFile(real, flags, 0)
	if err != nil {
		return nil, hostErr(OpOpen, f.path, err)
	}
	return &FileHandle{file: file, path: f.path.String()}, nil
}

// Readlink implements the NodeReadlinker interface. An absolute link
// target is rewritten relative to the backing root so clients see a
// path consistent with the virtual namespace; relative targets pass
// through unchanged.
func (f *File) Readlink(_ context.Context, _ *fuse.ReadlinkRequest) (string, error) {
	real, err := f.fs.translator.Resolve(f.path)
	if err != nil {
		return "", hostErr(OpReadlink, f.path, err)
	}

	target, err := os.Readlink(real)
	if err != nil {
		return "", hostErr(OpReadlink, f.path, err)
	}

	if filepath.IsAbs(target) {
		rel, err := filepath.Rel(f.fs.translator.Root(), target)
		if err != nil {
			return "", hostErr(OpReadlink, f.path, err)
		}
		fileLogger.Debug().Str("path", f.path.String()).Str("target", target).Str("rewritten", rel).Msg("readlink")
		return rel, nil
	}
	return target, nil
}

// Setattr implements the NodeSetattrer interface for files, covering
// chmod, chown, truncate, and timestamp updates.
func (f *File) Setattr(_ context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	real, err := f.fs.translator.Resolve(f.path)
	if err != nil {
		return hostErr(OpSetattr, f.path, err)
	}
	if err := applySetattr(real, req); err != nil {
		return hostErr(OpSetattr, f.path, err)
	}
	if err := fillAttr(real, &resp.Attr); err != nil {
		return hostErr(OpSetattr, f.path, err)
	}
	return nil
}

// Fsync implements the NodeFsyncer interface. Data-only sync requests
// are not distinguished; both route to a full sync of the real file.
// The dispatch layer delivers fsync to the node, so the real file is
// opened independently of the caller's handle; a file whose
// permission bits only allow writing is synced through a write-mode
// descriptor.
func (f *File) Fsync(_ context.Context, _ *fuse.FsyncRequest) error {
	real, err := f.fs.translator.Resolve(f.path)
	if err != nil {
		return hostErr(OpFsync, f.path, err)
	}

	file, err := os.Open(real)
	if err != nil && errors.Is(err, os.ErrPermission) {
		file, err = os.OpenFile(real, os.O_WRONLY, 0)
	}
	if err != nil {
		return hostErr(OpFsync, f.path, err)
	}
	defer file.Close()

	if err := file.Sync(); err != nil {
		return hostErr(OpFsync, f.path, err)
	}
	return nil
}

// FileHandle owns the open descriptor for one open/create call. The
// descriptor lives from open until Release closes it exactly once; the
// dispatch layer guarantees no operation arrives after release.
type FileHandle struct {
	file *os.File
	path string // for logging
}

// Read implements the HandleReader interface. Every read carries an
// explicit absolute offset; no position is tracked across calls. A
// short read at end-of-file is reported by the returned data length,
// not as an error.
func (fh *FileHandle) Read(_ context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	buf := make([]byte, req.Size)
	n, err := fh.file.ReadAt(buf, req.Offset)
	if err != nil && err != io.EOF {
		fileLogger.Error().Err(err).Str("path", fh.path).Int64("offset", req.Offset).Msg("read failed")
		return hostErr(OpRead, NewVirtualPath(fh.path), err)
	}
	resp.Data = buf[:n]
	return nil
}

// Write implements the HandleWriter interface, writing the supplied
// buffer at the explicit absolute offset.
func (fh *FileHandle) Write(_ context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) error {
	n, err := fh.file.WriteAt(req.Data, req.Offset)
	if err != nil {
		fileLogger.Error().Err(err).Str("path", fh.path).Int64("offset", req.Offset).Msg("write failed")
		return hostErr(OpWrite, NewVirtualPath(fh.path), err)
	}
	resp.Size = n
	return nil
}

// Flush implements the HandleFlusher interface: force pending data to
// stable storage without closing the handle.
func (fh *FileHandle) Flush(_ context.Context, _ *fuse.FlushRequest) error {
	if err := fh.file.Sync(); err != nil {
		return hostErr(OpFlush, NewVirtualPath(fh.path), err)
	}
	return nil
}

// Release implements the HandleReleaser interface, closing the
// descriptor exactly once. The numeric descriptor may be reused by the
// OS afterwards; the dispatch layer never presents a released handle
// again.
func (fh *FileHandle) Release(_ context.Context, _ *fuse.ReleaseRequest) error {
	fileLogger.Debug().Str("path", fh.path).Msg("release")
	if err := fh.file.Close(); err != nil {
		return hostErr(OpRelease, NewVirtualPath(fh.path), err)
	}
	return nil
}
