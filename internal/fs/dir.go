package fs

import (
	"context"
	"os"

	"repofs/internal/logging"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"
	"golang.org/x/sys/unix"
)

var dirLogger = logging.New("dir")

// Dir represents a directory in the virtual namespace. It carries no
// state of its own beyond the virtual path; every operation resolves
// the path against the backing root and forwards to the host.
type Dir struct {
	fs   *RepoFS
	path *VirtualPath
}

// Attr implements the Node interface, returning directory attributes
// from the real directory.
func (d *Dir) Attr(_ context.Context, a *fuse.Attr) error {
	real, err := d.fs.translator.Resolve(d.path)
	if err != nil {
		return hostErr(OpGetattr, d.path, err)
	}
	if err := fillAttr(real, a); err != nil {
		return hostErr(OpGetattr, d.path, err)
	}
	return nil
}

// Access implements the NodeAccesser interface. The host's own
// permission check decides; any host failure is reported as access
// denied regardless of the underlying cause.
func (d *Dir) Access(_ context.Context, req *fuse.AccessRequest) error {
	real, err := d.fs.translator.Resolve(d.path)
	if err != nil {
		return hostErr(OpAccess, d.path, err)
	}
	if err := unix.Access(real, req.Mask); err != nil {
		dirLogger.Debug().Str("path", d.path.String()).Uint32("mask", req.Mask).Msg("access denied")
		return fuse.Errno(unix.EACCES)
	}
	return nil
}

// Lookup implements the NodeStringLookuper interface, finding a child node.
func (d *Dir) Lookup(_ context.Context, name string) (fusefs.Node, error) {
	childPath := d.path.Child(name)
	real, err := d.fs.translator.Resolve(childPath)
	if err != nil {
		return nil, hostErr(OpLookup, childPath, err)
	}

	info, err := os.Lstat(real)
	if err != nil {
		return nil, hostErr(OpLookup, childPath, err)
	}

	if info.IsDir() {
		return &Dir{fs: d.fs, path: childPath}, nil
	}
	// Regular files, symlinks, and special files all share one node
	// type: the host call decides what each operation means for them.
	return &File{fs: d.fs, path: childPath}, nil
}

// ReadDirAll implements the HandleReadDirAller interface. The listing
// always starts with the two conventional self/parent entries; the
// real directory's children follow in host-reported order. Listing a
// path that is not a directory yields only the two conventional
// entries, never an error.
func (d *Dir) ReadDirAll(_ context.Context) ([]fuse.Dirent, error) {
	entries := []fuse.Dirent{
		{Name: ".", Type: fuse.DT_Dir},
		{Name: "..", Type: fuse.DT_Dir},
	}

	real, err := d.fs.translator.Resolve(d.path)
	if err != nil {
		return nil, hostErr(OpReadDir, d.path, err)
	}

	info, err := os.Stat(real)
	if err != nil || !info.IsDir() {
		dirLogger.Debug().Str("path", d.path.String()).Msg("listing non-directory, returning conventional entries only")
		return entries, nil
	}

	f, err := os.Open(real)
	if err != nil {
		return nil, hostErr(OpReadDir, d.path, err)
	}
	defer f.Close()

	// File.ReadDir preserves the order the host reports, unlike
	// os.ReadDir which sorts.
	children, err := f.ReadDir(-1)
	if err != nil {
		return nil, hostErr(OpReadDir, d.path, err)
	}

	for _, child := range children {
		entries = append(entries, fuse.Dirent{
			Name: child.Name(),
			Type: direntType(child),
		})
	}

	dirLogger.Debug().Str("path", d.path.String()).Int("entries", len(entries)).Msg("read directory")
	return entries, nil
}

func direntType(entry os.DirEntry) fuse.DirentType {
	mode := entry.Type()
	switch {
	case mode.IsDir():
		return fuse.DT_Dir
	case mode&os.ModeSymlink != 0:
		return fuse.DT_Link
	case mode&os.ModeCharDevice != 0:
		return fuse.DT_Char
	case mode&os.ModeDevice != 0:
		return fuse.DT_Block
	case mode&os.ModeNamedPipe != 0:
		return fuse.DT_FIFO
	case mode&os.ModeSocket != 0:
		return fuse.DT_Socket
	default:
		return fuse.DT_File
	}
}

// Mkdir implements the NodeMkdirer interface, creating a real
// directory under the backing root.
func (d *Dir) Mkdir(_ context.Context, req *fuse.MkdirRequest) (fusefs.Node, error) {
	childPath := d.path.Child(req.Name)
	dirLogger.Debug().Str("path", childPath.String()).Msg("mkdir")

	real, err := d.fs.translator.Resolve(childPath)
	if err != nil {
		return nil, hostErr(OpMkdir, childPath, err)
	}
	if err := os.Mkdir(real, req.Mode.Perm()); err != nil {
		return nil, hostErr(OpMkdir, childPath, err)
	}
	return &Dir{fs: d.fs, path: childPath}, nil
}

// Mknod implements the NodeMknoder interface, creating a special file.
func (d *Dir) Mknod(_ context.Context, req *fuse.MknodRequest) (fusefs.Node, error) {
	childPath := d.path.Child(req.Name)
	dirLogger.Debug().Str("path", childPath.String()).Msg("mknod")

	real, err := d.fs.translator.Resolve(childPath)
	if err != nil {
		return nil, hostErr(OpMknod, childPath, err)
	}
	if err := unix.Mknod(real, syscallMode(req.Mode), int(req.Rdev)); err != nil {
		return nil, hostErr(OpMknod, childPath, err)
	}
	return &File{fs: d.fs, path: childPath}, nil
}

// Remove implements the NodeRemover interface. Directories go through
// rmdir, everything else through unlink, matching the host semantics
// exactly (a non-empty directory fails with the host's ENOTEMPTY).
func (d *Dir) Remove(_ context.Context, req *fuse.RemoveRequest) error {
	childPath := d.path.Child(req.Name)
	dirLogger.Debug().Str("path", childPath.String()).Bool("dir", req.Dir).Msg("remove")

	real, err := d.fs.translator.Resolve(childPath)
	if err != nil {
		return hostErr(OpRemove, childPath, err)
	}

	if req.Dir {
		if err := unix.Rmdir(real); err != nil {
			return hostErr(OpRemove, childPath, err)
		}
		return nil
	}
	if err := unix.Unlink(real); err != nil {
		return hostErr(OpRemove, childPath, err)
	}
	return nil
}

// Rename implements the NodeRenamer interface via one atomic host
// rename call; no partial-rename recovery is attempted.
func (d *Dir) Rename(_ context.Context, req *fuse.RenameRequest, newDir fusefs.Node) error {
	target, ok := newDir.(*Dir)
	if !ok {
		return fuse.Errno(unix.EINVAL)
	}

	oldPath := d.path.Child(req.OldName)
	newPath := target.path.Child(req.NewName)
	dirLogger.Debug().Str("old", oldPath.String()).Str("new", newPath.String()).Msg("rename")

	realOld, err := d.fs.translator.Resolve(oldPath)
	if err != nil {
		return hostErr(OpRename, oldPath, err)
	}
	realNew, err := d.fs.translator.Resolve(newPath)
	if err != nil {
		return hostErr(OpRename, newPath, err)
	}

	if err := os.Rename(realOld, realNew); err != nil {
		return hostErr(OpRename, oldPath, err)
	}
	return nil
}

// Symlink implements the NodeSymlinker interface. The target string is
// stored literally; no translation is applied on creation (readlink
// performs the inverse rewrite).
func (d *Dir) Symlink(_ context.Context, req *fuse.SymlinkRequest) (fusefs.Node, error) {
	childPath := d.path.Child(req.NewName)
	dirLogger.Debug().Str("path", childPath.String()).Str("target", req.Target).Msg("symlink")

	real, err := d.fs.translator.Resolve(childPath)
	if err != nil {
		return nil, hostErr(OpSymlink, childPath, err)
	}
	if err := os.Symlink(req.Target, real); err != nil {
		return nil, hostErr(OpSymlink, childPath, err)
	}
	return &File{fs: d.fs, path: childPath}, nil
}

// Link implements the NodeLinker interface, creating a hard link to an
// existing file node.
func (d *Dir) Link(_ context.Context, req *fuse.LinkRequest, old fusefs.Node) (fusefs.Node, error) {
	oldFile, ok := old.(*File)
	if !ok {
		return nil, fuse.Errno(unix.EPERM)
	}

	newPath := d.path.Child(req.NewName)
	dirLogger.Debug().Str("old", oldFile.path.String()).Str("new", newPath.String()).Msg("link")

	realOld, err := d.fs.translator.Resolve(oldFile.path)
	if err != nil {
		return nil, hostErr(OpLink, oldFile.path, err)
	}
	realNew, err := d.fs.translator.Resolve(newPath)
	if err != nil {
		return nil, hostErr(OpLink, newPath, err)
	}

	if err := os.Link(realOld, realNew); err != nil {
		return nil, hostErr(OpLink, newPath, err)
	}
	return &File{fs: d.fs, path: newPath}, nil
}

// Create implements the NodeCreater interface: host open with
// write-only and create semantics plus the caller-supplied permission
// bits, returning both the new node and its open handle.
func (d *Dir) Create(_ context.Context, req *fuse.CreateRequest, _ *fuse.CreateResponse) (fusefs.Node, fusefs.Handle, error) {
	childPath := d.path.Child(req.Name)
	dirLogger.Debug().Str("path", childPath.String()).Msg("create")

	real, err := d.fs.translator.Resolve(childPath)
	if err != nil {
		return nil, nil, hostErr(OpCreate, childPath, err)
	}

	file, err := os.OpenFile(real, os.O_WRONLY|os.O_CREATE, req.Mode.Perm())
	if err != nil {
		return nil, nil, hostErr(OpCreate, childPath, err)
	}

	node := &File{fs: d.fs, path: childPath}
	return node, &FileHandle{file: file, path: childPath.String()}, nil
}

// Setattr implements the NodeSetattrer interface for directories
// (chmod, chown, timestamp updates).
func (d *Dir) Setattr(_ context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	real, err := d.fs.translator.Resolve(d.path)
	if err != nil {
		return hostErr(OpSetattr, d.path, err)
	}
	if err := applySetattr(real, req); err != nil {
		return hostErr(OpSetattr, d.path, err)
	}
	if err := fillAttr(real, &resp.Attr); err != nil {
		return hostErr(OpSetattr, d.path, err)
	}
	return nil
}
