package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"bazil.org/fuse"
	"golang.org/x/sys/unix"
)

func setupTestFS(t *testing.T) (*RepoFS, string, func()) {
	backingDir, err := os.MkdirTemp("", "repofs-backing-*")
	if err != nil {
		t.Fatalf("Failed to create backing dir: %v", err)
	}

	rfs, err := NewRepoFS(backingDir)
	if err != nil {
		os.RemoveAll(backingDir)
		t.Fatalf("Failed to create filesystem: %v", err)
	}

	cleanup := func() {
		os.RemoveAll(backingDir)
	}

	return rfs, backingDir, cleanup
}

func TestDirOperations(t *testing.T) {
	rfs, backingDir, cleanup := setupTestFS(t)
	defer cleanup()

	// Create some test files in the backing directory
	testFiles := []string{
		"file1.txt",
		"dir1/file2.txt",
		"dir1/dir2/file3.txt",
	}

	for _, tf := range testFiles {
		fullPath := filepath.Join(backingDir, tf)
		if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
			t.Fatalf("Failed to create directory: %v", err)
		}
		if err := os.WriteFile(fullPath, []byte("test"), 0644); err != nil {
			t.Fatalf("Failed to create test file: %v", err)
		}
	}

	ctx := context.Background()

	t.Run("RootDirectory", func(t *testing.T) {
		root, rootErr := rfs.Root()
		if rootErr != nil {
			t.Fatalf("Failed to get root: %v", rootErr)
		}

		attr := &fuse.Attr{}
		if attrErr := root.Attr(ctx, attr); attrErr != nil {
			t.Errorf("Failed to get root attributes: %v", attrErr)
		}
		if attr.Mode&os.ModeDir == 0 {
			t.Error("Root should be a directory")
		}

		dir, ok := root.(*Dir)
		if !ok {
			t.Fatal("Root should be a Dir")
		}

		entries, readErr := dir.ReadDirAll(ctx)
		if readErr != nil {
			t.Errorf("Failed to read root directory: %v", readErr)
		}

		// The conventional entries always come first
		if len(entries) < 2 || entries[0].Name != "." || entries[1].Name != ".." {
			t.Fatalf("Expected listing to start with . and .., got %v", entries)
		}

		names := make(map[string]fuse.DirentType)
		for _, entry := range entries[2:] {
			names[entry.Name] = entry.Type
		}
		if typ, ok := names["file1.txt"]; !ok || typ != fuse.DT_File {
			t.Errorf("Expected file1.txt as DT_File, got %v (present=%v)", typ, ok)
		}
		if typ, ok := names["dir1"]; !ok || typ != fuse.DT_Dir {
			t.Errorf("Expected dir1 as DT_Dir, got %v (present=%v)", typ, ok)
		}
	})

	t.Run("ListNonDirectory", func(t *testing.T) {
		// Listing a path that is not a directory yields only the two
		// conventional entries, never an error.
		dir := &Dir{fs: rfs, path: NewVirtualPath("/file1.txt")}
		entries, err := dir.ReadDirAll(ctx)
		if err != nil {
			t.Fatalf("Expected no error listing a file, got %v", err)
		}
		if len(entries) != 2 {
			t.Fatalf("Expected exactly 2 entries, got %d: %v", len(entries), entries)
		}
		if entries[0].Name != "." || entries[1].Name != ".." {
			t.Errorf("Expected . and .., got %v", entries)
		}
	})

	t.Run("AccessGranted", func(t *testing.T) {
		root, _ := rfs.Root()
		dir := root.(*Dir)

		if err := dir.Access(ctx, &fuse.AccessRequest{Mask: unix.R_OK | unix.X_OK}); err != nil {
			t.Errorf("Access to readable directory should succeed: %v", err)
		}
	})

	t.Run("AccessMissingPath", func(t *testing.T) {
		// The failure is always reported as access denied, never as
		// the underlying cause
		dir := &Dir{fs: rfs, path: NewVirtualPath("/no-such-dir")}
		err := dir.Access(ctx, &fuse.AccessRequest{Mask: unix.R_OK})
		if err != fuse.Errno(unix.EACCES) {
			t.Errorf("Expected EACCES for missing path, got %v", err)
		}
	})

	t.Run("AccessDeniedDirectory", func(t *testing.T) {
		if os.Geteuid() == 0 {
			t.Skip("root bypasses file permission checks")
		}

		locked := filepath.Join(backingDir, "lockeddir")
		if err := os.Mkdir(locked, 0200); err != nil {
			t.Fatalf("Failed to create directory: %v", err)
		}
		defer os.Chmod(locked, 0755)

		dir := &Dir{fs: rfs, path: NewVirtualPath("/lockeddir")}
		err := dir.Access(ctx, &fuse.AccessRequest{Mask: unix.R_OK})
		if err != fuse.Errno(unix.EACCES) {
			t.Errorf("Expected EACCES for unreadable directory, got %v", err)
		}
	})

	t.Run("LookupMissingEntry", func(t *testing.T) {
		root, _ := rfs.Root()
		dir := root.(*Dir)

		_, err := dir.Lookup(ctx, "no-such-file")
		if err != fuse.ENOENT {
			t.Errorf("Expected ENOENT, got %v", err)
		}
	})

	t.Run("LookupNested", func(t *testing.T) {
		root, _ := rfs.Root()
		dir := root.(*Dir)

		sub, err := dir.Lookup(ctx, "dir1")
		if err != nil {
			t.Fatalf("Failed to lookup dir1: %v", err)
		}
		subDir, ok := sub.(*Dir)
		if !ok {
			t.Fatal("dir1 should be a Dir")
		}

		file, err := subDir.Lookup(ctx, "file2.txt")
		if err != nil {
			t.Fatalf("Failed to lookup file2.txt: %v", err)
		}
		if _, ok := file.(*File); !ok {
			t.Error("file2.txt should be a File")
		}
	})

	t.Run("CreateDirectory", func(t *testing.T) {
		root, _ := rfs.Root()
		dir := root.(*Dir)

		req := &fuse.MkdirRequest{Name: "newdir", Mode: os.ModeDir | 0755}
		newDir, mkdirErr := dir.Mkdir(ctx, req)
		if mkdirErr != nil {
			t.Fatalf("Failed to create directory: %v", mkdirErr)
		}

		dirAttr := &fuse.Attr{}
		if attrErr := newDir.Attr(ctx, dirAttr); attrErr != nil {
			t.Errorf("Failed to get new directory attributes: %v", attrErr)
		}
		if dirAttr.Mode&os.ModeDir == 0 {
			t.Error("Created node should be a directory")
		}

		// The real directory must exist under the backing root
		info, err := os.Stat(filepath.Join(backingDir, "newdir"))
		if err != nil || !info.IsDir() {
			t.Errorf("Backing directory missing after mkdir: %v", err)
		}
	})

	t.Run("RemoveFile", func(t *testing.T) {
		root, _ := rfs.Root()
		dir := root.(*Dir)

		target := filepath.Join(backingDir, "todelete.txt")
		if err := os.WriteFile(target, []byte("x"), 0644); err != nil {
			t.Fatalf("Failed to create test file: %v", err)
		}

		removeReq := &fuse.RemoveRequest{Name: "todelete.txt", Dir: false}
		if err := dir.Remove(ctx, removeReq); err != nil {
			t.Fatalf("Failed to remove file: %v", err)
		}

		if _, err := os.Lstat(target); !os.IsNotExist(err) {
			t.Error("File should not exist after removal")
		}
	})

	t.Run("RemoveDirectory", func(t *testing.T) {
		root, _ := rfs.Root()
		dir := root.(*Dir)

		req := &fuse.MkdirRequest{Name: "emptydir", Mode: os.ModeDir | 0755}
		if _, err := dir.Mkdir(ctx, req); err != nil {
			t.Fatalf("Failed to create directory: %v", err)
		}

		removeReq := &fuse.RemoveRequest{Name: "emptydir", Dir: true}
		if err := dir.Remove(ctx, removeReq); err != nil {
			t.Fatalf("Failed to remove directory: %v", err)
		}

		if _, err := dir.Lookup(ctx, "emptydir"); err == nil {
			t.Error("Directory should not exist after removal")
		}
	})

	t.Run("RemoveNonEmptyDirectory", func(t *testing.T) {
		root, _ := rfs.Root()
		dir := root.(*Dir)

		// dir1 still has children; rmdir must report the host failure
		removeReq := &fuse.RemoveRequest{Name: "dir1", Dir: true}
		if err := dir.Remove(ctx, removeReq); err == nil {
			t.Error("Removing a non-empty directory should fail")
		}
	})

	t.Run("RenameAcrossDirectories", func(t *testing.T) {
		root, _ := rfs.Root()
		dir := root.(*Dir)

		targetReq := &fuse.MkdirRequest{Name: "renametarget", Mode: os.ModeDir | 0755}
		targetDir, err := dir.Mkdir(ctx, targetReq)
		if err != nil {
			t.Fatalf("Failed to create target directory: %v", err)
		}

		if err := os.WriteFile(filepath.Join(backingDir, "moveme.txt"), []byte("content"), 0644); err != nil {
			t.Fatalf("Failed to create test file: %v", err)
		}

		renameReq := &fuse.RenameRequest{
			OldName: "moveme.txt",
			NewName: "moved.txt",
		}
		if err := dir.Rename(ctx, renameReq, targetDir); err != nil {
			t.Errorf("Failed to rename file: %v", err)
		}

		if _, err := dir.Lookup(ctx, "moveme.txt"); err == nil {
			t.Error("Old name should not exist after rename")
		}

		found, err := targetDir.(*Dir).Lookup(ctx, "moved.txt")
		if err != nil {
			t.Error("New name should exist after rename")
		}
		if found == nil {
			t.Error("Renamed file not found at new location")
		}
	})

	t.Run("HardLink", func(t *testing.T) {
		root, _ := rfs.Root()
		dir := root.(*Dir)

		if err := os.WriteFile(filepath.Join(backingDir, "original.txt"), []byte("shared"), 0644); err != nil {
			t.Fatalf("Failed to create test file: %v", err)
		}

		orig, err := dir.Lookup(ctx, "original.txt")
		if err != nil {
			t.Fatalf("Failed to lookup original: %v", err)
		}

		linkReq := &fuse.LinkRequest{NewName: "alias.txt"}
		linked, err := dir.Link(ctx, linkReq, orig)
		if err != nil {
			t.Fatalf("Failed to create hard link: %v", err)
		}

		// Both names refer to the same inode with a link count of two
		attr := &fuse.Attr{}
		if err := linked.Attr(ctx, attr); err != nil {
			t.Fatalf("Failed to get link attributes: %v", err)
		}
		if attr.Nlink != 2 {
			t.Errorf("Expected link count 2, got %d", attr.Nlink)
		}

		origAttr := &fuse.Attr{}
		if err := orig.Attr(ctx, origAttr); err != nil {
			t.Fatalf("Failed to get original attributes: %v", err)
		}
		if origAttr.Inode != attr.Inode {
			t.Errorf("Expected same inode, got %d and %d", origAttr.Inode, attr.Inode)
		}
	})

	t.Run("SymlinkAndReadlink", func(t *testing.T) {
		root, _ := rfs.Root()
		dir := root.(*Dir)

		symReq := &fuse.SymlinkRequest{NewName: "relative-link", Target: "file1.txt"}
		node, err := dir.Symlink(ctx, symReq)
		if err != nil {
			t.Fatalf("Failed to create symlink: %v", err)
		}

		// Relative targets pass through unchanged
		target, err := node.(*File).Readlink(ctx, &fuse.ReadlinkRequest{})
		if err != nil {
			t.Fatalf("Failed to read symlink: %v", err)
		}
		if target != "file1.txt" {
			t.Errorf("Expected target %q, got %q", "file1.txt", target)
		}
	})

	t.Run("ReadlinkRewritesAbsoluteTarget", func(t *testing.T) {
		root, _ := rfs.Root()
		dir := root.(*Dir)

		// An absolute target pointing inside the backing root is
		// rewritten relative to it
		absTarget := filepath.Join(backingDir, "dir1", "file2.txt")
		if err := os.Symlink(absTarget, filepath.Join(backingDir, "abs-link")); err != nil {
			t.Fatalf("Failed to create symlink: %v", err)
		}

		node, err := dir.Lookup(ctx, "abs-link")
		if err != nil {
			t.Fatalf("Failed to lookup symlink: %v", err)
		}

		target, err := node.(*File).Readlink(ctx, &fuse.ReadlinkRequest{})
		if err != nil {
			t.Fatalf("Failed to read symlink: %v", err)
		}
		if target != filepath.Join("dir1", "file2.txt") {
			t.Errorf("Expected rewritten target %q, got %q", "dir1/file2.txt", target)
		}
	})

	t.Run("SetattrChmod", func(t *testing.T) {
		root, _ := rfs.Root()
		dir := root.(*Dir)

		req := &fuse.MkdirRequest{Name: "chmoddir", Mode: os.ModeDir | 0755}
		node, err := dir.Mkdir(ctx, req)
		if err != nil {
			t.Fatalf("Failed to create directory: %v", err)
		}

		setReq := &fuse.SetattrRequest{Mode: os.ModeDir | 0700}
		setReq.Valid |= fuse.SetattrMode
		resp := &fuse.SetattrResponse{}
		if err := node.(*Dir).Setattr(ctx, setReq, resp); err != nil {
			t.Fatalf("Failed to chmod directory: %v", err)
		}
		if resp.Attr.Mode.Perm() != 0700 {
			t.Errorf("Expected mode 0700, got %o", resp.Attr.Mode.Perm())
		}
	})
}
