package fs

import (
	"os"
	"syscall"
	"time"

	"bazil.org/fuse"
)

// fillAttr populates a fuse.Attr from the real path using the
// link-aware stat variant, so symlinks report their own metadata.
// The field set is fixed: atime, ctime, gid, mode, mtime, nlink,
// size, uid (plus the inode and block accounting the kernel wants).
func fillAttr(real string, a *fuse.Attr) error {
	info, err := os.Lstat(real)
	if err != nil {
		return err
	}

	a.Mode = info.Mode()
	a.Size = safeInt64ToUint64(info.Size())
	a.Mtime = info.ModTime()

	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		// No raw stat available; the portable subset above is all we
		// can report.
		return nil
	}

	a.Inode = st.Ino
	a.Atime = time.Unix(st.Atim.Unix())
	a.Ctime = time.Unix(st.Ctim.Unix())
	a.Nlink = safeUint64ToUint32(uint64(st.Nlink))
	a.Uid = st.Uid
	a.Gid = st.Gid
	a.Rdev = uint32(st.Rdev)
	a.Blocks = safeInt64ToUint64(st.Blocks)
	a.BlockSize = uint32(st.Blksize)
	return nil
}

// applySetattr forwards the attribute changes carried by a SETATTR
// request to the real path: chmod, chown, truncate, utimens. Each
// change is issued as the direct host equivalent; the first failure
// is returned as-is.
func applySetattr(real string, req *fuse.SetattrRequest) error {
	if req.Valid.Size() {
		// Truncate opens the real path independently of any caller
		// handle; SETATTR may arrive without one.
		if err := os.Truncate(real, int64(req.Size)); err != nil {
			return err
		}
	}

	if req.Valid.Mode() {
		if err := os.Chmod(real, req.Mode); err != nil {
			return err
		}
	}

	if req.Valid.Uid() || req.Valid.Gid() {
		uid, gid := -1, -1
		if req.Valid.Uid() {
			uid = int(req.Uid)
		}
		if req.Valid.Gid() {
			gid = int(req.Gid)
		}
		if err := os.Chown(real, uid, gid); err != nil {
			return err
		}
	}

	if req.Valid.Atime() || req.Valid.Mtime() || req.Valid.AtimeNow() || req.Valid.MtimeNow() {
		now := time.Now()
		atime, mtime := now, now
		if req.Valid.Atime() && !req.Valid.AtimeNow() {
			atime = req.Atime
		}
		if req.Valid.Mtime() && !req.Valid.MtimeNow() {
			mtime = req.Mtime
		}
		if err := os.Chtimes(real, atime, mtime); err != nil {
			return err
		}
	}

	return nil
}

// syscallMode converts an os.FileMode into the raw mode bits mknod
// expects.
func syscallMode(m os.FileMode) uint32 {
	mode := uint32(m.Perm())
	switch {
	case m&os.ModeCharDevice != 0:
		mode |= syscall.S_IFCHR
	case m&os.ModeDevice != 0:
		mode |= syscall.S_IFBLK
	case m&os.ModeNamedPipe != 0:
		mode |= syscall.S_IFIFO
	case m&os.ModeSocket != 0:
		mode |= syscall.S_IFSOCK
	default:
		mode |= syscall.S_IFREG
	}
	if m&os.ModeSetuid != 0 {
		mode |= syscall.S_ISUID
	}
	if m&os.ModeSetgid != 0 {
		mode |= syscall.S_ISGID
	}
	if m&os.ModeSticky != 0 {
		mode |= syscall.S_ISVTX
	}
	return mode
}
