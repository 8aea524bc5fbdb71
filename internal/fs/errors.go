// Package fs implements the passthrough filesystem.
//
// This file contains error types and the host-error to errno mapping.
package fs

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"repofs/internal/logging"

	"bazil.org/fuse"
)

var errLogger = logging.New("error")

// Error wraps a failed host filesystem call with the operation and
// affected virtual path, for logging and error chains. The FUSE layer
// only ever sees the mapped errno.
type Error struct {
	Op   string // Operation that failed (e.g., "lookup", "readdir")
	Path string // Affected virtual path
	Err  error  // Underlying error
}

// Error implements the error interface, providing a formatted error message
func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("operation %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("operation %s on %s failed: %v", e.Op, e.Path, e.Err)
}

// Unwrap implements error unwrapping for the errors.Is/As functions
func (e *Error) Unwrap() error {
	return e.Err
}

// Errno implements fuse.ErrorNumber so a wrapped Error can be returned
// to the dispatch layer directly.
func (e *Error) Errno() fuse.Errno {
	return ToErrno(e.Err)
}

// NewError creates a new Error with the given operation, path, and underlying error
func NewError(op string, path string, err error) *Error {
	return &Error{
		Op:   op,
		Path: path,
		Err:  err,
	}
}

// ToErrno converts a failed host filesystem call into the errno the
// FUSE layer reports. The host's original errno is preserved whenever
// one exists in the chain; wrapped os sentinel errors are classified;
// anything else becomes EIO. No failure is ever converted into a
// success here.
func ToErrno(err error) fuse.Errno {
	if err == nil {
		return 0
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return fuse.Errno(errno)
	}
	var ferrno fuse.Errno
	if errors.As(err, &ferrno) {
		return ferrno
	}

	switch {
	case errors.Is(err, os.ErrNotExist):
		return fuse.ENOENT
	case errors.Is(err, os.ErrPermission):
		return fuse.Errno(syscall.EACCES)
	case errors.Is(err, os.ErrExist):
		return fuse.EEXIST
	default:
		errLogger.Debug().Err(err).Msg("unclassified host error, returning EIO")
		return fuse.EIO
	}
}

// hostErr logs a failed host call and returns it as a FUSE errno.
// This is the single exit path for every forwarded operation failure:
// the original classification is preserved, never retried, never
// downgraded to a success.
func hostErr(op string, path *VirtualPath, err error) error {
	wrapped := NewError(op, path.String(), err)
	errLogger.Debug().Err(wrapped).Msg("host call failed")
	return ToErrno(err)
}

// Common operation names for consistent logging and error reporting
const (
	OpLookup   = "lookup"   // Looking up a path
	OpReadDir  = "readdir"  // Reading directory contents
	OpOpen     = "open"     // Opening a file
	OpCreate   = "create"   // Creating a new file
	OpRead     = "read"     // Reading from a file
	OpWrite    = "write"    // Writing to a file
	OpMkdir    = "mkdir"    // Creating a new directory
	OpMknod    = "mknod"    // Creating a special file
	OpRemove   = "remove"   // Removing a file or directory
	OpRename   = "rename"   // Renaming/moving a file or directory
	OpSymlink  = "symlink"  // Creating a symbolic link
	OpLink     = "link"     // Creating a hard link
	OpReadlink = "readlink" // Reading a symlink target
	OpSetattr  = "setattr"  // Setting file attributes
	OpGetattr  = "getattr"  // Getting file attributes
	OpAccess   = "access"   // Checking permissions
	OpStatfs   = "statfs"   // Filesystem statistics
	OpFlush    = "flush"    // Flushing handle data
	OpFsync    = "fsync"    // Syncing file data
	OpRelease  = "release"  // Closing a handle
)
