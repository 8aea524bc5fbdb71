package fs

import (
	"path/filepath"
	"strings"
	"syscall"
)

// VirtualPath represents a path in the mounted namespace. It is always
// absolute from the mount point, never from the host root.
type VirtualPath struct {
	// always starts with /, always cleaned
	path string
}

// NewVirtualPath creates a new VirtualPath instance.
// It cleans the path and ensures it's absolute.
func NewVirtualPath(path string) *VirtualPath {
	cleaned := filepath.Clean(path)
	if !strings.HasPrefix(cleaned, "/") {
		cleaned = "/" + cleaned
	}
	return &VirtualPath{path: cleaned}
}

// String returns the string representation of the path
func (vp *VirtualPath) String() string {
	return vp.path
}

// Parent returns a VirtualPath representing the parent directory
func (vp *VirtualPath) Parent() *VirtualPath {
	return NewVirtualPath(filepath.Dir(vp.path))
}

// Base returns the last element of the path
func (vp *VirtualPath) Base() string {
	return filepath.Base(vp.path)
}

// Child returns the VirtualPath for a named entry below this path.
func (vp *VirtualPath) Child(name string) *VirtualPath {
	return NewVirtualPath(vp.path + "/" + name)
}

// IsRoot returns true if this is the root virtual path "/"
func (vp *VirtualPath) IsRoot() bool {
	return vp.path == "/"
}

// Translator maps virtual paths to real paths under the backing root.
// Translation is pure: no I/O, no state beyond the immutable root.
type Translator struct {
	backingRoot string
}

// NewTranslator creates a translator for the given backing root.
// The root is cleaned once here so every resolved path shares the
// same canonical prefix.
func NewTranslator(backingRoot string) *Translator {
	return &Translator{backingRoot: filepath.Clean(backingRoot)}
}

// Root returns the backing root directory.
func (t *Translator) Root() string {
	return t.backingRoot
}

// Resolve returns the real path for vp. The leading separator is
// stripped and the remainder joined under the backing root. Because
// VirtualPath is cleaned on construction no ".." segment can survive,
// but the containment check stays as a hardening property: a resolved
// path outside the backing root is rejected rather than served.
func (t *Translator) Resolve(vp *VirtualPath) (string, error) {
	rel := strings.TrimPrefix(vp.String(), "/")
	real := filepath.Join(t.backingRoot, rel)
	if real != t.backingRoot && !strings.HasPrefix(real, t.backingRoot+string(filepath.Separator)) {
		return "", syscall.EPERM
	}
	return real, nil
}
