package fs

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestVirtualPath(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "simple path",
			input:    "test.txt",
			expected: "/test.txt",
		},
		{
			name:     "nested path",
			input:    "dir/test.txt",
			expected: "/dir/test.txt",
		},
		{
			name:     "already absolute path",
			input:    "/dir/test.txt",
			expected: "/dir/test.txt",
		},
		{
			name:     "dot path gets cleaned",
			input:    "./test.txt",
			expected: "/test.txt",
		},
		{
			name:     "double dot path gets cleaned",
			input:    "dir/../test.txt",
			expected: "/test.txt",
		},
		{
			name:     "leading double dot collapses to root",
			input:    "/../test.txt",
			expected: "/test.txt",
		},
		{
			name:     "root",
			input:    "/",
			expected: "/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vp := NewVirtualPath(tt.input)
			if vp.String() != tt.expected {
				t.Errorf("Expected path %q, got %q", tt.expected, vp.String())
			}
		})
	}
}

func TestVirtualPathNavigation(t *testing.T) {
	vp := NewVirtualPath("/a/b/c.txt")

	if vp.Base() != "c.txt" {
		t.Errorf("Expected base %q, got %q", "c.txt", vp.Base())
	}
	if vp.Parent().String() != "/a/b" {
		t.Errorf("Expected parent %q, got %q", "/a/b", vp.Parent().String())
	}
	if vp.Parent().Child("d").String() != "/a/b/d" {
		t.Errorf("Expected child %q, got %q", "/a/b/d", vp.Parent().Child("d").String())
	}

	if !NewVirtualPath("/").IsRoot() {
		t.Error("Expected / to be root")
	}
	if vp.IsRoot() {
		t.Error("Expected /a/b/c.txt not to be root")
	}
}

func TestTranslatorResolve(t *testing.T) {
	root := filepath.Join("/", "backing", "root")
	tr := NewTranslator(root)

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "root maps to backing root",
			input:    "/",
			expected: root,
		},
		{
			name:     "file in root",
			input:    "/file.txt",
			expected: filepath.Join(root, "file.txt"),
		},
		{
			name:     "nested path",
			input:    "/a/b/c.txt",
			expected: filepath.Join(root, "a", "b", "c.txt"),
		},
		{
			name:     "dot-dot segments collapse inside the root",
			input:    "/a/../b.txt",
			expected: filepath.Join(root, "b.txt"),
		},
		{
			name:     "dot-dot at the root cannot escape",
			input:    "/../../etc/passwd",
			expected: filepath.Join(root, "etc", "passwd"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			real, err := tr.Resolve(NewVirtualPath(tt.input))
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			if real != tt.expected {
				t.Errorf("Expected real path %q, got %q", tt.expected, real)
			}
		})
	}
}

func TestTranslatorContainment(t *testing.T) {
	root := filepath.Join("/", "backing", "root")
	tr := NewTranslator(root)

	// Every resolved path must stay under the backing root. A sibling
	// directory sharing the root as a name prefix must not pass.
	real, err := tr.Resolve(NewVirtualPath("/anything/at/all"))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if real != root && !strings.HasPrefix(real, root+string(filepath.Separator)) {
		t.Errorf("Resolved path %q escapes backing root %q", real, root)
	}
}
