package fs

import (
	fusefs "bazil.org/fuse/fs"
)

// Node is the contract every node in the virtual namespace satisfies.
type Node interface {
	fusefs.Node
	fusefs.NodeAccesser
	fusefs.NodeSetattrer
}

// Directory is the full operation set served by directory nodes.
type Directory interface {
	Node
	fusefs.NodeStringLookuper
	fusefs.HandleReadDirAller
	fusefs.NodeMkdirer
	fusefs.NodeMknoder
	fusefs.NodeRemover
	fusefs.NodeRenamer
	fusefs.NodeSymlinker
	fusefs.NodeLinker
	fusefs.NodeCreater
}

// FileNode is the operation set served by non-directory nodes.
type FileNode interface {
	Node
	fusefs.NodeOpener
	fusefs.NodeFsyncer
	fusefs.NodeReadlinker
}

// Handle is the operation set of an open file handle, from open/create
// until release.
type Handle interface {
	fusefs.Handle
	fusefs.HandleReader
	fusefs.HandleWriter
	fusefs.HandleFlusher
	fusefs.HandleReleaser
}

var (
	_ fusefs.FS         = (*RepoFS)(nil)
	_ fusefs.FSStatfser = (*RepoFS)(nil)
	_ Directory         = (*Dir)(nil)
	_ FileNode          = (*File)(nil)
	_ Handle            = (*FileHandle)(nil)
)
