package node

import (
	"path/filepath"
	"strings"

	"github.com/cuemby/dflow/pkg/ferrors"
)

// DirectoryContainer is a ContainerNode whose children are required to
// live directly inside a filesystem directory it owns. It is the
// directory-backed grouping node used to represent, e.g., a single
// execution's working directory.
type DirectoryContainer struct {
	*ContainerNode
	path string
}

// NewDirectoryContainer constructs a DirectoryContainer rooted at path.
func NewDirectoryContainer(oid, uid, path string, opts Options) *DirectoryContainer {
	return &DirectoryContainer{
		ContainerNode: NewContainer(oid, uid, opts),
		path:          path,
	}
}

// Path returns the directory this container owns.
func (c *DirectoryContainer) Path() (string, bool) { return c.path, true }

// AddChild overrides ContainerNode's: child must expose a filesystem
// path (i.e. be file-backed, directly or through nesting) and that
// path must sit directly inside this container's directory.
func (c *DirectoryContainer) AddChild(child dataNodeLike) error {
	p, ok := child.(interface{ Path() (string, bool) })
	if !ok {
		return &ferrors.WiringError{Reason: "directory container children must be file-backed"}
	}
	childPath, ok := p.Path()
	if !ok {
		return &ferrors.WiringError{Reason: "directory container children must be file-backed"}
	}
	ownPath, err := filepath.Abs(c.path)
	if err != nil {
		return &ferrors.WiringError{Reason: "could not resolve container path: " + err.Error()}
	}
	dir := filepath.Dir(childPath)
	if dir != strings.TrimRight(ownPath, string(filepath.Separator)) {
		return &ferrors.WiringError{Reason: "child path " + childPath + " is not directly under " + ownPath}
	}
	return c.ContainerNode.AddChild(child)
}
