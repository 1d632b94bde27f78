package node

import (
	"sync"

	"github.com/cuemby/dflow/pkg/ferrors"
	"github.com/cuemby/dflow/pkg/ioh"
	"github.com/cuemby/dflow/pkg/types"
)

// dataNodeLike is the subset of DataNode's behavior a ContainerNode
// dispatches to its children polymorphically. It is satisfied by
// *DataNode, *ContainerNode, and *DirectoryContainer, so a
// DirectoryContainer nested inside a ContainerNode still reports its
// own overridden ExpirationDate and Exists.
type dataNodeLike interface {
	Identity
	ExpirationDate() int64
	Exists() (bool, error)
}

// ContainerNode groups other nodes without holding data of its own. It
// embeds a *DataNode backed by an error handle (any direct read/write
// attempt against a container is a programming error) purely to reuse
// the wiring and status-broadcast machinery.
type ContainerNode struct {
	*DataNode

	childMu sync.Mutex
	children []dataNodeLike
}

// NewContainer constructs an empty container node.
func NewContainer(oid, uid string, opts Options) *ContainerNode {
	handle := ioh.NewErrorHandle("container nodes hold no data of their own")
	return &ContainerNode{DataNode: New(oid, uid, handle, opts)}
}

// AddChild registers child under this container. A node may belong to
// at most one container; adding the same child twice is a no-op.
func (c *ContainerNode) AddChild(child dataNodeLike) error {
	if child.UID() == c.UID() {
		return &ferrors.WiringError{Reason: "container cannot be its own child"}
	}
	if setter, ok := child.(interface{ setParent(*ContainerNode) error }); ok {
		if err := setter.setParent(c); err != nil {
			return err
		}
	}
	c.childMu.Lock()
	defer c.childMu.Unlock()
	for _, existing := range c.children {
		if existing.UID() == child.UID() {
			return nil
		}
	}
	c.children = append(c.children, child)
	return nil
}

// Children returns the registered children in registration order.
func (c *ContainerNode) Children() []dataNodeLike {
	c.childMu.Lock()
	defer c.childMu.Unlock()
	out := make([]dataNodeLike, len(c.children))
	copy(out, c.children)
	return out
}

// ExpirationDate overrides DataNode's: a container's expiration is the
// maximum over its children's (types.NoExpiration, i.e. -1, loses to
// any concrete timestamp; an empty container never expires).
func (c *ContainerNode) ExpirationDate() int64 {
	c.childMu.Lock()
	defer c.childMu.Unlock()
	max := int64(types.NoExpiration)
	for _, child := range c.children {
		if d := child.ExpirationDate(); d > max {
			max = d
		}
	}
	return max
}

// Exists overrides DataNode's: a container exists if it has no
// children (vacuously true) or if any child exists.
func (c *ContainerNode) Exists() (bool, error) {
	c.childMu.Lock()
	children := make([]dataNodeLike, len(c.children))
	copy(children, c.children)
	c.childMu.Unlock()

	if len(children) == 0 {
		return true, nil
	}

	for _, child := range children {
		ok, err := child.Exists()
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
