package node

import (
	"path/filepath"
	"testing"

	"github.com/cuemby/dflow/pkg/ioh"
	"github.com/cuemby/dflow/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestContainerExpirationIsMaxOverChildren(t *testing.T) {
	c := NewContainer("c", "c1", Options{})
	require.Equal(t, int64(types.NoExpiration), c.ExpirationDate())

	child1 := newMemNode("a", "a1", Options{ExpirationDate: 100})
	child2 := newMemNode("b", "b1", Options{ExpirationDate: 200})
	require.NoError(t, c.AddChild(child1))
	require.NoError(t, c.AddChild(child2))

	require.Equal(t, int64(200), c.ExpirationDate())
}

func TestEmptyContainerExists(t *testing.T) {
	c := NewContainer("c", "c1", Options{})
	ok, err := c.Exists()
	require.NoError(t, err)
	require.True(t, ok)
}

func TestContainerExistsFollowsItsOnlyChild(t *testing.T) {
	c := NewContainer("c", "c1", Options{})
	child := newMemNode("a", "a1", Options{})
	require.NoError(t, c.AddChild(child))

	ok, err := c.Exists()
	require.NoError(t, err)
	require.False(t, ok)

	_, err = child.Write([]byte("x"))
	require.NoError(t, err)

	ok, err = c.Exists()
	require.NoError(t, err)
	require.True(t, ok)
}

func TestContainerExistsIsOrOverChildren(t *testing.T) {
	c := NewContainer("c", "c1", Options{})
	empty := newMemNode("a", "a1", Options{})
	written := newMemNode("b", "b1", Options{})
	require.NoError(t, c.AddChild(empty))
	require.NoError(t, c.AddChild(written))

	ok, err := c.Exists()
	require.NoError(t, err)
	require.False(t, ok, "no child has data yet")

	_, err = written.Write([]byte("x"))
	require.NoError(t, err)

	ok, err = c.Exists()
	require.NoError(t, err)
	require.True(t, ok, "one child existing is enough under OR semantics")
}

func TestContainerCannotBeItsOwnChild(t *testing.T) {
	c := NewContainer("c", "c1", Options{})
	require.Error(t, c.AddChild(c))
}

func TestAddChildIsIdempotent(t *testing.T) {
	c := NewContainer("c", "c1", Options{})
	child := newMemNode("a", "a1", Options{})
	require.NoError(t, c.AddChild(child))
	require.NoError(t, c.AddChild(child))
	require.Len(t, c.Children(), 1)
}

func TestChildCannotBeReparented(t *testing.T) {
	c1 := NewContainer("c", "c1", Options{})
	c2 := NewContainer("c", "c2", Options{})
	child := newMemNode("a", "a1", Options{})
	require.NoError(t, c1.AddChild(child))
	require.Error(t, c2.AddChild(child))
}

func TestDirectoryContainerRequiresChildDirectlyUnderPath(t *testing.T) {
	dir := t.TempDir()
	dc := NewDirectoryContainer("d", "d1", dir, Options{})

	h, err := ioh.NewFileHandle(ioh.FileOptions{Dirname: dir, OID: "a", UID: "a1"})
	require.NoError(t, err)
	child := New("a", "a1", h, Options{})
	require.NoError(t, dc.AddChild(child))

	nested := filepath.Join(dir, "nested")
	h2, err := ioh.NewFileHandle(ioh.FileOptions{Dirname: nested, OID: "b", UID: "b1"})
	require.NoError(t, err)
	other := New("b", "b1", h2, Options{})
	require.Error(t, dc.AddChild(other))
}

func TestDirectoryContainerRejectsNonFileBackedChild(t *testing.T) {
	dir := t.TempDir()
	dc := NewDirectoryContainer("d", "d1", dir, Options{})
	child := newMemNode("a", "a1", Options{})
	require.Error(t, dc.AddChild(child))
}
