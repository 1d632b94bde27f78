package ioh

import (
	"testing"

	"github.com/cuemby/dflow/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestFileHandleWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	h, err := NewFileHandle(FileOptions{Dirname: dir, OID: "a", UID: "a1"})
	require.NoError(t, err)

	require.NoError(t, h.Open(types.OpenWrite))
	n, err := h.Write([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.NoError(t, h.Close())

	exists, err := h.Exists()
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, h.Open(types.OpenRead))
	data, err := h.Read(1024)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
	require.NoError(t, h.Close())

	require.Equal(t, "file://127.0.0.1/", h.DataURL()[:17])
}

func TestFileHandleDeleteIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	h, err := NewFileHandle(FileOptions{Dirname: dir, OID: "b", UID: "b1"})
	require.NoError(t, err)
	require.NoError(t, h.Delete())
	require.NoError(t, h.Delete())
}

func TestMemoryHandleRoundTrip(t *testing.T) {
	h := NewMemoryHandle(MemoryOptions{})
	require.NoError(t, h.Open(types.OpenWrite))
	_, err := h.Write([]byte("abc"))
	require.NoError(t, err)
	require.NoError(t, h.Close())

	require.NoError(t, h.Open(types.OpenRead))
	data, err := h.Read(3)
	require.NoError(t, err)
	require.Equal(t, "abc", string(data))

	eof, err := h.Read(3)
	require.NoError(t, err)
	require.Empty(t, eof)
}

func TestNullHandleDiscardsWrites(t *testing.T) {
	h := NewNullHandle()
	n, err := h.Write([]byte("whatever"))
	require.NoError(t, err)
	require.Equal(t, 8, n)

	data, err := h.Read(10)
	require.NoError(t, err)
	require.Empty(t, data)

	require.Equal(t, "null://", h.DataURL())
}

func TestErrorHandleFailsEveryOperation(t *testing.T) {
	h := NewErrorHandle("always fails")
	require.Error(t, h.Open(types.OpenRead))
	_, err := h.Read(1)
	require.Error(t, err)
	_, err = h.Write([]byte("x"))
	require.Error(t, err)
	require.Error(t, h.Close())
	_, err = h.Exists()
	require.Error(t, err)
	require.Error(t, h.Delete())
}
