package ioh

import (
	"bytes"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/cuemby/dflow/pkg/ferrors"
	"github.com/cuemby/dflow/pkg/types"
)

var memoryBufferSeq int64

// MemoryOptions configures a memory-backed Handle.
type MemoryOptions struct {
	Host string
}

// MemoryHandle is an unbounded in-process buffer. It is the simplest
// backend and requires no external resource to open or close.
type MemoryHandle struct {
	opts     MemoryOptions
	bufferID int64
	buf      bytes.Buffer
	readPos  int
	deleted  bool
	opened   bool
}

// NewMemoryHandle constructs a MemoryHandle backed by a fresh,
// process-local buffer.
func NewMemoryHandle(opts MemoryOptions) *MemoryHandle {
	if opts.Host == "" {
		opts.Host = types.LoopbackNode
	}
	return &MemoryHandle{
		opts:     opts,
		bufferID: atomic.AddInt64(&memoryBufferSeq, 1),
	}
}

func (h *MemoryHandle) Backend() types.IOBackend { return types.BackendMemory }

func (h *MemoryHandle) Open(mode types.OpenMode) error {
	if h.deleted {
		return &ferrors.IOError{Op: "open", Err: fmt.Errorf("buffer was deleted")}
	}
	h.opened = true
	return nil
}

func (h *MemoryHandle) Read(n int) ([]byte, error) {
	if !h.opened {
		return nil, &ferrors.IOError{Op: "read", Err: fmt.Errorf("not open")}
	}
	data := h.buf.Bytes()
	if h.readPos >= len(data) {
		return nil, nil
	}
	end := h.readPos + n
	if end > len(data) {
		end = len(data)
	}
	chunk := data[h.readPos:end]
	h.readPos = end
	out := make([]byte, len(chunk))
	copy(out, chunk)
	return out, nil
}

func (h *MemoryHandle) Write(p []byte) (int, error) {
	if !h.opened {
		return 0, &ferrors.IOError{Op: "write", Err: fmt.Errorf("not open")}
	}
	return h.buf.Write(p)
}

func (h *MemoryHandle) Close() error {
	h.opened = false
	return nil
}

func (h *MemoryHandle) Exists() (bool, error) {
	return !h.deleted && h.buf.Len() > 0, nil
}

func (h *MemoryHandle) Delete() error {
	h.buf.Reset()
	h.deleted = true
	return nil
}

func (h *MemoryHandle) DataURL() string {
	return fmt.Sprintf("mem://%s/%d/%d", h.opts.Host, os.Getpid(), h.bufferID)
}
