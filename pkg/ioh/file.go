package ioh

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cuemby/dflow/pkg/ferrors"
	"github.com/cuemby/dflow/pkg/types"
)

// FileOptions configures a file-backed Handle.
type FileOptions struct {
	// Dirname is the directory the backing file lives under; it is
	// created (with its parents) if absent.
	Dirname string
	OID     string
	UID     string
	// Host is the informational host tag used in DataURL; it defaults
	// to types.LoopbackNode.
	Host string
}

// FileHandle is the file-backed Handle variant. The backing path is
// Dirname + "/" + OID + "___" + UID.
type FileHandle struct {
	opts FileOptions
	path string
	f    *os.File
}

// NewFileHandle constructs a FileHandle without touching the
// filesystem; the directory is created lazily on Open.
func NewFileHandle(opts FileOptions) (*FileHandle, error) {
	if opts.Dirname == "" {
		return nil, &ferrors.InvalidConfig{Subject: "FileHandle", Reason: "dirname is required"}
	}
	if opts.Host == "" {
		opts.Host = types.LoopbackNode
	}
	path := filepath.Join(opts.Dirname, opts.OID+"___"+opts.UID)
	return &FileHandle{opts: opts, path: path}, nil
}

func (h *FileHandle) Backend() types.IOBackend { return types.BackendFile }

func (h *FileHandle) Open(mode types.OpenMode) error {
	if err := os.MkdirAll(h.opts.Dirname, 0o755); err != nil {
		return &ferrors.IOError{Op: "mkdir", Err: err}
	}
	var f *os.File
	var err error
	switch mode {
	case types.OpenWrite:
		f, err = os.OpenFile(h.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	case types.OpenRead:
		f, err = os.Open(h.path)
	default:
		return unsupportedMode(types.BackendFile, mode)
	}
	if err != nil {
		return &ferrors.IOError{Op: "open", Err: err}
	}
	h.f = f
	return nil
}

func (h *FileHandle) Read(n int) ([]byte, error) {
	if h.f == nil {
		return nil, &ferrors.IOError{Op: "read", Err: fmt.Errorf("not open")}
	}
	buf := make([]byte, n)
	read, err := h.f.Read(buf)
	if err != nil {
		if err == io.EOF {
			return buf[:read], nil
		}
		return nil, &ferrors.IOError{Op: "read", Err: err}
	}
	return buf[:read], nil
}

func (h *FileHandle) Write(p []byte) (int, error) {
	if h.f == nil {
		return 0, &ferrors.IOError{Op: "write", Err: fmt.Errorf("not open")}
	}
	n, err := h.f.Write(p)
	if err != nil {
		return n, &ferrors.IOError{Op: "write", Err: err}
	}
	return n, nil
}

func (h *FileHandle) Close() error {
	if h.f == nil {
		return nil
	}
	err := h.f.Close()
	h.f = nil
	if err != nil {
		return &ferrors.IOError{Op: "close", Err: err}
	}
	return nil
}

func (h *FileHandle) Exists() (bool, error) {
	_, err := os.Stat(h.path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, &ferrors.IOError{Op: "stat", Err: err}
}

func (h *FileHandle) Delete() error {
	if err := os.Remove(h.path); err != nil && !os.IsNotExist(err) {
		return &ferrors.IOError{Op: "delete", Err: err}
	}
	return nil
}

// Path returns the absolute backing file path.
func (h *FileHandle) Path() (string, error) {
	return filepath.Abs(h.path)
}

func (h *FileHandle) DataURL() string {
	abs, err := filepath.Abs(h.path)
	if err != nil {
		abs = h.path
	}
	return fmt.Sprintf("file://%s%s", h.opts.Host, abs)
}
