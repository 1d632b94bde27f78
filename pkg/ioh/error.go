package ioh

import (
	"fmt"

	"github.com/cuemby/dflow/pkg/ferrors"
	"github.com/cuemby/dflow/pkg/types"
)

// ErrorHandle fails every operation. Container nodes use it as their
// I/O handle: a container's "data" is the union of its children, and
// it exposes no direct I/O of its own.
type ErrorHandle struct {
	reason string
}

// NewErrorHandle constructs an ErrorHandle that fails with reason.
func NewErrorHandle(reason string) *ErrorHandle {
	return &ErrorHandle{reason: reason}
}

func (h *ErrorHandle) Backend() types.IOBackend { return types.BackendError }

func (h *ErrorHandle) fail(op string) error {
	return &ferrors.IOError{Op: op, Err: fmt.Errorf("%s", h.reason)}
}

func (h *ErrorHandle) Open(types.OpenMode) error   { return h.fail("open") }
func (h *ErrorHandle) Read(int) ([]byte, error)    { return nil, h.fail("read") }
func (h *ErrorHandle) Write([]byte) (int, error)   { return 0, h.fail("write") }
func (h *ErrorHandle) Close() error                { return h.fail("close") }
func (h *ErrorHandle) Exists() (bool, error)       { return false, h.fail("exists") }
func (h *ErrorHandle) Delete() error                { return h.fail("delete") }
func (h *ErrorHandle) DataURL() string              { return "" }
