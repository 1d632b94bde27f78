package ioh

import "github.com/cuemby/dflow/pkg/types"

// NullHandle silently discards every write and reports EOF on every
// read. It is useful for data nodes whose output is never consumed,
// or for tests that want to exercise status transitions without I/O.
type NullHandle struct{}

// NewNullHandle constructs a NullHandle.
func NewNullHandle() *NullHandle { return &NullHandle{} }

func (h *NullHandle) Backend() types.IOBackend        { return types.BackendNull }
func (h *NullHandle) Open(types.OpenMode) error       { return nil }
func (h *NullHandle) Read(int) ([]byte, error)        { return nil, nil }
func (h *NullHandle) Write(p []byte) (int, error)     { return len(p), nil }
func (h *NullHandle) Close() error                    { return nil }
func (h *NullHandle) Exists() (bool, error)           { return false, nil }
func (h *NullHandle) Delete() error                   { return nil }
func (h *NullHandle) DataURL() string                 { return "null://" }
