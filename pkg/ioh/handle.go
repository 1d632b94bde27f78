package ioh

import (
	"fmt"

	"github.com/cuemby/dflow/pkg/ferrors"
	"github.com/cuemby/dflow/pkg/types"
)

// Handle is the capability interface a data node opens over its
// backing store. Implementations are not required to be safe for
// concurrent use by multiple goroutines against the same Handle value;
// pkg/node only ever has one writer and one reader-per-descriptor open
// against a given Handle at a time.
type Handle interface {
	// Backend identifies which variant this Handle is.
	Backend() types.IOBackend

	// Open acquires the underlying resource for mode. It returns
	// *ferrors.IOError if the mode is unsupported or the resource is
	// unavailable.
	Open(mode types.OpenMode) error

	// Read returns up to n bytes. A zero-length, nil-error return
	// indicates EOF.
	Read(n int) ([]byte, error)

	// Write returns the number of bytes actually persisted. Callers
	// must compare against len(p) to detect a short write.
	Write(p []byte) (int, error)

	// Close releases resources. It is idempotent.
	Close() error

	// Exists reports whether the underlying store currently holds
	// data for this Handle.
	Exists() (bool, error)

	// Delete removes the underlying store's data for this Handle.
	Delete() error

	// DataURL is an informational locator for this Handle's backing
	// store, formatted per backend (see package-level New* functions).
	DataURL() string
}

func unsupportedMode(backend types.IOBackend, mode types.OpenMode) error {
	return &ferrors.IOError{
		Op:  fmt.Sprintf("open(%v)", mode),
		Err: fmt.Errorf("backend %s does not support this mode", backend),
	}
}
