// Package runtime sandboxes a container-process application's command
// in a container, driven by containerd. Input and output data nodes
// reach the sandbox as bind mounts (filesystem-backed nodes) or as
// DataURLs baked into the command line (everything else); see
// pkg/app for the placeholder substitution that builds the command.
package runtime

import (
	"context"
	"io"
	"time"

	"github.com/cuemby/dflow/pkg/types"
)

// Mount binds a host path into the sandbox.
type Mount struct {
	Source      string
	Destination string
	ReadOnly    bool
}

// ContainerSpec describes the sandbox to launch for one execution of a
// container-process application.
type ContainerSpec struct {
	ID      string
	Image   string
	Command []string
	Env     []string
	User    string
	Binds   []Mount
	CPUCores   float64
	MemoryBytes int64
}

// Runtime is the capability a container-process application needs
// from its sandbox provider: pull the image, create and start the
// container, observe it, and tear it down. ContainerdRuntime is the
// only implementation; the interface exists so pkg/app can be tested
// against a fake.
type Runtime interface {
	PullImage(ctx context.Context, imageRef string) error
	CreateContainer(ctx context.Context, spec ContainerSpec) (string, error)
	StartContainer(ctx context.Context, containerID string) error
	Wait(ctx context.Context, containerID string) (exitCode int, err error)
	StopContainer(ctx context.Context, containerID string, timeout time.Duration) error
	DeleteContainer(ctx context.Context, containerID string) error
	GetContainerStatus(ctx context.Context, containerID string) (types.ContainerState, error)
	GetContainerLogs(ctx context.Context, containerID string) (io.ReadCloser, error)
	GetContainerIP(ctx context.Context, containerID string) (string, error)
	ListContainers(ctx context.Context) ([]string, error)
	Close() error
}
