package runtime

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/cuemby/dflow/pkg/ferrors"
	"github.com/cuemby/dflow/pkg/log"
	"github.com/cuemby/dflow/pkg/types"
)

const (
	// DefaultNamespace is the containerd namespace dflow launches
	// application sandboxes under.
	DefaultNamespace = "dflow"

	// DefaultSocketPath is the default containerd socket.
	DefaultSocketPath = "/run/containerd/containerd.sock"
)

// ContainerdRuntime implements Runtime using containerd.
type ContainerdRuntime struct {
	client    *containerd.Client
	namespace string

	logsMu sync.Mutex
	logs   map[string]*capturedLogs
}

type capturedLogs struct {
	mu     sync.Mutex
	stdout bytes.Buffer
	stderr bytes.Buffer
}

func (c *capturedLogs) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stdout.Write(p)
}

// NewContainerdRuntime connects to the containerd socket at socketPath
// ("" selects DefaultSocketPath).
func NewContainerdRuntime(socketPath string) (*ContainerdRuntime, error) {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}
	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to containerd: %w", err)
	}
	return &ContainerdRuntime{
		client:    client,
		namespace: DefaultNamespace,
		logs:      make(map[string]*capturedLogs),
	}, nil
}

func (r *ContainerdRuntime) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func (r *ContainerdRuntime) PullImage(ctx context.Context, imageRef string) error {
	ctx = namespaces.WithNamespace(ctx, r.namespace)
	if _, err := r.client.Pull(ctx, imageRef, containerd.WithPullUnpack); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", imageRef, err)
	}
	return nil
}

// CreateContainer creates (but does not start) a sandbox for spec.
func (r *ContainerdRuntime) CreateContainer(ctx context.Context, spec ContainerSpec) (string, error) {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	image, err := r.client.GetImage(ctx, spec.Image)
	if err != nil {
		return "", fmt.Errorf("failed to get image %s: %w", spec.Image, err)
	}

	opts := []oci.SpecOpts{
		oci.WithImageConfig(image),
		oci.WithEnv(spec.Env),
	}
	if len(spec.Command) > 0 {
		opts = append(opts, oci.WithProcessArgs(spec.Command...))
	}
	if spec.User != "" {
		opts = append(opts, oci.WithUsername(spec.User))
	}
	if spec.CPUCores > 0 {
		shares := uint64(spec.CPUCores * 1024)
		quota := int64(spec.CPUCores * 100000)
		opts = append(opts, oci.WithCPUShares(shares), oci.WithCPUCFS(quota, 100000))
	}
	if spec.MemoryBytes > 0 {
		opts = append(opts, oci.WithMemoryLimit(uint64(spec.MemoryBytes)))
	}

	mounts := make([]specs.Mount, 0, len(spec.Binds))
	for _, b := range spec.Binds {
		mountOpts := []string{"rbind"}
		if b.ReadOnly {
			mountOpts = append(mountOpts, "ro")
		} else {
			mountOpts = append(mountOpts, "rw")
		}
		mounts = append(mounts, specs.Mount{
			Source:      b.Source,
			Destination: b.Destination,
			Type:        "bind",
			Options:     mountOpts,
		})
	}
	if len(mounts) > 0 {
		opts = append(opts, oci.WithMounts(mounts))
	}

	ctrdContainer, err := r.client.NewContainer(
		ctx,
		spec.ID,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(spec.ID+"-snapshot", image),
		containerd.WithNewSpec(opts...),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}

	r.logsMu.Lock()
	r.logs[ctrdContainer.ID()] = &capturedLogs{}
	r.logsMu.Unlock()

	return ctrdContainer.ID(), nil
}

func (r *ContainerdRuntime) StartContainer(ctx context.Context, containerID string) error {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	container, err := r.client.LoadContainer(ctx, containerID)
	if err != nil {
		return fmt.Errorf("failed to load container %s: %w", containerID, err)
	}

	r.logsMu.Lock()
	captured, ok := r.logs[containerID]
	r.logsMu.Unlock()
	if !ok {
		captured = &capturedLogs{}
	}

	creator := cio.NewCreator(cio.WithStreams(nil, captured, captured))
	task, err := container.NewTask(ctx, creator)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	if err := task.Start(ctx); err != nil {
		return fmt.Errorf("failed to start task: %w", err)
	}
	return nil
}

// Wait blocks until the task exits and returns its exit code.
func (r *ContainerdRuntime) Wait(ctx context.Context, containerID string) (int, error) {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	container, err := r.client.LoadContainer(ctx, containerID)
	if err != nil {
		return 0, fmt.Errorf("failed to load container %s: %w", containerID, err)
	}
	task, err := container.Task(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to get task: %w", err)
	}
	statusC, err := task.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to wait for task: %w", err)
	}
	select {
	case status := <-statusC:
		return int(status.ExitCode()), status.Error()
	case <-ctx.Done():
		return 0, &ferrors.Timeout{Op: "wait for container " + containerID}
	}
}

func (r *ContainerdRuntime) StopContainer(ctx context.Context, containerID string, timeout time.Duration) error {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	container, err := r.client.LoadContainer(ctx, containerID)
	if err != nil {
		return fmt.Errorf("failed to load container %s: %w", containerID, err)
	}
	task, err := container.Task(ctx, nil)
	if err != nil {
		return nil
	}

	stopCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := task.Kill(stopCtx, syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to kill task: %w", err)
	}
	statusC, err := task.Wait(stopCtx)
	if err != nil {
		return fmt.Errorf("failed to wait for task: %w", err)
	}
	select {
	case <-statusC:
	case <-stopCtx.Done():
		log.WithContainerID(containerID).Warn().Msg("graceful stop timed out, sending SIGKILL")
		if err := task.Kill(ctx, syscall.SIGKILL); err != nil {
			return fmt.Errorf("failed to force kill task: %w", err)
		}
	}
	if _, err := task.Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return nil
}

func (r *ContainerdRuntime) DeleteContainer(ctx context.Context, containerID string) error {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	container, err := r.client.LoadContainer(ctx, containerID)
	if err != nil {
		return nil
	}
	if err := r.StopContainer(ctx, containerID, 10*time.Second); err != nil {
		log.WithContainerID(containerID).Warn().Err(err).Msg("failed to stop container before delete")
	}
	if err := container.Delete(ctx, containerd.WithSnapshotCleanup); err != nil {
		return fmt.Errorf("failed to delete container: %w", err)
	}

	r.logsMu.Lock()
	delete(r.logs, containerID)
	r.logsMu.Unlock()
	return nil
}

func (r *ContainerdRuntime) GetContainerStatus(ctx context.Context, containerID string) (types.ContainerState, error) {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	container, err := r.client.LoadContainer(ctx, containerID)
	if err != nil {
		return types.ContainerFailed, fmt.Errorf("failed to load container %s: %w", containerID, err)
	}
	task, err := container.Task(ctx, nil)
	if err != nil {
		return types.ContainerPending, nil
	}
	status, err := task.Status(ctx)
	if err != nil {
		return types.ContainerFailed, fmt.Errorf("failed to get task status: %w", err)
	}

	switch status.Status {
	case containerd.Running, containerd.Paused:
		return types.ContainerRunning, nil
	case containerd.Stopped:
		if status.ExitStatus == 0 {
			return types.ContainerComplete, nil
		}
		return types.ContainerFailed, nil
	default:
		return types.ContainerPending, nil
	}
}

// GetContainerLogs returns the combined stdout/stderr captured since
// the task was started.
func (r *ContainerdRuntime) GetContainerLogs(ctx context.Context, containerID string) (io.ReadCloser, error) {
	r.logsMu.Lock()
	captured, ok := r.logs[containerID]
	r.logsMu.Unlock()
	if !ok {
		return nil, &ferrors.ContainerFailed{ContainerID: containerID, ExitCode: -1, Stderr: "no logs captured"}
	}
	captured.mu.Lock()
	defer captured.mu.Unlock()
	return io.NopCloser(bytes.NewReader(captured.stdout.Bytes())), nil
}

func (r *ContainerdRuntime) ListContainers(ctx context.Context) ([]string, error) {
	ctx = namespaces.WithNamespace(ctx, r.namespace)
	containers, err := r.client.Containers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}
	ids := make([]string, 0, len(containers))
	for _, c := range containers {
		ids = append(ids, c.ID())
	}
	return ids, nil
}

// GetContainerIP inspects the sandbox's network namespace for its
// eth0 address. containerd does not track this itself: dflow needs it
// so sibling container applications can resolve %containerIp[oid]%
// placeholders once the producing container starts running.
func (r *ContainerdRuntime) GetContainerIP(ctx context.Context, containerID string) (string, error) {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	container, err := r.client.LoadContainer(ctx, containerID)
	if err != nil {
		return "", fmt.Errorf("failed to load container %s: %w", containerID, err)
	}
	task, err := container.Task(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to get task: %w", err)
	}
	status, err := task.Status(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get task status: %w", err)
	}
	if status.Status != containerd.Running {
		return "", fmt.Errorf("container is not running")
	}

	pid := task.Pid()
	if pid == 0 {
		return "", fmt.Errorf("container task has no PID")
	}

	cmd := exec.CommandContext(ctx, "nsenter", "-t", fmt.Sprintf("%d", pid), "-n", "ip", "-4", "addr", "show", "eth0")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("failed to get container IP: %w (output: %s)", err, string(output))
	}

	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "inet ") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}
		ip, _, err := net.ParseCIDR(parts[1])
		if err != nil {
			return "", fmt.Errorf("failed to parse IP address %s: %w", parts[1], err)
		}
		return ip.String(), nil
	}
	return "", fmt.Errorf("no IP address found for container")
}
