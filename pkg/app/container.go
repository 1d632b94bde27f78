package app

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/dflow/pkg/events"
	"github.com/cuemby/dflow/pkg/ferrors"
	"github.com/cuemby/dflow/pkg/log"
	"github.com/cuemby/dflow/pkg/metrics"
	"github.com/cuemby/dflow/pkg/node"
	"github.com/cuemby/dflow/pkg/runtime"
)

var interestPattern = regexp.MustCompile(`%containerIp\[([^\]]+)\]%`)

// Config configures a ContainerProcessApplication.
type Config struct {
	Image   string
	Command []string
	User    string
	// EnsureUserAndSwitch defaults to true iff User is set; nil selects
	// the default.
	EnsureUserAndSwitch *bool
	// RemoveContainer defaults to true; nil selects the default.
	RemoveContainer *bool
	// AdditionalBindings are HOST[:CONTAINER] pairs bound into the
	// sandbox in addition to the input/output volumes computed from
	// the graph.
	AdditionalBindings []string
	// IPWaitTimeout bounds how long run() waits for a peer container's
	// address; zero means wait indefinitely.
	IPWaitTimeout time.Duration
}

// filesystemBacked is implemented by data nodes that expose a host
// filesystem path — the file backend, directly or through a directory
// container.
type filesystemBacked interface {
	node.Identity
	Path() (string, bool)
}

// urlSource is implemented by every data node: its DataURL is used for
// inputs/outputs that are not filesystem-backed.
type urlSource interface {
	node.Identity
	DataURL() string
}

// ipWaiter lets one container-process application block until a peer
// publishes its containerIp attribute.
type ipWaiter struct {
	mu       sync.Mutex
	cond     *sync.Cond
	ip       string
	ready    bool
	timedOut bool
}

func newIPWaiter() *ipWaiter {
	w := &ipWaiter{}
	w.cond = sync.NewCond(&w.mu)
	return w
}

func (w *ipWaiter) publish(ip string) {
	w.mu.Lock()
	if w.ready {
		w.mu.Unlock()
		return
	}
	w.ip = ip
	w.ready = true
	w.mu.Unlock()
	w.cond.Broadcast()
}

func (w *ipWaiter) wait(timeout time.Duration) (string, error) {
	if timeout > 0 {
		timer := time.AfterFunc(timeout, func() {
			w.mu.Lock()
			w.timedOut = true
			w.mu.Unlock()
			w.cond.Broadcast()
		})
		defer timer.Stop()
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for !w.ready && !w.timedOut {
		w.cond.Wait()
	}
	if w.ready {
		return w.ip, nil
	}
	return "", &ferrors.Timeout{Op: "wait for container ip"}
}

// ContainerProcessApplication is a barrier application that runs its
// command inside a runtime.Runtime sandbox.
type ContainerProcessApplication struct {
	*BarrierApplication

	cfg             Config
	rt              runtime.Runtime
	sandboxRoot     string
	ensureUserAndSwitch bool
	removeContainer bool
	additionalBinds []runtime.Mount
	interestedOIDs  map[string]bool

	waitersMu sync.Mutex
	waiters   map[string]*ipWaiter

	containerID string
}

// NewContainerProcessApplication constructs and initializes a
// container-process application: it validates configuration, resolves
// additional host bind paths, and pulls the image.
func NewContainerProcessApplication(oid, uid string, opts node.Options, cfg Config, rt runtime.Runtime, sandboxRoot string) (*ContainerProcessApplication, error) {
	if cfg.Image == "" {
		return nil, &ferrors.InvalidConfig{Subject: "image", Reason: "required"}
	}
	if len(cfg.Command) == 0 {
		return nil, &ferrors.InvalidConfig{Subject: "command", Reason: "required"}
	}
	if !strings.Contains(cfg.Image, ":") {
		log.WithOID(oid).Warn().Str("image", cfg.Image).Msg("container image has no version tag")
	}

	ensureUserAndSwitch := cfg.User != ""
	if cfg.EnsureUserAndSwitch != nil {
		ensureUserAndSwitch = *cfg.EnsureUserAndSwitch
	}
	removeContainer := true
	if cfg.RemoveContainer != nil {
		removeContainer = *cfg.RemoveContainer
	}

	binds := make([]runtime.Mount, 0, len(cfg.AdditionalBindings))
	for _, raw := range cfg.AdditionalBindings {
		host, container, ok := strings.Cut(raw, ":")
		if !ok {
			container = host
		}
		if _, err := os.Stat(host); err != nil {
			return nil, &ferrors.InvalidConfig{Subject: "additionalBindings", Reason: "host path " + host + " does not exist"}
		}
		binds = append(binds, runtime.Mount{Source: host, Destination: container})
	}

	cpa := &ContainerProcessApplication{
		cfg:                 cfg,
		rt:                  rt,
		sandboxRoot:         sandboxRoot,
		ensureUserAndSwitch: ensureUserAndSwitch,
		removeContainer:     removeContainer,
		additionalBinds:     binds,
		interestedOIDs:      extractInterestOIDs(cfg.Command),
		waiters:             make(map[string]*ipWaiter),
	}
	cpa.BarrierApplication = NewBarrierApplication(oid, uid, opts, cpa)

	if err := rt.PullImage(context.Background(), cfg.Image); err != nil {
		return nil, &ferrors.InvalidConfig{Subject: "image", Reason: "failed to pull " + cfg.Image + ": " + err.Error()}
	}
	return cpa, nil
}

func extractInterestOIDs(command []string) map[string]bool {
	oids := make(map[string]bool)
	for _, arg := range command {
		for _, m := range interestPattern.FindAllStringSubmatch(arg, -1) {
			oids[m[1]] = true
		}
	}
	return oids
}

// HandleInterest overrides the no-op default: if other is a container
// application whose OID this application's raw command line names via
// %containerIp[OID]%, subscribe to its containerIp attribute.
func (cpa *ContainerProcessApplication) HandleInterest(other node.Identity) {
	peer, ok := other.(*ContainerProcessApplication)
	if !ok || !cpa.interestedOIDs[peer.OID()] {
		return
	}

	cpa.waitersMu.Lock()
	w, exists := cpa.waiters[peer.OID()]
	if !exists {
		w = newIPWaiter()
		cpa.waiters[peer.OID()] = w
	}
	cpa.waitersMu.Unlock()

	peer.Broadcaster().Subscribe(events.KindContainerIP, func(e events.Event) {
		ip, ok := e.Payload["containerIp"].(string)
		if !ok {
			return
		}
		w.publish(ip)
	})
}

func (cpa *ContainerProcessApplication) resolveInterests() (map[string]string, error) {
	cpa.waitersMu.Lock()
	oids := make([]string, 0, len(cpa.waiters))
	waiters := make([]*ipWaiter, 0, len(cpa.waiters))
	for oid, w := range cpa.waiters {
		oids = append(oids, oid)
		waiters = append(waiters, w)
	}
	cpa.waitersMu.Unlock()

	ips := make(map[string]string, len(oids))
	for i, oid := range oids {
		ip, err := waiters[i].wait(cpa.cfg.IPWaitTimeout)
		if err != nil {
			return nil, err
		}
		ips[oid] = ip
	}
	return ips, nil
}

func partitionFilesystem(items []node.Identity) (fs []filesystemBacked, other []node.Identity) {
	for _, it := range items {
		if fb, ok := it.(filesystemBacked); ok {
			if _, has := fb.Path(); has {
				fs = append(fs, fb)
				continue
			}
		}
		other = append(other, it)
	}
	return fs, other
}

func urlBackedOf(items []node.Identity) []urlBacked {
	out := make([]urlBacked, 0, len(items))
	for _, it := range items {
		src, ok := it.(urlSource)
		if !ok {
			continue
		}
		out = append(out, urlBacked{uid: it.UID(), url: src.DataURL()})
	}
	return out
}

// Run launches the configured command in a fresh sandbox, blocks until
// it exits, and reports non-zero exit as *ferrors.ContainerFailed. It
// is invoked by BarrierApplication.execute on a fresh goroutine once
// every input has completed.
func (cpa *ContainerProcessApplication) Run() error {
	ctx := context.Background()
	timer := metrics.NewTimer()

	fsInputs, urlInputItems := partitionFilesystem(cpa.Inputs())
	fsOutputs, urlOutputItems := partitionFilesystem(cpa.Outputs())

	binds := append([]runtime.Mount{}, cpa.additionalBinds...)
	boundInputs := make([]boundPath, 0, len(fsInputs))
	for _, in := range fsInputs {
		hostPath, _ := in.Path()
		containerPath := cpa.sandboxRoot + hostPath
		binds = append(binds, runtime.Mount{Source: hostPath, Destination: containerPath, ReadOnly: true})
		boundInputs = append(boundInputs, boundPath{uid: in.UID(), path: containerPath})
	}
	boundOutputs := make([]boundPath, 0, len(fsOutputs))
	outputDirs := make([]string, 0, len(fsOutputs))
	for _, out := range fsOutputs {
		hostPath, _ := out.Path()
		hostDir := filepath.Dir(hostPath)
		containerDir := cpa.sandboxRoot + hostDir
		binds = append(binds, runtime.Mount{Source: hostDir, Destination: containerDir})
		boundOutputs = append(boundOutputs, boundPath{uid: out.UID(), path: cpa.sandboxRoot + hostPath})
		outputDirs = append(outputDirs, containerDir)
	}

	ips, err := cpa.resolveInterests()
	if err != nil {
		return err
	}

	command, err := substitutePlaceholders(cpa.cfg.Command, boundInputs, boundOutputs,
		urlBackedOf(urlInputItems), urlBackedOf(urlOutputItems), ips)
	if err != nil {
		return &ferrors.InvalidConfig{Subject: "command", Reason: err.Error()}
	}
	command = buildSandboxCommand(cpa.cfg.User, cpa.ensureUserAndSwitch, os.Getuid(), outputDirs, command)

	spec := runtime.ContainerSpec{
		ID:      cpa.UID(),
		Image:   cpa.cfg.Image,
		Command: command,
		Binds:   binds,
		User:    cpa.cfg.User,
	}
	if cpa.cfg.User != "" {
		spec.Env = []string{"USER=" + cpa.cfg.User}
	}

	containerID, err := cpa.rt.CreateContainer(ctx, spec)
	if err != nil {
		metrics.ContainerLaunchesTotal.WithLabelValues("create_failed").Inc()
		return err
	}
	cpa.containerID = containerID

	if err := cpa.rt.StartContainer(ctx, containerID); err != nil {
		metrics.ContainerLaunchesTotal.WithLabelValues("start_failed").Inc()
		return err
	}

	if ip, err := cpa.rt.GetContainerIP(ctx, containerID); err != nil {
		log.WithContainerID(containerID).Warn().Err(err).Msg("failed to resolve container IP")
	} else {
		cpa.Broadcaster().Fire(cpa.OID(), cpa.UID(), events.KindContainerIP, map[string]any{"containerIp": ip})
	}

	exitCode, waitErr := cpa.rt.Wait(ctx, containerID)
	timer.ObserveDuration(metrics.ContainerRunDuration)
	if waitErr != nil {
		metrics.ContainerLaunchesTotal.WithLabelValues("wait_failed").Inc()
		return waitErr
	}

	if exitCode != 0 {
		stdout, stderr := cpa.drainLogs(ctx, containerID)
		metrics.ContainerLaunchesTotal.WithLabelValues("failed").Inc()
		if cpa.removeContainer {
			if err := cpa.rt.DeleteContainer(ctx, containerID); err != nil {
				log.WithContainerID(containerID).Warn().Err(err).Msg("failed to remove failed container")
			}
		}
		return &ferrors.ContainerFailed{ContainerID: containerID, ExitCode: exitCode, Stdout: stdout, Stderr: stderr}
	}

	metrics.ContainerLaunchesTotal.WithLabelValues("succeeded").Inc()
	if cpa.removeContainer {
		if err := cpa.rt.DeleteContainer(ctx, containerID); err != nil {
			log.WithContainerID(containerID).Warn().Err(err).Msg("failed to remove container")
		}
	}
	return nil
}

func (cpa *ContainerProcessApplication) drainLogs(ctx context.Context, containerID string) (string, string) {
	rc, err := cpa.rt.GetContainerLogs(ctx, containerID)
	if err != nil {
		return "", ""
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	return string(data), ""
}
