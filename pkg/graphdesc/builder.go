package graphdesc

import (
	"fmt"

	"github.com/cuemby/dflow/pkg/app"
	"github.com/cuemby/dflow/pkg/ioh"
	"github.com/cuemby/dflow/pkg/node"
	"github.com/cuemby/dflow/pkg/runtime"
	"github.com/cuemby/dflow/pkg/types"
)

// BuildOptions supplies the collaborators a descriptor alone cannot
// encode: a barrier application's behavior and the runtime a
// containerProcess node launches into.
type BuildOptions struct {
	// Runners supplies the Runner for each "barrier" kind descriptor,
	// keyed by UID. Building a barrier descriptor with no matching
	// entry fails.
	Runners map[string]app.Runner

	// Runtime is shared by every "containerProcess" kind descriptor.
	Runtime runtime.Runtime
}

// containerChild is satisfied by every constructible node kind; it
// names the capability ContainerNode.AddChild requires, without
// depending on pkg/node's unexported equivalent.
type containerChild interface {
	node.Identity
	ExpirationDate() int64
	Exists() (bool, error)
}

// Build constructs every node in g and wires its declared edges,
// returning the built nodes by UID. Nodes are constructed in a first
// pass (so edges may reference UIDs in either direction) and wired in
// a second pass. A descriptor's Parent is validated but not wired:
// containment is built only from the container's Children list.
func Build(g *Graph, opts BuildOptions) (map[string]node.Identity, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	built := make(map[string]node.Identity, len(g.Nodes))
	for _, d := range g.Nodes {
		n, err := construct(d, opts)
		if err != nil {
			return nil, fmt.Errorf("build node %q: %w", d.UID, err)
		}
		built[d.UID] = n
	}

	for _, d := range g.Nodes {
		if err := wire(d, built); err != nil {
			return nil, fmt.Errorf("wire node %q: %w", d.UID, err)
		}
	}

	for _, outer := range built {
		for _, inner := range built {
			if outer == inner {
				continue
			}
			if ih, ok := outer.(interface{ HandleInterest(node.Identity) }); ok {
				ih.HandleInterest(inner)
			}
		}
	}

	if err := seedInitialData(g, built); err != nil {
		return nil, err
	}

	return built, nil
}

type writable interface {
	Write(data []byte) (int, error)
	SetCompleted() error
}

// seedInitialData writes every descriptor's InitialData into its built
// node and marks it COMPLETED, so AUTO-mode downstream consumers fire
// without a separate external producer.
func seedInitialData(g *Graph, built map[string]node.Identity) error {
	for _, d := range g.Nodes {
		if d.InitialData == "" {
			continue
		}
		w, ok := built[d.UID].(writable)
		if !ok {
			return fmt.Errorf("node %q does not accept initialData", d.UID)
		}
		if _, err := w.Write([]byte(d.InitialData)); err != nil {
			return fmt.Errorf("seed node %q: %w", d.UID, err)
		}
		if err := w.SetCompleted(); err != nil {
			return fmt.Errorf("complete node %q: %w", d.UID, err)
		}
	}
	return nil
}

func construct(d NodeDescriptor, opts BuildOptions) (node.Identity, error) {
	nodeOpts := node.Options{
		Phase:          types.Phase(d.Phase),
		ExecutionMode:  executionMode(d.ExecutionMode),
		Location:       d.Location,
		Node:           d.Node,
		ExpirationDate: d.ExpirationDate,
		ExpectedSize:   d.ExpectedSize,
		Precious:       d.Precious,
	}

	switch d.Kind {
	case KindMemory:
		return node.New(d.OID, d.UID, ioh.NewMemoryHandle(ioh.MemoryOptions{Host: d.Host}), nodeOpts), nil

	case KindFile:
		h, err := ioh.NewFileHandle(ioh.FileOptions{Dirname: d.Dirname, OID: d.OID, UID: d.UID, Host: d.Host})
		if err != nil {
			return nil, err
		}
		return node.New(d.OID, d.UID, h, nodeOpts), nil

	case KindNull:
		return node.New(d.OID, d.UID, ioh.NewNullHandle(), nodeOpts), nil

	case KindContainer:
		return node.NewContainer(d.OID, d.UID, nodeOpts), nil

	case KindDirectoryContainer:
		if d.Path == "" {
			return nil, fmt.Errorf("directoryContainer requires path")
		}
		return node.NewDirectoryContainer(d.OID, d.UID, d.Path, nodeOpts), nil

	case KindApplication:
		return app.NewApplicationNode(d.OID, d.UID, nodeOpts), nil

	case KindBarrier:
		runner, ok := opts.Runners[d.UID]
		if !ok {
			return nil, fmt.Errorf("no Runner supplied for barrier node %q", d.UID)
		}
		return app.NewBarrierApplication(d.OID, d.UID, nodeOpts, runner), nil

	case KindContainerProcess:
		if opts.Runtime == nil {
			return nil, fmt.Errorf("no Runtime supplied for containerProcess node %q", d.UID)
		}
		cfg := app.Config{
			Image:               d.Image,
			Command:             d.Command,
			User:                d.User,
			EnsureUserAndSwitch: d.EnsureUserAndSwitch,
			RemoveContainer:     d.RemoveContainer,
			AdditionalBindings:  d.AdditionalBindings,
		}
		return app.NewContainerProcessApplication(d.OID, d.UID, nodeOpts, cfg, opts.Runtime, d.SandboxRoot)

	default:
		return nil, fmt.Errorf("unknown kind %q", d.Kind)
	}
}

func executionMode(s string) types.ExecutionMode {
	if s == "EXTERNAL" {
		return types.ExecutionModeExternal
	}
	return types.ExecutionModeAuto
}

func wire(d NodeDescriptor, built map[string]node.Identity) error {
	self := built[d.UID]

	for _, uid := range d.Consumers {
		c, ok := built[uid].(node.DropCompleter)
		if !ok {
			return fmt.Errorf("consumer %q does not implement DropCompleted", uid)
		}
		adder, ok := self.(interface {
			AddConsumer(node.DropCompleter) error
		})
		if !ok {
			return fmt.Errorf("%q cannot have consumers", d.UID)
		}
		if err := adder.AddConsumer(c); err != nil {
			return err
		}
	}

	for _, uid := range d.StreamingConsumers {
		c, ok := built[uid].(node.StreamingReceiver)
		if !ok {
			return fmt.Errorf("streaming consumer %q does not implement StreamingReceiver", uid)
		}
		adder, ok := self.(interface {
			AddStreamingConsumer(node.StreamingReceiver) error
		})
		if !ok {
			return fmt.Errorf("%q cannot have streaming consumers", d.UID)
		}
		if err := adder.AddStreamingConsumer(c); err != nil {
			return err
		}
	}

	for _, uid := range d.Inputs {
		adder, ok := self.(interface{ AddInput(node.Identity) })
		if !ok {
			return fmt.Errorf("%q cannot have inputs", d.UID)
		}
		adder.AddInput(built[uid])
	}

	for _, uid := range d.StreamingInputs {
		adder, ok := self.(interface{ AddStreamingInput(node.Identity) })
		if !ok {
			return fmt.Errorf("%q cannot have streaming inputs", d.UID)
		}
		adder.AddStreamingInput(built[uid])
	}

	for _, uid := range d.Outputs {
		adder, ok := self.(interface {
			AddOutput(node.Identity) error
		})
		if !ok {
			return fmt.Errorf("%q cannot have outputs", d.UID)
		}
		if err := adder.AddOutput(built[uid]); err != nil {
			return err
		}
	}

	for _, uid := range d.Producers {
		adder, ok := self.(interface {
			AddProducer(node.Identity) error
		})
		if !ok {
			return fmt.Errorf("%q cannot have producers", d.UID)
		}
		if err := adder.AddProducer(built[uid]); err != nil {
			return err
		}
	}

	for _, uid := range d.Children {
		child, ok := built[uid].(containerChild)
		if !ok {
			return fmt.Errorf("child %q cannot be contained", uid)
		}
		var err error
		switch cn := self.(type) {
		case *node.ContainerNode:
			err = cn.AddChild(child)
		case *node.DirectoryContainer:
			err = cn.AddChild(child)
		default:
			return fmt.Errorf("%q cannot have children", d.UID)
		}
		if err != nil {
			return err
		}
	}

	return nil
}
