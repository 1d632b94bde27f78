package app

import (
	"sync"

	"github.com/cuemby/dflow/pkg/events"
	"github.com/cuemby/dflow/pkg/ferrors"
	"github.com/cuemby/dflow/pkg/ioh"
	"github.com/cuemby/dflow/pkg/metrics"
	"github.com/cuemby/dflow/pkg/node"
	"github.com/cuemby/dflow/pkg/types"
)

// consumerRegistrar and its siblings are the back-reference
// capabilities ApplicationNode looks for on the data nodes it is
// wired to, mirroring the duck-typed registration protocol pkg/node
// uses on its own consumers.
type consumerRegistrar interface {
	AddConsumer(node.DropCompleter) error
}

type streamingConsumerRegistrar interface {
	AddStreamingConsumer(node.StreamingReceiver) error
}

type producerRegistrar interface {
	AddProducer(node.Identity) error
}

type producerFinisher interface {
	ProducerFinished(uid string) error
}

// ApplicationNode is a data node that additionally tracks inputs,
// streaming inputs, outputs, and an execution status distinct from its
// own data status.
type ApplicationNode struct {
	*node.DataNode

	wiringMu       sync.Mutex
	inputOrder     []string
	inputs         map[string]node.Identity
	streamingOrder []string
	streamingInputs map[string]node.Identity
	outputOrder    []string
	outputs        map[string]node.Identity

	execMu     sync.Mutex
	execStatus types.ExecStatus
}

// NewApplicationNode constructs an application node backed by an error
// I/O handle: like a container, an application holds no data of its
// own — its data-node half exists purely to reuse status/event/wiring
// machinery for its own completion and producer relationships.
func NewApplicationNode(oid, uid string, opts node.Options) *ApplicationNode {
	handle := ioh.NewErrorHandle("application nodes hold no data of their own")
	a := &ApplicationNode{
		DataNode:        node.New(oid, uid, handle, opts),
		inputs:          make(map[string]node.Identity),
		streamingInputs: make(map[string]node.Identity),
		outputs:         make(map[string]node.Identity),
	}
	metrics.ApplicationNodesTotal.WithLabelValues(types.ExecNotRun.String()).Inc()
	return a
}

// ExecStatus returns the current execution status.
func (a *ApplicationNode) ExecStatus() types.ExecStatus {
	a.execMu.Lock()
	defer a.execMu.Unlock()
	return a.execStatus
}

// SetExecStatus transitions the execution status and fires an
// execStatus event; any AddOutput subscription reacts to this.
func (a *ApplicationNode) SetExecStatus(s types.ExecStatus) {
	a.execMu.Lock()
	prev := a.execStatus
	a.execStatus = s
	a.execMu.Unlock()
	if prev != s {
		metrics.ApplicationNodesTotal.WithLabelValues(prev.String()).Dec()
		metrics.ApplicationNodesTotal.WithLabelValues(s.String()).Inc()
	}
	a.Broadcaster().Fire(a.OID(), a.UID(), events.KindExecStatus, map[string]any{"execStatus": s})
}

// Inputs returns the registered non-streaming inputs in insertion order.
func (a *ApplicationNode) Inputs() []node.Identity {
	a.wiringMu.Lock()
	defer a.wiringMu.Unlock()
	out := make([]node.Identity, len(a.inputOrder))
	for i, uid := range a.inputOrder {
		out[i] = a.inputs[uid]
	}
	return out
}

// StreamingInputs returns the registered streaming inputs in insertion order.
func (a *ApplicationNode) StreamingInputs() []node.Identity {
	a.wiringMu.Lock()
	defer a.wiringMu.Unlock()
	out := make([]node.Identity, len(a.streamingOrder))
	for i, uid := range a.streamingOrder {
		out[i] = a.streamingInputs[uid]
	}
	return out
}

// Outputs returns the registered outputs in insertion order.
func (a *ApplicationNode) Outputs() []node.Identity {
	a.wiringMu.Lock()
	defer a.wiringMu.Unlock()
	out := make([]node.Identity, len(a.outputOrder))
	for i, uid := range a.outputOrder {
		out[i] = a.outputs[uid]
	}
	return out
}

// AddInput idempotently registers this application as a consumer of d.
func (a *ApplicationNode) AddInput(d node.Identity) {
	a.wiringMu.Lock()
	if _, already := a.inputs[d.UID()]; already {
		a.wiringMu.Unlock()
		return
	}
	a.inputs[d.UID()] = d
	a.inputOrder = append(a.inputOrder, d.UID())
	a.wiringMu.Unlock()

	if registrar, ok := d.(consumerRegistrar); ok {
		_ = registrar.AddConsumer(a)
	}
}

// AddStreamingInput idempotently registers this application as a
// streaming consumer of d. BarrierApplication overrides this to
// reject streaming inputs outright.
func (a *ApplicationNode) AddStreamingInput(d node.Identity) {
	a.wiringMu.Lock()
	if _, already := a.streamingInputs[d.UID()]; already {
		a.wiringMu.Unlock()
		return
	}
	a.streamingInputs[d.UID()] = d
	a.streamingOrder = append(a.streamingOrder, d.UID())
	a.wiringMu.Unlock()

	if registrar, ok := d.(streamingConsumerRegistrar); ok {
		_ = registrar.AddStreamingConsumer(a)
	}
}

// AddOutput rejects self-output, idempotently registers this
// application as a producer of d, and subscribes an execStatus
// handler so that reaching FINISHED or ERROR calls d.ProducerFinished.
func (a *ApplicationNode) AddOutput(d node.Identity) error {
	if d.UID() == a.UID() {
		return &ferrors.WiringError{Reason: "application cannot output to itself"}
	}

	a.wiringMu.Lock()
	if _, already := a.outputs[d.UID()]; already {
		a.wiringMu.Unlock()
		return nil
	}
	a.outputs[d.UID()] = d
	a.outputOrder = append(a.outputOrder, d.UID())
	a.wiringMu.Unlock()

	if finisher, ok := d.(producerFinisher); ok {
		a.Broadcaster().Subscribe(events.KindExecStatus, func(e events.Event) {
			s, ok := e.Payload["execStatus"].(types.ExecStatus)
			if !ok || (s != types.ExecFinished && s != types.ExecError) {
				return
			}
			_ = finisher.ProducerFinished(a.UID())
		})
	}

	if registrar, ok := d.(producerRegistrar); ok {
		return registrar.AddProducer(a)
	}
	return nil
}

// DropCompleted is the default no-op; BarrierApplication overrides it
// to drive execution.
func (a *ApplicationNode) DropCompleted(producerUID string) {}

// DataWritten is the default no-op for streaming inputs.
func (a *ApplicationNode) DataWritten(producerUID string, data []byte) {}
