package app

import (
	"fmt"
	"sync"

	"github.com/cuemby/dflow/pkg/log"
	"github.com/cuemby/dflow/pkg/metrics"
	"github.com/cuemby/dflow/pkg/node"
	"github.com/cuemby/dflow/pkg/types"
)

// Runner is the work a BarrierApplication performs once all of its
// inputs have completed. Concrete application kinds (container-process
// being the one in this package) implement it and pass themselves to
// NewBarrierApplication.
type Runner interface {
	Run() error
}

// BarrierApplication runs its Runner exactly once, after every
// non-streaming input has reached COMPLETED, on a goroutine separate
// from the event-dispatch thread that observed the last completion.
type BarrierApplication struct {
	*ApplicationNode
	runner Runner

	mu              sync.Mutex
	completedInputs map[string]bool
}

// NewBarrierApplication constructs a barrier application whose run()
// equivalent is runner.Run.
func NewBarrierApplication(oid, uid string, opts node.Options, runner Runner) *BarrierApplication {
	return &BarrierApplication{
		ApplicationNode: NewApplicationNode(oid, uid, opts),
		runner:          runner,
		completedInputs: make(map[string]bool),
	}
}

// AddInput overrides ApplicationNode's so that d registers the
// BarrierApplication itself as its consumer: d's completion then
// reaches BarrierApplication.DropCompleted rather than the embedded
// ApplicationNode's no-op.
func (b *BarrierApplication) AddInput(d node.Identity) {
	if registrar, ok := d.(consumerRegistrar); ok {
		_ = registrar.AddConsumer(b)
	}
	b.ApplicationNode.AddInput(d)
}

// AddStreamingInput overrides ApplicationNode's: barrier applications
// forbid streaming inputs outright.
func (b *BarrierApplication) AddStreamingInput(d node.Identity) {
	log.WithUID(b.UID()).Error().Str("input_oid", d.OID()).
		Msg("barrier application rejects streaming input")
}

// DropCompleted overrides ApplicationNode's: it records producer uid
// as completed and, once every input has reported, dispatches execute
// to a fresh goroutine exactly once.
func (b *BarrierApplication) DropCompleted(producerUID string) {
	b.mu.Lock()
	if b.completedInputs[producerUID] {
		b.mu.Unlock()
		return
	}
	b.completedInputs[producerUID] = true
	completed := len(b.completedInputs)
	total := len(b.Inputs())
	b.mu.Unlock()

	if total > 0 && completed == total {
		go b.execute()
	}
}

// execute runs runner.Run between RUNNING and FINISHED/ERROR
// execStatus transitions, then unconditionally completes the
// application's own data node so output wiring advances even on
// failure.
func (b *BarrierApplication) execute() {
	timer := metrics.NewTimer()
	b.SetExecStatus(types.ExecRunning)

	err := b.runSafely()

	outcome := "finished"
	if err != nil {
		b.SetExecStatus(types.ExecError)
		outcome = "error"
		log.WithUID(b.UID()).Error().Err(err).Msg("barrier application run failed")
	} else {
		b.SetExecStatus(types.ExecFinished)
	}
	metrics.BarrierExecutionsTotal.WithLabelValues(outcome).Inc()
	timer.ObserveDuration(metrics.BarrierExecutionDuration)

	if err := b.SetCompleted(); err != nil {
		log.WithUID(b.UID()).Warn().Err(err).Msg("failed to complete application data node")
	}
}

func (b *BarrierApplication) runSafely() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("run panicked: %v", r)
		}
	}()
	return b.runner.Run()
}
