package app

import (
	"errors"
	"testing"
	"time"

	"github.com/cuemby/dflow/pkg/node"
	"github.com/cuemby/dflow/pkg/types"
	"github.com/stretchr/testify/require"
)

type countingRunner struct {
	calls int
	err   error
	done  chan struct{}
}

func (r *countingRunner) Run() error {
	r.calls++
	if r.done != nil {
		close(r.done)
	}
	return r.err
}

func waitForExecStatus(t *testing.T, b *BarrierApplication, want types.ExecStatus) {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		if b.ExecStatus() == want {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("execStatus never reached %s, stuck at %s", want, b.ExecStatus())
		case <-time.After(time.Millisecond):
		}
	}
}

func TestBarrierRunsOnceAllInputsComplete(t *testing.T) {
	runner := &countingRunner{done: make(chan struct{})}
	b := NewBarrierApplication("x", "x1", node.Options{}, runner)

	in1 := newMemDataNode("a", "a1", node.Options{})
	in2 := newMemDataNode("b", "b1", node.Options{})
	b.AddInput(in1)
	b.AddInput(in2)

	require.NoError(t, in1.SetCompleted())
	require.Equal(t, types.ExecNotRun, b.ExecStatus())

	require.NoError(t, in2.SetCompleted())
	<-runner.done

	waitForExecStatus(t, b, types.ExecFinished)
	require.Equal(t, 1, runner.calls)
	require.Eventually(t, func() bool {
		return b.Status() == types.StatusCompleted
	}, time.Second, time.Millisecond)
}

func TestBarrierRejectsStreamingInput(t *testing.T) {
	runner := &countingRunner{}
	b := NewBarrierApplication("x", "x1", node.Options{}, runner)
	producer := newMemDataNode("a", "a1", node.Options{})

	b.AddStreamingInput(producer)
	require.Empty(t, b.StreamingInputs())
}

func TestBarrierSetsErrorStatusOnFailureButStillCompletes(t *testing.T) {
	runner := &countingRunner{err: errors.New("boom"), done: make(chan struct{})}
	b := NewBarrierApplication("x", "x1", node.Options{}, runner)

	in1 := newMemDataNode("a", "a1", node.Options{})
	b.AddInput(in1)
	require.NoError(t, in1.SetCompleted())

	<-runner.done
	waitForExecStatus(t, b, types.ExecError)
	require.Eventually(t, func() bool {
		return b.Status() == types.StatusCompleted
	}, time.Second, time.Millisecond)
}

func TestBarrierPropagatesProducerFinishedToOutputsEvenOnError(t *testing.T) {
	runner := &countingRunner{err: errors.New("boom"), done: make(chan struct{})}
	b := NewBarrierApplication("x", "x1", node.Options{}, runner)

	in1 := newMemDataNode("a", "a1", node.Options{})
	out := newMemDataNode("c", "c1", node.Options{})
	b.AddInput(in1)
	require.NoError(t, b.AddOutput(out))

	require.NoError(t, in1.SetCompleted())
	<-runner.done

	waitForExecStatus(t, b, types.ExecError)
	require.Eventually(t, func() bool {
		return out.Status() == types.StatusCompleted
	}, time.Second, time.Millisecond)
}
