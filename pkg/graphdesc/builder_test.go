package graphdesc

import (
	"testing"
	"time"

	"github.com/cuemby/dflow/pkg/app"
	"github.com/cuemby/dflow/pkg/node"
	"github.com/cuemby/dflow/pkg/types"
	"github.com/stretchr/testify/require"
)

type stubRunner struct {
	ran chan struct{}
}

func (r *stubRunner) Run() error {
	close(r.ran)
	return nil
}

func TestBuildWiresProducerThroughBarrierToOutput(t *testing.T) {
	g := &Graph{
		Name: "pipeline",
		Nodes: []NodeDescriptor{
			{UID: "in1", OID: "in", Kind: KindMemory},
			{UID: "out1", OID: "out", Kind: KindMemory},
			{UID: "app1", OID: "app", Kind: KindBarrier, Inputs: []string{"in1"}, Outputs: []string{"out1"}},
		},
	}

	runner := &stubRunner{ran: make(chan struct{})}
	built, err := Build(g, BuildOptions{Runners: map[string]app.Runner{"app1": runner}})
	require.NoError(t, err)
	require.Len(t, built, 3)

	in := built["in1"].(*node.DataNode)
	out := built["out1"].(*node.DataNode)

	_, err = in.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, in.SetCompleted())

	select {
	case <-runner.ran:
	case <-time.After(time.Second):
		t.Fatal("barrier never ran")
	}

	require.Eventually(t, func() bool {
		return out.Status() == types.StatusCompleted
	}, time.Second, time.Millisecond)
}

func TestBuildWiresContainerChildren(t *testing.T) {
	g := &Graph{
		Name: "container",
		Nodes: []NodeDescriptor{
			{UID: "c1", OID: "c", Kind: KindContainer},
			{UID: "m1", OID: "m", Kind: KindMemory},
		},
	}
	g.Nodes[0].Children = []string{"m1"}

	built, err := Build(g, BuildOptions{})
	require.NoError(t, err)

	c := built["c1"].(*node.ContainerNode)
	require.Len(t, c.Children(), 1)
}

func TestBuildRejectsUnknownKind(t *testing.T) {
	g := &Graph{Name: "bad", Nodes: []NodeDescriptor{{UID: "x", OID: "x", Kind: "bogus"}}}
	_, err := Build(g, BuildOptions{})
	require.Error(t, err)
}

func TestBuildRejectsBarrierWithoutRunner(t *testing.T) {
	g := &Graph{Name: "bad", Nodes: []NodeDescriptor{{UID: "x", OID: "x", Kind: KindBarrier}}}
	_, err := Build(g, BuildOptions{})
	require.Error(t, err)
}
