package graphdesc

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeRoundTrip(t *testing.T) {
	src := `
name: pipeline
nodes:
  - oid: a
    uid: a1
    kind: memory
  - oid: app
    uid: app1
    kind: barrier
    inputs: [a1]
`
	g, err := Decode(strings.NewReader(src))
	require.NoError(t, err)
	require.Equal(t, "pipeline", g.Name)
	require.Len(t, g.Nodes, 2)
	require.Equal(t, []string{"a1"}, g.Nodes[1].Inputs)

	var buf bytes.Buffer
	require.NoError(t, g.Encode(&buf))

	g2, err := Decode(&buf)
	require.NoError(t, err)
	require.Equal(t, g.Name, g2.Name)
	require.Len(t, g2.Nodes, 2)
}

func TestValidateRejectsDuplicateUID(t *testing.T) {
	g := &Graph{Name: "dup", Nodes: []NodeDescriptor{
		{UID: "x", OID: "x", Kind: KindMemory},
		{UID: "x", OID: "y", Kind: KindMemory},
	}}
	require.Error(t, g.Validate())
}

func TestValidateRejectsUnknownEdgeTarget(t *testing.T) {
	g := &Graph{Name: "dangling", Nodes: []NodeDescriptor{
		{UID: "x", OID: "x", Kind: KindMemory, Consumers: []string{"ghost"}},
	}}
	require.Error(t, g.Validate())
}

func TestValidateRejectsEmptyUID(t *testing.T) {
	g := &Graph{Name: "empty", Nodes: []NodeDescriptor{{OID: "x", Kind: KindMemory}}}
	require.Error(t, g.Validate())
}

func TestDecodeFillsBlankOID(t *testing.T) {
	src := `
name: noOid
nodes:
  - uid: a1
    kind: memory
`
	g, err := Decode(strings.NewReader(src))
	require.NoError(t, err)
	require.NotEmpty(t, g.Nodes[0].OID)
}
