/*
Package graphdesc implements the schema-free graph descriptor used to
construct a running node graph from serialized form. A Graph is a flat
list of NodeDescriptors; each descriptor names the node's backend
Kind, its construction options, and the edges it owns, using the fixed
wiring vocabulary (Consumers, StreamingConsumers, Inputs,
StreamingInputs, Outputs, Producers, Children, Parent).

The descriptor format is deliberately dumb: beyond a container-process
node's image, command and related options, it records only how nodes
reference each other. What a descriptor cannot encode (a barrier
application's Runner, the runtime container-process nodes launch into)
is the caller's job, supplied to Build via BuildOptions.
*/
package graphdesc

import (
	"fmt"
	"io"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Kind names a constructible node backend. It is intentionally a
// small, closed vocabulary rather than an open string so Build can
// report a useful error on an unknown kind.
type Kind string

const (
	KindMemory             Kind = "memory"
	KindFile               Kind = "file"
	KindNull               Kind = "null"
	KindContainer          Kind = "container"
	KindDirectoryContainer Kind = "directoryContainer"
	KindApplication        Kind = "application"
	KindBarrier            Kind = "barrier"
	KindContainerProcess   Kind = "containerProcess"
)

// NodeDescriptor is one node's construction options and outgoing
// edges. UID must be unique within a Graph; OID may repeat across
// descriptors that represent the same logical datum in different
// storage.
type NodeDescriptor struct {
	OID  string `yaml:"oid"`
	UID  string `yaml:"uid"`
	Kind Kind   `yaml:"kind"`

	Phase          string `yaml:"phase,omitempty"`
	ExecutionMode  string `yaml:"executionMode,omitempty"`
	Location       string `yaml:"location,omitempty"`
	Node           string `yaml:"node,omitempty"`
	ExpirationDate int64  `yaml:"expirationDate,omitempty"`
	ExpectedSize   int64  `yaml:"expectedSize,omitempty"`
	Precious       *bool  `yaml:"precious,omitempty"`

	// Dirname/Path configure file and directory-container kinds.
	Dirname string `yaml:"dirname,omitempty"`
	Path    string `yaml:"path,omitempty"`
	Host    string `yaml:"host,omitempty"`

	// Image/Command/User/AdditionalBindings configure the
	// containerProcess kind.
	Image               string   `yaml:"image,omitempty"`
	Command             []string `yaml:"command,omitempty"`
	User                string   `yaml:"user,omitempty"`
	EnsureUserAndSwitch *bool    `yaml:"ensureUserAndSwitch,omitempty"`
	RemoveContainer     *bool    `yaml:"removeContainer,omitempty"`
	AdditionalBindings  []string `yaml:"additionalBindings,omitempty"`
	SandboxRoot         string   `yaml:"sandboxRoot,omitempty"`

	// InitialData, if set on a memory or file kind, is written to the
	// node and the node is marked COMPLETED immediately after Build.
	// It exists so dflowctl can drive a graph without a separate
	// external producer.
	InitialData string `yaml:"initialData,omitempty"`

	// Edges, keyed by the linkage vocabulary from spec.md §4.8. Each
	// entry is the UID of another descriptor in the same Graph.
	Consumers         []string `yaml:"consumers,omitempty"`
	StreamingConsumers []string `yaml:"streamingConsumers,omitempty"`
	Inputs            []string `yaml:"inputs,omitempty"`
	StreamingInputs   []string `yaml:"streamingInputs,omitempty"`
	Outputs           []string `yaml:"outputs,omitempty"`
	Producers         []string `yaml:"producers,omitempty"`
	Children          []string `yaml:"children,omitempty"`
	Parent            string   `yaml:"parent,omitempty"`
}

// Graph is a named collection of NodeDescriptors.
type Graph struct {
	Name  string           `yaml:"name"`
	Nodes []NodeDescriptor `yaml:"nodes"`
}

// Decode reads a Graph from YAML.
func Decode(r io.Reader) (*Graph, error) {
	var g Graph
	if err := yaml.NewDecoder(r).Decode(&g); err != nil {
		return nil, fmt.Errorf("decode graph: %w", err)
	}
	for i := range g.Nodes {
		if g.Nodes[i].OID == "" {
			g.Nodes[i].OID = uuid.New().String()
		}
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &g, nil
}

// Encode writes g as YAML.
func (g *Graph) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	if err := enc.Encode(g); err != nil {
		return fmt.Errorf("encode graph: %w", err)
	}
	return nil
}

// Validate checks UID uniqueness and that every edge target refers to
// a UID present in the graph. It does not detect cycles: the model
// assumes acyclic wiring by construction, matching spec.md's
// Non-goals.
func (g *Graph) Validate() error {
	seen := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		if n.UID == "" {
			return fmt.Errorf("graph %q: node with empty uid", g.Name)
		}
		if seen[n.UID] {
			return fmt.Errorf("graph %q: duplicate uid %q", g.Name, n.UID)
		}
		seen[n.UID] = true
	}
	for _, n := range g.Nodes {
		for _, edgeList := range [][]string{n.Consumers, n.StreamingConsumers, n.Inputs, n.StreamingInputs, n.Outputs, n.Producers, n.Children} {
			for _, target := range edgeList {
				if !seen[target] {
					return fmt.Errorf("graph %q: node %q references unknown uid %q", g.Name, n.UID, target)
				}
			}
		}
		if n.Parent != "" && !seen[n.Parent] {
			return fmt.Errorf("graph %q: node %q references unknown parent uid %q", g.Name, n.UID, n.Parent)
		}
	}
	return nil
}
