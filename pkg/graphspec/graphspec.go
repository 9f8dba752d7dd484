// Copyright The NRI Plugins Authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package graphspec implements a YAML description of graphs for memory
// planning, and reports of the resulting plans.
package graphspec

import (
	"os"

	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	"sigs.k8s.io/yaml"

	"github.com/streamgraph/memplan/pkg/memplan"
)

// Spec describes a graph.
type Spec struct {
	Name  string `json:"name"`
	Nodes []Node `json:"nodes"`
}

// Node describes a node of a graph.
type Node struct {
	ID               int64   `json:"id"`
	Name             string  `json:"name,omitempty"`
	Stream           int     `json:"stream,omitempty"`
	Kind             string  `json:"kind,omitempty"`
	Inputs           []Input `json:"inputs,omitempty"`
	Control          []int64 `json:"control,omitempty"`
	Outputs          []Slot  `json:"outputs,omitempty"`
	Workspaces       []Slot  `json:"workspaces,omitempty"`
	Batch            string  `json:"batch,omitempty"`
	ContinuousInput  bool    `json:"continuousInput,omitempty"`
	ContinuousOutput bool    `json:"continuousOutput,omitempty"`
	NoReuse          bool    `json:"noReuse,omitempty"`
	AtomicTarget     bool    `json:"atomicTarget,omitempty"`
}

// Input describes a data edge from an output of another node.
type Input struct {
	Node   int64 `json:"node"`
	Output int   `json:"output,omitempty"`
}

// Slot describes an output or a workspace of a node.
type Slot struct {
	Size        resource.Quantity  `json:"size"`
	NoAlignSize *resource.Quantity `json:"noAlignSize,omitempty"`
	Class       string             `json:"class,omitempty"`
	RefInput    *int               `json:"refInput,omitempty"`
	Descriptor  bool               `json:"descriptor,omitempty"`
}

// Parse parses the given YAML or JSON data into a graph description.
func Parse(data []byte) (*Spec, error) {
	spec := &Spec{}
	if err := yaml.UnmarshalStrict(data, spec); err != nil {
		return nil, errors.Wrap(err, "failed to parse graph description")
	}
	return spec, nil
}

// Load reads and parses a graph description from the given file.
func Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read graph description %q", path)
	}

	spec, err := Parse(data)
	if err != nil {
		return nil, errors.WithMessagef(err, "graph description %q", path)
	}

	if spec.Name == "" {
		spec.Name = path
	}

	return spec, nil
}

// Graph creates the described graph.
func (s *Spec) Graph() (*memplan.Graph, error) {
	g := &memplan.Graph{
		Name:  s.Name,
		Nodes: make([]*memplan.Node, 0, len(s.Nodes)),
	}

	for _, ns := range s.Nodes {
		n, err := ns.node()
		if err != nil {
			return nil, errors.WithMessagef(err, "graph %q", s.Name)
		}
		g.Nodes = append(g.Nodes, n)
	}

	return g, nil
}

func (ns *Node) node() (*memplan.Node, error) {
	kind, err := memplan.ParseNodeKind(ns.Kind)
	if err != nil {
		return nil, errors.WithMessagef(err, "node #%d", ns.ID)
	}

	n := &memplan.Node{
		ID:               ns.ID,
		Name:             ns.Name,
		Stream:           memplan.StreamID(ns.Stream),
		Kind:             kind,
		Control:          ns.Control,
		Batch:            ns.Batch,
		ContinuousInput:  ns.ContinuousInput,
		ContinuousOutput: ns.ContinuousOutput,
		NoReuse:          ns.NoReuse,
		AtomicTarget:     ns.AtomicTarget,
	}

	for _, in := range ns.Inputs {
		n.Inputs = append(n.Inputs, memplan.Input{Node: in.Node, Output: in.Output})
	}

	for i, ss := range ns.Outputs {
		s, err := ss.slot(memplan.NewOutput)
		if err != nil {
			return nil, errors.WithMessagef(err, "node #%d output #%d", ns.ID, i)
		}
		n.Outputs = append(n.Outputs, s)
	}

	for i, ss := range ns.Workspaces {
		if ss.RefInput != nil || ss.Descriptor {
			return nil, errors.Errorf("node #%d workspace #%d: aliasing or descriptor workspace",
				ns.ID, i)
		}
		s, err := ss.slot(memplan.NewWorkspace)
		if err != nil {
			return nil, errors.WithMessagef(err, "node #%d workspace #%d", ns.ID, i)
		}
		n.Workspaces = append(n.Workspaces, s)
	}

	return n, nil
}

func (ss *Slot) slot(create func(int64, ...memplan.SlotOption) *memplan.Slot) (*memplan.Slot, error) {
	var opts []memplan.SlotOption

	if ss.Class != "" {
		c, err := memplan.ParseMemoryClass(ss.Class)
		if err != nil {
			return nil, err
		}
		opts = append(opts, memplan.WithClass(c))
	}
	if ss.NoAlignSize != nil {
		opts = append(opts, memplan.WithNoAlignSize(ss.NoAlignSize.Value()))
	}
	if ss.RefInput != nil {
		opts = append(opts, memplan.WithRefInput(*ss.RefInput))
	}
	if ss.Descriptor {
		opts = append(opts, memplan.AsDescriptor())
	}

	return create(ss.Size.Value(), opts...), nil
}
