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

package memplan_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	. "github.com/streamgraph/memplan/pkg/memplan"
)

// testNode describes a node for building test graphs.
type testNode struct {
	id         int64
	stream     StreamID
	kind       NodeKind
	inputs     []Input
	control    []int64
	outputs    []int64
	workspaces []int64
	refInput   map[int]int // output -> aliased input
}

func in(node int64, output int) Input {
	return Input{Node: node, Output: output}
}

func sizes(s ...int64) []int64 {
	return s
}

func buildGraph(name string, nodes ...*testNode) *Graph {
	g := &Graph{Name: name}
	for _, tn := range nodes {
		n := &Node{
			ID:      tn.id,
			Stream:  tn.stream,
			Kind:    tn.kind,
			Inputs:  tn.inputs,
			Control: tn.control,
		}
		for i, size := range tn.outputs {
			var opts []SlotOption
			if ref, ok := tn.refInput[i]; ok {
				opts = append(opts, WithRefInput(ref))
			}
			n.Outputs = append(n.Outputs, NewOutput(size, opts...))
		}
		for _, size := range tn.workspaces {
			n.Workspaces = append(n.Workspaces, NewWorkspace(size))
		}
		g.Nodes = append(g.Nodes, n)
	}
	return g
}

// chainGraph is a linear chain of three nodes on a single stream, each
// with a single output consumed only by the next node.
func chainGraph() *Graph {
	return buildGraph("chain",
		&testNode{id: 1, outputs: sizes(100)},
		&testNode{id: 2, inputs: []Input{in(1, 0)}, outputs: sizes(100)},
		&testNode{id: 3, inputs: []Input{in(2, 0)}, outputs: sizes(100)},
	)
}

func plan(t *testing.T, g *Graph, options ...Option) *Plan {
	options = append([]Option{WithAlignment(4), WithVerification(true)}, options...)
	p, err := PlanGraph(g, options...)
	require.NoError(t, err, "unexpected planning error for graph %q", g.Name)
	require.NotNil(t, p, "unexpected nil plan for graph %q", g.Name)
	return p
}

func peak(p *Plan) int64 {
	return p.Totals(ClassHBM).Peak
}

func sameBlock(t *testing.T, p *Plan, r1, r2 SlotRef) bool {
	b1, b2 := p.BlockOf(r1), p.BlockOf(r2)
	require.NotNil(t, b1, "no block for %s", r1)
	require.NotNil(t, b2, "no block for %s", r2)
	return b1.ID() == b2.ID()
}
