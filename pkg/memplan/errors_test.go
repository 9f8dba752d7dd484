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
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	. "github.com/streamgraph/memplan/pkg/memplan"
)

func TestMalformedGraphs(t *testing.T) {
	for _, tc := range []struct {
		name  string
		graph func() *Graph
		errs  []error
	}{
		{
			name: "nil graph",
			graph: func() *Graph {
				return nil
			},
			errs: []error{ErrMalformedGraph},
		},
		{
			name: "nil node",
			graph: func() *Graph {
				g := chainGraph()
				g.Nodes[1] = nil
				return g
			},
			errs: []error{ErrMalformedGraph},
		},
		{
			name: "decreasing node IDs",
			graph: func() *Graph {
				g := chainGraph()
				g.Nodes[0].ID = 7
				return g
			},
			errs: []error{ErrMalformedGraph},
		},
		{
			name: "input from unknown node",
			graph: func() *Graph {
				g := chainGraph()
				g.Nodes[1].Inputs[0].Node = 42
				return g
			},
			errs: []error{ErrMalformedGraph},
		},
		{
			name: "input from invalid output",
			graph: func() *Graph {
				g := chainGraph()
				g.Nodes[1].Inputs[0].Output = 1
				return g
			},
			errs: []error{ErrMalformedGraph},
		},
		{
			name: "control edge from unknown node",
			graph: func() *Graph {
				g := chainGraph()
				g.Nodes[2].Control = []int64{5}
				return g
			},
			errs: []error{ErrMalformedGraph},
		},
		{
			name: "negative size",
			graph: func() *Graph {
				g := chainGraph()
				g.Nodes[0].Outputs[0].Size = -1
				return g
			},
			errs: []error{ErrMalformedGraph},
		},
		{
			name: "unaligned size exceeding size",
			graph: func() *Graph {
				g := chainGraph()
				g.Nodes[0].Outputs[0].NoAlignSize = 128
				return g
			},
			errs: []error{ErrMalformedGraph},
		},
		{
			name: "disabled memory class",
			graph: func() *Graph {
				g := chainGraph()
				g.Nodes[0].Outputs[0].Class = ClassP2P
				return g
			},
			errs: []error{ErrMalformedGraph, ErrInvalidClass},
		},
		{
			name: "output as workspace",
			graph: func() *Graph {
				g := chainGraph()
				g.Nodes[0].Workspaces = []*Slot{NewOutput(100)}
				return g
			},
			errs: []error{ErrMalformedGraph},
		},
		{
			name: "alias of invalid input",
			graph: func() *Graph {
				g := chainGraph()
				g.Nodes[1].Outputs[0].RefInput = 3
				return g
			},
			errs: []error{ErrMalformedGraph},
		},
		{
			name: "size overflow",
			graph: func() *Graph {
				g := chainGraph()
				g.Nodes[1].Outputs[0].Size = math.MaxInt64
				return g
			},
			errs: []error{ErrMalformedGraph, ErrSizeOverflow},
		},
		{
			name: "aliased no-reuse output",
			graph: func() *Graph {
				g := chainGraph()
				g.Nodes[0].NoReuse = true
				g.Nodes[1].Outputs[0].RefInput = 0
				return g
			},
			errs: []error{ErrPolicyViolation},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			g := tc.graph()
			p, err := PlanGraph(g)
			require.Nil(t, p, "unexpected plan")
			require.Error(t, err, "unexpected success")
			for _, e := range tc.errs {
				require.True(t, errors.Is(err, e), "error %v is not %v", err, e)
			}
			if g == nil {
				return
			}
			for _, n := range g.Nodes {
				if n == nil {
					continue
				}
				for _, s := range slices.Concat(n.Outputs, n.Workspaces) {
					require.Equal(t, Unassigned, s.Offset, "slot offset of %s after failure", n)
					require.False(t, s.PreReuse(), "slot pre-reuse of %s after failure", n)
				}
			}
		})
	}
}

func TestAllErrorsReported(t *testing.T) {
	g := chainGraph()
	g.Nodes[0].Outputs[0].Size = -1
	g.Nodes[2].Inputs[0].Node = 42

	_, err := PlanGraph(g)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrMalformedGraph))
	require.Contains(t, err.Error(), "negative size")
	require.Contains(t, err.Error(), "unknown node #42")
}

func TestAliasAcrossMemoryClasses(t *testing.T) {
	g := chainGraph()
	g.Nodes[1].Outputs[0] = NewOutput(100, WithClass(ClassHost), WithRefInput(0))

	_, err := PlanGraph(g, WithClasses(ClassHBM, ClassHost))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrPolicyViolation), "unexpected error %v", err)
}
