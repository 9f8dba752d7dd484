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

package memplan

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func workspaceGraph() *Graph {
	return &Graph{
		Name: "workspace",
		Nodes: []*Node{
			{ID: 1, Outputs: []*Slot{NewOutput(100)}},
			{
				ID:         2,
				Inputs:     []Input{{Node: 1}},
				Outputs:    []*Slot{NewOutput(200)},
				Workspaces: []*Slot{NewWorkspace(100)},
			},
		},
	}
}

func TestCheckWorkspaceOverInput(t *testing.T) {
	p, err := PlanGraph(workspaceGraph(),
		WithAlignment(4),
		WithConvention(LastReleaseFirstReuse),
		WithZeroCopy(false),
		WithLifetimeReuse(false),
	)
	require.NoError(t, err)
	require.NoError(t, p.Check())

	var (
		input  = OutputRef(1, 0)
		output = OutputRef(2, 0)
		ws     = WorkspaceRef(2, 0)
		offs   = p.offsets[ws]
	)

	p.offsets[ws] = p.offsets[input]
	err = p.Check()
	require.ErrorIs(t, err, ErrPolicyViolation)
	require.Contains(t, err.Error(), ws.String())
	p.offsets[ws] = offs

	p.offsets[output] = p.offsets[input]
	require.NoError(t, p.Check(), "output may take over an input of its node")
}

func TestStreamGraphStreams(t *testing.T) {
	g := &Graph{
		Name: "streams",
		Nodes: []*Node{
			{ID: 1, Stream: 2, Outputs: []*Slot{NewOutput(100)}},
			{ID: 2, Stream: 0, Inputs: []Input{{Node: 1}}},
			{ID: 3, Stream: 2},
		},
	}

	opts := defaultOptions()
	an, err := analyze(g, &opts)
	require.NoError(t, err)
	require.Equal(t, []StreamID{0, 2}, an.sg.streams.SortedMembers())
	require.Equal(t, []StreamEdge{{From: 2, To: 0, Producer: 1, Consumer: 2}}, an.sg.edges())
}

func TestSortedPos(t *testing.T) {
	var (
		opts = defaultOptions()
		r    = newRun(&opts, &analysis{g: &Graph{}})
		b1   = r.arena.newBlock(ClassHBM, 0, "", 100)
		b2   = r.arena.newBlock(ClassHBM, 0, "", 300)
		b3   = r.arena.newBlock(ClassHBM, 0, "", 50)
		b4   = r.arena.newBlock(ClassHBM, 0, "", 200)
	)

	require.Equal(t, 0, r.sortedPos([]*Block{b1, b2}, b4),
		"position should precede the first block ordered after it")
	require.Equal(t, 1, r.sortedPos([]*Block{b2, b3}, b1))
	require.Equal(t, 2, r.sortedPos([]*Block{b2, b4}, b3))
	require.Equal(t, 0, r.sortedPos(nil, b1))
}
