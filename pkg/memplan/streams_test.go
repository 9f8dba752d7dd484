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

// crossStreamReuseGraph has a producer on stream 0 with its only consumer
// on stream 1, and later requests of the same size on stream 0 before
// and after stream 1 synchronizes back to stream 0.
func crossStreamReuseGraph() *Graph {
	return buildGraph("cross-stream-reuse",
		&testNode{id: 5, stream: 0, outputs: sizes(100)},
		&testNode{id: 6, stream: 0, outputs: sizes(100)},
		&testNode{id: 9, stream: 1, inputs: []Input{in(5, 0)}},
		&testNode{id: 10, stream: 0, outputs: sizes(100)},
		&testNode{id: 11, stream: 0, inputs: []Input{in(10, 0)}, control: []int64{9}, outputs: sizes(100)},
	)
}

func TestNoPrematureCrossStreamReuse(t *testing.T) {
	p := plan(t, crossStreamReuseGraph())

	require.False(t, sameBlock(t, p, OutputRef(5, 0), OutputRef(6, 0)),
		"block of a live slot must not be reused")
	require.False(t, sameBlock(t, p, OutputRef(5, 0), OutputRef(10, 0)),
		"block read on another stream must not be reused before synchronization")
	require.True(t, sameBlock(t, p, OutputRef(6, 0), OutputRef(10, 0)),
		"block released on the same stream should be reused")
	require.True(t, sameBlock(t, p, OutputRef(5, 0), OutputRef(11, 0)),
		"block read on another stream should be reused after synchronization")
	require.Equal(t, int64(200), peak(p))

	require.Equal(t,
		[]StreamEdge{
			{From: 1, To: 0, Producer: 9, Consumer: 11},
			{From: 0, To: 1, Producer: 5, Consumer: 9},
		},
		p.StreamEdges(),
	)
}

func TestTransitiveStreamOrder(t *testing.T) {
	g := buildGraph("transitive",
		&testNode{id: 1, stream: 0, outputs: sizes(100)},
		&testNode{id: 2, stream: 1, inputs: []Input{in(1, 0)}, outputs: sizes(100)},
		&testNode{id: 3, stream: 2, inputs: []Input{in(2, 0)}},
		&testNode{id: 4, stream: 2, outputs: sizes(100)},
	)

	p := plan(t, g)
	require.Equal(t,
		[]StreamEdge{
			{From: 0, To: 1, Producer: 1, Consumer: 2},
			{From: 0, To: 2, Producer: 1, Consumer: 3},
			{From: 1, To: 2, Producer: 2, Consumer: 3},
		},
		p.StreamEdges(),
	)
	require.True(t, sameBlock(t, p, OutputRef(1, 0), OutputRef(4, 0)),
		"block should be reused once ordered by a transitive dependency")
	require.Equal(t, int64(200), peak(p))
	require.Equal(t, []StreamID{0, 1, 2}, g.Streams().SortedMembers())
}

func TestStreamsWithoutDependencies(t *testing.T) {
	g := buildGraph("independent",
		&testNode{id: 1, stream: 0, outputs: sizes(100)},
		&testNode{id: 2, stream: 0, inputs: []Input{in(1, 0)}},
		&testNode{id: 3, stream: 1, outputs: sizes(100)},
	)

	p := plan(t, g)
	require.Empty(t, p.StreamEdges())
	require.False(t, sameBlock(t, p, OutputRef(1, 0), OutputRef(3, 0)),
		"block must not be reused by an unordered stream")
	require.Equal(t, int64(200), peak(p))
}
