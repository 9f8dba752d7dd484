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

package graphspec_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"sigs.k8s.io/yaml"

	"github.com/streamgraph/memplan/pkg/graphspec"
	"github.com/streamgraph/memplan/pkg/memplan"
)

func TestLoadGraph(t *testing.T) {
	spec, err := graphspec.Load("testdata/pipeline.yaml")
	require.NoError(t, err, "unexpected Load() error")
	require.Equal(t, "pipeline", spec.Name)

	g, err := spec.Graph()
	require.NoError(t, err, "unexpected Graph() error")
	require.Len(t, g.Nodes, 7)

	images, relu, pool, fc := g.Nodes[0], g.Nodes[2], g.Nodes[3], g.Nodes[5]
	require.Equal(t, memplan.KindInput, images.Kind)
	require.Equal(t, int64(1024), images.Outputs[0].Size)
	require.Equal(t, 0, relu.Outputs[0].RefInput)
	require.Equal(t, memplan.StreamID(1), pool.Stream)
	require.True(t, pool.ContinuousOutput)
	require.Equal(t, int64(500), pool.Outputs[0].NoAlignSize)
	require.Equal(t, memplan.NoRefInput, pool.Outputs[1].RefInput)
	require.Equal(t, memplan.ClassHost, fc.Outputs[0].Class)
	require.Equal(t, []memplan.Input{{Node: 3}, {Node: 3, Output: 1}, {Node: 4}}, fc.Inputs)
	require.Equal(t, memplan.KindOutput, g.Nodes[6].Kind)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := graphspec.Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)

	for name, data := range map[string]string{
		"unknown-field.yaml": "name: bad\nnodes:\n  - id: 0\n    colour: red\n",
		"bad-size.yaml":      "name: bad\nnodes:\n  - id: 0\n    outputs:\n      - size: lots\n",
	} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
		_, err := graphspec.Load(path)
		require.Error(t, err, "unexpected success loading %s", name)
		require.Contains(t, err.Error(), name)
	}

	path := filepath.Join(dir, "unnamed.yaml")
	require.NoError(t, os.WriteFile(path, []byte("nodes: []\n"), 0o644))
	spec, err := graphspec.Load(path)
	require.NoError(t, err)
	require.Equal(t, path, spec.Name)
}

func TestGraphErrors(t *testing.T) {
	for name, data := range map[string]string{
		"kind":      "nodes:\n  - id: 0\n    kind: switch\n",
		"class":     "nodes:\n  - id: 0\n    outputs:\n      - size: 1\n        class: sram\n",
		"workspace": "nodes:\n  - id: 0\n    workspaces:\n      - size: 1\n        descriptor: true\n",
	} {
		t.Run(name, func(t *testing.T) {
			spec, err := graphspec.Parse([]byte(data))
			require.NoError(t, err, "unexpected Parse() error")
			g, err := spec.Graph()
			require.Error(t, err, "unexpected Graph() success")
			require.Nil(t, g)
		})
	}
}

func TestReport(t *testing.T) {
	spec, err := graphspec.Load("testdata/pipeline.yaml")
	require.NoError(t, err)
	g, err := spec.Graph()
	require.NoError(t, err)

	p, err := memplan.PlanGraph(g,
		memplan.WithClasses(memplan.ClassHBM, memplan.ClassHost),
		memplan.WithVerification(true),
	)
	require.NoError(t, err, "unexpected planning error")

	data, err := graphspec.NewReport(p, true).Marshal()
	require.NoError(t, err)

	r := &graphspec.Report{}
	require.NoError(t, yaml.UnmarshalStrict(data, r), "report should parse back")
	require.Equal(t, "pipeline", r.Graph)
	require.Equal(t, []int{0, 1}, r.Streams)
	require.Len(t, r.Totals, 2)
	require.Equal(t, "HBM", r.Totals[0].Class)
	require.Equal(t, "HOST", r.Totals[1].Class)
	require.NotEmpty(t, r.Blocks)

	slots := map[string]graphspec.SlotReport{}
	for _, s := range r.Slots {
		slots[s.Slot] = s
	}
	require.Len(t, slots, 8)

	weights := slots["#4.out0"]
	require.Nil(t, weights.Block, "constant output should occupy no planned memory")
	require.Equal(t, memplan.Unassigned, weights.Offset)

	images := slots["#0.out0"]
	require.NotNil(t, images.Block)
	require.True(t, images.ZeroCopy)

	conv, relu := slots["#1.out0"], slots["#2.out0"]
	require.Equal(t, conv.Offset, relu.Offset, "aliased output should share memory")
	require.Equal(t, *conv.Block, *relu.Block)

	result := slots["#5.out0"]
	require.Equal(t, "HOST", result.Class)
	require.True(t, result.ZeroCopy)

	without, err := graphspec.NewReport(p, false).Marshal()
	require.NoError(t, err)
	require.NotContains(t, string(without), "blocks:")
}
