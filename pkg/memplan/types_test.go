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
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	. "github.com/streamgraph/memplan/pkg/memplan"
)

func TestParseMemoryClass(t *testing.T) {
	for _, tc := range []struct {
		str   string
		class MemoryClass
		fail  bool
	}{
		{str: "HBM", class: ClassHBM},
		{str: "hbm", class: ClassHBM},
		{str: "P2P", class: ClassP2P},
		{str: "host", class: ClassHost},
		{str: "SRAM", fail: true},
		{str: "", fail: true},
	} {
		t.Run(tc.str, func(t *testing.T) {
			c, err := ParseMemoryClass(tc.str)
			if tc.fail {
				require.True(t, errors.Is(err, ErrInvalidClass), "unexpected error %v", err)
				require.Panics(t, func() { MustParseMemoryClass(tc.str) })
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.class, c)
			require.True(t, c.IsValid())
		})
	}

	require.False(t, MemoryClass(7).IsValid())
	require.Equal(t, "%!(memplan:Bad-Class 7)", MemoryClass(7).String())
}

func TestClassMask(t *testing.T) {
	m, err := ParseClassMask("host, HBM")
	require.NoError(t, err)
	require.Equal(t, ClassMaskHBM|ClassMaskHost, m)
	require.Equal(t, []MemoryClass{ClassHBM, ClassHost}, m.Slice())
	require.Equal(t, "HBM,HOST", m.String())
	require.True(t, m.Contains(ClassHost))
	require.True(t, m.Contains(ClassHBM, ClassHost))
	require.False(t, m.Contains(ClassHBM, ClassP2P))

	require.Equal(t, ClassMaskAll, NewClassMask(ClassHBM, ClassP2P, ClassHost))
	require.Equal(t, ClassMaskP2P, ClassP2P.Mask())

	_, err = ParseClassMask("HBM,SRAM")
	require.True(t, errors.Is(err, ErrInvalidClass), "unexpected error %v", err)
}

func TestParseNodeKind(t *testing.T) {
	for str, kind := range map[string]NodeKind{
		"":             KindOrdinary,
		"ordinary":     KindOrdinary,
		"Data":         KindInput,
		"input":        KindInput,
		"NetOutput":    KindOutput,
		"constant":     KindConstant,
		"atomic-clear": KindAtomicClear,
		"merge":        KindMerge,
		"iterator":     KindIterator,
	} {
		k, err := ParseNodeKind(str)
		require.NoError(t, err, "unexpected error for %q", str)
		require.Equal(t, kind, k, "node kind for %q", str)
	}

	_, err := ParseNodeKind("switch")
	require.True(t, errors.Is(err, ErrInvalidKind), "unexpected error %v", err)
}

func TestJSONCodecs(t *testing.T) {
	type doc struct {
		Class MemoryClass `json:"class"`
		Kind  NodeKind    `json:"kind"`
	}

	data, err := json.Marshal(&doc{Class: ClassP2P, Kind: KindAtomicClear})
	require.NoError(t, err)
	require.JSONEq(t, `{"class":"P2P","kind":"atomic-clear"}`, string(data))

	d := &doc{}
	require.NoError(t, json.Unmarshal([]byte(`{"class":"host","kind":"netoutput"}`), d))
	require.Equal(t, &doc{Class: ClassHost, Kind: KindOutput}, d)

	require.NoError(t, json.Unmarshal([]byte(`{"class":1}`), d))
	require.Equal(t, ClassP2P, d.Class)

	err = json.Unmarshal([]byte(`{"class":7}`), d)
	require.True(t, errors.Is(err, ErrInvalidClass), "unexpected error %v", err)
	err = json.Unmarshal([]byte(`{"kind":"loop"}`), d)
	require.True(t, errors.Is(err, ErrInvalidKind), "unexpected error %v", err)
}

func TestSlotRefs(t *testing.T) {
	require.Equal(t, "#3.out1", OutputRef(3, 1).String())
	require.Equal(t, "#3.ws0", WorkspaceRef(3, 0).String())

	n := &Node{
		ID:         3,
		Stream:     2,
		Outputs:    []*Slot{NewOutput(16), NewOutput(32, AsDescriptor())},
		Workspaces: []*Slot{NewWorkspace(64, AsDescriptor())},
	}
	require.Equal(t, "ordinary#3@2", n.String())
	n.Name = "conv"
	require.Equal(t, "conv#3@2", n.String())

	require.Same(t, n.Outputs[1], n.Slot(OutputRef(3, 1)))
	require.Same(t, n.Workspaces[0], n.Slot(WorkspaceRef(3, 0)))
	require.Nil(t, n.Slot(OutputRef(3, 2)))
	require.Nil(t, n.Slot(WorkspaceRef(3, -1)))

	require.Equal(t, SlotOutputDescriptor, n.Outputs[1].Kind)
	require.Equal(t, SlotWorkspace, n.Workspaces[0].Kind, "workspaces cannot be descriptors")
	require.Equal(t, NoRefInput, n.Outputs[0].RefInput)
	require.Equal(t, Unassigned, n.Outputs[0].Offset)
}

func TestHumanReadableSize(t *testing.T) {
	for size, str := range map[int64]string{
		0:               "0",
		100:             "100",
		1024:            "1k",
		1536:            "1.5k",
		16 << 20:        "16M",
		3 << 30:         "3G",
		2<<40 + 512<<30: "2.5T",
		1<<20 - 1<<10:   "1023k",
	} {
		require.Equal(t, str, HumanReadableSize(size), "size %d", size)
	}
}
