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
	"fmt"
	"math"

	idset "github.com/intel/goresctrl/pkg/utils"
)

type (
	// StreamID is the ID of an execution stream.
	StreamID = idset.ID
)

const (
	// Unassigned is the offset of slots which occupy no memory.
	Unassigned int64 = -1
	// NoRefInput is the RefInput of slots which do not alias an input.
	NoRefInput = -1
	// MaxNodeID is the largest accepted node ID.
	MaxNodeID = math.MaxUint32
)

// Graph is a compiled dataflow graph with nodes in execution order.
type Graph struct {
	Name  string
	Nodes []*Node
}

// Node is a single node of a graph. ID is the execution index of the node.
// IDs are unique and strictly increasing in the order of Graph.Nodes.
type Node struct {
	ID               int64
	Name             string
	Stream           StreamID
	Kind             NodeKind
	Inputs           []Input
	Control          []int64
	Outputs          []*Slot
	Workspaces       []*Slot
	Batch            string
	ContinuousInput  bool // producer slots of inputs must be contiguous
	ContinuousOutput bool // outputs must be contiguous
	NoReuse          bool // never share memory with other nodes
	AtomicTarget     bool // outputs are cleared by an atomic-clear node
}

// Input is a data edge from an output of an earlier node.
type Input struct {
	Node   int64
	Output int
}

// Slot is an output or workspace buffer of a node. Offset, ZeroCopy, and
// Class are updated once a graph has been successfully planned.
type Slot struct {
	Kind        SlotKind
	Size        int64
	NoAlignSize int64 // size before padding, Size if 0
	Class       MemoryClass
	RefInput    int // input aliased by this output, NoRefInput if none
	Offset      int64
	ZeroCopy    bool

	preReuse  bool
	postReuse bool
}

// SlotOption is an option for creating a slot.
type SlotOption func(*Slot)

// WithClass returns an option to set the memory class of a slot.
func WithClass(c MemoryClass) SlotOption {
	return func(s *Slot) {
		s.Class = c
	}
}

// WithRefInput returns an option to make an output alias the given input.
func WithRefInput(input int) SlotOption {
	return func(s *Slot) {
		s.RefInput = input
	}
}

// WithNoAlignSize returns an option to set the size before padding.
func WithNoAlignSize(size int64) SlotOption {
	return func(s *Slot) {
		s.NoAlignSize = size
	}
}

// AsDescriptor returns an option to turn an output into a descriptor output.
func AsDescriptor() SlotOption {
	return func(s *Slot) {
		if s.Kind == SlotOutput {
			s.Kind = SlotOutputDescriptor
		}
	}
}

// NewOutput creates an output slot of the given size.
func NewOutput(size int64, options ...SlotOption) *Slot {
	return newSlot(SlotOutput, size, options...)
}

// NewWorkspace creates a workspace slot of the given size.
func NewWorkspace(size int64, options ...SlotOption) *Slot {
	return newSlot(SlotWorkspace, size, options...)
}

func newSlot(kind SlotKind, size int64, options ...SlotOption) *Slot {
	s := &Slot{
		Kind:     kind,
		Size:     size,
		Class:    ClassHBM,
		RefInput: NoRefInput,
		Offset:   Unassigned,
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// PreReuse returns true if the memory of the slot may be handed over to
// a later slot once the slot is dead.
func (s *Slot) PreReuse() bool {
	return s.preReuse
}

// PostReuse returns true if the slot may take over memory of an earlier
// slot which is dead.
func (s *Slot) PostReuse() bool {
	return s.postReuse
}

// IsWorkspace returns true for workspace slots.
func (s *Slot) IsWorkspace() bool {
	return s.Kind == SlotWorkspace
}

func (s *Slot) alignSize() int64 {
	if s.NoAlignSize > 0 {
		return s.NoAlignSize
	}
	return s.Size
}

// SlotRef identifies a slot of a node.
type SlotRef struct {
	Node      int64
	Workspace bool
	Index     int
}

// OutputRef returns a reference to the given output of a node.
func OutputRef(node int64, idx int) SlotRef {
	return SlotRef{Node: node, Index: idx}
}

// WorkspaceRef returns a reference to the given workspace of a node.
func WorkspaceRef(node int64, idx int) SlotRef {
	return SlotRef{Node: node, Workspace: true, Index: idx}
}

// String returns a string representation of the slot reference.
func (r SlotRef) String() string {
	if r.Workspace {
		return fmt.Sprintf("#%d.ws%d", r.Node, r.Index)
	}
	return fmt.Sprintf("#%d.out%d", r.Node, r.Index)
}

func compareSlotRefs(r1, r2 SlotRef) int {
	if r1.Node != r2.Node {
		if r1.Node < r2.Node {
			return -1
		}
		return 1
	}
	if r1.Workspace != r2.Workspace {
		if !r1.Workspace {
			return -1
		}
		return 1
	}
	return r1.Index - r2.Index
}

// String returns a string representation of the node.
func (n *Node) String() string {
	if n.Name != "" {
		return fmt.Sprintf("%s#%d@%d", n.Name, n.ID, n.Stream)
	}
	return fmt.Sprintf("%s#%d@%d", n.Kind, n.ID, n.Stream)
}

// Slot returns the referenced slot of the node, or nil if it does not exist.
func (n *Node) Slot(r SlotRef) *Slot {
	slots := n.Outputs
	if r.Workspace {
		slots = n.Workspaces
	}
	if r.Index < 0 || r.Index >= len(slots) {
		return nil
	}
	return slots[r.Index]
}

// Streams returns the set of streams used by the graph.
func (g *Graph) Streams() idset.IDSet {
	streams := idset.NewIDSet()
	for _, n := range g.Nodes {
		streams.Add(n.Stream)
	}
	return streams
}

// ForeachSlot calls fn for every slot of the graph in execution order,
// outputs before workspaces, until fn returns ForeachDone.
func (g *Graph) ForeachSlot(fn func(*Node, SlotRef, *Slot) bool) {
	for _, n := range g.Nodes {
		for i, s := range n.Outputs {
			if !fn(n, OutputRef(n.ID, i), s) {
				return
			}
		}
		for i, s := range n.Workspaces {
			if !fn(n, WorkspaceRef(n.ID, i), s) {
				return
			}
		}
	}
}

const (
	// ForeachDone as a return value terminates iteration by a Foreach* function.
	ForeachDone = false
	// ForeachMore as a return value continues iteration by a Foreach* function.
	ForeachMore = !ForeachDone
)
