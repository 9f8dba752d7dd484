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
	"slices"
)

// Plan is the memory plan of a graph.
type Plan struct {
	graph   *Graph
	opts    options
	an      *analysis
	arena   *arena
	placed  map[SlotRef]*placement
	offsets map[SlotRef]int64
	zeroMem []SlotRef
	totals  map[MemoryClass]*Totals
}

// Totals are the memory usage totals of a plan for a memory class.
type Totals struct {
	Class          MemoryClass
	Peak           int64 // size of the memory arena
	TheoreticalMin int64 // largest amount of simultaneously live memory
	NonReusable    int64 // memory in blocks never released for reuse
	ZeroCopy       int64 // memory in blocks aliasing external buffers
	Blocks         int   // number of top-level blocks in the arena
	Nested         int   // number of blocks nested in other blocks
	Slots          int   // number of slots occupying memory
}

// String returns a string representation of the totals.
func (t *Totals) String() string {
	return fmt.Sprintf("%s: peak %s (theoretical minimum %s, non-reusable %s, zero-copy %s), "+
		"%d blocks, %d nested, %d slots", t.Class, HumanReadableSize(t.Peak),
		HumanReadableSize(t.TheoreticalMin), HumanReadableSize(t.NonReusable),
		HumanReadableSize(t.ZeroCopy), t.Blocks, t.Nested, t.Slots)
}

// apply writes the results of the plan into the slots of the graph.
func (p *Plan) apply() {
	p.graph.ForeachSlot(func(_ *Node, ref SlotRef, s *Slot) bool {
		pl, ok := p.placed[ref]
		if !ok {
			s.Offset = Unassigned
			s.ZeroCopy = false
			s.preReuse = false
			s.postReuse = false
			return ForeachMore
		}

		b := p.arena.get(pl.block)
		s.Offset = p.offsets[ref]
		s.ZeroCopy = p.root(b).zeroCopy
		s.Class = b.class
		s.preReuse = p.an.isPreReusable(ref)
		s.postReuse = p.an.isPostReusable(ref)

		return ForeachMore
	})
}

func (p *Plan) root(b *Block) *Block {
	for b.parent != NoBlock {
		b = p.arena.get(b.parent)
	}
	return b
}

// Graph returns the planned graph.
func (p *Plan) Graph() *Graph {
	return p.graph
}

// Offset returns the planned offset of the slot. Slots occupying no
// memory have the offset Unassigned.
func (p *Plan) Offset(ref SlotRef) int64 {
	if offs, ok := p.offsets[ref]; ok {
		return offs
	}
	return Unassigned
}

// Offsets returns the planned offsets of all slots occupying memory.
func (p *Plan) Offsets() map[SlotRef]int64 {
	offsets := make(map[SlotRef]int64, len(p.offsets))
	for ref, offs := range p.offsets {
		offsets[ref] = offs
	}
	return offsets
}

// BlockOf returns the block of the slot, or nil for slots occupying no memory.
func (p *Plan) BlockOf(ref SlotRef) *Block {
	if pl, ok := p.placed[ref]; ok {
		return p.arena.get(pl.block)
	}
	return nil
}

// Block returns the block with the given ID.
func (p *Plan) Block(id BlockID) *Block {
	return p.arena.get(id)
}

// Blocks returns all top-level blocks in the order of their IDs.
func (p *Plan) Blocks() []*Block {
	var blocks []*Block
	for _, b := range p.arena.blocks {
		if b.parent == NoBlock {
			blocks = append(blocks, b)
		}
	}
	return blocks
}

// ForeachBlock calls fn for all blocks, parents before their children,
// until fn returns ForeachDone.
func (p *Plan) ForeachBlock(fn func(b *Block, depth int) bool) {
	type entry struct {
		b     *Block
		depth int
	}

	for _, top := range p.Blocks() {
		stack := []entry{{top, 0}}
		for len(stack) > 0 {
			e := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if !fn(e.b, e.depth) {
				return
			}
			for i := len(e.b.children) - 1; i >= 0; i-- {
				stack = append(stack, entry{p.arena.get(e.b.children[i]), e.depth + 1})
			}
		}
	}
}

// ZeroMemory returns the slots which occupy no memory.
func (p *Plan) ZeroMemory() []SlotRef {
	return slices.Clone(p.zeroMem)
}

// Totals returns the totals for the given memory class.
func (p *Plan) Totals(class MemoryClass) Totals {
	if t, ok := p.totals[class]; ok {
		return *t
	}
	return Totals{Class: class}
}

// Classes returns the memory classes of the plan.
func (p *Plan) Classes() []MemoryClass {
	return p.opts.classes.Slice()
}

// StreamEdges returns the dependencies between streams, including the
// ones derived transitively.
func (p *Plan) StreamEdges() []StreamEdge {
	return p.an.sg.edges()
}
