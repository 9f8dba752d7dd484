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
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
)

// BlockID identifies a block within a single plan.
type BlockID int

const (
	// NoBlock is the ID used for no block.
	NoBlock BlockID = -1
)

// GroupPos is the position of a member in a continuous group.
type GroupPos int

const (
	NotInGroup    GroupPos = iota // not part of a continuous group
	GroupFirst                    // first slot of a continuous group
	GroupInterior                 // interior slot of a continuous group
	GroupLast                     // last slot of a continuous group
)

// String returns a string representation of the group position.
func (p GroupPos) String() string {
	switch p {
	case GroupFirst:
		return "first"
	case GroupInterior:
		return "interior"
	case GroupLast:
		return "last"
	}
	return "none"
}

// Member is a slot occupying (part of) a block.
type Member struct {
	Slot        SlotRef
	Stream      StreamID
	Size        int64
	NoAlignSize int64
	Offset      int64 // offset within the block
	GroupPos    GroupPos
	Forever     bool

	owner int // symbol, or negative for workspaces
}

// Block is a chunk of memory shared by slots with disjoint lifetimes.
// Blocks can be nested inside other blocks if the lifetimes of their
// members are disjoint from the ones of the enclosing blocks.
type Block struct {
	id       BlockID
	class    MemoryClass
	stream   StreamID
	batch    string
	size     int64 // committed size
	members  []*Member
	children []BlockID
	parent   BlockID
	life     *span
	nodes    *roaring.Bitmap
	refs     int
	seq      int
	head     int64
	final    int64

	reusable        bool
	zeroCopy        bool
	reuseOfZeroCopy bool
	continuous      bool
	sameStreamOnly  bool
	noReuse         bool
	retired         bool
	released        bool
}

// arena owns all blocks of a single planning run.
type arena struct {
	blocks []*Block
}

func (a *arena) newBlock(class MemoryClass, stream StreamID, batch string, size int64) *Block {
	b := &Block{
		id:     BlockID(len(a.blocks)),
		class:  class,
		stream: stream,
		batch:  batch,
		size:   size,
		parent: NoBlock,
		life:   &span{},
		nodes:  roaring.New(),
		seq:    -1,
		head:   Unassigned,
	}
	a.blocks = append(a.blocks, b)
	return b
}

// clone creates a new, empty block with the attributes of b.
func (a *arena) clone(b *Block) *Block {
	c := a.newBlock(b.class, b.stream, b.batch, b.size)
	c.reusable = b.reusable
	c.sameStreamOnly = b.sameStreamOnly
	c.retired = b.retired
	return c
}

func (a *arena) get(id BlockID) *Block {
	if id < 0 || int(id) >= len(a.blocks) {
		return nil
	}
	return a.blocks[id]
}

func (b *Block) addMember(m *Member, sp *span) {
	b.members = append(b.members, m)
	b.life.merge(sp)
	b.nodes.Add(uint32(m.Slot.Node))
}

// rebuild recomputes the lifetime and nodes of the block from its members.
func (b *Block) rebuild(spans map[SlotRef]*span) {
	b.life = &span{}
	b.nodes = roaring.New()
	for _, m := range b.members {
		b.life.merge(spans[m.Slot])
		b.nodes.Add(uint32(m.Slot.Node))
	}
}

// extent returns the number of bytes used by the members of the block.
func (b *Block) extent() int64 {
	var size int64
	for _, m := range b.members {
		if end := m.Offset + m.Size; end > size {
			size = end
		}
	}
	return size
}

// ID returns the ID of the block.
func (b *Block) ID() BlockID {
	return b.id
}

// Class returns the memory class of the block.
func (b *Block) Class() MemoryClass {
	return b.class
}

// Stream returns the stream the block was allocated on.
func (b *Block) Stream() StreamID {
	return b.stream
}

// Batch returns the batch label of the block.
func (b *Block) Batch() string {
	return b.batch
}

// Size returns the final size of the block once it is resolved, or its
// committed size otherwise.
func (b *Block) Size() int64 {
	if b.final > 0 {
		return b.final
	}
	return b.size
}

// Offset returns the resolved offset of the block. Offsets of zero-copy
// blocks are relative to their external buffer.
func (b *Block) Offset() int64 {
	return b.head
}

// Members returns the members of the block.
func (b *Block) Members() []Member {
	members := make([]Member, 0, len(b.members))
	for _, m := range b.members {
		members = append(members, *m)
	}
	return members
}

// Children returns the IDs of blocks nested in this one.
func (b *Block) Children() []BlockID {
	return slices.Clone(b.children)
}

// Parent returns the ID of the block this one is nested in, or NoBlock.
func (b *Block) Parent() BlockID {
	return b.parent
}

// Nodes returns the IDs of nodes with members in the block.
func (b *Block) Nodes() []int64 {
	nodes := make([]int64, 0, b.nodes.GetCardinality())
	it := b.nodes.Iterator()
	for it.HasNext() {
		nodes = append(nodes, int64(it.Next()))
	}
	return nodes
}

// IsTopLevel returns true if the block is not nested in another one.
func (b *Block) IsTopLevel() bool {
	return b.parent == NoBlock
}

// IsZeroCopy returns true if the block aliases an external buffer.
func (b *Block) IsZeroCopy() bool {
	return b.zeroCopy
}

// IsReuseOfZeroCopy returns true if the block is a zero-copy block reused
// by ordinary slots.
func (b *Block) IsReuseOfZeroCopy() bool {
	return b.reuseOfZeroCopy
}

// IsContinuous returns true if the block holds a continuous group.
func (b *Block) IsContinuous() bool {
	return b.continuous
}

// IsSameStreamOnly returns true if the block can be reused only on its own stream.
func (b *Block) IsSameStreamOnly() bool {
	return b.sameStreamOnly
}

// IsNoReuse returns true if the block holds a slot of a no-reuse node.
func (b *Block) IsNoReuse() bool {
	return b.noReuse
}

// IsReusable returns true if the block was handed over to the reuse pool.
func (b *Block) IsReusable() bool {
	return b.reusable
}

// String returns a string representation of the block.
func (b *Block) String() string {
	var flags []string
	for _, f := range []struct {
		set  bool
		name string
	}{
		{b.zeroCopy, "zero-copy"},
		{b.reuseOfZeroCopy, "reuse-of-zero-copy"},
		{b.continuous, "continuous"},
		{b.sameStreamOnly, "same-stream"},
		{b.noReuse, "no-reuse"},
		{b.reusable, "reusable"},
	} {
		if f.set {
			flags = append(flags, f.name)
		}
	}

	str := fmt.Sprintf("block #%d<%s@%d, size %s", b.id, b.class, b.stream,
		HumanReadableSize(b.Size()))
	if b.head != Unassigned {
		str += fmt.Sprintf(", offset %d", b.head)
	}
	if len(flags) > 0 {
		str += ", " + strings.Join(flags, ",")
	}
	return str + ">"
}

// String returns a string representation of the member.
func (m Member) String() string {
	str := fmt.Sprintf("%s+%d, size %d", m.Slot, m.Offset, m.Size)
	if m.GroupPos != NotInGroup {
		str += ", " + m.GroupPos.String() + " in group"
	}
	if m.Forever {
		str += ", forever"
	}
	return str
}
