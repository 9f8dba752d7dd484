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
)

// run is the state of a single planning run.
type run struct {
	opts     *options
	g        *Graph
	an       *analysis
	arena    *arena
	pool     *reusePool
	pending  []*Block
	touched  []*Block
	placed   map[SlotRef]*placement
	reserved map[SlotRef]bool
	wsOwner  int
}

// placement is the block and member of a slot.
type placement struct {
	block  BlockID
	member *Member
}

func newRun(opts *options, an *analysis) *run {
	return &run{
		opts:     opts,
		g:        an.g,
		an:       an,
		arena:    &arena{},
		pool:     newReusePool(),
		placed:   make(map[SlotRef]*placement),
		reserved: make(map[SlotRef]bool),
	}
}

// allocate assigns a block to every slot occupying memory, processing
// nodes in execution order.
func (r *run) allocate() error {
	for _, n := range r.g.Nodes {
		r.drainPending()
		r.touched = r.touched[:0]

		if r.an.firstReuse() {
			if err := r.allocateOutputs(n, true); err != nil {
				return err
			}
			r.releaseInputs(n)
			if err := r.allocateOutputs(n, false); err != nil {
				return err
			}
			if err := r.allocateWorkspaces(n); err != nil {
				return err
			}
		} else {
			if err := r.allocateOutputs(n, false); err != nil {
				return err
			}
			if err := r.allocateWorkspaces(n); err != nil {
				return err
			}
			r.releaseInputs(n)
		}

		r.settle()
	}

	r.drainPending()

	if log.DebugEnabled() {
		log.Debug("graph %q: allocated %d blocks, %d left in reuse pool",
			r.g.Name, len(r.arena.blocks), r.pool.len())
	}

	return nil
}

// allocateOutputs allocates the outputs of the node. With aliasedOnly
// only outputs attaching to an existing block are handled.
func (r *run) allocateOutputs(n *Node, aliasedOnly bool) error {
	for i := range n.Outputs {
		ref := OutputRef(n.ID, i)
		if r.an.zeroMem[ref] {
			continue
		}
		if _, ok := r.placed[ref]; ok {
			continue
		}

		sym := r.an.symOf[ref]

		if sym.block != NoBlock {
			r.attach(ref, sym, r.arena.get(sym.block))
			continue
		}
		if aliasedOnly {
			continue
		}

		var (
			b   *Block
			err error
		)

		switch {
		case sym.group >= 0:
			b, err = r.planGroup(r.an.groups[sym.group], n)
		case sym.zeroCopy:
			b, err = r.zeroCopyBlock(sym, n)
		default:
			b, err = r.getBlock(n, sym.class, sym.size, sym.post, r.an.inPlace(ref))
		}
		if err != nil {
			return fmt.Errorf("failed to allocate %s of node %s: %w", ref, n, err)
		}

		if sym.group < 0 {
			sym.block = b.id
		}
		r.attach(ref, sym, b)
	}

	return nil
}

// allocateWorkspaces allocates the workspaces of the node. Workspaces
// live only during the execution of the node.
func (r *run) allocateWorkspaces(n *Node) error {
	for i, s := range n.Workspaces {
		ref := WorkspaceRef(n.ID, i)
		if r.an.zeroMem[ref] {
			continue
		}

		b, err := r.getBlock(n, s.Class, s.Size, r.an.isPostReusable(ref), r.an.inPlace(ref))
		if err != nil {
			return fmt.Errorf("failed to allocate %s of node %s: %w", ref, n, err)
		}

		r.wsOwner--
		m := &Member{
			Slot:        ref,
			Stream:      n.Stream,
			Size:        s.Size,
			NoAlignSize: s.alignSize(),
			owner:       r.wsOwner,
		}
		b.addMember(m, r.an.spans[ref])
		b.noReuse = b.noReuse || n.NoReuse
		r.placed[ref] = &placement{block: b.id, member: m}
		r.touch(b)

		if details.DebugEnabled() {
			details.Debug("  %s => %s", m, b)
		}
	}

	return nil
}

// getBlock returns a reused or a new block for a request.
func (r *run) getBlock(n *Node, class MemoryClass, size int64, post, inPlace bool) (*Block, error) {
	committed, err := r.opts.commit(size)
	if err != nil {
		return nil, err
	}

	if post && r.opts.reuse {
		req := &request{
			class:   class,
			stream:  n.Stream,
			size:    committed,
			begin:   point{n.Stream, n.ID},
			inPlace: inPlace,
		}
		if b := r.pool.take(r, req); b != nil {
			b.released = false
			if b.zeroCopy {
				b.reuseOfZeroCopy = true
			}
			if details.DebugEnabled() {
				details.Debug("node %s reuses %s", n, b)
			}
			return b, nil
		}
	}

	b := r.arena.newBlock(class, n.Stream, n.Batch, committed)
	if details.DebugEnabled() {
		details.Debug("node %s allocates new %s", n, b)
	}

	return b, nil
}

// zeroCopyBlock creates a block aliasing an external buffer.
func (r *run) zeroCopyBlock(sym *symbol, n *Node) (*Block, error) {
	size, err := r.opts.align(sym.size)
	if err != nil {
		return nil, err
	}

	b := r.arena.newBlock(sym.class, n.Stream, n.Batch, size)
	b.zeroCopy = true

	return b, nil
}

// attach adds the slot as a member to the block of its symbol.
func (r *run) attach(ref SlotRef, sym *symbol, b *Block) {
	s := r.an.slot(ref)
	m := &Member{
		Slot:        ref,
		Stream:      r.an.nodes[ref.Node].Stream,
		Size:        s.Size,
		NoAlignSize: s.alignSize(),
		Offset:      sym.offset,
		Forever:     sym.forever,
		owner:       sym.id,
	}

	if grp, ok := r.an.groupOf[ref]; ok {
		switch ref {
		case grp.slots[0]:
			m.GroupPos = GroupFirst
		case grp.slots[len(grp.slots)-1]:
			m.GroupPos = GroupLast
		default:
			m.GroupPos = GroupInterior
		}
	}

	b.addMember(m, r.an.spans[ref])
	b.refs += len(r.an.consumers[ref])
	if r.reserved[ref] {
		delete(r.reserved, ref)
		b.refs--
	}
	b.noReuse = b.noReuse || sym.noReuse
	b.sameStreamOnly = b.sameStreamOnly || sym.stream

	r.placed[ref] = &placement{block: b.id, member: m}
	r.touch(b)

	if details.DebugEnabled() {
		details.Debug("  %s => %s", m, b)
	}
}

func (r *run) touch(b *Block) {
	for _, t := range r.touched {
		if t == b {
			return
		}
	}
	r.touched = append(r.touched, b)
}

// releaseInputs drops the references of the node to the blocks of its inputs.
func (r *run) releaseInputs(n *Node) {
	cnt := len(n.Inputs)
	for i := range cnt {
		idx := i
		if r.opts.releaseOrder == ReverseInputOrder {
			idx = cnt - 1 - i
		}

		in := n.Inputs[idx]
		p, ok := r.placed[OutputRef(in.Node, in.Output)]
		if !ok {
			continue
		}

		b := r.arena.get(p.block)
		b.refs--
		if b.refs == 0 {
			r.release(b)
		}
	}
}

// settle puts blocks of the current node without references on the
// pending list.
func (r *run) settle() {
	for _, b := range r.touched {
		if b.refs == 0 && !b.released {
			r.pending = append(r.pending, b)
		}
	}
}

// drainPending releases blocks of the previous node without references.
func (r *run) drainPending() {
	for _, b := range r.pending {
		if b.refs == 0 && !b.released {
			r.release(b)
		}
	}
	r.pending = r.pending[:0]
}

// release hands an unused block to the reuse pool, or retires it if it
// cannot be reused.
func (r *run) release(b *Block) {
	b.released = true

	if r.isReusable(b) {
		b.reusable = true
		r.pool.put(b)
		if details.DebugEnabled() {
			details.Debug("  released %s (%s)", b, b.life)
		}
		return
	}

	b.retired = true
	if details.DebugEnabled() {
		details.Debug("  retired %s", b)
	}
}

func (r *run) isReusable(b *Block) bool {
	if !r.opts.reuse || b.noReuse || b.life.forever {
		return false
	}
	if b.zeroCopy && !r.opts.reuseZeroCopy {
		return false
	}
	for _, m := range b.members {
		if !r.an.isPreReusable(m.Slot) {
			return false
		}
	}
	return true
}
