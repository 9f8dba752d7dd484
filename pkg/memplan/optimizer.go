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
	"cmp"
	"slices"
)

// nestItem is a block which may absorb other blocks as children.
type nestItem struct {
	block     *Block
	depth     int
	ancestors []*Block // the block itself and all blocks it is nested in
}

// nest reduces the footprint of the plan by nesting blocks into larger
// blocks with members of disjoint lifetime.
func (r *run) nest() error {
	if !r.opts.reuse || !r.opts.lifetimeReuse {
		return nil
	}

	var order []*Block
	for _, b := range r.arena.blocks {
		if r.isNestable(b) {
			order = append(order, b)
		}
	}
	slices.SortFunc(order, r.compareForNesting)

	nested := 0
	for i := 0; i < len(order); i++ {
		if order[i].parent != NoBlock {
			continue
		}

		worklist := []*nestItem{{block: order[i], ancestors: []*Block{order[i]}}}
		for len(worklist) > 0 {
			item := worklist[0]
			worklist = worklist[1:]

			if item.depth >= r.opts.maxDepth {
				continue
			}

			for j := i + 1; j < len(order); j++ {
				child, clone, err := r.tryNest(item, order[j])
				if err != nil {
					return err
				}
				if clone != nil {
					pos := i + 1 + r.sortedPos(order[i+1:], clone)
					order = slices.Insert(order, pos, clone)
					if pos <= j {
						j++
					}
				}
				if child == nil {
					continue
				}

				nested++
				worklist = append(worklist, &nestItem{
					block:     child,
					depth:     item.depth + 1,
					ancestors: append(slices.Clone(item.ancestors), child),
				})
			}
		}
	}

	if log.DebugEnabled() {
		log.Debug("graph %q: nested %d blocks", r.g.Name, nested)
	}

	return nil
}

func (r *run) isNestable(b *Block) bool {
	return b.parent == NoBlock && !b.zeroCopy && !b.continuous && !b.noReuse
}

// tryNest tries to nest candidate in the block of item. Members of the
// candidate which cannot be nested are moved into a clone of the candidate.
func (r *run) tryNest(item *nestItem, c *Block) (*Block, *Block, error) {
	p := item.block

	if c.parent != NoBlock || len(c.children) > 0 || c == p {
		return nil, nil, nil
	}
	if c.stream != p.stream || c.class != p.class || c.batch != p.batch {
		return nil, nil, nil
	}
	if !r.isNestable(c) {
		return nil, nil, nil
	}

	used := int64(0)
	for _, id := range p.children {
		used += r.arena.get(id).size
	}
	if used+c.size > p.size {
		if details.DebugEnabled() {
			details.Debug("%s: not worth nesting in %s (%d bytes free)", c, p, p.size-used)
		}
		return nil, nil, nil
	}

	var (
		owners   []int
		byOwner  = map[int][]*Member{}
		crossing = map[int]bool{}
	)
	for _, m := range c.members {
		if _, ok := byOwner[m.owner]; !ok {
			owners = append(owners, m.owner)
		}
		byOwner[m.owner] = append(byOwner[m.owner], m)
	}

	keep := 0
	for _, o := range owners {
		if r.crossesAny(byOwner[o], item.ancestors) {
			crossing[o] = true
		} else {
			keep++
		}
	}

	if keep == 0 {
		return nil, nil, nil
	}

	var clone *Block
	if keep < len(owners) {
		var err error
		if clone, err = r.split(c, crossing); err != nil {
			return nil, nil, err
		}
	}

	c.parent = p.id
	p.children = append(p.children, c.id)

	if details.DebugEnabled() {
		details.Debug("nested %s in %s", c, p)
		if clone != nil {
			details.Debug("  crossing members moved to %s", clone)
		}
	}

	return c, clone, nil
}

// split moves members of crossing owners from b into a new block.
func (r *run) split(b *Block, crossing map[int]bool) (*Block, error) {
	var (
		clone = r.arena.clone(b)
		kept  []*Member
		size  int64
	)

	for _, m := range b.members {
		if !crossing[m.owner] {
			kept = append(kept, m)
			continue
		}
		clone.members = append(clone.members, m)
		r.placed[m.Slot].block = clone.id
		if end := m.Offset + m.Size; end > size {
			size = end
		}
	}

	committed, err := r.opts.commit(size)
	if err != nil {
		return nil, err
	}

	clone.size = committed
	b.members = kept
	b.rebuild(r.an.spans)
	clone.rebuild(r.an.spans)

	for _, m := range clone.members {
		clone.noReuse = clone.noReuse || r.an.nodes[m.Slot.Node].NoReuse
	}

	return clone, nil
}

// crossesAny returns true if any of the members has a lifetime which is
// not disjoint from the members of the given blocks.
func (r *run) crossesAny(members []*Member, blocks []*Block) bool {
	for _, b := range blocks {
		for _, mb := range b.members {
			for _, m := range members {
				if !r.disjoint(mb, m) {
					return true
				}
			}
		}
	}
	return false
}

// disjoint returns true if one of the members is known to be dead before
// the other one starts, and the latter may take over the memory of the
// former.
func (r *run) disjoint(m1, m2 *Member) bool {
	var (
		sg  = r.an.sg
		sp1 = r.an.spans[m1.Slot]
		sp2 = r.an.spans[m2.Slot]
	)

	if sp1.precedes(sp2.begin(), sg, r.an.inPlace(m2.Slot)) {
		return r.an.isPreReusable(m1.Slot) && r.an.isPostReusable(m2.Slot)
	}
	if sp2.precedes(sp1.begin(), sg, r.an.inPlace(m1.Slot)) {
		return r.an.isPreReusable(m2.Slot) && r.an.isPostReusable(m1.Slot)
	}

	return false
}

// compareForNesting orders blocks by decreasing size, then by increasing
// begin of the earliest member, then by ID.
func (r *run) compareForNesting(b1, b2 *Block) int {
	if diff := cmp.Compare(b2.size, b1.size); diff != 0 {
		return diff
	}
	if diff := cmp.Compare(r.firstBegin(b1), r.firstBegin(b2)); diff != 0 {
		return diff
	}
	return cmp.Compare(b1.id, b2.id)
}

func (r *run) firstBegin(b *Block) int64 {
	first := int64(-1)
	for _, m := range b.members {
		if id := r.an.spans[m.Slot].begin().id; first < 0 || id < first {
			first = id
		}
	}
	return first
}

// sortedPos returns the position of b before the first block ordered after
// it. Splits may leave blocks out of order.
func (r *run) sortedPos(blocks []*Block, b *Block) int {
	for i, o := range blocks {
		if r.compareForNesting(b, o) < 0 {
			return i
		}
	}
	return len(blocks)
}
