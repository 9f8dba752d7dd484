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
	"fmt"
	"slices"

	"github.com/hashicorp/go-multierror"
)

// extent is the memory occupied by a slot.
type extent struct {
	ref    SlotRef
	owner  int
	offset int64
	end    int64
}

// Check verifies the plan. Every slot must occupy memory unless it was
// found to need none, slots with overlapping lifetimes must not share
// memory, slots of no-reuse nodes must not share memory with other nodes,
// and continuous groups must be contiguous.
func (p *Plan) Check() error {
	var merr *multierror.Error

	p.graph.ForeachSlot(func(n *Node, ref SlotRef, _ *Slot) bool {
		_, placed := p.placed[ref]
		if zero := p.an.zeroMem[ref]; zero == placed {
			merr = multierror.Append(merr, fmt.Errorf("slot %s of node %s: placed %v, zero-memory %v",
				ref, n, placed, zero))
		}
		return ForeachMore
	})

	type space struct {
		class MemoryClass
		block BlockID // zero-copy block or NoBlock for the arena
	}

	spaces := map[space][]*extent{}
	for ref, pl := range p.placed {
		var (
			b    = p.arena.get(pl.block)
			root = p.root(b)
			key  = space{class: b.class, block: NoBlock}
			offs = p.offsets[ref]
		)
		if root.zeroCopy {
			key.block = root.id
		}
		spaces[key] = append(spaces[key], &extent{
			ref:    ref,
			owner:  pl.member.owner,
			offset: offs,
			end:    offs + pl.member.Size,
		})
	}

	keys := make([]space, 0, len(spaces))
	for key := range spaces {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, func(k1, k2 space) int {
		if diff := cmp.Compare(k1.class, k2.class); diff != 0 {
			return diff
		}
		return cmp.Compare(k1.block, k2.block)
	})

	for _, key := range keys {
		merr = p.checkOverlap(merr, spaces[key])
	}

	merr = p.checkGroups(merr)

	if err := merr.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: graph %q: %w", ErrPolicyViolation, p.graph.Name, err)
	}

	return nil
}

// checkOverlap verifies slots sharing memory in a single address space.
func (p *Plan) checkOverlap(merr *multierror.Error, extents []*extent) *multierror.Error {
	slices.SortFunc(extents, func(e1, e2 *extent) int {
		if diff := cmp.Compare(e1.offset, e2.offset); diff != 0 {
			return diff
		}
		return compareSlotRefs(e1.ref, e2.ref)
	})

	var active []*extent
	for _, e := range extents {
		if e.end == e.offset {
			continue
		}

		active = slices.DeleteFunc(active, func(a *extent) bool {
			return a.end <= e.offset
		})

		for _, a := range active {
			if a.owner == e.owner {
				continue
			}
			if err := p.checkShared(a, e); err != nil {
				merr = multierror.Append(merr, err)
			}
		}

		active = append(active, e)
	}

	return merr
}

// checkShared verifies that two slots may share memory.
func (p *Plan) checkShared(e1, e2 *extent) error {
	var (
		n1 = p.an.nodes[e1.ref.Node]
		n2 = p.an.nodes[e2.ref.Node]
	)

	if n1 != n2 && (n1.NoReuse || n2.NoReuse) {
		return fmt.Errorf("slot %s of node %s shares memory with slot %s of node %s",
			e1.ref, n1, e2.ref, n2)
	}

	var (
		sg  = p.an.sg
		sp1 = p.an.spans[e1.ref]
		sp2 = p.an.spans[e2.ref]
	)

	if sp1.precedes(sp2.begin(), sg, p.an.inPlace(e2.ref)) ||
		sp2.precedes(sp1.begin(), sg, p.an.inPlace(e1.ref)) {
		return nil
	}

	return fmt.Errorf("live slots %s [%d, %d) and %s [%d, %d) overlap",
		e1.ref, e1.offset, e1.end, e2.ref, e2.offset, e2.end)
}

// checkGroups verifies the contiguity of continuous groups.
func (p *Plan) checkGroups(merr *multierror.Error) *multierror.Error {
	for _, grp := range p.an.groups {
		for i := 1; i < len(grp.slots); i++ {
			var (
				prev      = grp.slots[i-1]
				ref       = grp.slots[i]
				stride, _ = p.opts.align(p.an.slot(prev).alignSize())
			)
			if p.offsets[ref] != p.offsets[prev]+stride {
				merr = multierror.Append(merr, fmt.Errorf("group of node #%d: %s at %d, %s at %d, stride %d",
					grp.node, prev, p.offsets[prev], ref, p.offsets[ref], stride))
			}
		}
	}
	return merr
}
