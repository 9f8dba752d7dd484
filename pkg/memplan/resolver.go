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
	"slices"
)

// resolve computes the final size and offset of all blocks and the
// offsets of all slots. Slots are updated only when the plan is applied.
func (r *run) resolve() (*Plan, error) {
	order := r.postOrder()

	for _, b := range order {
		size := max(b.size, b.extent())

		var sum int64
		for _, id := range b.children {
			c := r.arena.get(id)
			if sum > math.MaxInt64-c.final {
				return nil, fmt.Errorf("%w: %w: children of %s", ErrMalformedGraph, ErrSizeOverflow, b)
			}
			sum += c.final
		}

		final, err := r.opts.align(max(size, sum))
		if err != nil {
			return nil, err
		}
		b.final = final
	}

	cursor := map[MemoryClass]int64{}
	for _, b := range r.arena.blocks {
		if b.parent != NoBlock {
			continue
		}
		if b.zeroCopy {
			b.head = 0
			continue
		}
		head := cursor[b.class]
		if head > math.MaxInt64-b.final {
			return nil, fmt.Errorf("%w: %w: laying out %s", ErrMalformedGraph, ErrSizeOverflow, b)
		}
		b.head = head
		cursor[b.class] = head + b.final
	}

	for i := len(order) - 1; i >= 0; i-- {
		b := order[i]
		head := b.head
		for _, id := range b.children {
			c := r.arena.get(id)
			c.head = head
			head += c.final
		}
	}

	plan := &Plan{
		graph:   r.g,
		opts:    *r.opts,
		an:      r.an,
		arena:   r.arena,
		placed:  r.placed,
		offsets: make(map[SlotRef]int64, len(r.placed)),
		totals:  make(map[MemoryClass]*Totals),
	}

	for ref, p := range r.placed {
		plan.offsets[ref] = r.arena.get(p.block).head + p.member.Offset
	}

	r.an.g.ForeachSlot(func(_ *Node, ref SlotRef, _ *Slot) bool {
		if r.an.zeroMem[ref] {
			plan.zeroMem = append(plan.zeroMem, ref)
		}
		return ForeachMore
	})

	for _, c := range r.opts.classes.Slice() {
		t, err := r.totals(c, cursor[c])
		if err != nil {
			return nil, err
		}
		plan.totals[c] = t
	}

	if log.DebugEnabled() {
		for _, c := range r.opts.classes.Slice() {
			log.Debug("graph %q: %s", r.g.Name, plan.totals[c])
		}
	}

	return plan, nil
}

// postOrder returns all blocks with children before their parents.
func (r *run) postOrder() []*Block {
	var (
		order = make([]*Block, 0, len(r.arena.blocks))
		stack []*Block
	)

	for _, b := range r.arena.blocks {
		if b.parent != NoBlock {
			continue
		}
		stack = append(stack[:0], b)
		var pre []*Block
		for len(stack) > 0 {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			pre = append(pre, top)
			for _, id := range top.children {
				stack = append(stack, r.arena.get(id))
			}
		}
		slices.Reverse(pre)
		order = append(order, pre...)
	}

	return order
}

// totals calculates the totals for a memory class.
func (r *run) totals(class MemoryClass, peak int64) (*Totals, error) {
	t := &Totals{
		Class: class,
		Peak:  peak,
	}

	for _, b := range r.arena.blocks {
		if b.class != class {
			continue
		}
		t.Slots += len(b.members)
		switch {
		case b.parent != NoBlock:
			t.Nested++
		case b.zeroCopy:
			t.ZeroCopy += b.final
		default:
			t.Blocks++
			if !b.reusable {
				t.NonReusable += b.final
			}
		}
	}

	lower, err := r.theoreticalMin(class)
	if err != nil {
		return nil, err
	}
	t.TheoreticalMin = lower

	return t, nil
}

// theoreticalMin returns the largest amount of memory simultaneously live
// in execution order, as a lower bound of what reuse could achieve.
func (r *run) theoreticalMin(class MemoryClass) (int64, error) {
	type event struct {
		at    int64
		delta int64
	}

	var (
		events []event
		lastID int64
		seen   = map[int]bool{}
	)

	if cnt := len(r.g.Nodes); cnt > 0 {
		lastID = r.g.Nodes[cnt-1].ID
	}

	add := func(begin, end, size int64) {
		events = append(events, event{begin, size}, event{end, -size})
	}
	end := func(sp *span, begin int64) int64 {
		if sp.forever {
			return lastID + 1
		}
		last := begin
		for _, p := range sp.reads {
			last = max(last, p.id)
		}
		if r.an.firstReuse() && last > begin {
			return last
		}
		return last + 1
	}

	for _, b := range r.arena.blocks {
		if b.class != class || b.zeroCopy {
			continue
		}

		if b.continuous {
			sp := &span{}
			for _, m := range b.members {
				sp.merge(r.an.spans[m.Slot])
			}
			begin := sp.starts[0].id
			for _, s := range sp.starts {
				begin = min(begin, s.id)
			}
			add(begin, end(sp, begin), b.size)
			continue
		}

		for _, m := range b.members {
			if m.owner >= 0 && seen[m.owner] {
				continue
			}
			seen[m.owner] = true

			var (
				sp    = r.an.spans[m.Slot]
				begin = sp.begin().id
				stop  = end(sp, begin)
				size  = m.Size
			)
			if m.owner >= 0 {
				sym := r.an.symbols[m.owner]
				sp = &span{}
				for _, ref := range sym.members {
					if s, ok := r.an.spans[ref]; ok {
						sp.merge(s)
					}
				}
				stop = end(sp, begin)
				size = sym.size
			}

			committed, err := r.opts.align(size)
			if err != nil {
				return 0, err
			}
			add(begin, stop, committed)
		}
	}

	slices.SortFunc(events, func(e1, e2 event) int {
		if e1.at != e2.at {
			if e1.at < e2.at {
				return -1
			}
			return 1
		}
		if e1.delta < e2.delta {
			return -1
		}
		if e1.delta > e2.delta {
			return 1
		}
		return 0
	})

	var live, peak int64
	for _, e := range events {
		live += e.delta
		peak = max(peak, live)
	}

	return peak, nil
}
