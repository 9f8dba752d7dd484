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

// symbol is a set of output slots which alias each other and therefore
// share the same memory.
type symbol struct {
	id       int
	root     SlotRef   // first member, owner of the memory
	members  []SlotRef // all members in execution order
	class    MemoryClass
	size     int64 // largest real size of all members
	pre      bool  // memory may be handed over once dead
	post     bool  // may take over dead memory
	zeroCopy bool  // aliases an externally supplied buffer
	forever  bool  // lives until the end of the program
	noReuse  bool  // has a member of a no-reuse node
	stream   bool  // same-stream-only reuse
	group    int   // continuous group, or -1
	block    BlockID
	offset   int64 // offset of the symbol within its block
}

// unionFind builds symbols out of aliased slots.
type unionFind struct {
	index  map[SlotRef]int
	refs   []SlotRef
	parent []int
}

func newUnionFind() *unionFind {
	return &unionFind{
		index: make(map[SlotRef]int),
	}
}

func (u *unionFind) add(r SlotRef) int {
	if i, ok := u.index[r]; ok {
		return i
	}
	i := len(u.refs)
	u.index[r] = i
	u.refs = append(u.refs, r)
	u.parent = append(u.parent, i)
	return i
}

func (u *unionFind) find(i int) int {
	for u.parent[i] != i {
		u.parent[i] = u.parent[u.parent[i]]
		i = u.parent[i]
	}
	return i
}

// union joins the sets of the two slots, keeping the earlier root.
func (u *unionFind) union(r1, r2 SlotRef) {
	i1, i2 := u.find(u.add(r1)), u.find(u.add(r2))
	if i1 == i2 {
		return
	}
	if compareSlotRefs(u.refs[i1], u.refs[i2]) > 0 {
		i1, i2 = i2, i1
	}
	u.parent[i2] = i1
}

// symbols returns the resulting sets, ordered by their roots.
func (u *unionFind) symbols() []*symbol {
	byRoot := make(map[int]*symbol)
	for i, r := range u.refs {
		root := u.find(i)
		sym, ok := byRoot[root]
		if !ok {
			sym = &symbol{
				root:  u.refs[root],
				group: -1,
				block: NoBlock,
			}
			byRoot[root] = sym
		}
		sym.members = append(sym.members, r)
	}

	symbols := make([]*symbol, 0, len(byRoot))
	for _, sym := range byRoot {
		slices.SortFunc(sym.members, compareSlotRefs)
		symbols = append(symbols, sym)
	}
	slices.SortFunc(symbols, func(s1, s2 *symbol) int {
		return compareSlotRefs(s1.root, s2.root)
	})
	for id, sym := range symbols {
		sym.id = id
	}

	return symbols
}

// buildSymbols collects aliased outputs into symbols and derives the
// memory class, size, and reuse flags of each symbol.
func (an *analysis) buildSymbols() error {
	uf := newUnionFind()

	for _, n := range an.g.Nodes {
		for i, s := range n.Outputs {
			ref := OutputRef(n.ID, i)
			if an.zeroMem[ref] {
				continue
			}
			uf.add(ref)
			if s.RefInput != NoRefInput {
				in := n.Inputs[s.RefInput]
				src := OutputRef(in.Node, in.Output)
				if !an.zeroMem[src] {
					uf.union(src, ref)
				}
			}
		}
	}

	an.symbols = uf.symbols()
	an.symOf = make(map[SlotRef]*symbol, len(uf.refs))

	for _, sym := range an.symbols {
		if err := an.initSymbol(sym); err != nil {
			return err
		}
		for _, ref := range sym.members {
			an.symOf[ref] = sym
		}
	}

	return nil
}

func (an *analysis) initSymbol(sym *symbol) error {
	var (
		root  = an.slot(sym.root)
		nodes = map[int64]struct{}{}
	)

	sym.class = root.Class
	sym.pre = true
	sym.post = true

	for _, ref := range sym.members {
		var (
			n = an.nodes[ref.Node]
			s = an.slot(ref)
		)

		nodes[n.ID] = struct{}{}

		if s.Class != sym.class {
			return fmt.Errorf("%w: slot %s of class %s aliases %s of class %s",
				ErrPolicyViolation, ref, s.Class, sym.root, sym.class)
		}
		if s.Size > sym.size {
			sym.size = s.Size
		}

		switch n.Kind {
		case KindInput:
			if an.opts.zeroCopy {
				sym.zeroCopy = true
			}
			if !an.opts.zeroCopy || !an.opts.reuseZeroCopy {
				sym.pre = false
			}
		case KindMerge, KindIterator:
			sym.pre = false
			sym.post = false
		}

		if n.NoReuse {
			sym.noReuse = true
			sym.pre = false
			sym.post = false
		}
		if n.AtomicTarget {
			sym.post = false
			sym.stream = true
		}
		if s.Kind == SlotOutputDescriptor {
			sym.pre = false
		}

		for _, c := range an.consumers[ref] {
			if an.nodes[c].Kind == KindOutput {
				sym.forever = true
				sym.pre = false
				sym.post = false
				if an.opts.zeroCopy {
					sym.zeroCopy = true
				}
			}
		}
	}

	if sym.noReuse && len(nodes) > 1 {
		return fmt.Errorf("%w: slot %s of a no-reuse node is aliased by other nodes",
			ErrPolicyViolation, sym.root)
	}

	return nil
}
