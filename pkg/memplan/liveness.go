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
	"errors"
	"fmt"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hashicorp/go-multierror"
)

// analysis is the result of liveness analysis of a graph.
type analysis struct {
	g         *Graph
	opts      *options
	nodes     map[int64]*Node
	ids       *roaring.Bitmap
	streams   map[StreamID]*roaring.Bitmap
	consumers map[SlotRef][]int64
	zeroMem   map[SlotRef]bool
	sg        *streamGraph
	symbols   []*symbol
	symOf     map[SlotRef]*symbol
	groups    []*group
	groupOf   map[SlotRef]*group
	spans     map[SlotRef]*span
}

// span is the lifetime of a slot or a set of slots. Starts and reads
// hold the latest start and read per stream, sorted by stream.
type span struct {
	starts  []point
	reads   []point
	forever bool
}

// group is a set of slots which must be laid out contiguously.
type group struct {
	id    int
	node  int64 // node requiring contiguity
	slots []SlotRef
	block BlockID
}

func analyze(g *Graph, opts *options) (*analysis, error) {
	an := &analysis{
		g:         g,
		opts:      opts,
		nodes:     make(map[int64]*Node, len(g.Nodes)),
		ids:       roaring.New(),
		streams:   make(map[StreamID]*roaring.Bitmap),
		consumers: make(map[SlotRef][]int64),
		zeroMem:   make(map[SlotRef]bool),
		sg:        newStreamGraph(),
		groupOf:   make(map[SlotRef]*group),
		spans:     make(map[SlotRef]*span),
	}

	if err := an.validate(); err != nil {
		return nil, err
	}

	an.collectEdges()
	an.sg.closure()

	if err := an.buildSymbols(); err != nil {
		return nil, err
	}
	if err := an.buildGroups(); err != nil {
		return nil, err
	}

	an.buildSpans()

	if log.DebugEnabled() {
		log.Debug("graph %q: %d nodes on %d streams, %d symbols, %d continuous groups",
			g.Name, len(g.Nodes), an.sg.streams.Size(), len(an.symbols), len(an.groups))
	}

	return an, nil
}

// validate checks the graph for structural errors, collecting all of them.
func (an *analysis) validate() error {
	var (
		merr *multierror.Error
		prev = int64(-1)
	)

	for idx, n := range an.g.Nodes {
		if n == nil {
			merr = multierror.Append(merr, fmt.Errorf("node #%d of graph is nil", idx))
			continue
		}
		if n.ID < 0 || n.ID > MaxNodeID {
			merr = multierror.Append(merr, fmt.Errorf("node %s: invalid ID", n))
			continue
		}
		if n.ID <= prev {
			merr = multierror.Append(merr, fmt.Errorf("node %s: ID not increasing (previous #%d)",
				n, prev))
			continue
		}
		prev = n.ID

		for i, in := range n.Inputs {
			p, ok := an.nodes[in.Node]
			if !ok {
				merr = multierror.Append(merr, fmt.Errorf("node %s: input #%d refers to unknown node #%d",
					n, i, in.Node))
				continue
			}
			if in.Output < 0 || in.Output >= len(p.Outputs) {
				merr = multierror.Append(merr, fmt.Errorf("node %s: input #%d refers to invalid output %d of %s",
					n, i, in.Output, p))
			}
		}

		for _, c := range n.Control {
			if !an.hasNode(c) {
				merr = multierror.Append(merr, fmt.Errorf("node %s: control edge from unknown node #%d",
					n, c))
			}
		}

		for i, s := range n.Outputs {
			merr = an.validateSlot(merr, n, OutputRef(n.ID, i), s)
		}
		for i, s := range n.Workspaces {
			merr = an.validateSlot(merr, n, WorkspaceRef(n.ID, i), s)
		}

		an.nodes[n.ID] = n
		an.ids.Add(uint32(n.ID))
		bm, ok := an.streams[n.Stream]
		if !ok {
			bm = roaring.New()
			an.streams[n.Stream] = bm
			an.sg.streams.Add(n.Stream)
		}
		bm.Add(uint32(n.ID))
	}

	if err := merr.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: graph %q: %w", ErrMalformedGraph, an.g.Name, err)
	}

	return nil
}

func (an *analysis) validateSlot(merr *multierror.Error, n *Node, ref SlotRef, s *Slot) *multierror.Error {
	if s == nil {
		return multierror.Append(merr, fmt.Errorf("node %s: missing slot %s", n, ref))
	}
	if s.Size < 0 {
		merr = multierror.Append(merr, fmt.Errorf("node %s: slot %s has negative size %d",
			n, ref, s.Size))
	}
	if s.NoAlignSize < 0 || s.NoAlignSize > s.Size {
		merr = multierror.Append(merr, fmt.Errorf("node %s: slot %s has invalid unaligned size %d",
			n, ref, s.NoAlignSize))
	}
	if !s.Class.IsValid() || !an.opts.classes.Contains(s.Class) {
		merr = multierror.Append(merr, fmt.Errorf("node %s: slot %s: %w %s",
			n, ref, ErrInvalidClass, s.Class))
	}
	if ref.Workspace && s.Kind != SlotWorkspace || !ref.Workspace && s.Kind == SlotWorkspace {
		merr = multierror.Append(merr, fmt.Errorf("node %s: slot %s has wrong kind %s",
			n, ref, s.Kind))
	}
	if s.RefInput != NoRefInput {
		if ref.Workspace {
			merr = multierror.Append(merr, fmt.Errorf("node %s: workspace %s aliases an input",
				n, ref))
		} else if s.RefInput < 0 || s.RefInput >= len(n.Inputs) {
			merr = multierror.Append(merr, fmt.Errorf("node %s: slot %s aliases invalid input %d",
				n, ref, s.RefInput))
		}
	}
	return merr
}

func (an *analysis) hasNode(id int64) bool {
	return id >= 0 && id <= MaxNodeID && an.ids.Contains(uint32(id))
}

func (an *analysis) slot(r SlotRef) *Slot {
	return an.nodes[r.Node].Slot(r)
}

// collectEdges records consumers of outputs, zero-memory slots, and the
// dependencies between streams.
func (an *analysis) collectEdges() {
	for _, n := range an.g.Nodes {
		for _, in := range n.Inputs {
			src := OutputRef(in.Node, in.Output)
			an.consumers[src] = append(an.consumers[src], n.ID)
			if p := an.nodes[in.Node]; p.Stream != n.Stream {
				an.sg.addEdge(p.Stream, n.Stream, p.ID, n.ID)
			}
		}
		for _, c := range n.Control {
			if p := an.nodes[c]; p.Stream != n.Stream {
				an.sg.addEdge(p.Stream, n.Stream, p.ID, n.ID)
			}
		}

		outside := n.Kind == KindConstant || n.Kind == KindAtomicClear || n.Kind == KindOutput
		for i, s := range n.Outputs {
			ref := OutputRef(n.ID, i)
			switch {
			case s.Size == 0, outside:
				an.zeroMem[ref] = true
			case s.RefInput != NoRefInput:
				in := n.Inputs[s.RefInput]
				if an.zeroMem[OutputRef(in.Node, in.Output)] {
					an.zeroMem[ref] = true
				}
			}
		}
		for i, s := range n.Workspaces {
			if s.Size == 0 {
				an.zeroMem[WorkspaceRef(n.ID, i)] = true
			}
		}
	}
}

// buildGroups collects the continuous groups of the graph.
func (an *analysis) buildGroups() error {
	var merr *multierror.Error

	for _, n := range an.g.Nodes {
		if n.ContinuousOutput {
			var slots []SlotRef
			for i := range n.Outputs {
				if ref := OutputRef(n.ID, i); !an.zeroMem[ref] {
					slots = append(slots, ref)
				}
			}
			merr = an.addGroup(merr, n, slots)
		}
		if n.ContinuousInput {
			var slots []SlotRef
			for _, in := range n.Inputs {
				if ref := OutputRef(in.Node, in.Output); !an.zeroMem[ref] {
					slots = append(slots, ref)
				}
			}
			merr = an.addGroup(merr, n, slots)
		}
	}

	if err := merr.ErrorOrNil(); err != nil {
		if errors.Is(err, ErrPolicyViolation) {
			return err
		}
		return fmt.Errorf("%w: inconsistent continuous groups: %w", ErrMalformedGraph, err)
	}

	return nil
}

func (an *analysis) addGroup(merr *multierror.Error, n *Node, slots []SlotRef) *multierror.Error {
	if len(slots) < 2 {
		return merr
	}

	var (
		grp = &group{
			id:    len(an.groups),
			node:  n.ID,
			slots: slots,
			block: NoBlock,
		}
		class   = an.slot(slots[0]).Class
		syms    = map[int]struct{}{}
		nodes   = map[int64]struct{}{}
		noReuse = false
	)

	for _, ref := range slots {
		sym := an.symOf[ref]
		if other, ok := an.groupOf[ref]; ok {
			return multierror.Append(merr, fmt.Errorf("node %s: slot %s already in group of node #%d",
				n, ref, other.node))
		}
		if sym.root != ref {
			return multierror.Append(merr, fmt.Errorf("node %s: continuous slot %s aliases %s",
				n, ref, sym.root))
		}
		if _, ok := syms[sym.id]; ok {
			return multierror.Append(merr, fmt.Errorf("node %s: slot %s appears twice in group",
				n, ref))
		}
		if an.slot(ref).Class != class {
			return multierror.Append(merr, fmt.Errorf("node %s: group spans memory classes %s and %s",
				n, class, an.slot(ref).Class))
		}
		syms[sym.id] = struct{}{}
		nodes[ref.Node] = struct{}{}
		noReuse = noReuse || sym.noReuse
	}

	if noReuse && len(nodes) > 1 {
		return multierror.Append(merr, fmt.Errorf("%w: node %s: group shares memory with a no-reuse node",
			ErrPolicyViolation, n))
	}

	for _, ref := range slots {
		sym := an.symOf[ref]
		sym.group = grp.id
		sym.zeroCopy = false
		an.groupOf[ref] = grp
	}
	an.groups = append(an.groups, grp)

	return merr
}

// buildSpans computes the lifetime of every slot occupying memory.
func (an *analysis) buildSpans() {
	an.g.ForeachSlot(func(n *Node, ref SlotRef, _ *Slot) bool {
		if an.zeroMem[ref] {
			return ForeachMore
		}

		sp := &span{}
		sp.addStart(point{n.Stream, n.ID})
		for _, c := range an.consumers[ref] {
			sp.addRead(point{an.nodes[c].Stream, c})
		}
		if sym, ok := an.symOf[ref]; ok && sym.forever {
			sp.forever = true
		}
		an.spans[ref] = sp

		return ForeachMore
	})
}

func (an *analysis) firstReuse() bool {
	return an.opts.convention == LastReleaseFirstReuse
}

// inPlace returns true if the slot may take over memory of slots its own
// node reads. Workspaces are written while the inputs are read, so they
// never can.
func (an *analysis) inPlace(ref SlotRef) bool {
	return an.firstReuse() && !ref.Workspace
}

// isPostReusable returns true if the slot can use memory which was used by
// another slot earlier.
func (an *analysis) isPostReusable(ref SlotRef) bool {
	if sym, ok := an.symOf[ref]; ok {
		return sym.post
	}
	n := an.nodes[ref.Node]
	return !n.NoReuse && n.Kind != KindMerge && n.Kind != KindIterator
}

// isPreReusable returns true if the memory of the slot can be used by
// another slot once the slot is dead.
func (an *analysis) isPreReusable(ref SlotRef) bool {
	if sym, ok := an.symOf[ref]; ok {
		return sym.pre
	}
	return an.isPostReusable(ref)
}

func addPoint(points []point, p point) []point {
	i, ok := slices.BinarySearchFunc(points, p.stream, func(e point, s StreamID) int {
		return e.stream - s
	})
	if ok {
		if p.id > points[i].id {
			points[i].id = p.id
		}
		return points
	}
	return slices.Insert(points, i, p)
}

func (sp *span) addStart(p point) {
	sp.starts = addPoint(sp.starts, p)
}

func (sp *span) addRead(p point) {
	sp.reads = addPoint(sp.reads, p)
}

func (sp *span) merge(o *span) {
	for _, p := range o.starts {
		sp.addStart(p)
	}
	for _, p := range o.reads {
		sp.addRead(p)
	}
	sp.forever = sp.forever || o.forever
}

func (sp *span) clone() *span {
	return &span{
		starts:  slices.Clone(sp.starts),
		reads:   slices.Clone(sp.reads),
		forever: sp.forever,
	}
}

// precedes returns true if the span is known to end before b starts. With
// inPlace a read by b itself does not extend the span past b.
func (sp *span) precedes(b point, sg *streamGraph, inPlace bool) bool {
	if sp.forever {
		return false
	}
	for _, s := range sp.starts {
		if !sg.happensBefore(s, b) {
			return false
		}
	}
	for _, r := range sp.reads {
		if inPlace && r == b {
			continue
		}
		if !sg.happensBefore(r, b) {
			return false
		}
	}
	return true
}

// begin returns the start of a single slot span.
func (sp *span) begin() point {
	return sp.starts[0]
}

func (sp *span) String() string {
	str := ""
	if sp.forever {
		str = "forever, "
	}
	return fmt.Sprintf("%sstarts %v, reads %v", str, sp.starts, sp.reads)
}

func (p point) String() string {
	return fmt.Sprintf("#%d@%d", p.id, p.stream)
}
