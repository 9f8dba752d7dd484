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

package graphspec

import (
	"slices"

	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"

	"github.com/streamgraph/memplan/pkg/memplan"
)

// Report summarizes a memory plan.
type Report struct {
	Graph   string        `json:"graph"`
	Streams []int         `json:"streams"`
	Totals  []Totals      `json:"totals"`
	Blocks  []BlockReport `json:"blocks,omitempty"`
	Slots   []SlotReport  `json:"slots"`
}

// Totals are the totals of a memory class.
type Totals struct {
	Class          string `json:"class"`
	Peak           int64  `json:"peak"`
	TheoreticalMin int64  `json:"theoreticalMin"`
	NonReusable    int64  `json:"nonReusable"`
	ZeroCopy       int64  `json:"zeroCopy"`
	Blocks         int    `json:"blocks"`
	Nested         int    `json:"nested"`
}

// BlockReport describes a planned block.
type BlockReport struct {
	ID       int      `json:"id"`
	Class    string   `json:"class"`
	Stream   int      `json:"stream"`
	Offset   int64    `json:"offset"`
	Size     int64    `json:"size"`
	Parent   *int     `json:"parent,omitempty"`
	Flags    []string `json:"flags,omitempty"`
	Members  []string `json:"members"`
	Children []int    `json:"children,omitempty"`
}

// SlotReport describes the placement of a slot.
type SlotReport struct {
	Slot     string `json:"slot"`
	Node     string `json:"node"`
	Class    string `json:"class,omitempty"`
	Size     int64  `json:"size"`
	Offset   int64  `json:"offset"`
	Block    *int   `json:"block,omitempty"`
	ZeroCopy bool   `json:"zeroCopy,omitempty"`
}

// NewReport creates a report of the plan. With withBlocks the block
// forest is included in the report.
func NewReport(plan *memplan.Plan, withBlocks bool) *Report {
	r := &Report{
		Graph: plan.Graph().Name,
	}

	for _, s := range plan.Graph().Streams().SortedMembers() {
		r.Streams = append(r.Streams, int(s))
	}

	for _, c := range plan.Classes() {
		t := plan.Totals(c)
		r.Totals = append(r.Totals, Totals{
			Class:          c.String(),
			Peak:           t.Peak,
			TheoreticalMin: t.TheoreticalMin,
			NonReusable:    t.NonReusable,
			ZeroCopy:       t.ZeroCopy,
			Blocks:         t.Blocks,
			Nested:         t.Nested,
		})
	}

	if withBlocks {
		plan.ForeachBlock(func(b *memplan.Block, _ int) bool {
			r.Blocks = append(r.Blocks, blockReport(b))
			return memplan.ForeachMore
		})
		slices.SortFunc(r.Blocks, func(b1, b2 BlockReport) int {
			return b1.ID - b2.ID
		})
	}

	plan.Graph().ForeachSlot(func(n *memplan.Node, ref memplan.SlotRef, s *memplan.Slot) bool {
		sr := SlotReport{
			Slot:   ref.String(),
			Node:   n.String(),
			Size:   s.Size,
			Offset: plan.Offset(ref),
		}
		if b := plan.BlockOf(ref); b != nil {
			id := int(b.ID())
			sr.Block = &id
			sr.Class = b.Class().String()
			sr.ZeroCopy = s.ZeroCopy
		}
		r.Slots = append(r.Slots, sr)
		return memplan.ForeachMore
	})

	return r
}

func blockReport(b *memplan.Block) BlockReport {
	br := BlockReport{
		ID:     int(b.ID()),
		Class:  b.Class().String(),
		Stream: int(b.Stream()),
		Offset: b.Offset(),
		Size:   b.Size(),
	}

	if p := b.Parent(); p != memplan.NoBlock {
		id := int(p)
		br.Parent = &id
	}
	for _, f := range []struct {
		set  bool
		name string
	}{
		{b.IsZeroCopy(), "zero-copy"},
		{b.IsReuseOfZeroCopy(), "reuse-of-zero-copy"},
		{b.IsContinuous(), "continuous"},
		{b.IsSameStreamOnly(), "same-stream"},
		{b.IsNoReuse(), "no-reuse"},
	} {
		if f.set {
			br.Flags = append(br.Flags, f.name)
		}
	}
	for _, m := range b.Members() {
		br.Members = append(br.Members, m.String())
	}
	for _, c := range b.Children() {
		br.Children = append(br.Children, int(c))
	}

	return br
}

// Marshal returns the report as YAML.
func (r *Report) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal plan report")
	}
	return data, nil
}
