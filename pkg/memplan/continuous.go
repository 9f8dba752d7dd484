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
)

// groupLayout returns the offsets of the slots of a continuous group and
// the total size of the group.
func (r *run) groupLayout(grp *group) ([]int64, int64, error) {
	var (
		offsets = make([]int64, len(grp.slots))
		total   int64
		last    = len(grp.slots) - 1
	)

	for i, ref := range grp.slots {
		var (
			s   = r.an.slot(ref)
			sym = r.an.symOf[ref]
		)

		stride, err := r.opts.align(s.alignSize())
		if err != nil {
			return nil, 0, err
		}

		if i < last && sym.size > stride {
			return nil, 0, fmt.Errorf("%w: slot %s of size %d exceeds group stride %d",
				ErrMalformedGraph, ref, sym.size, stride)
		}

		offsets[i] = total
		if total > math.MaxInt64-stride {
			return nil, 0, fmt.Errorf("%w: %w: continuous group of node #%d",
				ErrMalformedGraph, ErrSizeOverflow, grp.node)
		}
		total += stride

		if i == last {
			tail, err := r.opts.align(sym.size)
			if err != nil {
				return nil, 0, err
			}
			if end := offsets[i] + tail; end > total {
				total = end
			}
		}
	}

	return offsets, total, nil
}

// planGroup allocates a single block for all slots of a continuous group.
// Every slot of the group is reserved a reference to the block until the
// slot is attached to it.
func (r *run) planGroup(grp *group, n *Node) (*Block, error) {
	offsets, total, err := r.groupLayout(grp)
	if err != nil {
		return nil, err
	}

	var (
		first = r.an.slot(grp.slots[0])
		post  = true
	)

	for _, ref := range grp.slots {
		post = post && r.an.symOf[ref].post
	}

	b, err := r.getBlock(n, first.Class, total, post, r.an.firstReuse())
	if err != nil {
		return nil, err
	}
	b.continuous = true
	grp.block = b.id

	for i, ref := range grp.slots {
		sym := r.an.symOf[ref]
		sym.block = b.id
		sym.offset = offsets[i]
		r.reserved[ref] = true
		b.refs++
	}

	if log.DebugEnabled() {
		log.Debug("continuous group of node #%d: %d slots in %s, offsets %v",
			grp.node, len(grp.slots), b, offsets)
	}

	return b, nil
}
