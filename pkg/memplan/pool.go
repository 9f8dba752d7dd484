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
	"slices"
)

// reusePool holds released blocks available for reuse, per memory class
// and stream in the order of release. Released zero-copy blocks are kept
// in a separate pool per memory class.
type reusePool struct {
	blocks   map[poolKey][]*Block
	zeroCopy map[MemoryClass][]*Block
	seq      int
}

type poolKey struct {
	class  MemoryClass
	stream StreamID
}

// request is a lookup for a reusable block.
type request struct {
	class  MemoryClass
	stream StreamID
	size   int64
	begin  point
	// inPlace lets the request take over memory its own node still reads.
	inPlace bool
}

func newReusePool() *reusePool {
	return &reusePool{
		blocks:   make(map[poolKey][]*Block),
		zeroCopy: make(map[MemoryClass][]*Block),
	}
}

// put adds a released block to the pool.
func (p *reusePool) put(b *Block) {
	b.seq = p.seq
	p.seq++
	if b.zeroCopy {
		p.zeroCopy[b.class] = append(p.zeroCopy[b.class], b)
		return
	}
	key := poolKey{b.class, b.stream}
	p.blocks[key] = append(p.blocks[key], b)
}

// take looks up, removes, and returns a block eligible for the request.
func (p *reusePool) take(r *run, req *request) *Block {
	key := poolKey{req.class, req.stream}
	if b := p.takeFrom(r, req, key); b != nil {
		return b
	}

	if !r.opts.sameStreamReuse {
		for _, key := range p.foreignKeys(req) {
			if b := p.takeFrom(r, req, key); b != nil {
				return b
			}
		}
	}

	if r.opts.reuseZeroCopy {
		blocks := p.zeroCopy[req.class]
		if i := p.find(r, req, blocks); i >= 0 {
			b := blocks[i]
			p.zeroCopy[req.class] = slices.Delete(blocks, i, i+1)
			return b
		}
	}

	return nil
}

func (p *reusePool) takeFrom(r *run, req *request, key poolKey) *Block {
	blocks := p.blocks[key]
	i := p.find(r, req, blocks)
	if i < 0 {
		return nil
	}

	b := blocks[i]
	p.blocks[key] = slices.Delete(blocks, i, i+1)

	return b
}

// find returns the index of the eligible block picked by the reuse order.
func (p *reusePool) find(r *run, req *request, blocks []*Block) int {
	eligible := func(b *Block) bool {
		if b.size != req.size {
			return false
		}
		if b.sameStreamOnly && b.stream != req.stream {
			return false
		}
		return b.life.precedes(req.begin, r.an.sg, req.inPlace)
	}

	if r.opts.reuseOrder == EarliestReleased {
		for i, b := range blocks {
			if eligible(b) {
				return i
			}
		}
		return -1
	}

	for i := len(blocks) - 1; i >= 0; i-- {
		if eligible(blocks[i]) {
			return i
		}
	}

	return -1
}

// foreignKeys returns the pools of other streams for the request.
func (p *reusePool) foreignKeys(req *request) []poolKey {
	var keys []poolKey
	for key, blocks := range p.blocks {
		if key.class == req.class && key.stream != req.stream && len(blocks) > 0 {
			keys = append(keys, key)
		}
	}
	slices.SortFunc(keys, func(k1, k2 poolKey) int {
		return k1.stream - k2.stream
	})
	return keys
}

// len returns the number of blocks in the pool.
func (p *reusePool) len() int {
	cnt := 0
	for _, blocks := range p.blocks {
		cnt += len(blocks)
	}
	for _, blocks := range p.zeroCopy {
		cnt += len(blocks)
	}
	return cnt
}
