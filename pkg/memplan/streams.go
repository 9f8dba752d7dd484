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
	"sort"

	idset "github.com/intel/goresctrl/pkg/utils"
)

// StreamEdge is a dependency between two streams. Anything following
// Consumer on stream To is ordered after Producer on stream From.
type StreamEdge struct {
	From     StreamID
	To       StreamID
	Producer int64
	Consumer int64
}

// point is a node execution on a stream.
type point struct {
	stream StreamID
	id     int64
}

// edgeList is the set of edges from one stream to another, sorted by
// consumer, with the running maximum of producers.
type edgeList struct {
	consumers []int64
	producers []int64
	latest    []int64
}

// streamGraph tracks the partial order of execution across streams.
type streamGraph struct {
	streams idset.IDSet
	raw     map[StreamID]map[StreamID]map[int64]int64 // to -> from -> consumer -> producer
	table   map[StreamID]map[StreamID]*edgeList       // to -> from -> edges
}

func newStreamGraph() *streamGraph {
	return &streamGraph{
		streams: idset.NewIDSet(),
		raw:     make(map[StreamID]map[StreamID]map[int64]int64),
		table:   make(map[StreamID]map[StreamID]*edgeList),
	}
}

// addEdge records an edge, returning true if it tightened the order.
func (sg *streamGraph) addEdge(from, to StreamID, producer, consumer int64) bool {
	if from == to {
		return false
	}

	byFrom, ok := sg.raw[to]
	if !ok {
		byFrom = make(map[StreamID]map[int64]int64)
		sg.raw[to] = byFrom
	}
	edges, ok := byFrom[from]
	if !ok {
		edges = make(map[int64]int64)
		byFrom[from] = edges
	}

	if p, ok := edges[consumer]; ok && p >= producer {
		return false
	}

	edges[consumer] = producer
	return true
}

// seal turns the recorded edges into sorted lookup tables.
func (sg *streamGraph) seal() {
	sg.table = make(map[StreamID]map[StreamID]*edgeList, len(sg.raw))
	for to, byFrom := range sg.raw {
		lists := make(map[StreamID]*edgeList, len(byFrom))
		for from, edges := range byFrom {
			l := &edgeList{
				consumers: make([]int64, 0, len(edges)),
			}
			for c := range edges {
				l.consumers = append(l.consumers, c)
			}
			slices.Sort(l.consumers)

			top := int64(-1)
			for _, c := range l.consumers {
				p := edges[c]
				if p > top {
					top = p
				}
				l.producers = append(l.producers, p)
				l.latest = append(l.latest, top)
			}
			lists[from] = l
		}
		sg.table[to] = lists
	}
}

// closure derives transitive edges until no more can be found. An edge
// A->B (pA, cB) followed on B by an edge B->C (pB, cC) with cB <= pB
// implies the edge A->C (pA, cC).
func (sg *streamGraph) closure() {
	for {
		sg.seal()

		type edge struct {
			from, to           StreamID
			producer, consumer int64
		}
		var derived []edge

		streams := sg.streams.SortedMembers()
		for _, c := range streams {
			for _, b := range streams {
				l, ok := sg.table[c][b]
				if !ok {
					continue
				}
				for i, cC := range l.consumers {
					pB := l.producers[i]
					for _, a := range streams {
						if a == c || a == b {
							continue
						}
						if pA := sg.latestBefore(a, b, pB); pA >= 0 {
							derived = append(derived, edge{a, c, pA, cC})
						}
					}
				}
			}
		}

		changed := false
		for _, e := range derived {
			if sg.addEdge(e.from, e.to, e.producer, e.consumer) {
				changed = true
			}
		}
		if !changed {
			return
		}
	}
}

// latestBefore returns the latest node on stream from which is known to
// have finished before node consumer on stream to starts, or -1 if no
// such node is known.
func (sg *streamGraph) latestBefore(from, to StreamID, consumer int64) int64 {
	l, ok := sg.table[to][from]
	if !ok {
		return -1
	}

	i := sort.Search(len(l.consumers), func(i int) bool {
		return l.consumers[i] > consumer
	})
	if i == 0 {
		return -1
	}

	return l.latest[i-1]
}

// happensBefore returns true if a is known to finish before b starts.
func (sg *streamGraph) happensBefore(a, b point) bool {
	if a.stream == b.stream {
		return a.id < b.id
	}
	return sg.latestBefore(a.stream, b.stream, b.id) >= a.id
}

// edges returns all recorded edges in a stable order.
func (sg *streamGraph) edges() []StreamEdge {
	var (
		edges   []StreamEdge
		streams = sg.streams.SortedMembers()
	)
	for _, to := range streams {
		for _, from := range streams {
			l, ok := sg.table[to][from]
			if !ok {
				continue
			}
			for i, c := range l.consumers {
				edges = append(edges, StreamEdge{
					From:     from,
					To:       to,
					Producer: l.producers[i],
					Consumer: c,
				})
			}
		}
	}
	return edges
}
