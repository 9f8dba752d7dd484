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
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports the totals of plans as prometheus metrics.
type Collector struct {
	sync.Mutex
	totals map[string][]Totals // per graph name
	peak   *prometheus.Desc
	min    *prometheus.Desc
	nonre  *prometheus.Desc
	zcopy  *prometheus.Desc
	blocks *prometheus.Desc
	nested *prometheus.Desc
}

// NewCollector creates a new collector for plan totals.
func NewCollector() *Collector {
	labels := []string{"graph", "class"}
	return &Collector{
		totals: make(map[string][]Totals),
		peak: prometheus.NewDesc("peak_bytes",
			"Size of the planned memory arena.", labels, nil),
		min: prometheus.NewDesc("theoretical_min_bytes",
			"Largest amount of simultaneously live memory.", labels, nil),
		nonre: prometheus.NewDesc("nonreusable_bytes",
			"Memory in blocks never released for reuse.", labels, nil),
		zcopy: prometheus.NewDesc("zero_copy_bytes",
			"Memory in blocks aliasing external buffers.", labels, nil),
		blocks: prometheus.NewDesc("blocks",
			"Number of top-level blocks in the memory arena.", labels, nil),
		nested: prometheus.NewDesc("nested_blocks",
			"Number of blocks nested in other blocks.", labels, nil),
	}
}

// Update records the totals of the plan, replacing any earlier plan of
// a graph with the same name.
func (c *Collector) Update(p *Plan) {
	totals := make([]Totals, 0, len(p.totals))
	for _, class := range p.Classes() {
		totals = append(totals, p.Totals(class))
	}

	c.Lock()
	defer c.Unlock()
	c.totals[p.graph.Name] = totals
}

// Forget drops the totals of the named graph.
func (c *Collector) Forget(graph string) {
	c.Lock()
	defer c.Unlock()
	delete(c.totals, graph)
}

// Describe implements the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.peak
	ch <- c.min
	ch <- c.nonre
	ch <- c.zcopy
	ch <- c.blocks
	ch <- c.nested
}

// Collect implements the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.Lock()
	defer c.Unlock()

	graphs := make([]string, 0, len(c.totals))
	for g := range c.totals {
		graphs = append(graphs, g)
	}
	slices.Sort(graphs)

	for _, g := range graphs {
		for _, t := range c.totals[g] {
			class := t.Class.String()
			for _, m := range []struct {
				desc  *prometheus.Desc
				value int64
			}{
				{c.peak, t.Peak},
				{c.min, t.TheoreticalMin},
				{c.nonre, t.NonReusable},
				{c.zcopy, t.ZeroCopy},
				{c.blocks, int64(t.Blocks)},
				{c.nested, int64(t.Nested)},
			} {
				ch <- prometheus.MustNewConstMetric(m.desc, prometheus.GaugeValue,
					float64(m.value), g, class)
			}
		}
	}
}
