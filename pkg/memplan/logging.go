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
	"strconv"
	"strings"

	logger "github.com/streamgraph/memplan/pkg/log"
)

var (
	log     = logger.Get("memplan")
	details = logger.Get("memplan-details")
)

// DumpConfig logs the configuration the plan was created with.
func (p *Plan) DumpConfig(context ...interface{}) {
	prefix := formatPrefix(context...)
	o := &p.opts

	log.Info("%smemory planner configuration", prefix)
	log.Info("%s  classes: %s, alignment %d", prefix, o.classes, o.alignment)
	if !o.reuse {
		log.Info("%s  reuse disabled", prefix)
	} else {
		log.Info("%s  reuse: %s, %s, release in %s", prefix, o.reuseOrder, o.convention, o.releaseOrder)
		log.Info("%s  same-stream reuse only: %v, lifetime reuse: %v (max. depth %d)", prefix,
			o.sameStreamReuse, o.lifetimeReuse, o.maxDepth)
	}
	log.Info("%s  zero-copy: %v, reuse of zero-copy: %v", prefix, o.zeroCopy, o.reuseZeroCopy)
	if len(o.ranges) > 0 {
		ranges := make([]string, 0, len(o.ranges))
		for _, r := range o.ranges {
			ranges = append(ranges, prettySize(r))
		}
		log.Info("%s  memory ranges: %s", prefix, strings.Join(ranges, ","))
	}
}

// DumpTotals logs the totals of the plan.
func (p *Plan) DumpTotals(context ...interface{}) {
	prefix := formatPrefix(context...)
	for _, c := range p.Classes() {
		t := p.Totals(c)
		log.Info("%s%s", prefix, &t)
	}
}

// DumpStreams logs the dependencies between streams.
func (p *Plan) DumpStreams(context ...interface{}) {
	if !details.DebugEnabled() {
		return
	}

	prefix := formatPrefix(context...)
	edges := p.StreamEdges()

	if len(edges) == 0 {
		details.Debug("%s  no stream dependencies", prefix)
		return
	}

	details.Debug("%s  stream dependencies:", prefix)
	for _, e := range edges {
		details.Debug("%s    - #%d@%d => #%d@%d", prefix, e.Producer, e.From, e.Consumer, e.To)
	}
}

// DumpBlocks logs the block forest of the plan.
func (p *Plan) DumpBlocks(context ...interface{}) {
	if !details.DebugEnabled() {
		return
	}

	prefix := formatPrefix(context...)

	details.Debug("%s  blocks:", prefix)
	p.ForeachBlock(func(b *Block, depth int) bool {
		indent := strings.Repeat("  ", depth)
		details.Debug("%s    %s- %s", prefix, indent, b)
		for _, m := range b.members {
			details.Debug("%s    %s    %s", prefix, indent, m)
		}
		return ForeachMore
	})

	if len(p.zeroMem) > 0 {
		details.Debug("%s  zero-memory slots: %v", prefix, p.zeroMem)
	}
}

// DumpPlan logs the full plan.
func (p *Plan) DumpPlan(context ...interface{}) {
	prefix := formatPrefix(context...)
	log.Info("%smemory plan of graph %q", prefix, p.graph.Name)
	p.DumpTotals(prefix + "  ")
	p.DumpStreams(prefix)
	p.DumpBlocks(prefix)
}

func formatPrefix(args ...interface{}) string {
	narg := len(args)
	if narg == 0 {
		return ""
	}

	format, ok := args[0].(string)
	if !ok {
		return "%%(!memplan:Bad-Prefix)"
	}

	if len(args) == 1 {
		return format
	}

	return fmt.Sprintf(format, args[1:]...)
}

// HumanReadableSize returns the given size as a human-readable string.
func HumanReadableSize(size int64) string {
	if size >= 1024 {
		units := []string{"k", "M", "G", "T"}

		for i, d := 0, int64(1024); i < len(units); i, d = i+1, d<<10 {
			if val := size / d; 1 <= val && val < 1024 {
				if fval := float64(size) / float64(d); math.Floor(fval) != fval {
					return strings.TrimRight(fmt.Sprintf("%.3f", fval), "0") + units[i]
				}
				return fmt.Sprintf("%d%s", val, units[i])
			}
		}
	}

	return strconv.FormatInt(size, 10)
}

func prettySize(v int64) string {
	return HumanReadableSize(v)
}
