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
	"context"
	"fmt"
	"math"
	"slices"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultAlignment is the default alignment of blocks.
	DefaultAlignment = 512
	// DefaultMaxNestingDepth is the default bound for nesting blocks.
	DefaultMaxNestingDepth = 4
)

// Planner plans the memory of graphs.
type Planner struct {
	opts options
}

type options struct {
	classes         ClassMask
	alignment       int64
	reuse           bool
	reuseOrder      ReuseOrder
	releaseOrder    ReleaseOrder
	convention      Convention
	ranges          []int64
	zeroCopy        bool
	reuseZeroCopy   bool
	sameStreamReuse bool
	lifetimeReuse   bool
	maxDepth        int
	verify          bool
}

// Option is an opaque option for a Planner.
type Option func(*Planner) error

// WithClasses is an option to set the memory classes provided by the target.
func WithClasses(classes ...MemoryClass) Option {
	return func(p *Planner) error {
		for _, c := range classes {
			if !c.IsValid() {
				return fmt.Errorf("%w: %s", ErrInvalidClass, c)
			}
		}
		mask := NewClassMask(classes...)
		if mask == 0 {
			return fmt.Errorf("%w: no memory classes", ErrInvalidConfig)
		}
		p.opts.classes = mask
		return nil
	}
}

// WithAlignment is an option to set the alignment of blocks and of
// elements of continuous groups.
func WithAlignment(alignment int64) Option {
	return func(p *Planner) error {
		if alignment <= 0 {
			return fmt.Errorf("%w: invalid alignment %d", ErrInvalidConfig, alignment)
		}
		p.opts.alignment = alignment
		return nil
	}
}

// WithReuse is an option to enable or disable reuse of released blocks.
func WithReuse(enable bool) Option {
	return func(p *Planner) error {
		p.opts.reuse = enable
		return nil
	}
}

// WithReuseOrder is an option to set which eligible block gets reused.
func WithReuseOrder(order ReuseOrder) Option {
	return func(p *Planner) error {
		if order != EarliestReleased && order != LatestReleased {
			return fmt.Errorf("%w: invalid reuse order %d", ErrInvalidConfig, order)
		}
		p.opts.reuseOrder = order
		return nil
	}
}

// WithReleaseOrder is an option to set the order blocks of inputs are
// released in.
func WithReleaseOrder(order ReleaseOrder) Option {
	return func(p *Planner) error {
		if order != InputOrder && order != ReverseInputOrder {
			return fmt.Errorf("%w: invalid release order %d", ErrInvalidConfig, order)
		}
		p.opts.releaseOrder = order
		return nil
	}
}

// WithConvention is an option to set the reuse convention.
func WithConvention(c Convention) Option {
	return func(p *Planner) error {
		if c != LastReleaseLastReuse && c != LastReleaseFirstReuse {
			return fmt.Errorf("%w: invalid reuse convention %d", ErrInvalidConfig, c)
		}
		p.opts.convention = c
		return nil
	}
}

// WithMemoryRanges is an option to round block sizes up to the smallest
// fitting range. Requests larger than all ranges are not rounded.
func WithMemoryRanges(ranges ...int64) Option {
	return func(p *Planner) error {
		for _, r := range ranges {
			if r <= 0 {
				return fmt.Errorf("%w: invalid memory range %d", ErrInvalidConfig, r)
			}
		}
		p.opts.ranges = slices.Compact(slices.Sorted(slices.Values(ranges)))
		return nil
	}
}

// WithZeroCopy is an option to enable or disable zero-copy blocks for
// graph inputs and outputs.
func WithZeroCopy(enable bool) Option {
	return func(p *Planner) error {
		p.opts.zeroCopy = enable
		return nil
	}
}

// WithReuseZeroCopy is an option to let ordinary slots reuse released
// zero-copy blocks.
func WithReuseZeroCopy(enable bool) Option {
	return func(p *Planner) error {
		p.opts.reuseZeroCopy = enable
		return nil
	}
}

// WithSameStreamReuse is an option to restrict reuse to blocks released
// on the same stream.
func WithSameStreamReuse(enable bool) Option {
	return func(p *Planner) error {
		p.opts.sameStreamReuse = enable
		return nil
	}
}

// WithLifetimeReuse is an option to enable or disable nesting of blocks.
func WithLifetimeReuse(enable bool) Option {
	return func(p *Planner) error {
		p.opts.lifetimeReuse = enable
		return nil
	}
}

// WithMaxNestingDepth is an option to bound how deep blocks get nested.
// A non-positive depth selects the default.
func WithMaxNestingDepth(depth int) Option {
	return func(p *Planner) error {
		if depth <= 0 {
			depth = DefaultMaxNestingDepth
		}
		p.opts.maxDepth = depth
		return nil
	}
}

// WithVerification is an option to verify every plan before returning it.
func WithVerification(enable bool) Option {
	return func(p *Planner) error {
		p.opts.verify = enable
		return nil
	}
}

// NewPlanner creates a new planner with the given options.
func NewPlanner(options ...Option) (*Planner, error) {
	p := &Planner{
		opts: defaultOptions(),
	}

	for _, o := range options {
		if err := o(p); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFailedOption, err)
		}
	}

	return p, nil
}

func defaultOptions() options {
	return options{
		classes:       ClassMaskHBM,
		alignment:     DefaultAlignment,
		reuse:         true,
		reuseOrder:    LatestReleased,
		releaseOrder:  InputOrder,
		convention:    LastReleaseLastReuse,
		zeroCopy:      true,
		lifetimeReuse: true,
		maxDepth:      DefaultMaxNestingDepth,
	}
}

// Plan plans the memory of the graph. On success the offsets, memory
// classes, and zero-copy flags of all slots are updated. On failure the
// graph is left untouched.
func (p *Planner) Plan(g *Graph) (*Plan, error) {
	plan, err := p.plan(g)
	if err != nil {
		return nil, err
	}

	plan.apply()

	return plan, nil
}

// PlanGraph plans the memory of the graph with a planner created using
// the given options.
func PlanGraph(g *Graph, options ...Option) (*Plan, error) {
	p, err := NewPlanner(options...)
	if err != nil {
		return nil, err
	}
	return p.Plan(g)
}

// PlanPartitions plans independent partitions of a graph concurrently.
// Partitions share no memory. Slots are updated only if all partitions
// were planned successfully.
func (p *Planner) PlanPartitions(ctx context.Context, graphs []*Graph) ([]*Plan, error) {
	seen := make(map[*Node]string)
	for _, g := range graphs {
		for _, n := range g.Nodes {
			if other, ok := seen[n]; ok && n != nil {
				return nil, fmt.Errorf("%w: node %s shared by partitions %q and %q",
					ErrMalformedGraph, n, other, g.Name)
			}
			seen[n] = g.Name
		}
	}

	plans := make([]*Plan, len(graphs))
	eg, ctx := errgroup.WithContext(ctx)

	for i, g := range graphs {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			plan, err := p.plan(g)
			if err != nil {
				return fmt.Errorf("partition %q: %w", g.Name, err)
			}
			plans[i] = plan
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	for _, plan := range plans {
		plan.apply()
	}

	return plans, nil
}

func (p *Planner) plan(g *Graph) (*Plan, error) {
	if g == nil {
		return nil, fmt.Errorf("%w: nil graph", ErrMalformedGraph)
	}

	opts := p.opts
	an, err := analyze(g, &opts)
	if err != nil {
		return nil, err
	}

	r := newRun(&opts, an)

	if err := r.allocate(); err != nil {
		return nil, err
	}
	if err := r.nest(); err != nil {
		return nil, err
	}
	plan, err := r.resolve()
	if err != nil {
		return nil, err
	}

	if opts.verify {
		if err := plan.Check(); err != nil {
			return nil, err
		}
	}

	return plan, nil
}

// align rounds size up to the configured alignment.
func (o *options) align(size int64) (int64, error) {
	a := o.alignment
	if size > math.MaxInt64-(a-1) {
		return 0, fmt.Errorf("%w: %w: aligning size %d to %d", ErrMalformedGraph, ErrSizeOverflow, size, a)
	}
	return (size + a - 1) / a * a, nil
}

// commit returns the committed size for a request of the given size.
func (o *options) commit(size int64) (int64, error) {
	aligned, err := o.align(size)
	if err != nil {
		return 0, err
	}
	for _, r := range o.ranges {
		if r >= aligned {
			return o.align(r)
		}
	}
	return aligned, nil
}
