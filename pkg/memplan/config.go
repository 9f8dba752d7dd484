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

	cfgapi "github.com/streamgraph/memplan/pkg/apis/config/v1alpha1/memplan"
)

// WithConfig is an option to configure a planner from the given
// configuration. Options given after it override the configuration.
func WithConfig(cfg *cfgapi.Config) Option {
	return func(p *Planner) error {
		if cfg == nil {
			return nil
		}

		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}

		var options []Option

		if len(cfg.Classes) > 0 {
			classes := make([]MemoryClass, 0, len(cfg.Classes))
			for _, name := range cfg.Classes {
				c, err := ParseMemoryClass(name)
				if err != nil {
					return err
				}
				classes = append(classes, c)
			}
			options = append(options, WithClasses(classes...))
		}

		if cfg.Alignment != nil {
			options = append(options, WithAlignment(cfg.Alignment.Value()))
		}

		switch cfg.ReuseOrder {
		case cfgapi.ReuseEarliestReleased:
			options = append(options, WithReuseOrder(EarliestReleased))
		case cfgapi.ReuseLatestReleased:
			options = append(options, WithReuseOrder(LatestReleased))
		}

		switch cfg.Convention {
		case cfgapi.LastReleaseFirstReuse:
			options = append(options, WithConvention(LastReleaseFirstReuse))
		case cfgapi.LastReleaseLastReuse:
			options = append(options, WithConvention(LastReleaseLastReuse))
		}

		switch cfg.ReleaseOrder {
		case cfgapi.ReleaseReverseInputOrder:
			options = append(options, WithReleaseOrder(ReverseInputOrder))
		case cfgapi.ReleaseInputOrder:
			options = append(options, WithReleaseOrder(InputOrder))
		}

		if len(cfg.MemoryRanges) > 0 {
			ranges := make([]int64, 0, len(cfg.MemoryRanges))
			for _, q := range cfg.MemoryRanges {
				ranges = append(ranges, q.Value())
			}
			options = append(options, WithMemoryRanges(ranges...))
		}

		options = append(options,
			WithReuse(!cfg.DisableReuse),
			WithZeroCopy(!cfg.DisableZeroCopy),
			WithReuseZeroCopy(cfg.ReuseZeroCopy),
			WithSameStreamReuse(cfg.SameStreamReuse),
			WithLifetimeReuse(!cfg.DisableLifetimeReuse),
			WithMaxNestingDepth(cfg.MaxNestingDepth),
			WithVerification(cfg.Verify),
		)

		for _, o := range options {
			if err := o(p); err != nil {
				return err
			}
		}

		return nil
	}
}
