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
	"os"

	"k8s.io/apimachinery/pkg/api/resource"
	"sigs.k8s.io/yaml"

	"github.com/streamgraph/memplan/pkg/apis/config/v1alpha1/log"
)

const (
	// ReuseEarliestReleased hands out the earliest released eligible block.
	ReuseEarliestReleased = "earliest-released"
	// ReuseLatestReleased hands out the most recently released eligible block.
	ReuseLatestReleased = "latest-released"

	// LastReleaseLastReuse makes blocks released by a node's inputs available
	// to nodes following it.
	LastReleaseLastReuse = "last-release-last-reuse"
	// LastReleaseFirstReuse makes blocks released by a node's inputs available
	// already to the outputs and workspaces of the node itself.
	LastReleaseFirstReuse = "last-release-first-reuse"

	// ReleaseInputOrder releases the blocks of a node's inputs in input order.
	ReleaseInputOrder = "input-order"
	// ReleaseReverseInputOrder releases the blocks of a node's inputs in
	// reverse input order.
	ReleaseReverseInputOrder = "reverse-input-order"
)

// Config is the configuration of the memory planner.
type Config struct {
	// Classes lists the memory classes the target provides. Slots of other
	// classes are rejected.
	// +kubebuilder:default={"HBM"}
	// +optional
	Classes []string `json:"classes,omitempty"`
	// Alignment is the alignment boundary of every block and of every
	// element in a continuous group.
	// +kubebuilder:default="512"
	// +optional
	Alignment *resource.Quantity `json:"alignment,omitempty"`
	// DisableReuse turns off all reuse of freed blocks.
	// +optional
	DisableReuse bool `json:"disableReuse,omitempty"`
	// ReuseOrder picks which eligible free block gets reused.
	// +kubebuilder:validation:Enum=earliest-released;latest-released
	// +kubebuilder:default="latest-released"
	// +optional
	ReuseOrder string `json:"reuseOrder,omitempty"`
	// Convention decides whether a node may reuse blocks freed by its own inputs.
	// +kubebuilder:validation:Enum=last-release-last-reuse;last-release-first-reuse
	// +kubebuilder:default="last-release-last-reuse"
	// +optional
	Convention string `json:"convention,omitempty"`
	// ReleaseOrder is the order blocks of a node's inputs are released in.
	// +kubebuilder:validation:Enum=input-order;reverse-input-order
	// +kubebuilder:default="input-order"
	// +optional
	ReleaseOrder string `json:"releaseOrder,omitempty"`
	// MemoryRanges are the allowed block sizes for size-bucketed allocation.
	// Requests are rounded up to the smallest fitting range. Without ranges
	// blocks are exactly sized.
	// +optional
	MemoryRanges []resource.Quantity `json:"memoryRanges,omitempty"`
	// DisableZeroCopy turns off aliasing of graph inputs and outputs to
	// externally supplied buffers.
	// +optional
	DisableZeroCopy bool `json:"disableZeroCopy,omitempty"`
	// ReuseZeroCopy allows ordinary requests to reuse released zero-copy blocks.
	// +optional
	ReuseZeroCopy bool `json:"reuseZeroCopy,omitempty"`
	// SameStreamReuse restricts reuse to blocks of the requesting stream.
	// +optional
	SameStreamReuse bool `json:"sameStreamReuse,omitempty"`
	// DisableLifetimeReuse turns off nesting of blocks into larger ones.
	// +optional
	DisableLifetimeReuse bool `json:"disableLifetimeReuse,omitempty"`
	// MaxNestingDepth bounds how deep blocks are nested into each other.
	// +kubebuilder:default=4
	// +optional
	MaxNestingDepth int `json:"maxNestingDepth,omitempty"`
	// Verify checks every plan for overlapping live memory before using it.
	// +optional
	Verify bool `json:"verify,omitempty"`
	// Log configures logging.
	// +optional
	Log log.Config `json:"log,omitempty"`
}

// Validate checks the configuration for obvious errors.
func (c *Config) Validate() error {
	if c.Alignment != nil && c.Alignment.Value() <= 0 {
		return fmt.Errorf("invalid alignment %s", c.Alignment.String())
	}

	switch c.ReuseOrder {
	case "", ReuseEarliestReleased, ReuseLatestReleased:
	default:
		return fmt.Errorf("invalid reuse order %q", c.ReuseOrder)
	}

	switch c.Convention {
	case "", LastReleaseLastReuse, LastReleaseFirstReuse:
	default:
		return fmt.Errorf("invalid reuse convention %q", c.Convention)
	}

	switch c.ReleaseOrder {
	case "", ReleaseInputOrder, ReleaseReverseInputOrder:
	default:
		return fmt.Errorf("invalid release order %q", c.ReleaseOrder)
	}

	for i, r := range c.MemoryRanges {
		if r.Value() <= 0 {
			return fmt.Errorf("invalid memory range #%d %s", i, r.String())
		}
	}

	if c.MaxNestingDepth < 0 {
		return fmt.Errorf("invalid maximum nesting depth %d", c.MaxNestingDepth)
	}

	return nil
}

// Parse parses the given YAML or JSON data into a configuration.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse memplan configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid memplan configuration: %w", err)
	}
	return cfg, nil
}

// Load reads and parses the configuration from the given file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read memplan configuration: %w", err)
	}
	return Parse(data)
}
