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

package memplan_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	cfgapi "github.com/streamgraph/memplan/pkg/apis/config/v1alpha1/memplan"
	. "github.com/streamgraph/memplan/pkg/memplan"
)

func TestWithConfig(t *testing.T) {
	for _, tc := range []struct {
		name string
		yaml string
		peak int64
	}{
		{
			name: "defaults",
			yaml: `alignment: 4`,
			peak: 200,
		},
		{
			name: "first reuse",
			yaml: `
alignment: 4
convention: last-release-first-reuse
verify: true
`,
			peak: 100,
		},
		{
			name: "reuse disabled",
			yaml: `
alignment: 4
disableReuse: true
`,
			peak: 300,
		},
		{
			name: "memory ranges",
			yaml: `
alignment: 4
reuseOrder: earliest-released
releaseOrder: reverse-input-order
memoryRanges:
  - 256
  - 1Ki
`,
			peak: 512,
		},
		{
			name: "default alignment",
			yaml: `classes: [ hbm, host ]`,
			peak: 1024,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := cfgapi.Parse([]byte(tc.yaml))
			require.NoError(t, err, "unexpected configuration error")

			p, err := NewPlanner(WithConfig(cfg))
			require.NoError(t, err, "unexpected NewPlanner() error")

			pl, err := p.Plan(chainGraph())
			require.NoError(t, err, "unexpected planning error")
			require.Equal(t, tc.peak, peak(pl))
		})
	}
}

func TestWithConfigOverrides(t *testing.T) {
	cfg, err := cfgapi.Parse([]byte(`
alignment: 4
convention: last-release-first-reuse
`))
	require.NoError(t, err)

	p, err := NewPlanner(WithConfig(cfg), WithConvention(LastReleaseLastReuse))
	require.NoError(t, err)

	pl, err := p.Plan(chainGraph())
	require.NoError(t, err)
	require.Equal(t, int64(200), peak(pl))

	p, err = NewPlanner(WithConfig(nil))
	require.NoError(t, err)
	require.NotNil(t, p)
}

func TestWithInvalidConfig(t *testing.T) {
	for _, tc := range []struct {
		name string
		cfg  *cfgapi.Config
		err  error
	}{
		{
			name: "invalid convention",
			cfg:  &cfgapi.Config{Convention: "first-come-first-served"},
			err:  ErrInvalidConfig,
		},
		{
			name: "invalid nesting depth",
			cfg:  &cfgapi.Config{MaxNestingDepth: -1},
			err:  ErrInvalidConfig,
		},
		{
			name: "invalid memory class",
			cfg:  &cfgapi.Config{Classes: []string{"HBM", "SRAM"}},
			err:  ErrInvalidClass,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			p, err := NewPlanner(WithConfig(tc.cfg))
			require.Nil(t, p)
			require.True(t, errors.Is(err, ErrFailedOption), "unexpected error %v", err)
			require.True(t, errors.Is(err, tc.err), "unexpected error %v", err)
		})
	}
}
