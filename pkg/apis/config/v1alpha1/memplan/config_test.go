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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	cfgapi "github.com/streamgraph/memplan/pkg/apis/config/v1alpha1/memplan"
)

func TestParse(t *testing.T) {
	cfg, err := cfgapi.Parse([]byte(`
classes: [ HBM, P2P ]
alignment: 1Ki
reuseOrder: earliest-released
convention: last-release-first-reuse
releaseOrder: reverse-input-order
memoryRanges: [ 4Ki, 64Ki ]
sameStreamReuse: true
maxNestingDepth: 2
log:
  debug: [ "on:memplan" ]
  klog:
    skip_headers: true
`))
	require.NoError(t, err, "unexpected parse error")
	require.Equal(t, []string{"HBM", "P2P"}, cfg.Classes)
	require.Equal(t, int64(1024), cfg.Alignment.Value())
	require.Equal(t, cfgapi.ReuseEarliestReleased, cfg.ReuseOrder)
	require.Equal(t, cfgapi.LastReleaseFirstReuse, cfg.Convention)
	require.Equal(t, cfgapi.ReleaseReverseInputOrder, cfg.ReleaseOrder)
	require.Len(t, cfg.MemoryRanges, 2)
	require.Equal(t, int64(64<<10), cfg.MemoryRanges[1].Value())
	require.True(t, cfg.SameStreamReuse)
	require.False(t, cfg.DisableReuse)
	require.Equal(t, 2, cfg.MaxNestingDepth)
	require.Equal(t, []string{"on:memplan"}, cfg.Log.Debug)
	require.NotNil(t, cfg.Log.Klog.Skip_headers)
	require.True(t, *cfg.Log.Klog.Skip_headers)
}

func TestParseInvalid(t *testing.T) {
	for name, data := range map[string]string{
		"unknown field":      `reuse: never`,
		"zero alignment":     `alignment: 0`,
		"invalid order":      `reuseOrder: random`,
		"invalid convention": `convention: first-release-first-reuse`,
		"invalid release":    `releaseOrder: any`,
		"invalid range":      `memoryRanges: [ 1Ki, -1 ]`,
		"negative depth":     `maxNestingDepth: -2`,
		"malformed":          `classes: HBM: P2P`,
	} {
		t.Run(name, func(t *testing.T) {
			cfg, err := cfgapi.Parse([]byte(data))
			require.Error(t, err, "unexpected success")
			require.Nil(t, cfg)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memplan.yaml")
	require.NoError(t, os.WriteFile(path, []byte("disableZeroCopy: true\nverify: true\n"), 0o644))

	cfg, err := cfgapi.Load(path)
	require.NoError(t, err)
	require.True(t, cfg.DisableZeroCopy)
	require.True(t, cfg.Verify)

	_, err = cfgapi.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
