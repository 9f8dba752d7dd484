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
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	. "github.com/streamgraph/memplan/pkg/memplan"
)

func TestCollector(t *testing.T) {
	c := NewCollector()
	require.Equal(t, 0, testutil.CollectAndCount(c))

	c.Update(plan(t, chainGraph()))
	c.Update(plan(t, crossStreamGraph()))

	expected := `
# HELP peak_bytes Size of the planned memory arena.
# TYPE peak_bytes gauge
peak_bytes{class="HBM",graph="chain"} 200
peak_bytes{class="HBM",graph="cross-stream"} 100
# HELP blocks Number of top-level blocks in the memory arena.
# TYPE blocks gauge
blocks{class="HBM",graph="chain"} 2
blocks{class="HBM",graph="cross-stream"} 1
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected), "peak_bytes", "blocks"))
	require.Equal(t, 12, testutil.CollectAndCount(c))

	c.Update(plan(t, chainGraph(), WithConvention(LastReleaseFirstReuse)))
	require.Equal(t, 12, testutil.CollectAndCount(c), "replanned graph should replace earlier totals")

	c.Forget("chain")
	require.Equal(t, 6, testutil.CollectAndCount(c))
	require.Equal(t, 1, testutil.CollectAndCount(c, "theoretical_min_bytes"))
}
