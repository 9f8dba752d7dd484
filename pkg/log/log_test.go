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

package log_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	cfgapi "github.com/streamgraph/memplan/pkg/apis/config/v1alpha1/log"
	logger "github.com/streamgraph/memplan/pkg/log"
)

func TestDebugSources(t *testing.T) {
	var (
		planner = logger.Get("test-planner")
		details = logger.Get("test-details")
		other   = logger.Get("test-other")
	)

	defer func() {
		require.NoError(t, logger.Configure(&cfgapi.Config{}))
	}()

	for _, tc := range []struct {
		name    string
		debug   []string
		enabled map[logger.Logger]bool
	}{
		{
			name:  "implicitly on",
			debug: []string{"test-planner,test-details"},
			enabled: map[logger.Logger]bool{
				planner: true,
				details: true,
				other:   false,
			},
		},
		{
			name:  "on and off",
			debug: []string{"on:test-planner", "off:test-details,test-other"},
			enabled: map[logger.Logger]bool{
				planner: true,
				details: false,
				other:   false,
			},
		},
		{
			name:  "all but one",
			debug: []string{"on:all,off:test-other"},
			enabled: map[logger.Logger]bool{
				planner: true,
				details: true,
				other:   false,
			},
		},
		{
			name:  "nothing",
			debug: nil,
			enabled: map[logger.Logger]bool{
				planner: false,
				details: false,
				other:   false,
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			require.NoError(t, logger.Configure(&cfgapi.Config{Debug: tc.debug}))
			for l, enabled := range tc.enabled {
				require.Equal(t, enabled, l.DebugEnabled(), "debugging of %s", l.Source())
			}
		})
	}
}

func TestInvalidConfiguration(t *testing.T) {
	require.Error(t, logger.Configure(&cfgapi.Config{Debug: []string{"maybe:test-planner"}}))
	require.Error(t, logger.Configure(&cfgapi.Config{Debug: []string{"on:a:b"}}))
	require.Error(t, logger.Configure(&cfgapi.Config{Level: "chatty"}))
	require.NoError(t, logger.Configure(&cfgapi.Config{}))
}

func TestParseLevel(t *testing.T) {
	for name, level := range map[string]logger.Level{
		"debug":   logger.LevelDebug,
		"Info":    logger.LevelInfo,
		"warning": logger.LevelWarn,
		"WARN":    logger.LevelWarn,
		"error":   logger.LevelError,
	} {
		l, err := logger.ParseLevel(name)
		require.NoError(t, err, "level %q", name)
		require.Equal(t, level, l, "level %q", name)
	}

	_, err := logger.ParseLevel("chatty")
	require.Error(t, err)
}

func TestEnableDebug(t *testing.T) {
	l := logger.Get("test-toggle")
	require.False(t, l.DebugEnabled())
	require.False(t, l.EnableDebug(true))
	require.True(t, l.DebugEnabled())
	require.True(t, l.EnableDebug(false))
	require.False(t, l.DebugEnabled())
}

func TestSlogHandler(t *testing.T) {
	l := logger.Get("test-slog")
	h := l.SlogHandler()

	l.EnableDebug(false)
	require.False(t, h.Enabled(context.Background(), slog.LevelDebug))
	require.True(t, h.Enabled(context.Background(), slog.LevelError))

	l.EnableDebug(true)
	defer l.EnableDebug(false)
	require.True(t, h.Enabled(context.Background(), slog.LevelDebug))

	require.NotPanics(t, func() {
		slog.New(h).With("graph", "test").WithGroup("plan").Debug("planned", "peak", 512)
	})
}
