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

package log

import (
	"os"
	"strings"

	cfgapi "github.com/streamgraph/memplan/pkg/apis/config/v1alpha1/log"
	"github.com/streamgraph/memplan/pkg/log/klogcontrol"
	"github.com/streamgraph/memplan/pkg/utils"
)

const (
	// DefaultLevel is the default logging severity level.
	DefaultLevel = LevelInfo
	// debugEnvVar seeds the debugged sources, for instance "on:memplan".
	debugEnvVar = "LOGGER_DEBUG"
	// logSourceEnvVar turns on source prefixes when set.
	logSourceEnvVar = "LOGGER_LOG_SOURCE"
)

// srcmap maps sources to their debugging state. "*" matches any source.
type srcmap map[string]bool

// parse adds a comma-separated list of [state:]source entries to the map.
// A missing state is inherited from the previous entry, defaulting to on.
func (m srcmap) parse(value string) error {
	state := "on"
	for _, entry := range strings.Split(value, ",") {
		if entry = strings.TrimSpace(entry); entry == "" {
			continue
		}

		src := entry
		if s, rest, ok := strings.Cut(entry, ":"); ok {
			if strings.Contains(rest, ":") {
				return loggerError("invalid debug entry %q", entry)
			}
			state, src = s, rest
		}

		enabled, err := utils.ParseEnabled(state)
		if err != nil {
			return loggerError("invalid state in debug entry %q", entry)
		}

		if src = strings.TrimSpace(src); src == "all" {
			src = "*"
		}
		m[src] = enabled
	}

	return nil
}

// ParseLevel parses the name of a severity level.
func ParseLevel(name string) (Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return DefaultLevel, loggerError("invalid log level %q", name)
}

// Configure updates the logging configuration.
func Configure(cfg *cfgapi.Config) error {
	deflog.Info("logger configuration update %+v", cfg)

	debug := make(srcmap)
	for _, value := range cfg.Debug {
		if err := debug.parse(value); err != nil {
			return err
		}
	}

	if cfg.Level != "" {
		level, err := ParseLevel(cfg.Level)
		if err != nil {
			return err
		}
		SetLevel(level)
	}

	// Headerless klog output gets source prefixes.
	prefix := cfg.LogSource
	if isSet(cfg.Klog.Logtostderr) && isSet(cfg.Klog.Skip_headers) {
		prefix = true
	}

	log.Lock()
	log.setDbgMap(debug)
	log.setPrefix(prefix)
	log.Unlock()

	return klogcontrol.Get().Configure(&cfg.Klog)
}

func isSet(b *bool) bool {
	return b != nil && *b
}

func init() {
	cfg := &cfgapi.Config{
		LogSource: os.Getenv(logSourceEnvVar) != "",
	}
	if value, ok := os.LookupEnv(debugEnvVar); ok {
		cfg.Debug = []string{value}
	}
	if err := Configure(cfg); err != nil {
		Default().Error("failed to configure logging from $%s: %v", debugEnvVar, err)
	}
}
