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
	"context"
	"log/slog"
	"strings"
)

// slogger emits log/slog records through one of our Loggers. Attributes
// are rendered as key=value pairs after the message.
type slogger struct {
	l     Logger
	attrs []slog.Attr
	group string
}

var _ slog.Handler = &slogger{}

// SetSlogLogger sets up the default logger for the slog package.
func SetSlogLogger(source string) {
	var l Logger

	if source == "" {
		l = Default()
	} else {
		l = log.get(source)
	}

	slog.SetDefault(slog.New(l.SlogHandler()))
}

func (l logger) SlogHandler() slog.Handler {
	return &slogger{l: l}
}

func (s *slogger) Enabled(_ context.Context, level slog.Level) bool {
	switch {
	case level < slog.LevelInfo:
		return s.l.DebugEnabled()
	case level < slog.LevelWarn:
		return log.emits(LevelInfo)
	case level < slog.LevelError:
		return log.emits(LevelWarn)
	}
	return true
}

func (s *slogger) Handle(_ context.Context, r slog.Record) error {
	msg := strings.Builder{}
	msg.WriteString(r.Message)

	for _, a := range s.attrs {
		s.writeAttr(&msg, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		s.writeAttr(&msg, a)
		return true
	})

	switch {
	case r.Level < slog.LevelInfo:
		s.l.Debug("%s", msg.String())
	case r.Level < slog.LevelWarn:
		s.l.Info("%s", msg.String())
	case r.Level < slog.LevelError:
		s.l.Warn("%s", msg.String())
	default:
		s.l.Error("%s", msg.String())
	}
	return nil
}

func (s *slogger) writeAttr(msg *strings.Builder, a slog.Attr) {
	msg.WriteString(" ")
	if s.group != "" {
		msg.WriteString(s.group + ".")
	}
	msg.WriteString(a.Key)
	msg.WriteString("=")
	msg.WriteString(a.Value.String())
}

func (s *slogger) WithAttrs(attrs []slog.Attr) slog.Handler {
	n := *s
	n.attrs = append(append([]slog.Attr{}, s.attrs...), attrs...)
	return &n
}

func (s *slogger) WithGroup(name string) slog.Handler {
	n := *s
	if n.group != "" {
		n.group += "." + name
	} else {
		n.group = name
	}
	return &n
}
