// Copyright (C) 2018 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log provides a context-first severity logger.
//
// Loggers are carried on a context.Context; package level functions pull the
// logger back off the context, so call sites stay a single line:
//
//	log.D(ctx, "joined %d buffers", n)
package log

import (
	"context"
	"fmt"
	"os"
)

type loggerKeyTy int

const loggerKey loggerKeyTy = 0

// Handler receives each formatted message that passes the severity filter.
type Handler func(s Severity, tag, message string)

// Logger formats and filters messages before handing them to a Handler.
type Logger struct {
	handler Handler
	filter  Severity
	tag     string
}

var defaultLogger = &Logger{
	handler: stderrHandler,
	filter:  Info,
}

func stderrHandler(s Severity, tag, message string) {
	if tag != "" {
		fmt.Fprintf(os.Stderr, "%v: [%s] %s\n", s, tag, message)
		return
	}
	fmt.Fprintf(os.Stderr, "%v: %s\n", s, message)
}

// New returns a Logger that sends messages at or above filter to handler.
func New(handler Handler, filter Severity) *Logger {
	return &Logger{handler: handler, filter: filter}
}

// Bind returns a context carrying the logger l.
func (l *Logger) Bind(ctx context.Context) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// From returns the logger carried by ctx, or the default stderr logger.
func From(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	return defaultLogger
}

// Tag returns a context whose logger prefixes every message with tag.
func Tag(ctx context.Context, tag string) context.Context {
	l := *From(ctx)
	l.tag = tag
	return l.Bind(ctx)
}

// D logs a debug message to the logger bound to ctx.
func D(ctx context.Context, fmt string, args ...interface{}) { From(ctx).Logf(Debug, fmt, args...) }

// I logs an informational message to the logger bound to ctx.
func I(ctx context.Context, fmt string, args ...interface{}) { From(ctx).Logf(Info, fmt, args...) }

// W logs a warning message to the logger bound to ctx.
func W(ctx context.Context, fmt string, args ...interface{}) { From(ctx).Logf(Warning, fmt, args...) }

// E logs an error message to the logger bound to ctx.
func E(ctx context.Context, fmt string, args ...interface{}) { From(ctx).Logf(Error, fmt, args...) }

// F logs a fatal message to the logger bound to ctx and then panics.
func F(ctx context.Context, fmt string, args ...interface{}) {
	From(ctx).Logf(Fatal, fmt, args...)
	panic(sprintf(fmt, args...))
}

// Logf formats and logs a message at severity s.
func (l *Logger) Logf(s Severity, format string, args ...interface{}) {
	if l == nil || s < l.filter || l.handler == nil {
		return
	}
	l.handler(s, l.tag, sprintf(format, args...))
}

func sprintf(format string, args ...interface{}) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
