// Copyright 2025 Noctools
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log provides a thin facade over zap with key-value style calls and
// context embedding.
package log

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/noctools/prefixgen/pkg/private/serrors"
)

// Logger is the interface all components log through.
type Logger interface {
	// New returns a child logger with the given key-value context attached.
	New(ctx ...interface{}) Logger
	Debug(msg string, ctx ...interface{})
	Info(msg string, ctx ...interface{})
	Error(msg string, ctx ...interface{})
	// Enabled reports whether the given level is enabled.
	Enabled(lvl Level) bool
}

// Level is a logging priority.
type Level = zapcore.Level

// Available levels.
const (
	DebugLevel = zapcore.DebugLevel
	InfoLevel  = zapcore.InfoLevel
	ErrorLevel = zapcore.ErrorLevel
)

// Config configures the process-wide root logger.
type Config struct {
	// Level of the logging entries. One of "debug", "info", "error".
	// Defaults to "info".
	Level string
	// Console switches the encoder from JSON to a human-friendly console
	// format.
	Console bool
}

var root = zap.NewNop()

// Setup configures the root logger. It must be called before the root logger
// is used, typically at the start of main.
func Setup(cfg Config) error {
	lvl, err := parseLevel(cfg.Level)
	if err != nil {
		return err
	}
	zCfg := zap.NewProductionConfig()
	zCfg.Level = zap.NewAtomicLevelAt(lvl)
	zCfg.DisableStacktrace = true
	if cfg.Console {
		zCfg.Encoding = "console"
		zCfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		zCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	l, err := zCfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}
	root = l
	return nil
}

// Root returns the root logger. It is never nil.
func Root() Logger {
	return &logger{logger: root}
}

// New returns a logger derived from the root logger with the given context.
func New(ctx ...interface{}) Logger {
	return Root().New(ctx...)
}

// Discard returns a logger that drops everything.
func Discard() Logger {
	return &logger{logger: zap.NewNop()}
}

// Flush flushes any buffered log entries.
func Flush() {
	_ = root.Sync()
}

// NewFromZap wraps an existing zap logger. Mostly useful for tests.
func NewFromZap(l *zap.Logger) Logger {
	return &logger{logger: l}
}

// Debug logs at debug level on the root logger.
func Debug(msg string, ctx ...interface{}) { Root().Debug(msg, ctx...) }

// Info logs at info level on the root logger.
func Info(msg string, ctx ...interface{}) { Root().Info(msg, ctx...) }

// Error logs at error level on the root logger.
func Error(msg string, ctx ...interface{}) { Root().Error(msg, ctx...) }

type logger struct {
	logger *zap.Logger
}

func (l *logger) New(ctx ...interface{}) Logger {
	return &logger{logger: l.logger.With(toFields(ctx)...)}
}

func (l *logger) Debug(msg string, ctx ...interface{}) {
	l.logger.Debug(msg, toFields(ctx)...)
}

func (l *logger) Info(msg string, ctx ...interface{}) {
	l.logger.Info(msg, toFields(ctx)...)
}

func (l *logger) Error(msg string, ctx ...interface{}) {
	l.logger.Error(msg, toFields(ctx)...)
}

func (l *logger) Enabled(lvl Level) bool {
	return l.logger.Core().Enabled(lvl)
}

func toFields(ctx []interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(ctx)/2)
	for i := 0; i+1 < len(ctx); i += 2 {
		fields = append(fields, zap.Any(fmt.Sprint(ctx[i]), ctx[i+1]))
	}
	return fields
}

func parseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return InfoLevel, nil
	case "debug":
		return DebugLevel, nil
	case "error":
		return ErrorLevel, nil
	}
	return InfoLevel, serrors.New("unsupported log level", "level", s)
}
