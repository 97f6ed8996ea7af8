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

// Package testlog provides loggers that write to the test output.
package testlog

import (
	"context"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/noctools/prefixgen/pkg/log"
)

// NewLogger builds a new Logger that logs all messages to the given testing.TB.
func NewLogger(t testing.TB, opts ...zaptest.LoggerOption) log.Logger {
	return log.NewFromZap(zaptest.NewLogger(t, opts...))
}

// WithLogger returns a context carrying a test logger.
func WithLogger(ctx context.Context, t testing.TB) context.Context {
	return log.CtxWith(ctx, NewLogger(t))
}
