// Copyright 2025 Tom Barlow
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
	"time"
)

// ToolCall describes one tool invocation for logging purposes.
type ToolCall struct {
	// Server is the server that owns the tool.
	Server string

	// Tool is the tool name.
	Tool string

	// CallID is the identifier assigned by the orchestration loop, if any.
	CallID string

	// Attempt is the 1-based attempt number.
	Attempt int
}

func (c *ToolCall) attrs() []any {
	attrs := []any{
		ServerKey, c.Server,
		ToolKey, c.Tool,
	}
	if c.CallID != "" {
		attrs = append(attrs, CallIDKey, c.CallID)
	}
	if c.Attempt > 0 {
		attrs = append(attrs, AttemptKey, c.Attempt)
	}
	return attrs
}

// LogToolCallStart logs that a tool call is about to be dispatched.
func LogToolCallStart(logger *slog.Logger, call *ToolCall) {
	logger.Debug("tool call started", append([]any{EventKey, "tool_call_start"}, call.attrs()...)...)
}

// LogToolCallEnd logs the outcome of a tool call. Failures log at warn so a
// retried call does not read as fatal.
func LogToolCallEnd(logger *slog.Logger, call *ToolCall, duration time.Duration, err error) {
	attrs := append([]any{
		EventKey, "tool_call_end",
		DurationKey, duration.Milliseconds(),
		"success", err == nil,
	}, call.attrs()...)

	if err != nil {
		attrs = append(attrs, "error", err.Error())
		logger.Log(context.Background(), slog.LevelWarn, "tool call failed", attrs...)
		return
	}
	logger.Log(context.Background(), slog.LevelDebug, "tool call completed", attrs...)
}

// TimeToolCall runs fn between start and end log records.
func TimeToolCall(logger *slog.Logger, call *ToolCall, fn func() error) error {
	start := time.Now()
	LogToolCallStart(logger, call)
	err := fn()
	LogToolCallEnd(logger, call, time.Since(start), err)
	return err
}

type callIDKey struct{}

// ContextWithCallID attaches a tool call identifier to ctx so that lower
// layers can tag their log records with it.
func ContextWithCallID(ctx context.Context, callID string) context.Context {
	return context.WithValue(ctx, callIDKey{}, callID)
}

// CallIDFromContext returns the tool call identifier attached to ctx, if any.
func CallIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(callIDKey{}).(string)
	return id
}
