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

package tracing

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName is the tracer name used for every span in this module.
const InstrumentationName = "github.com/tombee/mcpagent"

// Tracer returns the module tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}

// Span wraps an OpenTelemetry span with nil-safe helpers.
type Span struct {
	span trace.Span
}

// StartRun creates the root span for one orchestration run.
func StartRun(ctx context.Context, tracer trace.Tracer, runID string) (context.Context, *Span) {
	return start(ctx, tracer, "agent.run",
		attribute.String("run.id", runID),
		attribute.String("span.type", "agent.run"),
	)
}

// StartRound creates a span for one model round.
func StartRound(ctx context.Context, tracer trace.Tracer, round int) (context.Context, *Span) {
	return start(ctx, tracer, fmt.Sprintf("agent.round: %d", round),
		attribute.Int("round.number", round),
		attribute.String("span.type", "agent.round"),
	)
}

// StartToolCall creates a span for one tool invocation.
func StartToolCall(ctx context.Context, tracer trace.Tracer, server, tool, callID string) (context.Context, *Span) {
	return start(ctx, tracer, fmt.Sprintf("tool.call: %s", tool),
		attribute.String("mcp.server", server),
		attribute.String("mcp.tool", tool),
		attribute.String("tool.call_id", callID),
		attribute.String("span.type", "tool.call"),
	)
}

// StartConnection creates a span for a connection lifecycle phase such as
// "initialize" or "list_tools".
func StartConnection(ctx context.Context, tracer trace.Tracer, server, phase string) (context.Context, *Span) {
	return start(ctx, tracer, fmt.Sprintf("mcp.%s: %s", phase, server),
		attribute.String("mcp.server", server),
		attribute.String("mcp.phase", phase),
		attribute.String("span.type", "mcp.connection"),
	)
}

func start(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (_ context.Context, s *Span) {
	if tracer == nil {
		return ctx, nil
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Warn("panic during span start", "error", r, "span_name", name)
			s = nil
		}
	}()

	ctx, span := tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
	return ctx, &Span{span: span}
}

// SetAttributes adds key-value attributes to the span.
func (s *Span) SetAttributes(attrs map[string]any) {
	if s == nil || s.span == nil {
		return
	}
	s.span.SetAttributes(toAttributes(attrs)...)
}

// AddEvent records a timestamped event within the span.
func (s *Span) AddEvent(name string, attrs map[string]any) {
	if s == nil || s.span == nil {
		return
	}
	s.span.AddEvent(name, trace.WithAttributes(toAttributes(attrs)...))
}

// RecordError records err and marks the span failed.
func (s *Span) RecordError(err error) {
	if s == nil || s.span == nil || err == nil {
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

// SetOK marks the span successful.
func (s *Span) SetOK() {
	if s == nil || s.span == nil {
		return
	}
	s.span.SetStatus(codes.Ok, "")
}

// End marks the span as complete.
func (s *Span) End() {
	if s == nil || s.span == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Warn("panic during span end", "error", r)
		}
	}()

	s.span.End()
}

// TraceID returns the trace ID as a string.
func (s *Span) TraceID() string {
	if s == nil || s.span == nil {
		return ""
	}
	return s.span.SpanContext().TraceID().String()
}

func toAttributes(attrs map[string]any) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		switch val := v.(type) {
		case string:
			out = append(out, attribute.String(k, val))
		case int:
			out = append(out, attribute.Int(k, val))
		case int64:
			out = append(out, attribute.Int64(k, val))
		case float64:
			out = append(out, attribute.Float64(k, val))
		case bool:
			out = append(out, attribute.Bool(k, val))
		default:
			out = append(out, attribute.String(k, fmt.Sprintf("%v", val)))
		}
	}
	return out
}
