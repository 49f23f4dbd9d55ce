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

/*
Package tracing provides OpenTelemetry span helpers for orchestration runs.

Spans are created through the global tracer provider. Without an SDK
installed the spans are no-ops, so callers never need to check whether
tracing is enabled.

	ctx, span := tracing.StartRun(ctx, tracing.Tracer(), runID)
	defer span.End()

	ctx, round := tracing.StartRound(ctx, tracing.Tracer(), 1)
	defer round.End()

All Span methods are safe to call on a nil *Span.
*/
package tracing
