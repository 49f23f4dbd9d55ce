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

package mcp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectionInits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcpagent_connection_initializations_total",
			Help: "Total MCP server initializations by outcome",
		},
		[]string{"outcome"},
	)

	connectionInitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mcpagent_connection_initialization_duration_seconds",
		Help:    "Time to spawn and handshake an MCP server",
		Buckets: prometheus.DefBuckets,
	})

	toolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcpagent_tool_calls_total",
			Help: "Total tool invocations by tool and status",
		},
		[]string{"tool", "status"},
	)

	toolCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mcpagent_tool_call_duration_seconds",
			Help:    "Duration of tool invocations including retries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	toolCallRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcpagent_tool_call_retries_total",
			Help: "Total tool call retry attempts by server",
		},
		[]string{"server"},
	)
)

func recordInit(outcome string, seconds float64) {
	connectionInits.WithLabelValues(outcome).Inc()
	connectionInitDuration.Observe(seconds)
}

func recordToolCall(tool, status string, seconds float64) {
	toolCalls.WithLabelValues(tool, status).Inc()
	toolCallDuration.WithLabelValues(tool).Observe(seconds)
}
