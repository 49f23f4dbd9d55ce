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
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlatten(t *testing.T) {
	tests := []struct {
		name   string
		result *ToolResult
		want   string
	}{
		{name: "nil result", result: nil, want: ""},
		{name: "empty", result: &ToolResult{}, want: ""},
		{
			name:   "text segments concatenated",
			result: &ToolResult{Segments: []Segment{TextSegment{Text: "foo"}, TextSegment{Text: "bar"}}},
			want:   "foobar",
		},
		{
			name: "all segment kinds in order",
			result: &ToolResult{Segments: []Segment{
				TextSegment{Text: "A"},
				ImageSegment{MimeType: "image/png", Data: "aGk="},
				TextResourceSegment{URI: "file:///x", MimeType: "text/plain", Text: "B"},
				BlobResourceSegment{URI: "file:///y", MimeType: "application/pdf", Blob: "aGk="},
			}},
			want: "A[Image: image/png]B[Binary Resource: application/pdf]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.result.Flatten())
		})
	}
}

func TestParseParameterShape(t *testing.T) {
	tests := []struct {
		name         string
		raw          string
		wantProps    []string
		wantRequired []string
		wantErr      bool
	}{
		{name: "empty", raw: "", wantProps: []string{}},
		{
			name:         "properties and required",
			raw:          `{"type":"object","properties":{"b":{"type":"number"},"a":{"type":"string"}},"required":["a"]}`,
			wantProps:    []string{"a", "b"},
			wantRequired: []string{"a"},
		},
		{name: "no properties", raw: `{"type":"object"}`, wantProps: []string{}},
		{name: "invalid", raw: `{"properties":`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shape, err := ParseParameterShape(json.RawMessage(tt.raw))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantProps, shape.PropertyNames())
			assert.Equal(t, tt.wantRequired, shape.Required)
		})
	}
}

func TestToolHandle_FunctionSchema(t *testing.T) {
	h := ToolHandle{
		Name:        "echo",
		Description: "Echo text",
		Input: ParameterShape{
			Properties: map[string]any{"text": map[string]any{"type": "string"}},
			Required:   []string{"text"},
		},
	}

	data, err := json.Marshal(h.FunctionSchema())
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"type": "function",
		"function": {
			"name": "echo",
			"description": "Echo text",
			"parameters": {
				"type": "object",
				"properties": {"text": {"type": "string"}},
				"required": ["text"],
				"additionalProperties": false
			}
		}
	}`, string(data))

	empty, err := json.Marshal(ToolHandle{Name: "ping"}.FunctionSchema())
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"type": "function",
		"function": {
			"name": "ping",
			"description": "",
			"parameters": {"type": "object", "properties": {}, "required": [], "additionalProperties": false}
		}
	}`, string(empty))
}

func TestToolHandle_Key(t *testing.T) {
	a := ToolHandle{Name: "echo", Description: "Echo text"}
	b := ToolHandle{Name: "echo", Description: "Echo text", Input: ParameterShape{Required: []string{"x"}}}
	c := ToolHandle{Name: "echo", Description: "Other"}

	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
}
