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
	"fmt"
	"sort"
)

// ParameterShape is the declared input of a tool: its properties and the
// subset of them that are required.
type ParameterShape struct {
	// Properties maps parameter name to its JSON Schema type descriptor
	Properties map[string]any `json:"properties"`

	// Required lists the required parameter names
	Required []string `json:"required"`
}

// PropertyNames returns the declared property names in sorted order.
func (s ParameterShape) PropertyNames() []string {
	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseParameterShape extracts properties and required names from a raw
// JSON Schema object. A nil or empty schema yields an empty shape.
func ParseParameterShape(raw json.RawMessage) (ParameterShape, error) {
	shape := ParameterShape{Properties: map[string]any{}}
	if len(raw) == 0 {
		return shape, nil
	}

	var schema struct {
		Properties map[string]any `json:"properties"`
		Required   []string       `json:"required"`
	}
	if err := json.Unmarshal(raw, &schema); err != nil {
		return shape, fmt.Errorf("invalid input schema: %w", err)
	}
	if schema.Properties != nil {
		shape.Properties = schema.Properties
	}
	shape.Required = schema.Required
	return shape, nil
}

// ToolHandle is the immutable description of one discovered tool.
type ToolHandle struct {
	// Name is the tool name as advertised by the server
	Name string

	// Description explains what the tool does
	Description string

	// Input is the declared parameter shape
	Input ParameterShape
}

// ToolKey is the identity of a tool within a registry.
type ToolKey struct {
	Name        string
	Description string
}

// Key returns the identity of the handle. Two handles with the same name and
// description are the same tool.
func (h ToolHandle) Key() ToolKey {
	return ToolKey{Name: h.Name, Description: h.Description}
}

// FunctionSchema renders the handle as a function-calling tool definition.
func (h ToolHandle) FunctionSchema() map[string]any {
	properties := h.Input.Properties
	if properties == nil {
		properties = map[string]any{}
	}
	required := h.Input.Required
	if required == nil {
		required = []string{}
	}

	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        h.Name,
			"description": h.Description,
			"parameters": map[string]any{
				"type":                 "object",
				"properties":           properties,
				"required":             required,
				"additionalProperties": false,
			},
		},
	}
}

// Segment is one typed piece of a tool result. The set of implementations
// is closed: TextSegment, ImageSegment, TextResourceSegment and
// BlobResourceSegment.
type Segment interface {
	segment()
}

// TextSegment is plain text output.
type TextSegment struct {
	Text string
}

// ImageSegment is base64 image data with its media type.
type ImageSegment struct {
	MimeType string
	Data     string
}

// TextResourceSegment is an embedded resource with textual contents.
type TextResourceSegment struct {
	URI      string
	MimeType string
	Text     string
}

// BlobResourceSegment is an embedded resource with base64 binary contents.
type BlobResourceSegment struct {
	URI      string
	MimeType string
	Blob     string
}

func (TextSegment) segment()         {}
func (ImageSegment) segment()        {}
func (TextResourceSegment) segment() {}
func (BlobResourceSegment) segment() {}

// ToolResult is the structured outcome of one tool invocation.
type ToolResult struct {
	// Segments are the content pieces in server order
	Segments []Segment

	// IsError is set when the tool reported a failure in-band
	IsError bool
}
