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
	"fmt"
	"strings"
)

// Flatten renders the result as text for a tool message. Text segments and
// textual resources are inlined, images and binary resources become
// placeholders naming their media type. Segment order is preserved.
func (r *ToolResult) Flatten() string {
	if r == nil {
		return ""
	}

	var sb strings.Builder
	for _, seg := range r.Segments {
		switch s := seg.(type) {
		case TextSegment:
			sb.WriteString(s.Text)
		case ImageSegment:
			fmt.Fprintf(&sb, "[Image: %s]", s.MimeType)
		case TextResourceSegment:
			sb.WriteString(s.Text)
		case BlobResourceSegment:
			fmt.Fprintf(&sb, "[Binary Resource: %s]", s.MimeType)
		}
	}
	return sb.String()
}
