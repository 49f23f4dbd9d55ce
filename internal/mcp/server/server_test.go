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

package server

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/mcpagent/internal/log"
)

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok)
	return text.Text
}

func TestNewServer_Defaults(t *testing.T) {
	s := NewServer(ServerConfig{Logger: log.Discard()})
	assert.Equal(t, "mcpagent-echo", s.name)
	assert.Equal(t, "dev", s.version)
	assert.NotNil(t, s.MCPServer())
}

func TestNewServer_RegistersTools(t *testing.T) {
	s := NewServer(ServerConfig{Logger: log.Discard(), CallsPerMinute: 1})

	tools := s.MCPServer().ListTools()
	require.Len(t, tools, 4)
	for _, name := range []string{"echo", "add", "snapshot", "fail"} {
		require.Contains(t, tools, name)
	}

	echo := tools["echo"].Handler
	req := callRequest("echo", map[string]any{"text": "hi"})
	first, err := echo(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "hi", resultText(t, first))

	second, err := echo(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.IsError)
}

func TestHandlers(t *testing.T) {
	s := NewServer(ServerConfig{Logger: log.Discard()})
	ctx := context.Background()

	tests := []struct {
		name      string
		handler   server.ToolHandlerFunc
		args      map[string]any
		want      string
		wantError bool
	}{
		{name: "echo", handler: s.handleEcho, args: map[string]any{"text": "hello"}, want: "hello"},
		{name: "echo missing text", handler: s.handleEcho, args: map[string]any{}, wantError: true},
		{name: "add", handler: s.handleAdd, args: map[string]any{"a": 1.5, "b": 2.0}, want: "3.5"},
		{name: "add integers", handler: s.handleAdd, args: map[string]any{"a": 40.0, "b": 2.0}, want: "42"},
		{name: "add missing operand", handler: s.handleAdd, args: map[string]any{"a": 1.0}, wantError: true},
		{name: "fail", handler: s.handleFail, args: map[string]any{"message": "broken"}, want: "broken", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.handler(ctx, callRequest(tt.name, tt.args))
			require.NoError(t, err)
			assert.Equal(t, tt.wantError, result.IsError)
			if tt.want != "" {
				assert.Equal(t, tt.want, resultText(t, result))
			}
		})
	}
}

func TestHandleSnapshot(t *testing.T) {
	s := NewServer(ServerConfig{Logger: log.Discard()})

	result, err := s.handleSnapshot(context.Background(), callRequest("snapshot", nil))
	require.NoError(t, err)
	require.Len(t, result.Content, 4)

	_, ok := mcp.AsImageContent(result.Content[1])
	assert.True(t, ok)
	res, ok := mcp.AsEmbeddedResource(result.Content[2])
	require.True(t, ok)
	_, ok = mcp.AsTextResourceContents(res.Resource)
	assert.True(t, ok)
}

func TestLimited(t *testing.T) {
	s := NewServer(ServerConfig{Logger: log.Discard(), CallsPerMinute: 1})
	h := s.limited(s.handleEcho)
	req := callRequest("echo", map[string]any{"text": "hi"})

	first, err := h(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.IsError)

	second, err := h(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.IsError)
	assert.Contains(t, resultText(t, second), "rate limit")
}

func TestRateLimiter(t *testing.T) {
	unlimited := NewRateLimiter(0)
	for i := 0; i < 100; i++ {
		require.True(t, unlimited.AllowCall())
	}

	limited := NewRateLimiter(3)
	allowed := 0
	for i := 0; i < 10; i++ {
		if limited.AllowCall() {
			allowed++
		}
	}
	assert.Equal(t, 3, allowed)
}
