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

// Package server implements a small MCP server used for demos and tests.
// It exposes echo, add, snapshot and fail tools.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/tombee/mcpagent/internal/log"
)

// Server wraps the MCP server and its tools.
type Server struct {
	mcpServer   *server.MCPServer
	name        string
	version     string
	rateLimiter *RateLimiter
	logger      *slog.Logger
}

// ServerConfig configures the demo server.
type ServerConfig struct {
	// Name is the server name (default: "mcpagent-echo")
	Name string

	// Version is the server version (default: "dev")
	Version string

	// CallsPerMinute limits tool calls (default: unlimited)
	CallsPerMinute int

	// Logger is used for structured logging; it must not write to stdout
	// when serving over stdio (default: stderr at info)
	Logger *slog.Logger
}

// NewServer creates a server with all demo tools registered.
func NewServer(config ServerConfig) *Server {
	if config.Name == "" {
		config.Name = "mcpagent-echo"
	}
	if config.Version == "" {
		config.Version = "dev"
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(&log.Config{Level: "info", Format: log.FormatText, Output: os.Stderr})
	}

	s := &Server{
		mcpServer:   server.NewMCPServer(config.Name, config.Version),
		name:        config.Name,
		version:     config.Version,
		rateLimiter: NewRateLimiter(config.CallsPerMinute),
		logger:      logger,
	}
	s.registerTools()
	return s
}

// MCPServer returns the underlying mcp-go server, for in-process clients.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.Tool{
		Name:        "echo",
		Description: "Echo the given text back unchanged.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"text": map[string]interface{}{
					"type":        "string",
					"description": "Text to echo",
				},
			},
			Required: []string{"text"},
		},
	}, s.limited(s.handleEcho))

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "add",
		Description: "Add two numbers and return the sum.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"a": map[string]interface{}{"type": "number", "description": "First addend"},
				"b": map[string]interface{}{"type": "number", "description": "Second addend"},
			},
			Required: []string{"a", "b"},
		},
	}, s.limited(s.handleAdd))

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "snapshot",
		Description: "Return a sample result with text, image and embedded resource content.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, s.limited(s.handleSnapshot))

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "fail",
		Description: "Always report a tool error with the given message.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"message": map[string]interface{}{"type": "string", "description": "Error message"},
			},
			Required: []string{"message"},
		},
	}, s.limited(s.handleFail))
}

// limited rejects calls over the rate limit with an in-band tool error.
func (s *Server) limited(h server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if !s.rateLimiter.AllowCall() {
			s.logger.Warn("tool call rate limited", log.ToolKey, request.Params.Name)
			return errorResponse("rate limit exceeded, try again later"), nil
		}
		s.logger.Debug("tool call", log.ToolKey, request.Params.Name)
		return h(ctx, request)
	}
}

func (s *Server) handleEcho(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := request.RequireString("text")
	if err != nil {
		return errorResponse(err.Error()), nil
	}
	return textResponse(text), nil
}

func (s *Server) handleAdd(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a, err := request.RequireFloat("a")
	if err != nil {
		return errorResponse(err.Error()), nil
	}
	b, err := request.RequireFloat("b")
	if err != nil {
		return errorResponse(err.Error()), nil
	}
	return textResponse(strconv.FormatFloat(a+b, 'f', -1, 64)), nil
}

// samplePNG is a 1x1 transparent PNG.
const samplePNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII="

func (s *Server) handleSnapshot(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent("snapshot: "),
			mcp.NewImageContent(samplePNG, "image/png"),
			mcp.NewEmbeddedResource(mcp.TextResourceContents{
				URI:      "memo://notes",
				MIMEType: "text/plain",
				Text:     " notes ",
			}),
			mcp.NewEmbeddedResource(mcp.BlobResourceContents{
				URI:      "memo://archive",
				MIMEType: "application/zip",
				Blob:     "UEsFBgAAAAAAAAAAAAAAAAAAAAAAAA==",
			}),
		},
	}, nil
}

func (s *Server) handleFail(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	message, err := request.RequireString("message")
	if err != nil {
		return errorResponse(err.Error()), nil
	}
	return errorResponse(message), nil
}

// Run serves over stdio until stdin closes.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting demo MCP server", slog.String("name", s.name), slog.String("version", s.version))

	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}

func errorResponse(message string) *mcp.CallToolResult {
	return mcp.NewToolResultError(message)
}

func textResponse(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}
