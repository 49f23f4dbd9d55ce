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
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ClientName and ClientVersion identify this module in the MCP handshake.
const (
	ClientName    = "mcpagent"
	ClientVersion = "0.1.0"
)

// Channel is the request/response link to one tool server.
type Channel interface {
	// Initialize performs the protocol handshake.
	Initialize(ctx context.Context) error

	// ListTools returns the server's tool catalog.
	ListTools(ctx context.Context) ([]ToolHandle, error)

	// CallTool invokes one tool.
	CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error)

	// Close releases the channel and terminates the server process, if any.
	Close() error
}

// LaunchConfig describes how to start a tool server.
type LaunchConfig struct {
	// Command is the resolved executable path
	Command string

	// Args are the command-line arguments
	Args []string

	// Env is the full environment in KEY=VALUE form
	Env []string
}

// Launcher opens a channel to a server. It spawns the process but does not
// perform the handshake.
type Launcher func(ctx context.Context, server string, cfg LaunchConfig) (Channel, error)

// StdioLauncher spawns the server as a child process speaking MCP over
// stdin/stdout.
func StdioLauncher(_ context.Context, _ string, cfg LaunchConfig) (Channel, error) {
	c, err := client.NewStdioMCPClient(cfg.Command, cfg.Env, cfg.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to create MCP client: %w", err)
	}
	return &mcpChannel{client: c}, nil
}

// InProcessLauncher returns a Launcher that connects every server name to
// the given in-process MCP server. The launch command is ignored.
func InProcessLauncher(srv *server.MCPServer) Launcher {
	return func(_ context.Context, _ string, _ LaunchConfig) (Channel, error) {
		c, err := client.NewInProcessClient(srv)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-process MCP client: %w", err)
		}
		return &mcpChannel{client: c}, nil
	}
}

// mcpChannel adapts an mcp-go client to Channel.
type mcpChannel struct {
	client *client.Client
}

func (c *mcpChannel) Initialize(ctx context.Context) error {
	if err := c.client.Start(ctx); err != nil {
		return fmt.Errorf("failed to start MCP client: %w", err)
	}

	initReq := mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo: mcp.Implementation{
				Name:    ClientName,
				Version: ClientVersion,
			},
		},
	}
	if _, err := c.client.Initialize(ctx, initReq); err != nil {
		return fmt.Errorf("initialize request failed: %w", err)
	}
	return nil
}

func (c *mcpChannel) ListTools(ctx context.Context) ([]ToolHandle, error) {
	result, err := c.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	handles := make([]ToolHandle, 0, len(result.Tools))
	for _, tool := range result.Tools {
		h, err := handleFromTool(tool)
		if err != nil {
			return nil, err
		}
		handles = append(handles, h)
	}
	return handles, nil
}

// handleFromTool prefers the raw input schema when the server sent one.
func handleFromTool(tool mcp.Tool) (ToolHandle, error) {
	h := ToolHandle{Name: tool.Name, Description: tool.Description}

	if len(tool.RawInputSchema) > 0 {
		shape, err := ParseParameterShape(tool.RawInputSchema)
		if err != nil {
			return h, fmt.Errorf("tool %s: %w", tool.Name, err)
		}
		h.Input = shape
		return h, nil
	}

	h.Input = ParameterShape{
		Properties: tool.InputSchema.Properties,
		Required:   tool.InputSchema.Required,
	}
	if h.Input.Properties == nil {
		h.Input.Properties = map[string]any{}
	}
	return h, nil
}

func (c *mcpChannel) CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	req := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}

	result, err := c.client.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("tool call failed: %w", err)
	}
	return resultFromMCP(result), nil
}

// resultFromMCP converts protocol content into segments. Unknown content
// kinds (audio, resource links) are rendered as text placeholders.
func resultFromMCP(result *mcp.CallToolResult) *ToolResult {
	out := &ToolResult{
		IsError:  result.IsError,
		Segments: make([]Segment, 0, len(result.Content)),
	}

	for _, content := range result.Content {
		if text, ok := mcp.AsTextContent(content); ok {
			out.Segments = append(out.Segments, TextSegment{Text: text.Text})
		} else if image, ok := mcp.AsImageContent(content); ok {
			out.Segments = append(out.Segments, ImageSegment{MimeType: image.MIMEType, Data: image.Data})
		} else if res, ok := mcp.AsEmbeddedResource(content); ok {
			if tr, ok := mcp.AsTextResourceContents(res.Resource); ok {
				out.Segments = append(out.Segments, TextResourceSegment{URI: tr.URI, MimeType: tr.MIMEType, Text: tr.Text})
			} else if br, ok := mcp.AsBlobResourceContents(res.Resource); ok {
				out.Segments = append(out.Segments, BlobResourceSegment{URI: br.URI, MimeType: br.MIMEType, Blob: br.Blob})
			}
		} else if audio, ok := mcp.AsAudioContent(content); ok {
			out.Segments = append(out.Segments, TextSegment{Text: fmt.Sprintf("[Audio: %s]", audio.MIMEType)})
		} else if link, ok := content.(mcp.ResourceLink); ok {
			out.Segments = append(out.Segments, TextSegment{Text: fmt.Sprintf("[Resource Link: %s]", link.URI)})
		}
	}
	return out
}

func (c *mcpChannel) Close() error {
	if c.client == nil {
		return nil
	}
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("failed to close MCP client: %w", err)
	}
	return nil
}
