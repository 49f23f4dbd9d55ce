// Package agent drives a conversational model through multiple rounds of
// MCP tool calls until it produces a final answer.
//
// Each run:
// 1. Starts every configured tool server and discovers their tools
// 2. Sends the conversation and tool schemas to the model
// 3. Executes requested tool calls in order and appends their results
// 4. Repeats until the model answers without tool calls
// 5. Tears down every server, then closes the output stream
//
// Output is a stream of Chunks: content from the model, progress while
// tools run, and notices when a run ends early.
package agent

import (
	"context"

	"github.com/tombee/mcpagent/internal/mcp"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message represents a message in the conversation.
type Message struct {
	// Role is the message sender (system, user, assistant, tool)
	Role string `json:"role"`

	// Content is the message text
	Content string `json:"content"`

	// ToolCalls are tool invocations requested by the assistant (optional)
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID links a tool result to its corresponding call (optional)
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ToolCall represents a request to execute a tool.
type ToolCall struct {
	// ID is a unique identifier for this tool call
	ID string `json:"id"`

	// Name is the tool to execute
	Name string `json:"name"`

	// Arguments are the tool inputs (JSON string or map)
	Arguments any `json:"arguments"`
}

// ModelResponse represents one model reply.
type ModelResponse struct {
	// Content is the text response
	Content string

	// ToolCalls are tools the model wants to execute
	ToolCalls []ToolCall

	// FinishReason indicates why the response ended
	FinishReason string

	// Usage tracks token consumption
	Usage TokenUsage
}

// TokenUsage tracks token consumption for a request.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// CompletionRequest is what the loop sends to the model each round.
type CompletionRequest struct {
	// Messages is the conversation so far
	Messages []Message

	// Tools are function schemas, nil when no tools were discovered
	Tools []map[string]any

	// ToolChoice is the tool selection mode ("auto", "none", "required")
	ToolChoice string
}

// Model is the conversational model the loop talks to.
type Model interface {
	Complete(ctx context.Context, req CompletionRequest) (*ModelResponse, error)
}

// ChunkKind classifies an output chunk.
type ChunkKind string

const (
	// ChunkContent is text produced by the model.
	ChunkContent ChunkKind = "content"
	// ChunkNotice is a user-facing message explaining why a run ended early.
	ChunkNotice ChunkKind = "notice"
	// ChunkProgress reports a tool call about to run.
	ChunkProgress ChunkKind = "progress"
)

// Chunk is one piece of run output.
type Chunk struct {
	Kind ChunkKind
	Text string
}

// ToolRegistry is the subset of *mcp.Registry the loop uses.
type ToolRegistry interface {
	InitializeAll(ctx context.Context)
	DiscoverTools(ctx context.Context) []mcp.ToolHandle
	LookupTool(name string) (mcp.ToolHandle, bool)
	ResolveOwner(tool mcp.ToolHandle) *mcp.Connection
	Execute(ctx context.Context, tool mcp.ToolHandle, args map[string]any) (*mcp.ToolResult, error)
	TeardownAll()
}

var _ ToolRegistry = (*mcp.Registry)(nil)
