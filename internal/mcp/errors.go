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
	"errors"
	"fmt"
	"strings"
)

// MCPErrorCode represents a category of MCP error.
type MCPErrorCode string

const (
	// ErrorCodeNotFound indicates a server or tool was not found.
	ErrorCodeNotFound MCPErrorCode = "NOT_FOUND"
	// ErrorCodeCommandNotFound indicates a command was not found.
	ErrorCodeCommandNotFound MCPErrorCode = "COMMAND_NOT_FOUND"
	// ErrorCodeStartFailed indicates a server failed to start.
	ErrorCodeStartFailed MCPErrorCode = "START_FAILED"
	// ErrorCodeNoServers indicates no server reached the ready state.
	ErrorCodeNoServers MCPErrorCode = "NO_SERVERS"
	// ErrorCodeConfig indicates a configuration error.
	ErrorCodeConfig MCPErrorCode = "CONFIG"
)

// MCPError is an error type that includes suggestions for resolution.
// The CLI prints it as is.
type MCPError struct {
	// Code is the error category.
	Code MCPErrorCode
	// Message is the primary error message.
	Message string
	// Detail provides additional context.
	Detail string
	// Suggestions are actionable steps to resolve the error.
	Suggestions []string
	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	var sb strings.Builder

	sb.WriteString("Error: ")
	sb.WriteString(e.Message)
	sb.WriteString("\n")

	if e.Detail != "" {
		sb.WriteString("  → ")
		sb.WriteString(e.Detail)
		sb.WriteString("\n")
	}

	if len(e.Suggestions) > 0 {
		sb.WriteString("\n  Suggestions:\n")
		for _, s := range e.Suggestions {
			sb.WriteString("  - ")
			sb.WriteString(s)
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

// Unwrap returns the underlying error.
func (e *MCPError) Unwrap() error {
	return e.Cause
}

// IsUserVisible implements pkg/errors.UserVisibleError.
func (e *MCPError) IsUserVisible() bool {
	return true
}

// UserMessage implements pkg/errors.UserVisibleError.
func (e *MCPError) UserMessage() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Detail)
	}
	return e.Message
}

// Suggestion implements pkg/errors.UserVisibleError.
// The full list is available in Error() output.
func (e *MCPError) Suggestion() string {
	if len(e.Suggestions) == 0 {
		return ""
	}
	return e.Suggestions[0]
}

// NewMCPError creates a new MCPError.
func NewMCPError(code MCPErrorCode, message string) *MCPError {
	return &MCPError{
		Code:    code,
		Message: message,
	}
}

// WithDetail adds detail to the error.
func (e *MCPError) WithDetail(detail string) *MCPError {
	e.Detail = detail
	return e
}

// WithSuggestions adds suggestions to the error.
func (e *MCPError) WithSuggestions(suggestions ...string) *MCPError {
	e.Suggestions = suggestions
	return e
}

// WithCause adds an underlying cause to the error.
func (e *MCPError) WithCause(cause error) *MCPError {
	e.Cause = cause
	return e
}

// ErrServerNotFound creates an error for a server name missing from the configuration.
func ErrServerNotFound(name string) *MCPError {
	return NewMCPError(ErrorCodeNotFound, fmt.Sprintf("MCP server '%s' not found", name)).
		WithSuggestions(
			"List configured servers: mcpagent config",
			"Check the server name in the mcpServers section of the config file",
		)
}

// ErrToolNotFound creates an error for a tool no ready server advertises.
func ErrToolNotFound(tool string) *MCPError {
	return NewMCPError(ErrorCodeNotFound, fmt.Sprintf("Tool '%s' not found", tool)).
		WithSuggestions(
			"List available tools: mcpagent tools",
			"Check that the server providing the tool initialized (see logs with --log-level debug)",
		)
}

// ErrCommandNotFound creates an error for a command that is not on PATH.
func ErrCommandNotFound(command string) *MCPError {
	suggestions := []string{
		"Verify the command is installed and in your PATH",
		fmt.Sprintf("Use an absolute path: \"command\": \"/path/to/%s\"", command),
	}

	switch {
	case command == "npx" || command == "node":
		suggestions = append(suggestions, "Install Node.js: https://nodejs.org/")
	case command == "python" || command == "python3":
		suggestions = append(suggestions, "Install Python: https://python.org/")
	case command == "uvx" || command == "uv":
		suggestions = append(suggestions, "Install uv: https://docs.astral.sh/uv/")
	}

	return NewMCPError(ErrorCodeCommandNotFound, fmt.Sprintf("Command '%s' not found", command)).
		WithDetail(fmt.Sprintf("Command '%s' not found in PATH", command)).
		WithSuggestions(suggestions...)
}

// ErrStartFailed creates an error for a server that failed to start.
func ErrStartFailed(name string, cause error) *MCPError {
	return NewMCPError(ErrorCodeStartFailed, fmt.Sprintf("Failed to start MCP server '%s'", name)).
		WithDetail(cause.Error()).
		WithCause(cause).
		WithSuggestions(
			"Verify the command and arguments are correct",
			"Ensure required environment variables are set",
			"Validate configuration: mcpagent validate",
		)
}

// ErrNoServersReady creates an error for a run where every server failed.
func ErrNoServersReady(total int) *MCPError {
	return NewMCPError(ErrorCodeNoServers, "No MCP servers are ready").
		WithDetail(fmt.Sprintf("0 of %d configured servers initialized", total)).
		WithSuggestions(
			"Validate configuration: mcpagent validate",
			"Re-run with --log-level debug to see initialization errors",
		)
}

// ErrInvalidConfig creates an error for invalid configuration.
func ErrInvalidConfig(path string, cause error) *MCPError {
	return NewMCPError(ErrorCodeConfig, "Invalid MCP server configuration").
		WithDetail(cause.Error()).
		WithCause(cause).
		WithSuggestions(
			fmt.Sprintf("Check the syntax of %s", path),
			`Expected shape: {"mcpServers": {"name": {"command": "...", "args": [...], "env": {...}}}}`,
		)
}

// GetMCPError extracts an MCPError from an error chain.
func GetMCPError(err error) *MCPError {
	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}
	return nil
}
