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

package errors

import (
	"fmt"
	"time"
)

// ConfigError represents configuration problems in the server map.
// Use this for malformed config documents or invalid server entries.
type ConfigError struct {
	// Key is the configuration key that has the problem (e.g., "mcpServers.github.command")
	Key string

	// Reason explains what's wrong with the configuration
	Reason string

	// Cause is the underlying error (e.g., file read error, parse error)
	Cause error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("config error at %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("config error: %s", e.Reason)
}

// Unwrap returns the underlying cause.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// ConfigurationError reports a launch command that cannot be resolved to an
// executable. It is fatal to the one connection that declared it.
type ConfigurationError struct {
	// Server is the configured server name
	Server string

	// Command is the command as written in the configuration
	Command string

	// Cause is the lookup error
	Cause error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Command == "" {
		return fmt.Sprintf("server %s: launch command is empty", e.Server)
	}
	return fmt.Sprintf("server %s: cannot resolve command %q: %v", e.Server, e.Command, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *ConfigurationError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *ConfigurationError) ErrorType() string { return "configuration" }

// IsRetryable implements ErrorClassifier.
func (e *ConfigurationError) IsRetryable() bool { return false }

// ConnectionError reports a failure to spawn a server process or to complete
// the protocol handshake with it.
type ConnectionError struct {
	// Server is the configured server name
	Server string

	// Phase is the step that failed ("spawn", "handshake", "list_tools")
	Phase string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("server %s: %s failed: %v", e.Server, e.Phase, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *ConnectionError) ErrorType() string { return "connection" }

// IsRetryable implements ErrorClassifier.
func (e *ConnectionError) IsRetryable() bool { return false }

// NotInitializedError is returned when a connection is used before it
// reached the ready state.
type NotInitializedError struct {
	// Server is the configured server name
	Server string

	// State is the lifecycle state the connection was in
	State string
}

// Error implements the error interface.
func (e *NotInitializedError) Error() string {
	if e.State != "" {
		return fmt.Sprintf("server %s not initialized (state: %s)", e.Server, e.State)
	}
	return fmt.Sprintf("server %s not initialized", e.Server)
}

// ExecutionError reports a tool invocation that kept failing until the retry
// budget was spent.
type ExecutionError struct {
	// Server is the server that owns the tool
	Server string

	// Tool is the tool name
	Tool string

	// Attempts is the number of attempts made
	Attempts int

	// Cause is the error from the last attempt
	Cause error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool %s on server %s failed after %d attempt(s): %v", e.Tool, e.Server, e.Attempts, e.Cause)
}

// Unwrap returns the error from the last attempt.
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *ExecutionError) ErrorType() string { return "execution" }

// IsRetryable implements ErrorClassifier. Retries were already spent.
func (e *ExecutionError) IsRetryable() bool { return false }

// IsUserVisible implements UserVisibleError.
func (e *ExecutionError) IsUserVisible() bool { return true }

// UserMessage implements UserVisibleError.
func (e *ExecutionError) UserMessage() string {
	return fmt.Sprintf("Error calling tool: %v", e.Cause)
}

// Suggestion implements UserVisibleError.
func (e *ExecutionError) Suggestion() string {
	return "Check that the server is healthy and the arguments are valid"
}

// ArgumentMismatchError reports model-supplied arguments that could not be
// coerced into the tool's declared parameters.
type ArgumentMismatchError struct {
	// Tool is the tool name
	Tool string

	// Expected is the number of declared parameters
	Expected int

	// Got is the number of arguments after normalization
	Got int

	// Cause is set when the arguments could not be parsed at all
	Cause error
}

// Error implements the error interface.
func (e *ArgumentMismatchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("tool %s: cannot parse arguments: %v", e.Tool, e.Cause)
	}
	return fmt.Sprintf("tool %s: expected %d argument(s), got %d", e.Tool, e.Expected, e.Got)
}

// Unwrap returns the parse error, if any.
func (e *ArgumentMismatchError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *ArgumentMismatchError) ErrorType() string { return "argument_mismatch" }

// IsRetryable implements ErrorClassifier.
func (e *ArgumentMismatchError) IsRetryable() bool { return false }

// IsUserVisible implements UserVisibleError.
func (e *ArgumentMismatchError) IsUserVisible() bool { return true }

// UserMessage implements UserVisibleError.
func (e *ArgumentMismatchError) UserMessage() string {
	return "Oops! There was a problem handling tool request. Please try again with a different prompt."
}

// Suggestion implements UserVisibleError.
func (e *ArgumentMismatchError) Suggestion() string {
	return "Rephrase the request so every tool parameter is supplied"
}

// ToolNotFoundError reports a tool name the registry does not know.
type ToolNotFoundError struct {
	// Tool is the requested tool name
	Tool string
}

// Error implements the error interface.
func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("tool not found: %s", e.Tool)
}

// ErrorType implements ErrorClassifier.
func (e *ToolNotFoundError) ErrorType() string { return "not_found" }

// IsRetryable implements ErrorClassifier.
func (e *ToolNotFoundError) IsRetryable() bool { return false }

// IsUserVisible implements UserVisibleError.
func (e *ToolNotFoundError) IsUserVisible() bool { return true }

// UserMessage implements UserVisibleError.
func (e *ToolNotFoundError) UserMessage() string {
	return "Oops! Failed to find requested tool. Please try again with a different prompt."
}

// Suggestion implements UserVisibleError.
func (e *ToolNotFoundError) Suggestion() string {
	return "List the available tools with: mcpagent tools"
}

// MaxRoundsError is returned when a run keeps requesting tools past the
// configured round limit.
type MaxRoundsError struct {
	// Rounds is the limit that was reached
	Rounds int
}

// Error implements the error interface.
func (e *MaxRoundsError) Error() string {
	return fmt.Sprintf("max rounds (%d) reached without a final answer", e.Rounds)
}

// IsUserVisible implements UserVisibleError.
func (e *MaxRoundsError) IsUserVisible() bool { return true }

// UserMessage implements UserVisibleError.
func (e *MaxRoundsError) UserMessage() string {
	return fmt.Sprintf("Stopped after %d rounds of tool calls without a final answer.", e.Rounds)
}

// Suggestion implements UserVisibleError.
func (e *MaxRoundsError) Suggestion() string {
	return "Increase --max-rounds or narrow the request"
}

// ProviderError represents failures from the model endpoint.
type ProviderError struct {
	// Provider is the name of the model provider (e.g., "openai")
	Provider string

	// StatusCode is the HTTP status code (if applicable)
	StatusCode int

	// Message is the human-readable error message
	Message string

	// RequestID correlates this error with provider logs
	RequestID string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("provider %s error", e.Provider)

	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s [HTTP %d]", msg, e.StatusCode)
	}

	msg = fmt.Sprintf("%s: %s", msg, e.Message)

	if e.RequestID != "" {
		msg = fmt.Sprintf("%s (request-id: %s)", msg, e.RequestID)
	}

	return msg
}

// Unwrap returns the underlying cause.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *ProviderError) ErrorType() string { return "provider" }

// IsRetryable implements ErrorClassifier.
// Server errors and rate limiting are retryable.
func (e *ProviderError) IsRetryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// TimeoutError represents operation timeouts.
type TimeoutError struct {
	// Operation describes what timed out (e.g., "tool call echo")
	Operation string

	// Duration is how long the operation ran before timing out
	Duration time.Duration

	// Cause is the underlying error (if any)
	Cause error
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s operation timed out after %v", e.Operation, e.Duration)
}

// Unwrap returns the underlying cause.
func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *TimeoutError) ErrorType() string { return "timeout" }

// IsRetryable implements ErrorClassifier.
func (e *TimeoutError) IsRetryable() bool { return true }
