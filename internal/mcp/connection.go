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
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/mcpagent/internal/log"
	"github.com/tombee/mcpagent/internal/tracing"
	"github.com/tombee/mcpagent/pkg/errors"
)

// State is the lifecycle state of a Connection.
type State string

const (
	StateCreated      State = "created"
	StateInitializing State = "initializing"
	StateReady        State = "ready"
	StateToolListed   State = "tool_listed"
	StateClosing      State = "closing"
	StateClosed       State = "closed"
	StateFailed       State = "failed"
)

// Usable reports whether tools can be listed or called in this state.
func (s State) Usable() bool {
	return s == StateReady || s == StateToolListed
}

// Connection defaults.
const (
	DefaultRetries    = 2
	DefaultRetryDelay = time.Second
	DefaultTimeout    = 30 * time.Second
)

// ConnectionConfig configures a single server connection.
type ConnectionConfig struct {
	// Name is the configured server name
	Name string

	// Command is the executable, resolved against PATH at initialization
	Command string

	// Args are the command-line arguments
	Args []string

	// Env overrides or extends the process environment
	Env map[string]string

	// Retries is the total number of attempts per tool call (defaults to 2)
	Retries int

	// RetryDelay is the fixed delay between attempts (defaults to 1s, negative means none)
	RetryDelay time.Duration

	// Timeout bounds each attempt (defaults to 30s)
	Timeout time.Duration

	// Launcher opens the channel (defaults to StdioLauncher)
	Launcher Launcher

	// LookPath resolves the command (defaults to exec.LookPath)
	LookPath func(file string) (string, error)

	// Logger is used for structured logging (optional)
	Logger *slog.Logger

	// Tracer creates lifecycle spans (optional)
	Tracer trace.Tracer
}

// Connection owns one tool server process and its channel.
type Connection struct {
	name       string
	command    string
	args       []string
	env        map[string]string
	retries    int
	retryDelay time.Duration
	timeout    time.Duration
	launcher   Launcher
	lookPath   func(string) (string, error)
	logger     *slog.Logger
	tracer     trace.Tracer

	// mu protects state and channel
	mu      sync.Mutex
	state   State
	channel Channel

	// cleanupMu serializes Cleanup
	cleanupMu sync.Mutex
}

// NewConnection creates a connection in the created state. Nothing is
// started until Initialize.
func NewConnection(cfg ConnectionConfig) *Connection {
	c := &Connection{
		name:       cfg.Name,
		command:    cfg.Command,
		args:       cfg.Args,
		env:        cfg.Env,
		retries:    cfg.Retries,
		retryDelay: cfg.RetryDelay,
		timeout:    cfg.Timeout,
		launcher:   cfg.Launcher,
		lookPath:   cfg.LookPath,
		logger:     cfg.Logger,
		tracer:     cfg.Tracer,
		state:      StateCreated,
	}

	if c.retries < 1 {
		c.retries = DefaultRetries
	}
	if c.retryDelay < 0 {
		c.retryDelay = 0
	} else if c.retryDelay == 0 {
		c.retryDelay = DefaultRetryDelay
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.launcher == nil {
		c.launcher = StdioLauncher
	}
	if c.lookPath == nil {
		c.lookPath = exec.LookPath
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = log.WithServer(c.logger, c.name)

	return c
}

// Name returns the configured server name.
func (c *Connection) Name() string {
	return c.name
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Initialize resolves the command, launches the server and performs the
// handshake. On failure any partially opened channel is closed and the
// connection moves to failed.
func (c *Connection) Initialize(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateCreated {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("server %s: cannot initialize from state %s", c.name, state)
	}
	c.state = StateInitializing
	c.mu.Unlock()

	ctx, span := tracing.StartConnection(ctx, c.tracer, c.name, "initialize")
	defer span.End()

	start := time.Now()
	err := c.initialize(ctx)
	if err != nil {
		recordInit("error", time.Since(start).Seconds())
		span.RecordError(err)
		return err
	}

	recordInit("success", time.Since(start).Seconds())
	span.SetOK()
	c.logger.Info("server initialized", log.DurationKey, time.Since(start).Milliseconds())
	return nil
}

func (c *Connection) initialize(ctx context.Context) error {
	if strings.TrimSpace(c.command) == "" {
		c.fail()
		return &errors.ConfigurationError{Server: c.name}
	}
	path, err := c.lookPath(c.command)
	if err != nil {
		c.fail()
		return &errors.ConfigurationError{Server: c.name, Command: c.command, Cause: err}
	}

	launch := LaunchConfig{
		Command: path,
		Args:    c.args,
		Env:     MergeEnv(os.Environ(), c.env),
	}
	ch, err := c.launcher(ctx, c.name, launch)
	if err != nil {
		c.fail()
		return &errors.ConnectionError{Server: c.name, Phase: "spawn", Cause: err}
	}

	if err := ch.Initialize(ctx); err != nil {
		c.closeChannel(ch)
		c.fail()
		return &errors.ConnectionError{Server: c.name, Phase: "handshake", Cause: err}
	}

	c.mu.Lock()
	if c.state != StateInitializing {
		// Cleanup ran while the handshake was in flight
		c.mu.Unlock()
		c.closeChannel(ch)
		return &errors.ConnectionError{
			Server: c.name,
			Phase:  "handshake",
			Cause:  errors.New("connection closed during initialization"),
		}
	}
	c.channel = ch
	c.state = StateReady
	c.mu.Unlock()
	return nil
}

// fail moves the connection to failed unless it is already being torn down.
func (c *Connection) fail() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateClosing && c.state != StateClosed {
		c.state = StateFailed
	}
}

// usableChannel returns the open channel or a NotInitializedError.
func (c *Connection) usableChannel() (Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.Usable() || c.channel == nil {
		return nil, &errors.NotInitializedError{Server: c.name, State: string(c.state)}
	}
	return c.channel, nil
}

// ListTools queries the server for its tool catalog.
func (c *Connection) ListTools(ctx context.Context) ([]ToolHandle, error) {
	ch, err := c.usableChannel()
	if err != nil {
		return nil, err
	}

	ctx, span := tracing.StartConnection(ctx, c.tracer, c.name, "list_tools")
	defer span.End()

	tools, err := ch.ListTools(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, &errors.ConnectionError{Server: c.name, Phase: "list_tools", Cause: err}
	}

	c.mu.Lock()
	if c.state == StateReady {
		c.state = StateToolListed
	}
	c.mu.Unlock()

	span.SetAttributes(map[string]any{"mcp.tool_count": len(tools)})
	c.logger.Debug("listed tools", "count", len(tools))
	return tools, nil
}

// ExecuteTool invokes a tool, retrying failed attempts on the same channel.
// A cancelled context stops retrying immediately and its error is returned
// unwrapped.
func (c *Connection) ExecuteTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	ch, err := c.usableChannel()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= c.retries; attempt++ {
		if attempt > 1 {
			c.logger.Info("retrying tool call", log.ToolKey, name, "delay", c.retryDelay)
			toolCallRetries.WithLabelValues(c.name).Inc()
			select {
			case <-ctx.Done():
				recordToolCall(name, "cancelled", time.Since(start).Seconds())
				return nil, ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}

		result, err := c.attempt(ctx, ch, name, args, attempt)
		if err == nil {
			recordToolCall(name, "success", time.Since(start).Seconds())
			return result, nil
		}
		if ctx.Err() != nil {
			recordToolCall(name, "cancelled", time.Since(start).Seconds())
			return nil, ctx.Err()
		}

		lastErr = err
		c.logger.Warn("error executing tool",
			log.ToolKey, name,
			log.AttemptKey, attempt,
			"retries", c.retries,
			"error", err,
		)
	}

	recordToolCall(name, "error", time.Since(start).Seconds())
	c.logger.Error("max retries reached", log.ToolKey, name, "attempts", c.retries)
	return nil, &errors.ExecutionError{Server: c.name, Tool: name, Attempts: c.retries, Cause: lastErr}
}

// attempt makes one bounded call.
func (c *Connection) attempt(ctx context.Context, ch Channel, name string, args map[string]any, attempt int) (*ToolResult, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	call := &log.ToolCall{
		Server:  c.name,
		Tool:    name,
		CallID:  log.CallIDFromContext(ctx),
		Attempt: attempt,
	}

	var result *ToolResult
	err := log.TimeToolCall(c.logger, call, func() error {
		var err error
		result, err = ch.CallTool(attemptCtx, name, args)
		if err != nil && attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			err = &errors.TimeoutError{Operation: "tool call " + name, Duration: c.timeout, Cause: err}
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Cleanup closes the channel and terminates the server process. It is
// idempotent, safe in any state, and never panics or returns an error;
// teardown problems are logged.
func (c *Connection) Cleanup() {
	c.cleanupMu.Lock()
	defer c.cleanupMu.Unlock()

	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	ch := c.channel
	c.channel = nil
	failed := c.state == StateFailed
	if !failed {
		c.state = StateClosing
	}
	c.mu.Unlock()

	if ch != nil {
		c.closeChannel(ch)
	}

	if !failed {
		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()
	}
	c.logger.Debug("server cleaned up")
}

// closeChannel closes ch, logging any error or panic.
func (c *Connection) closeChannel(ch Channel) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic while closing server channel", "panic", r)
		}
	}()
	if err := ch.Close(); err != nil {
		c.logger.Error("error during cleanup of server", "error", err)
	}
}

// MergeEnv overlays overrides onto base (KEY=VALUE entries). Overrides win.
// Keys that are only in overrides are appended in sorted order.
func MergeEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return append([]string(nil), base...)
	}

	merged := make([]string, 0, len(base)+len(overrides))
	seen := make(map[string]bool, len(overrides))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if v, ok := overrides[key]; ok {
			if !seen[key] {
				merged = append(merged, key+"="+v)
				seen[key] = true
			}
			continue
		}
		merged = append(merged, kv)
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		if !seen[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		merged = append(merged, k+"="+overrides[k])
	}
	return merged
}
