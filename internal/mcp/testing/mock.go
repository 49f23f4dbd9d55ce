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

// Package testing provides mock channels and launchers for tests that need
// a Registry without spawning real server processes.
package testing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tombee/mcpagent/internal/mcp"
)

// MockChannel implements mcp.Channel for testing.
type MockChannel struct {
	tools     []mcp.ToolHandle
	initErr   error
	listErr   error
	callFunc  func(ctx context.Context, name string, args map[string]any) (*mcp.ToolResult, error)
	closeFunc func() error
	callDelay time.Duration

	mu          sync.RWMutex
	initialized bool
	calls       []MockCall
	closeCount  int
}

// MockCall records one CallTool invocation.
type MockCall struct {
	Name string
	Args map[string]any
}

// NewMockChannel creates a mock channel advertising the given tools.
func NewMockChannel(tools ...mcp.ToolHandle) *MockChannel {
	return &MockChannel{tools: tools}
}

// Initialize returns the configured handshake error, if any.
func (c *MockChannel) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initErr != nil {
		return c.initErr
	}
	c.initialized = true
	return nil
}

// ListTools returns the configured list of tools.
func (c *MockChannel) ListTools(ctx context.Context) ([]mcp.ToolHandle, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.listErr != nil {
		return nil, c.listErr
	}
	toolsCopy := make([]mcp.ToolHandle, len(c.tools))
	copy(toolsCopy, c.tools)
	return toolsCopy, nil
}

// CallTool executes a tool call using the configured handler.
func (c *MockChannel) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.ToolResult, error) {
	c.mu.Lock()
	c.calls = append(c.calls, MockCall{Name: name, Args: args})
	delay := c.callDelay
	callFunc := c.callFunc
	c.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if callFunc != nil {
		return callFunc(ctx, name, args)
	}

	return &mcp.ToolResult{
		Segments: []mcp.Segment{mcp.TextSegment{Text: fmt.Sprintf("Mock response for %s", name)}},
	}, nil
}

// Close counts the call and runs the configured close function.
func (c *MockChannel) Close() error {
	c.mu.Lock()
	c.closeCount++
	closeFunc := c.closeFunc
	c.mu.Unlock()

	if closeFunc != nil {
		return closeFunc()
	}
	return nil
}

// SetInitError makes Initialize fail.
func (c *MockChannel) SetInitError(err error) *MockChannel {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initErr = err
	return c
}

// SetListError makes ListTools fail.
func (c *MockChannel) SetListError(err error) *MockChannel {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listErr = err
	return c
}

// SetCallHandler sets a custom call handler.
func (c *MockChannel) SetCallHandler(f func(ctx context.Context, name string, args map[string]any) (*mcp.ToolResult, error)) *MockChannel {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callFunc = f
	return c
}

// SetCallDelay sets a delay for all tool calls.
func (c *MockChannel) SetCallDelay(d time.Duration) *MockChannel {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callDelay = d
	return c
}

// SetCloseFunc sets a custom close function.
func (c *MockChannel) SetCloseFunc(f func() error) *MockChannel {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeFunc = f
	return c
}

// Initialized reports whether the handshake succeeded.
func (c *MockChannel) Initialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initialized
}

// Calls returns the recorded tool calls.
func (c *MockChannel) Calls() []MockCall {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]MockCall, len(c.calls))
	copy(out, c.calls)
	return out
}

// CloseCount returns how many times Close was called.
func (c *MockChannel) CloseCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closeCount
}

// MockLauncher hands out pre-registered channels by server name.
type MockLauncher struct {
	mu          sync.Mutex
	channels    map[string]*MockChannel
	launchErrs  map[string]error
	launches    []string
	launchOrder []mcp.LaunchConfig
	closeOrder  []string
}

// NewMockLauncher creates an empty launcher.
func NewMockLauncher() *MockLauncher {
	return &MockLauncher{
		channels:   make(map[string]*MockChannel),
		launchErrs: make(map[string]error),
	}
}

// AddServer registers the channel returned for server. Set any close
// function on ch before calling AddServer.
func (l *MockLauncher) AddServer(server string, ch *MockChannel) *MockLauncher {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.channels[server] = ch

	name := server
	prev := ch.closeFunc
	ch.SetCloseFunc(func() error {
		l.mu.Lock()
		l.closeOrder = append(l.closeOrder, name)
		l.mu.Unlock()
		if prev != nil {
			return prev()
		}
		return nil
	})
	return l
}

// FailLaunch makes launching server fail with err.
func (l *MockLauncher) FailLaunch(server string, err error) *MockLauncher {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launchErrs[server] = err
	return l
}

// Launcher returns the mcp.Launcher backed by this mock.
func (l *MockLauncher) Launcher() mcp.Launcher {
	return func(ctx context.Context, server string, cfg mcp.LaunchConfig) (mcp.Channel, error) {
		l.mu.Lock()
		defer l.mu.Unlock()

		l.launches = append(l.launches, server)
		l.launchOrder = append(l.launchOrder, cfg)

		if err := l.launchErrs[server]; err != nil {
			return nil, err
		}
		ch, ok := l.channels[server]
		if !ok {
			return nil, fmt.Errorf("no mock channel for server %s", server)
		}
		return ch, nil
	}
}

// Launches returns the server names launched so far.
func (l *MockLauncher) Launches() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.launches...)
}

// LaunchConfigs returns the launch configurations in launch order.
func (l *MockLauncher) LaunchConfigs() []mcp.LaunchConfig {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]mcp.LaunchConfig(nil), l.launchOrder...)
}

// CloseOrder returns server names in the order their channels were closed.
func (l *MockLauncher) CloseOrder() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.closeOrder...)
}

// LookPath resolves every command to itself.
func LookPath(file string) (string, error) {
	return file, nil
}

// Tool builds a handle whose parameters are all strings.
func Tool(name, description string, params ...string) mcp.ToolHandle {
	props := make(map[string]any, len(params))
	for _, p := range params {
		props[p] = map[string]any{"type": "string"}
	}
	return mcp.ToolHandle{
		Name:        name,
		Description: description,
		Input:       mcp.ParameterShape{Properties: props, Required: params},
	}
}

// TextResult builds a single-segment text result.
func TextResult(text string) *mcp.ToolResult {
	return &mcp.ToolResult{Segments: []mcp.Segment{mcp.TextSegment{Text: text}}}
}
