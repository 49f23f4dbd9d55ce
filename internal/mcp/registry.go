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
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/mcpagent/pkg/errors"
)

// Registry owns the connections built from one configuration and maps each
// discovered tool back to its owning connection. A registry is meant to be
// scoped to a single run.
type Registry struct {
	// connections are in configuration declaration order
	connections []*Connection

	// logger is used for structured logging
	logger *slog.Logger

	// mu protects tools and owners; both are replaced wholesale
	mu     sync.RWMutex
	tools  []ToolHandle
	owners map[ToolKey]*Connection
}

// RegistryConfig configures connection construction.
type RegistryConfig struct {
	// Launcher opens channels (defaults to StdioLauncher)
	Launcher Launcher

	// LookPath resolves launch commands (defaults to exec.LookPath)
	LookPath func(file string) (string, error)

	// Logger is used for structured logging (optional)
	Logger *slog.Logger

	// Tracer creates lifecycle spans (optional)
	Tracer trace.Tracer
}

// NewRegistry builds one connection per configured server. Nothing is
// started.
func NewRegistry(cfg *Config, opts RegistryConfig) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := &Registry{
		logger: logger,
		owners: make(map[ToolKey]*Connection),
	}

	cfg.Each(func(name string, entry *ServerEntry) {
		cc := entry.ConnectionConfig(name)
		cc.Launcher = opts.Launcher
		cc.LookPath = opts.LookPath
		cc.Logger = logger
		cc.Tracer = opts.Tracer
		r.connections = append(r.connections, NewConnection(cc))
	})

	return r
}

// Connections returns the connections in construction order.
func (r *Registry) Connections() []*Connection {
	out := make([]*Connection, len(r.connections))
	copy(out, r.connections)
	return out
}

// InitializeAll initializes every connection concurrently and waits. A
// failure is logged and leaves only that connection failed.
func (r *Registry) InitializeAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, conn := range r.connections {
		wg.Add(1)
		go func(conn *Connection) {
			defer wg.Done()
			if err := conn.Initialize(ctx); err != nil {
				r.logger.Error("error initializing server",
					"server", conn.Name(),
					"error", err,
				)
			}
		}(conn)
	}
	wg.Wait()
}

// DiscoverTools lists tools on every usable connection in order and rebuilds
// the tool index. Connections that are not usable are skipped. When two
// servers advertise the same name and description the first one wins.
func (r *Registry) DiscoverTools(ctx context.Context) []ToolHandle {
	var tools []ToolHandle
	owners := make(map[ToolKey]*Connection)

	for _, conn := range r.connections {
		if !conn.State().Usable() {
			continue
		}

		listed, err := conn.ListTools(ctx)
		if err != nil {
			r.logger.Error("error listing tools",
				"server", conn.Name(),
				"error", err,
			)
			continue
		}

		for _, tool := range listed {
			key := tool.Key()
			if prev, exists := owners[key]; exists {
				r.logger.Warn("duplicate tool ignored",
					"tool", tool.Name,
					"server", conn.Name(),
					"owner", prev.Name(),
				)
				continue
			}
			owners[key] = conn
			tools = append(tools, tool)
		}
	}

	r.mu.Lock()
	r.tools = tools
	r.owners = owners
	r.mu.Unlock()

	return append([]ToolHandle(nil), tools...)
}

// Tools returns the tools from the last discovery pass.
func (r *Registry) Tools() []ToolHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]ToolHandle(nil), r.tools...)
}

// LookupTool returns the first discovered tool with the given name.
func (r *Registry) LookupTool(name string) (ToolHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, tool := range r.tools {
		if tool.Name == name {
			return tool, true
		}
	}
	return ToolHandle{}, false
}

// ResolveOwner returns the connection that advertised the tool, or nil when
// the tool is unknown or its owner is no longer usable.
func (r *Registry) ResolveOwner(tool ToolHandle) *Connection {
	r.mu.RLock()
	conn := r.owners[tool.Key()]
	r.mu.RUnlock()

	if conn == nil || !conn.State().Usable() {
		return nil
	}
	return conn
}

// Execute resolves the tool's owner and invokes it.
func (r *Registry) Execute(ctx context.Context, tool ToolHandle, args map[string]any) (*ToolResult, error) {
	conn := r.ResolveOwner(tool)
	if conn == nil {
		return nil, &errors.ToolNotFoundError{Tool: tool.Name}
	}
	return conn.ExecuteTool(ctx, tool.Name, args)
}

// TeardownAll cleans up every connection in reverse construction order. A
// panic in one cleanup is logged and the sweep continues. The tool index is
// cleared.
func (r *Registry) TeardownAll() {
	for i := len(r.connections) - 1; i >= 0; i-- {
		r.cleanup(r.connections[i])
	}

	r.mu.Lock()
	r.tools = nil
	r.owners = make(map[ToolKey]*Connection)
	r.mu.Unlock()
}

func (r *Registry) cleanup(conn *Connection) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("panic during server cleanup",
				"server", conn.Name(),
				"panic", rec,
			)
		}
	}()
	conn.Cleanup()
}
