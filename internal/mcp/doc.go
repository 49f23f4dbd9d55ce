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

/*
Package mcp manages connections to Model Context Protocol tool servers.

A Registry is built from a Config (the "mcpServers" map) and owns one
Connection per entry. Connections are started together, their tools are
collected into a single index, and every connection is torn down when the
registry is done.

# Connection Lifecycle

A Connection moves through these states:

  - created: built from configuration, nothing started
  - initializing: command resolved, process spawned, handshake in flight
  - ready: handshake complete
  - tool_listed: tool catalog fetched at least once
  - closing, closed: teardown in progress or complete
  - failed: initialization failed; terminal

Cleanup is idempotent and safe in every state.

# Usage

	cfg, err := mcp.LoadConfig("mcp.json")
	if err != nil {
	    return err
	}

	reg := mcp.NewRegistry(cfg, mcp.RegistryConfig{Logger: logger})
	defer reg.TeardownAll()

	reg.InitializeAll(ctx)
	for _, tool := range reg.DiscoverTools(ctx) {
	    fmt.Println(tool.Name, "-", tool.Description)
	}

	tool, _ := reg.LookupTool("echo")
	result, err := reg.Execute(ctx, tool, map[string]any{"text": "hi"})
	fmt.Println(result.Flatten())

# Configuration

	{
	  "mcpServers": {
	    "filesystem": {
	      "command": "npx",
	      "args": ["-y", "@modelcontextprotocol/server-filesystem", "/tmp"],
	      "env": {"DEBUG": "1"},
	      "retries": 3,
	      "timeout": 60
	    }
	  }
	}

Files ending in .yaml or .yml are read as YAML with the same shape.
Declaration order is preserved and determines teardown order (reverse) and
which server wins when two advertise an identical tool (first).

# Transports

StdioLauncher spawns each server as a child process. InProcessLauncher
connects to an mcp-go server running in the same process, which is what the
tests use.
*/
package mcp
