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
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tombee/mcpagent/internal/log"
	"github.com/tombee/mcpagent/internal/mcp/server"
)

func newServeEchoCommand() *cobra.Command {
	var callsPerMinute int

	cmd := &cobra.Command{
		Use:   "serve-echo",
		Short: "Run the built-in demo MCP server on stdio",
		Long: `Run a small MCP server over stdin/stdout exposing echo, add, snapshot and
fail tools. Useful for trying mcpagent without installing a server:

  {"mcpServers": {"demo": {"command": "mcpagent", "args": ["serve-echo"]}}}`,
		Annotations: map[string]string{"group": "mcp"},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			srv := server.NewServer(server.ServerConfig{
				CallsPerMinute: callsPerMinute,
				Logger:         log.WithComponent(slog.Default(), "echo-server"),
			})
			return srv.Run(cmd.Context())
		},
	}

	cmd.Flags().IntVar(&callsPerMinute, "calls-per-minute", 0, "Limit tool calls per minute (0 = unlimited)")

	return cmd
}
