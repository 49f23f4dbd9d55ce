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

package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tombee/mcpagent/internal/commands/shared"
	"github.com/tombee/mcpagent/internal/log"
)

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand creates the root Cobra command for mcpagent
func NewRootCommand() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "mcpagent",
		Short: "mcpagent - drive a chat model through MCP tool servers",
		Long: `mcpagent connects a chat model to the tools exposed by MCP servers.

Servers are launched as child processes from a configuration file and torn
down when each run finishes.

Run 'mcpagent validate' to check your server configuration.
Run 'mcpagent chat' to start an interactive session.`,
		SilenceUsage:  true, // Don't show usage on errors
		SilenceErrors: true, // We handle errors ourselves for proper exit codes
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			slog.SetDefault(log.New(loggingConfig(logLevel)))
		},
	}

	// Get flag pointers from shared package
	verbose, quiet, json, config := shared.RegisterFlagPointers()

	// Add global flags
	cmd.PersistentFlags().BoolVarP(verbose, "verbose", "v", false, "Enable verbose output")
	cmd.PersistentFlags().BoolVarP(quiet, "quiet", "q", false, "Suppress non-error output")
	cmd.PersistentFlags().BoolVar(json, "json", false, "Output in JSON format")
	cmd.PersistentFlags().StringVar(config, "config", "", "Path to the MCP server configuration (default: mcp.json)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: trace, debug, info, warn, error")

	return cmd
}

// loggingConfig layers the global flags over the environment.
func loggingConfig(level string) *log.Config {
	cfg := log.FromEnv()
	switch {
	case level != "":
		cfg.Level = level
	case shared.GetVerbose():
		cfg.Level = "debug"
	case shared.GetQuiet():
		cfg.Level = "warn"
	}
	return cfg
}

// HandleExitError handles exit errors with proper exit codes
func HandleExitError(err error) {
	shared.HandleExitError(err)
}
