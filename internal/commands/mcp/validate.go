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
	"fmt"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/tombee/mcpagent/internal/commands/shared"
	internalmcp "github.com/tombee/mcpagent/internal/mcp"
)

// serverCheck is the validation outcome for one server.
type serverCheck struct {
	Name     string   `json:"name"`
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	Tools    *int     `json:"tools,omitempty"`
}

type validateResponse struct {
	shared.JSONResponse
	Path    string        `json:"path"`
	Servers []serverCheck `json:"servers"`
}

func newValidateCommand() *cobra.Command {
	var start bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the MCP server configuration",
		Long: `Validate the MCP server configuration file.

Checks:
- Server name format
- Command is present and found on PATH
- Arguments don't contain shell injection patterns
- Environment variables are properly formatted

With --start each valid server is also launched and its tools counted.

Examples:
  mcpagent validate
  mcpagent validate --config servers.yaml --start`,
		Annotations: map[string]string{"group": "mcp"},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, start)
		},
	}

	cmd.Flags().BoolVar(&start, "start", false, "Launch each server and list its tools")

	return cmd
}

func runValidate(cmd *cobra.Command, start bool) error {
	path := ConfigPath()
	cfg, err := internalmcp.LoadConfig(path)
	if err != nil {
		return shared.NewInvalidConfigError("failed to load configuration", internalmcp.ErrInvalidConfig(path, err))
	}

	opts := RegistryOptions()
	lookPath := opts.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}

	var checks []serverCheck
	failed := 0
	cfg.Each(func(name string, entry *internalmcp.ServerEntry) {
		check := serverCheck{Name: name, Valid: true}
		if err := internalmcp.ValidateServerName(name); err != nil {
			check.Errors = append(check.Errors, err.Error())
		}
		if err := entry.Validate(); err != nil {
			check.Errors = append(check.Errors, err.Error())
		}
		if entry.Command != "" {
			if _, err := lookPath(entry.Command); err != nil {
				mcpErr := internalmcp.ErrCommandNotFound(entry.Command)
				check.Warnings = append(check.Warnings, mcpErr.UserMessage())
			}
		}
		if len(check.Errors) > 0 {
			check.Valid = false
			failed++
		}
		checks = append(checks, check)
	})

	if start {
		startServers(cmd, cfg, opts, checks)
	}

	out := cmd.OutOrStdout()
	if shared.GetJSON() {
		if err := shared.WriteJSON(out, validateResponse{
			JSONResponse: shared.JSONResponse{Version: "1.0", Command: "validate", Success: failed == 0},
			Path:         path,
			Servers:      checks,
		}); err != nil {
			return err
		}
	} else {
		printChecks(cmd, path, checks)
	}

	if failed > 0 {
		return shared.NewInvalidConfigError(fmt.Sprintf("%d of %d servers invalid", failed, len(checks)), nil)
	}
	return nil
}

// startServers launches each valid server through its own connection and
// records the tool count or the failure.
func startServers(cmd *cobra.Command, cfg *internalmcp.Config, opts internalmcp.RegistryConfig, checks []serverCheck) {
	ctx := cmd.Context()
	for i := range checks {
		if !checks[i].Valid {
			continue
		}
		entry, _ := cfg.Get(checks[i].Name)
		cc := entry.ConnectionConfig(checks[i].Name)
		cc.Launcher = opts.Launcher
		cc.LookPath = opts.LookPath
		cc.Logger = opts.Logger
		cc.Tracer = opts.Tracer

		conn := internalmcp.NewConnection(cc)
		tools, err := func() ([]internalmcp.ToolHandle, error) {
			defer conn.Cleanup()
			if err := conn.Initialize(ctx); err != nil {
				return nil, err
			}
			return conn.ListTools(ctx)
		}()
		if err != nil {
			checks[i].Warnings = append(checks[i].Warnings, "start failed: "+err.Error())
			continue
		}
		n := len(tools)
		checks[i].Tools = &n
	}
}

func printChecks(cmd *cobra.Command, path string, checks []serverCheck) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n", shared.Header.Render(path))
	if len(checks) == 0 {
		fmt.Fprintln(out, shared.RenderWarn("no servers configured"))
	}

	for _, check := range checks {
		line := check.Name
		if check.Tools != nil {
			line = fmt.Sprintf("%s (%d tools)", check.Name, *check.Tools)
		}
		if check.Valid {
			fmt.Fprintln(out, shared.RenderOK(line))
		} else {
			fmt.Fprintln(out, shared.RenderError(line))
		}
		for _, msg := range check.Errors {
			fmt.Fprintf(out, "    %s\n", msg)
		}
		for _, msg := range check.Warnings {
			fmt.Fprintf(out, "    %s\n", shared.RenderWarn(msg))
		}
	}
}
