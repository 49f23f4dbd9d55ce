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
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tombee/mcpagent/internal/commands/shared"
)

// toolInfo is the JSON form of one discovered tool.
type toolInfo struct {
	Name        string         `json:"name"`
	Server      string         `json:"server"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
	Required    []string       `json:"required,omitempty"`
}

type toolsResponse struct {
	shared.JSONResponse
	Tools []toolInfo `json:"tools"`
}

func newToolsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List tools exposed by the configured servers",
		Long: `Start every configured MCP server, list the tools each one exposes and
shut the servers down again.

Servers that fail to start are skipped with a warning in the log.

Examples:
  mcpagent tools
  mcpagent tools --config servers.yaml --json`,
		Annotations: map[string]string{"group": "mcp"},
		Args:        cobra.NoArgs,
		RunE:        runTools,
	}
	return cmd
}

func runTools(cmd *cobra.Command, _ []string) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}

	reg, err := openRegistry(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer reg.TeardownAll()

	tools := reg.Tools()
	infos := make([]toolInfo, 0, len(tools))
	for _, tool := range tools {
		info := toolInfo{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  tool.Input.Properties,
			Required:    tool.Input.Required,
		}
		if owner := reg.ResolveOwner(tool); owner != nil {
			info.Server = owner.Name()
		}
		infos = append(infos, info)
	}

	out := cmd.OutOrStdout()
	if shared.GetJSON() {
		return shared.WriteJSON(out, toolsResponse{
			JSONResponse: shared.JSONResponse{Version: "1.0", Command: "tools", Success: true},
			Tools:        infos,
		})
	}

	if len(infos) == 0 {
		fmt.Fprintln(out, "No tools available.")
		return nil
	}

	for _, info := range infos {
		fmt.Fprintf(out, "%s %s\n", shared.Header.Render(info.Name), shared.Muted.Render("("+info.Server+")"))
		if info.Description != "" {
			for _, line := range strings.Split(wrapText(info.Description, 72), "\n") {
				fmt.Fprintf(out, "    %s\n", line)
			}
		}
		if params := paramSummary(info); params != "" {
			fmt.Fprintf(out, "    %s %s\n", shared.Muted.Render("params:"), params)
		}
	}
	return nil
}

// paramSummary renders parameters as "a*, b" with required ones starred.
func paramSummary(info toolInfo) string {
	required := make(map[string]bool, len(info.Required))
	for _, name := range info.Required {
		required[name] = true
	}

	names := make([]string, 0, len(info.Parameters))
	for name := range info.Parameters {
		names = append(names, name)
	}
	slices.Sort(names)

	for i, name := range names {
		if required[name] {
			names[i] = name + "*"
		}
	}
	return strings.Join(names, ", ")
}
