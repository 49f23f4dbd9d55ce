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
	"strings"

	"github.com/spf13/cobra"

	"github.com/tombee/mcpagent/internal/commands/shared"
	"github.com/tombee/mcpagent/pkg/agent"
	pkgerrors "github.com/tombee/mcpagent/pkg/errors"
)

type callResponse struct {
	shared.JSONResponse
	Tool    string `json:"tool"`
	Server  string `json:"server"`
	IsError bool   `json:"is_error"`
	Output  string `json:"output"`
}

func newCallCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call <tool> [arguments]",
		Short: "Call one tool directly",
		Long: `Call a tool by name without involving a model.

Arguments are given as JSON. Lenient JSON is accepted (trailing commas,
unquoted keys). A tool with a single parameter also accepts a bare value.

Examples:
  mcpagent call echo '{"text": "hello"}'
  mcpagent call echo hello
  mcpagent call add '{a: 2, b: 3}'`,
		Annotations: map[string]string{"group": "mcp"},
		Args:        cobra.MinimumNArgs(1),
		RunE:        runCall,
	}
	return cmd
}

func runCall(cmd *cobra.Command, args []string) error {
	name := args[0]
	raw := strings.Join(args[1:], " ")

	cfg, err := LoadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	reg, err := openRegistry(ctx, cfg)
	if err != nil {
		return err
	}
	defer reg.TeardownAll()

	tool, ok := reg.LookupTool(name)
	if !ok {
		return shared.NewExecutionError("call failed", &pkgerrors.ToolNotFoundError{Tool: name})
	}

	var rawArgs any
	if raw != "" {
		rawArgs = raw
	}
	arguments, err := agent.NormalizeArguments(rawArgs, tool.Input)
	if err != nil {
		var mismatch *pkgerrors.ArgumentMismatchError
		if pkgerrors.As(err, &mismatch) {
			mismatch.Tool = name
		}
		return shared.NewExecutionError("call failed", err)
	}

	result, err := reg.Execute(ctx, tool, arguments)
	if err != nil {
		return shared.NewExecutionError("call failed", err)
	}

	server := ""
	if owner := reg.ResolveOwner(tool); owner != nil {
		server = owner.Name()
	}
	output := result.Flatten()

	out := cmd.OutOrStdout()
	if shared.GetJSON() {
		if err := shared.WriteJSON(out, callResponse{
			JSONResponse: shared.JSONResponse{Version: "1.0", Command: "call", Success: !result.IsError},
			Tool:         name,
			Server:       server,
			IsError:      result.IsError,
			Output:       output,
		}); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(out, output)
	}

	if result.IsError {
		return shared.NewExecutionError(fmt.Sprintf("tool %s reported an error", name), nil)
	}
	return nil
}
