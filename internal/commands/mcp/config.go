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
	"github.com/spf13/cobra"

	"github.com/tombee/mcpagent/internal/commands/shared"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the server configuration with secrets redacted",
		Long: `Print the loaded server configuration as JSON in declaration order.

Environment values whose names look like credentials (KEY, TOKEN, SECRET,
PASSWORD) are replaced before printing.`,
		Annotations: map[string]string{"group": "mcp"},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig()
			if err != nil {
				return err
			}
			return shared.WriteJSON(cmd.OutOrStdout(), cfg.Redacted())
		},
	}
	return cmd
}
