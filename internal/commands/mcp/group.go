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

// Package mcp implements the mcpagent server and tool commands.
package mcp

import (
	"github.com/spf13/cobra"
)

// NewMCPCommands returns the top-level tool server commands.
func NewMCPCommands() []*cobra.Command {
	return []*cobra.Command{
		newToolsCommand(),
		newCallCommand(),
		newValidateCommand(),
		newConfigCommand(),
		newServeEchoCommand(),
	}
}
