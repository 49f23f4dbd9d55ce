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
	"errors"
	"log/slog"
	"strings"

	"github.com/tombee/mcpagent/internal/commands/shared"
	internalmcp "github.com/tombee/mcpagent/internal/mcp"
	"github.com/tombee/mcpagent/internal/tracing"
	pkgerrors "github.com/tombee/mcpagent/pkg/errors"
)

// DefaultConfigPath is used when --config is not given.
const DefaultConfigPath = "mcp.json"

// RegistryOptions builds the connection options for command registries.
// Tests replace it to launch in-process servers.
var RegistryOptions = func() internalmcp.RegistryConfig {
	return internalmcp.RegistryConfig{
		Logger: slog.Default(),
		Tracer: tracing.Tracer(),
	}
}

// ConfigPath returns the configured server file path.
func ConfigPath() string {
	if p := shared.GetConfigPath(); p != "" {
		return p
	}
	return DefaultConfigPath
}

// LoadConfig loads and validates the server configuration.
func LoadConfig() (*internalmcp.Config, error) {
	path := ConfigPath()
	cfg, err := internalmcp.LoadConfig(path)
	if err != nil {
		return nil, shared.NewInvalidConfigError("failed to load configuration", internalmcp.ErrInvalidConfig(path, err))
	}
	if err := cfg.Validate(); err != nil {
		return nil, shared.NewInvalidConfigError("invalid configuration", internalmcp.ErrInvalidConfig(path, err))
	}
	return cfg, nil
}

// openRegistry initializes every server and discovers tools. The caller
// must call TeardownAll.
func openRegistry(ctx context.Context, cfg *internalmcp.Config) (*internalmcp.Registry, error) {
	reg := internalmcp.NewRegistry(cfg, RegistryOptions())
	reg.InitializeAll(ctx)
	reg.DiscoverTools(ctx)

	for _, conn := range reg.Connections() {
		if conn.State().Usable() {
			return reg, nil
		}
	}
	if err := ctx.Err(); err != nil {
		reg.TeardownAll()
		return nil, err
	}
	reg.TeardownAll()
	return nil, shared.NewNoServersError("no tool servers available", internalmcp.ErrNoServersReady(cfg.Len()))
}

// errorCode maps err to a stable JSON error code.
func errorCode(err error) string {
	if mcpErr := internalmcp.GetMCPError(err); mcpErr != nil {
		return string(mcpErr.Code)
	}
	var classifier pkgerrors.ErrorClassifier
	if errors.As(err, &classifier) {
		return classifier.ErrorType()
	}
	return "error"
}

func wrapText(text string, width int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}

	var lines []string
	var currentLine strings.Builder

	for _, word := range words {
		if currentLine.Len() > 0 && currentLine.Len()+len(word)+1 > width {
			lines = append(lines, currentLine.String())
			currentLine.Reset()
		}
		if currentLine.Len() > 0 {
			currentLine.WriteString(" ")
		}
		currentLine.WriteString(word)
	}
	if currentLine.Len() > 0 {
		lines = append(lines, currentLine.String())
	}

	return strings.Join(lines, "\n")
}
