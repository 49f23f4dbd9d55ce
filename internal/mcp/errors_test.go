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
	"errors"
	"fmt"
	"strings"
	"testing"

	agenterrors "github.com/tombee/mcpagent/pkg/errors"
)

func TestMCPError_Error(t *testing.T) {
	err := NewMCPError(ErrorCodeNotFound, "Tool 'x' not found").
		WithDetail("no ready server advertises it").
		WithSuggestions("List tools", "Check logs")

	msg := err.Error()
	for _, want := range []string{"Error: Tool 'x' not found", "→ no ready server advertises it", "Suggestions:", "- List tools", "- Check logs"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
}

func TestMCPError_UserVisible(t *testing.T) {
	var uv agenterrors.UserVisibleError = ErrCommandNotFound("npx")

	if !uv.IsUserVisible() {
		t.Error("IsUserVisible() = false")
	}
	if got := uv.UserMessage(); got != "Command 'npx' not found: Command 'npx' not found in PATH" {
		t.Errorf("UserMessage() = %q", got)
	}
	if uv.Suggestion() == "" {
		t.Error("Suggestion() is empty")
	}
}

func TestErrCommandNotFound_Suggestions(t *testing.T) {
	tests := []struct {
		command string
		want    string
	}{
		{"npx", "nodejs.org"},
		{"python3", "python.org"},
		{"uvx", "astral.sh"},
		{"custom", "/path/to/custom"},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			err := ErrCommandNotFound(tt.command)
			if err.Code != ErrorCodeCommandNotFound {
				t.Errorf("Code = %s", err.Code)
			}
			if !strings.Contains(strings.Join(err.Suggestions, "\n"), tt.want) {
				t.Errorf("suggestions %v missing %q", err.Suggestions, tt.want)
			}
		})
	}
}

func TestGetMCPError(t *testing.T) {
	cause := errors.New("exit status 1")
	wrapped := fmt.Errorf("run: %w", ErrStartFailed("files", cause))

	mcpErr := GetMCPError(wrapped)
	if mcpErr == nil {
		t.Fatal("GetMCPError() = nil")
	}
	if mcpErr.Code != ErrorCodeStartFailed {
		t.Errorf("Code = %s", mcpErr.Code)
	}
	if !errors.Is(wrapped, cause) {
		t.Error("cause not reachable through errors.Is")
	}

	if GetMCPError(errors.New("plain")) != nil {
		t.Error("GetMCPError(plain) != nil")
	}
}

func TestErrNoServersReady(t *testing.T) {
	err := ErrNoServersReady(3)
	if err.Code != ErrorCodeNoServers {
		t.Errorf("Code = %s", err.Code)
	}
	if !strings.Contains(err.Detail, "0 of 3") {
		t.Errorf("Detail = %q", err.Detail)
	}
}
