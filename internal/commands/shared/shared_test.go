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

package shared

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/tombee/mcpagent/internal/mcp"
)

// mockUserVisibleError is a test implementation of UserVisibleError
type mockUserVisibleError struct {
	message    string
	suggestion string
	visible    bool
}

func (e *mockUserVisibleError) Error() string       { return e.message }
func (e *mockUserVisibleError) IsUserVisible() bool { return e.visible }
func (e *mockUserVisibleError) UserMessage() string { return e.message }
func (e *mockUserVisibleError) Suggestion() string  { return e.suggestion }

func TestReportError(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		wantCode       int
		wantSuggestion string
	}{
		{
			name:     "plain error",
			err:      errors.New("boom"),
			wantCode: ExitFailed,
		},
		{
			name:     "exit error code",
			err:      NewInvalidConfigError("bad config", errors.New("missing command")),
			wantCode: ExitInvalidConfig,
		},
		{
			name:           "wrapped suggestion",
			err:            fmt.Errorf("run: %w", &mockUserVisibleError{message: "denied", suggestion: "Check the key", visible: true}),
			wantCode:       ExitFailed,
			wantSuggestion: "Check the key",
		},
		{
			name:     "hidden suggestion",
			err:      &mockUserVisibleError{message: "internal", suggestion: "nope", visible: false},
			wantCode: ExitFailed,
		},
		{
			name:           "mcp error through exit error",
			err:            NewNoServersError("chat failed", mcp.ErrNoServersReady(2)),
			wantCode:       ExitNoServers,
			wantSuggestion: "Suggestion:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			code := ReportError(&buf, tt.err)
			if code != tt.wantCode {
				t.Errorf("code = %d, want %d", code, tt.wantCode)
			}

			out := buf.String()
			if !strings.HasPrefix(out, "Error: ") {
				t.Errorf("output %q missing Error prefix", out)
			}
			if tt.wantSuggestion == "" && strings.Contains(out, "Suggestion:") {
				t.Errorf("unexpected suggestion in %q", out)
			}
			if tt.wantSuggestion != "" && !strings.Contains(out, tt.wantSuggestion) {
				t.Errorf("output %q missing %q", out, tt.wantSuggestion)
			}
		})
	}
}

func TestExitError_Unwrap(t *testing.T) {
	cause := errors.New("cause")
	err := NewProviderError("model failed", cause)

	if !errors.Is(err, cause) {
		t.Error("ExitError should unwrap to its cause")
	}
	if got := err.Error(); got != "model failed: cause" {
		t.Errorf("Error() = %q", got)
	}
	if got := (&ExitError{Message: "only"}).Error(); got != "only" {
		t.Errorf("Error() = %q", got)
	}
}

func TestIsNonInteractive(t *testing.T) {
	for _, key := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "CIRCLECI", "JENKINS_HOME"} {
		t.Setenv(key, "")
	}

	t.Setenv("MCPAGENT_NON_INTERACTIVE", "true")
	if !IsNonInteractive() {
		t.Error("explicit env var should force non-interactive")
	}

	t.Setenv("MCPAGENT_NON_INTERACTIVE", "")
	t.Setenv("JENKINS_HOME", "/var/jenkins")
	if !IsNonInteractive() {
		t.Error("JENKINS_HOME should count as CI")
	}
}
