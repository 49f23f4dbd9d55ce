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

package chat

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/mcpagent/internal/log"
	"github.com/tombee/mcpagent/internal/mcp"
	"github.com/tombee/mcpagent/internal/mcp/server"
	mcptest "github.com/tombee/mcpagent/internal/mcp/testing"
	"github.com/tombee/mcpagent/pkg/agent"
)

// echoModel asks for the echo tool on the first round of every prompt and
// answers with the tool output on the second.
type echoModel struct {
	mu       sync.Mutex
	requests []agent.CompletionRequest
}

func (m *echoModel) Complete(_ context.Context, req agent.CompletionRequest) (*agent.ModelResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	last := req.Messages[len(req.Messages)-1]
	if last.Role == agent.RoleTool {
		return &agent.ModelResponse{Content: "echo said " + last.Content}, nil
	}
	if len(req.Tools) == 0 {
		return &agent.ModelResponse{Content: "no tools"}, nil
	}
	return &agent.ModelResponse{ToolCalls: []agent.ToolCall{
		{ID: "c1", Name: "echo", Arguments: `{"text": "` + last.Content + `"}`},
	}}, nil
}

func writeConfig(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func newTestSession(t *testing.T, model agent.Model) (*Session, *bytes.Buffer, string) {
	t.Helper()
	dir := t.TempDir()
	path := writeConfig(t, dir, "mcp.json", `{"mcpServers": {"demo": {"command": "demo", "env": {"API_TOKEN": "hunter2"}}}}`)

	demo := server.NewServer(server.ServerConfig{Logger: log.Discard()})
	registry := mcp.RegistryConfig{
		Launcher: mcp.InProcessLauncher(demo.MCPServer()),
		LookPath: mcptest.LookPath,
		Logger:   log.Discard(),
	}
	open := func(p string) (*mcp.ConfigWatcher, error) {
		return mcp.NewConfigWatcher(mcp.ConfigWatcherConfig{Path: p, Logger: log.Discard()})
	}
	watcher, err := open(path)
	require.NoError(t, err)

	var out bytes.Buffer
	s := NewSession(SessionConfig{
		Loop:        agent.NewLoop(model, agent.Config{Logger: log.Discard(), Registry: registry}),
		Watcher:     watcher,
		Registry:    registry,
		OpenWatcher: open,
		Out:         &out,
		System:      "be brief",
	})
	t.Cleanup(func() { _ = s.Close() })
	return s, &out, dir
}

func TestSession_Send(t *testing.T) {
	model := &echoModel{}
	s, out, _ := newTestSession(t, model)

	require.NoError(t, s.Send(context.Background(), "hello"))
	assert.Contains(t, out.String(), "Calling tool echo")
	assert.Contains(t, out.String(), "echo said hello")

	history := s.History()
	require.Len(t, history, 3)
	assert.Equal(t, agent.RoleSystem, history[0].Role)
	assert.Equal(t, agent.Message{Role: agent.RoleUser, Content: "hello"}, history[1])
	assert.Equal(t, agent.Message{Role: agent.RoleAssistant, Content: "echo said hello"}, history[2])

	// the second prompt carries the first exchange
	require.NoError(t, s.Send(context.Background(), "again"))
	require.Len(t, model.requests, 4)
	assert.Len(t, model.requests[2].Messages, 4)
	assert.Len(t, s.History(), 5)
}

func TestSession_QuietHidesProgress(t *testing.T) {
	s, out, _ := newTestSession(t, &echoModel{})
	s.quiet = true

	require.NoError(t, s.Send(context.Background(), "hi"))
	assert.NotContains(t, out.String(), "Calling tool")
	assert.Contains(t, out.String(), "echo said hi")
}

func TestSession_Commands(t *testing.T) {
	s, out, dir := newTestSession(t, &echoModel{})
	ctx := context.Background()

	quit, err := s.Handle(ctx, "/help")
	require.NoError(t, err)
	assert.False(t, quit)
	assert.Contains(t, out.String(), "/load <path>")

	out.Reset()
	_, err = s.Handle(ctx, "/config")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "demo")
	assert.NotContains(t, out.String(), "hunter2")

	out.Reset()
	_, err = s.Handle(ctx, "/tools")
	require.NoError(t, err)
	for _, name := range []string{"echo", "add", "snapshot", "fail"} {
		assert.Contains(t, out.String(), name)
	}

	out.Reset()
	other := writeConfig(t, dir, "other.yaml", "mcpServers:\n  one:\n    command: a\n  two:\n    command: b\n")
	_, err = s.Handle(ctx, "/load "+other)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "(2 servers)")
	assert.Equal(t, []string{"one", "two"}, s.watcher.Current().Names())

	out.Reset()
	_, err = s.Handle(ctx, "/load "+filepath.Join(dir, "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, s.watcher.Current().Names(), "failed load keeps the current config")

	out.Reset()
	_, err = s.Handle(ctx, "/bogus")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "unknown command /bogus")

	quit, err = s.Handle(ctx, "/quit")
	require.NoError(t, err)
	assert.True(t, quit)
}

func TestSession_LoadLogsSwitch(t *testing.T) {
	s, _, dir := newTestSession(t, &echoModel{})
	var logs bytes.Buffer
	s.logger = log.New(&log.Config{Level: "info", Format: log.FormatJSON, Output: &logs})
	previous := s.watcher.Path()

	other := writeConfig(t, dir, "other.json", `{"mcpServers": {"one": {"command": "a"}}}`)
	_, err := s.Handle(context.Background(), "/load "+other)
	require.NoError(t, err)

	assert.Contains(t, logs.String(), `"msg":"switched mcp config"`)
	assert.Contains(t, logs.String(), `"from":"`+previous+`"`)
	assert.Contains(t, logs.String(), `"servers":1`)
	assert.NotContains(t, logs.String(), "failed to stop watching")
}

func TestSession_Reset(t *testing.T) {
	s, _, _ := newTestSession(t, &echoModel{})
	require.NoError(t, s.Send(context.Background(), "hello"))

	_, err := s.Handle(context.Background(), "/reset")
	require.NoError(t, err)
	history := s.History()
	require.Len(t, history, 1)
	assert.Equal(t, agent.RoleSystem, history[0].Role)
}

func TestSession_REPL(t *testing.T) {
	model := &echoModel{}
	s, out, _ := newTestSession(t, model)

	in := strings.NewReader("\nhello\n/quit\nnever sent\n")
	require.NoError(t, s.REPL(context.Background(), in, false))

	assert.Contains(t, out.String(), "echo said hello")
	assert.NotContains(t, out.String(), "> ")
	assert.Len(t, model.requests, 2)
}

func TestSession_REPLCancelled(t *testing.T) {
	s, _, _ := newTestSession(t, &echoModel{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, w := io.Pipe()
	defer w.Close()
	assert.NoError(t, s.REPL(ctx, r, true))
}
