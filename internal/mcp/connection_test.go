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

package mcp_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/mcpagent/internal/log"
	"github.com/tombee/mcpagent/internal/mcp"
	mcptest "github.com/tombee/mcpagent/internal/mcp/testing"
	agenterrors "github.com/tombee/mcpagent/pkg/errors"
)

func newTestConnection(t *testing.T, launcher *mcptest.MockLauncher, mutate func(*mcp.ConnectionConfig)) *mcp.Connection {
	t.Helper()
	cfg := mcp.ConnectionConfig{
		Name:       "alpha",
		Command:    "alpha-server",
		RetryDelay: -1,
		Launcher:   launcher.Launcher(),
		LookPath:   mcptest.LookPath,
		Logger:     log.Discard(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return mcp.NewConnection(cfg)
}

func TestConnection_InitializeAndList(t *testing.T) {
	ch := mcptest.NewMockChannel(mcptest.Tool("echo", "Echo text", "text"))
	launcher := mcptest.NewMockLauncher().AddServer("alpha", ch)
	conn := newTestConnection(t, launcher, nil)

	assert.Equal(t, mcp.StateCreated, conn.State())
	require.NoError(t, conn.Initialize(context.Background()))
	assert.Equal(t, mcp.StateReady, conn.State())
	assert.True(t, ch.Initialized())

	tools, err := conn.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "echo", tools[0].Name)
	assert.Equal(t, mcp.StateToolListed, conn.State())
}

func TestConnection_InitializeTwice(t *testing.T) {
	launcher := mcptest.NewMockLauncher().AddServer("alpha", mcptest.NewMockChannel())
	conn := newTestConnection(t, launcher, nil)

	require.NoError(t, conn.Initialize(context.Background()))
	err := conn.Initialize(context.Background())
	require.Error(t, err)
	assert.Equal(t, mcp.StateReady, conn.State())
	assert.Len(t, launcher.Launches(), 1)
}

func TestConnection_InitializeEnvMerged(t *testing.T) {
	t.Setenv("MCPAGENT_TEST_BASE", "base")
	launcher := mcptest.NewMockLauncher().AddServer("alpha", mcptest.NewMockChannel())
	conn := newTestConnection(t, launcher, func(c *mcp.ConnectionConfig) {
		c.Args = []string{"--stdio"}
		c.Env = map[string]string{"MCPAGENT_TEST_EXTRA": "extra"}
	})

	require.NoError(t, conn.Initialize(context.Background()))

	configs := launcher.LaunchConfigs()
	require.Len(t, configs, 1)
	assert.Equal(t, "alpha-server", configs[0].Command)
	assert.Equal(t, []string{"--stdio"}, configs[0].Args)
	assert.Contains(t, configs[0].Env, "MCPAGENT_TEST_BASE=base")
	assert.Contains(t, configs[0].Env, "MCPAGENT_TEST_EXTRA=extra")
}

func TestConnection_InitializeFailures(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(l *mcptest.MockLauncher)
		mutate    func(c *mcp.ConnectionConfig)
		check     func(t *testing.T, err error)
		wantClose int
	}{
		{
			name:  "empty command",
			setup: func(l *mcptest.MockLauncher) {},
			mutate: func(c *mcp.ConnectionConfig) {
				c.Command = "  "
			},
			check: func(t *testing.T, err error) {
				var cfgErr *agenterrors.ConfigurationError
				require.ErrorAs(t, err, &cfgErr)
				assert.Equal(t, "alpha", cfgErr.Server)
			},
		},
		{
			name:  "command not on path",
			setup: func(l *mcptest.MockLauncher) {},
			mutate: func(c *mcp.ConnectionConfig) {
				c.LookPath = func(string) (string, error) { return "", errors.New("executable file not found") }
			},
			check: func(t *testing.T, err error) {
				var cfgErr *agenterrors.ConfigurationError
				require.ErrorAs(t, err, &cfgErr)
				assert.Equal(t, "alpha-server", cfgErr.Command)
			},
		},
		{
			name: "spawn failure",
			setup: func(l *mcptest.MockLauncher) {
				l.FailLaunch("alpha", errors.New("exec format error"))
			},
			check: func(t *testing.T, err error) {
				var connErr *agenterrors.ConnectionError
				require.ErrorAs(t, err, &connErr)
				assert.Equal(t, "spawn", connErr.Phase)
			},
		},
		{
			name: "handshake failure closes channel",
			setup: func(l *mcptest.MockLauncher) {
				l.AddServer("alpha", mcptest.NewMockChannel().SetInitError(errors.New("protocol mismatch")))
			},
			check: func(t *testing.T, err error) {
				var connErr *agenterrors.ConnectionError
				require.ErrorAs(t, err, &connErr)
				assert.Equal(t, "handshake", connErr.Phase)
			},
			wantClose: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			launcher := mcptest.NewMockLauncher()
			tt.setup(launcher)
			conn := newTestConnection(t, launcher, tt.mutate)

			err := conn.Initialize(context.Background())
			require.Error(t, err)
			tt.check(t, err)
			assert.Equal(t, mcp.StateFailed, conn.State())
			assert.Len(t, launcher.CloseOrder(), tt.wantClose)

			conn.Cleanup()
			assert.Equal(t, mcp.StateFailed, conn.State())
		})
	}
}

func TestConnection_NotInitialized(t *testing.T) {
	conn := newTestConnection(t, mcptest.NewMockLauncher(), nil)

	_, err := conn.ListTools(context.Background())
	var notInit *agenterrors.NotInitializedError
	require.ErrorAs(t, err, &notInit)

	_, err = conn.ExecuteTool(context.Background(), "echo", nil)
	require.ErrorAs(t, err, &notInit)
	assert.Equal(t, "created", notInit.State)
}

func TestConnection_ListToolsFailure(t *testing.T) {
	ch := mcptest.NewMockChannel().SetListError(errors.New("broken pipe"))
	launcher := mcptest.NewMockLauncher().AddServer("alpha", ch)
	conn := newTestConnection(t, launcher, nil)
	require.NoError(t, conn.Initialize(context.Background()))

	_, err := conn.ListTools(context.Background())
	var connErr *agenterrors.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "list_tools", connErr.Phase)
	assert.Equal(t, mcp.StateReady, conn.State())
}

func TestConnection_ExecuteTool(t *testing.T) {
	ch := mcptest.NewMockChannel().SetCallHandler(func(ctx context.Context, name string, args map[string]any) (*mcp.ToolResult, error) {
		return mcptest.TextResult(fmt.Sprint(args["text"])), nil
	})
	launcher := mcptest.NewMockLauncher().AddServer("alpha", ch)
	conn := newTestConnection(t, launcher, nil)
	require.NoError(t, conn.Initialize(context.Background()))

	result, err := conn.ExecuteTool(context.Background(), "echo", map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", result.Flatten())
	require.Len(t, ch.Calls(), 1)
	assert.Equal(t, "echo", ch.Calls()[0].Name)
}

func TestConnection_ExecuteToolRetries(t *testing.T) {
	tests := []struct {
		name      string
		retries   int
		failFirst int
		wantCalls int
		wantErr   bool
	}{
		{name: "default two attempts always failing", retries: 0, failFirst: 10, wantCalls: 2, wantErr: true},
		{name: "three attempts always failing", retries: 3, failFirst: 10, wantCalls: 3, wantErr: true},
		{name: "succeeds on second attempt", retries: 2, failFirst: 1, wantCalls: 2},
		{name: "succeeds first time", retries: 2, failFirst: 0, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var mu sync.Mutex
			calls := 0
			ch := mcptest.NewMockChannel().SetCallHandler(func(ctx context.Context, name string, args map[string]any) (*mcp.ToolResult, error) {
				mu.Lock()
				defer mu.Unlock()
				calls++
				if calls <= tt.failFirst {
					return nil, errors.New("transient failure")
				}
				return mcptest.TextResult("ok"), nil
			})
			launcher := mcptest.NewMockLauncher().AddServer("alpha", ch)
			conn := newTestConnection(t, launcher, func(c *mcp.ConnectionConfig) {
				c.Retries = tt.retries
			})
			require.NoError(t, conn.Initialize(context.Background()))

			result, err := conn.ExecuteTool(context.Background(), "flaky", nil)
			assert.Len(t, ch.Calls(), tt.wantCalls)

			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, "ok", result.Flatten())
				return
			}

			var execErr *agenterrors.ExecutionError
			require.ErrorAs(t, err, &execErr)
			assert.Equal(t, tt.wantCalls, execErr.Attempts)
			assert.Equal(t, "flaky", execErr.Tool)
			assert.Equal(t, "alpha", execErr.Server)
			assert.Contains(t, execErr.Error(), "transient failure")
		})
	}
}

func TestConnection_ExecuteToolTimeout(t *testing.T) {
	ch := mcptest.NewMockChannel().SetCallDelay(time.Second)
	launcher := mcptest.NewMockLauncher().AddServer("alpha", ch)
	conn := newTestConnection(t, launcher, func(c *mcp.ConnectionConfig) {
		c.Retries = 1
		c.Timeout = 20 * time.Millisecond
	})
	require.NoError(t, conn.Initialize(context.Background()))

	_, err := conn.ExecuteTool(context.Background(), "slow", nil)
	var timeoutErr *agenterrors.TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, 20*time.Millisecond, timeoutErr.Duration)
}

func TestConnection_ExecuteToolCancelStopsRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := mcptest.NewMockChannel().SetCallHandler(func(ctx context.Context, name string, args map[string]any) (*mcp.ToolResult, error) {
		cancel()
		return nil, errors.New("failed")
	})
	launcher := mcptest.NewMockLauncher().AddServer("alpha", ch)
	conn := newTestConnection(t, launcher, func(c *mcp.ConnectionConfig) {
		c.Retries = 5
		c.RetryDelay = time.Hour
	})
	require.NoError(t, conn.Initialize(context.Background()))

	done := make(chan error, 1)
	go func() {
		_, err := conn.ExecuteTool(ctx, "echo", nil)
		done <- err
	}()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
		assert.True(t, agenterrors.IsCancellation(err))
	case <-time.After(2 * time.Second):
		t.Fatal("ExecuteTool did not stop after cancellation")
	}
	assert.Len(t, ch.Calls(), 1)
}

func TestConnection_CancelDuringRetryDelay(t *testing.T) {
	ch := mcptest.NewMockChannel().SetCallHandler(func(ctx context.Context, name string, args map[string]any) (*mcp.ToolResult, error) {
		return nil, errors.New("failed")
	})
	launcher := mcptest.NewMockLauncher().AddServer("alpha", ch)
	conn := newTestConnection(t, launcher, func(c *mcp.ConnectionConfig) {
		c.Retries = 3
		c.RetryDelay = time.Hour
	})
	require.NoError(t, conn.Initialize(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := conn.ExecuteTool(ctx, "echo", nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	assert.Len(t, ch.Calls(), 1)
}

func TestConnection_CleanupIdempotent(t *testing.T) {
	ch := mcptest.NewMockChannel()
	launcher := mcptest.NewMockLauncher().AddServer("alpha", ch)
	conn := newTestConnection(t, launcher, nil)
	require.NoError(t, conn.Initialize(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn.Cleanup()
		}()
	}
	wg.Wait()
	conn.Cleanup()

	assert.Equal(t, mcp.StateClosed, conn.State())
	assert.Equal(t, 1, ch.CloseCount())

	_, err := conn.ExecuteTool(context.Background(), "echo", nil)
	var notInit *agenterrors.NotInitializedError
	require.ErrorAs(t, err, &notInit)
}

func TestConnection_CleanupBeforeInitialize(t *testing.T) {
	conn := newTestConnection(t, mcptest.NewMockLauncher(), nil)
	conn.Cleanup()
	assert.Equal(t, mcp.StateClosed, conn.State())

	err := conn.Initialize(context.Background())
	require.Error(t, err)
}

func TestConnection_CleanupSwallowsErrors(t *testing.T) {
	tests := []struct {
		name  string
		close func() error
	}{
		{name: "error", close: func() error { return errors.New("process already exited") }},
		{name: "panic", close: func() error { panic("boom") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := mcptest.NewMockChannel().SetCloseFunc(tt.close)
			launcher := mcptest.NewMockLauncher().AddServer("alpha", ch)
			conn := newTestConnection(t, launcher, nil)
			require.NoError(t, conn.Initialize(context.Background()))

			assert.NotPanics(t, conn.Cleanup)
			assert.Equal(t, mcp.StateClosed, conn.State())
		})
	}
}

func TestMergeEnv(t *testing.T) {
	tests := []struct {
		name      string
		base      []string
		overrides map[string]string
		want      []string
	}{
		{
			name: "no overrides",
			base: []string{"A=1", "B=2"},
			want: []string{"A=1", "B=2"},
		},
		{
			name:      "override wins in place",
			base:      []string{"A=1", "B=2"},
			overrides: map[string]string{"A": "9"},
			want:      []string{"A=9", "B=2"},
		},
		{
			name:      "new keys appended sorted",
			base:      []string{"A=1"},
			overrides: map[string]string{"Z": "z", "M": "m"},
			want:      []string{"A=1", "M=m", "Z=z"},
		},
		{
			name:      "duplicate base key collapsed",
			base:      []string{"A=1", "A=2"},
			overrides: map[string]string{"A": "3"},
			want:      []string{"A=3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mcp.MergeEnv(tt.base, tt.overrides))
		})
	}
}
