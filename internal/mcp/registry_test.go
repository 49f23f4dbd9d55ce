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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/mcpagent/internal/log"
	"github.com/tombee/mcpagent/internal/mcp"
	mcptest "github.com/tombee/mcpagent/internal/mcp/testing"
	agenterrors "github.com/tombee/mcpagent/pkg/errors"
)

func testConfig(names ...string) *mcp.Config {
	cfg := mcp.NewConfig()
	for _, name := range names {
		cfg.Add(name, &mcp.ServerEntry{Command: name + "-server", RetryDelay: 0.001})
	}
	return cfg
}

func newTestRegistry(cfg *mcp.Config, launcher *mcptest.MockLauncher) *mcp.Registry {
	return mcp.NewRegistry(cfg, mcp.RegistryConfig{
		Launcher: launcher.Launcher(),
		LookPath: mcptest.LookPath,
		Logger:   log.Discard(),
	})
}

func TestRegistry_BuildStartsNothing(t *testing.T) {
	launcher := mcptest.NewMockLauncher()
	reg := newTestRegistry(testConfig("alpha", "beta", "gamma"), launcher)

	conns := reg.Connections()
	require.Len(t, conns, 3)
	assert.Equal(t, "alpha", conns[0].Name())
	assert.Equal(t, "beta", conns[1].Name())
	assert.Equal(t, "gamma", conns[2].Name())
	for _, c := range conns {
		assert.Equal(t, mcp.StateCreated, c.State())
	}
	assert.Empty(t, launcher.Launches())
}

func TestRegistry_PartialInitialization(t *testing.T) {
	launcher := mcptest.NewMockLauncher().
		AddServer("alpha", mcptest.NewMockChannel(mcptest.Tool("echo", "Echo text", "text"))).
		AddServer("beta", mcptest.NewMockChannel().SetInitError(errors.New("handshake refused"))).
		AddServer("gamma", mcptest.NewMockChannel(mcptest.Tool("add", "Add numbers", "a", "b"))).
		FailLaunch("delta", errors.New("no such file"))
	reg := newTestRegistry(testConfig("alpha", "beta", "gamma", "delta"), launcher)

	reg.InitializeAll(context.Background())

	states := map[string]mcp.State{}
	for _, c := range reg.Connections() {
		states[c.Name()] = c.State()
	}
	assert.Equal(t, mcp.StateReady, states["alpha"])
	assert.Equal(t, mcp.StateFailed, states["beta"])
	assert.Equal(t, mcp.StateReady, states["gamma"])
	assert.Equal(t, mcp.StateFailed, states["delta"])

	tools := reg.DiscoverTools(context.Background())
	require.Len(t, tools, 2)
	assert.Equal(t, "echo", tools[0].Name)
	assert.Equal(t, "add", tools[1].Name)

	owner := reg.ResolveOwner(tools[1])
	require.NotNil(t, owner)
	assert.Equal(t, "gamma", owner.Name())
}

func TestRegistry_DiscoverSkipsListFailure(t *testing.T) {
	launcher := mcptest.NewMockLauncher().
		AddServer("alpha", mcptest.NewMockChannel().SetListError(errors.New("list failed"))).
		AddServer("beta", mcptest.NewMockChannel(mcptest.Tool("echo", "Echo text", "text")))
	reg := newTestRegistry(testConfig("alpha", "beta"), launcher)
	reg.InitializeAll(context.Background())

	tools := reg.DiscoverTools(context.Background())
	require.Len(t, tools, 1)
	assert.Equal(t, "echo", tools[0].Name)
}

func TestRegistry_DuplicateFirstWins(t *testing.T) {
	launcher := mcptest.NewMockLauncher().
		AddServer("alpha", mcptest.NewMockChannel(mcptest.Tool("echo", "Echo text", "text"))).
		AddServer("beta", mcptest.NewMockChannel(
			mcptest.Tool("echo", "Echo text", "text"),
			mcptest.Tool("echo", "Echo text loudly", "text"),
		))
	reg := newTestRegistry(testConfig("alpha", "beta"), launcher)
	reg.InitializeAll(context.Background())

	tools := reg.DiscoverTools(context.Background())
	require.Len(t, tools, 2)

	owner := reg.ResolveOwner(tools[0])
	require.NotNil(t, owner)
	assert.Equal(t, "alpha", owner.Name())

	loud := reg.ResolveOwner(tools[1])
	require.NotNil(t, loud)
	assert.Equal(t, "beta", loud.Name())

	found, ok := reg.LookupTool("echo")
	require.True(t, ok)
	assert.Equal(t, "Echo text", found.Description)
}

func TestRegistry_DiscoverReplacesIndex(t *testing.T) {
	launcher := mcptest.NewMockLauncher().
		AddServer("alpha", mcptest.NewMockChannel(mcptest.Tool("echo", "Echo text", "text")))
	reg := newTestRegistry(testConfig("alpha"), launcher)
	reg.InitializeAll(context.Background())

	first := reg.DiscoverTools(context.Background())
	second := reg.DiscoverTools(context.Background())
	assert.Equal(t, first, second)
	assert.Len(t, reg.Tools(), 1)
}

func TestRegistry_Execute(t *testing.T) {
	ch := mcptest.NewMockChannel(mcptest.Tool("echo", "Echo text", "text"))
	launcher := mcptest.NewMockLauncher().AddServer("alpha", ch)
	reg := newTestRegistry(testConfig("alpha"), launcher)
	reg.InitializeAll(context.Background())
	tools := reg.DiscoverTools(context.Background())
	require.Len(t, tools, 1)

	result, err := reg.Execute(context.Background(), tools[0], map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "Mock response for echo", result.Flatten())

	_, err = reg.Execute(context.Background(), mcptest.Tool("missing", "Not here"), nil)
	var notFound *agenterrors.ToolNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "missing", notFound.Tool)
}

func TestRegistry_ResolveOwnerAfterCleanup(t *testing.T) {
	launcher := mcptest.NewMockLauncher().
		AddServer("alpha", mcptest.NewMockChannel(mcptest.Tool("echo", "Echo text", "text")))
	reg := newTestRegistry(testConfig("alpha"), launcher)
	reg.InitializeAll(context.Background())
	tools := reg.DiscoverTools(context.Background())
	require.Len(t, tools, 1)

	reg.Connections()[0].Cleanup()

	assert.Nil(t, reg.ResolveOwner(tools[0]))
	_, err := reg.Execute(context.Background(), tools[0], nil)
	var notFound *agenterrors.ToolNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestRegistry_TeardownReverseOrder(t *testing.T) {
	launcher := mcptest.NewMockLauncher().
		AddServer("alpha", mcptest.NewMockChannel()).
		AddServer("beta", mcptest.NewMockChannel().SetCloseFunc(func() error { panic("close exploded") })).
		AddServer("gamma", mcptest.NewMockChannel())
	reg := newTestRegistry(testConfig("alpha", "beta", "gamma"), launcher)
	reg.InitializeAll(context.Background())
	reg.DiscoverTools(context.Background())

	assert.NotPanics(t, reg.TeardownAll)

	assert.Equal(t, []string{"gamma", "beta", "alpha"}, launcher.CloseOrder())
	for _, c := range reg.Connections() {
		assert.Equal(t, mcp.StateClosed, c.State())
	}
	assert.Empty(t, reg.Tools())

	assert.NotPanics(t, reg.TeardownAll)
	assert.Len(t, launcher.CloseOrder(), 3)
}

func TestRegistry_TeardownWithoutInitialize(t *testing.T) {
	launcher := mcptest.NewMockLauncher()
	reg := newTestRegistry(testConfig("alpha", "beta"), launcher)

	reg.TeardownAll()
	assert.Empty(t, launcher.CloseOrder())
	for _, c := range reg.Connections() {
		assert.Equal(t, mcp.StateClosed, c.State())
	}
}

func TestRegistry_EmptyConfig(t *testing.T) {
	reg := newTestRegistry(mcp.NewConfig(), mcptest.NewMockLauncher())
	reg.InitializeAll(context.Background())
	assert.Empty(t, reg.DiscoverTools(context.Background()))
	reg.TeardownAll()
}
