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

// Package chat implements the interactive mcpagent chat command.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	mcpcmd "github.com/tombee/mcpagent/internal/commands/mcp"
	"github.com/tombee/mcpagent/internal/commands/shared"
	"github.com/tombee/mcpagent/internal/llm"
	"github.com/tombee/mcpagent/internal/mcp"
	"github.com/tombee/mcpagent/internal/tracing"
	"github.com/tombee/mcpagent/pkg/agent"
)

type options struct {
	model         string
	baseURL       string
	system        string
	maxRounds     int
	toolChoice    string
	rpm           int
	metricsAddr   string
	traceExporter string
}

// NewCommand creates the chat command.
func NewCommand() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "chat [prompt]",
		Short: "Chat with a model that can call MCP tools",
		Long: `Chat with a model that can call the tools exposed by the configured MCP
servers. Servers are started for every prompt and stopped when the answer is
complete.

With a prompt argument a single answer is printed. Without one an interactive
session starts; the configuration file is watched and reloaded on change.

The model endpoint is read from OPENAI_BASE_URL, OPENAI_API_KEY and
MCPAGENT_MODEL unless overridden by flags. Any OpenAI-compatible endpoint
works, including local servers such as Ollama.

Examples:
  mcpagent chat "what is 2 + 3.5?"
  mcpagent chat --config servers.yaml --model gpt-4o
  mcpagent chat --base-url http://localhost:11434/v1 --model llama3.1`,
		Annotations: map[string]string{"group": "chat"},
		Args:        cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, opts, strings.Join(args, " "))
		},
	}

	cmd.Flags().StringVar(&opts.model, "model", "", "Model identifier (default: $MCPAGENT_MODEL or "+llm.DefaultModel+")")
	cmd.Flags().StringVar(&opts.baseURL, "base-url", "", "OpenAI-compatible API root (default: $OPENAI_BASE_URL or "+llm.DefaultBaseURL+")")
	cmd.Flags().StringVar(&opts.system, "system", "", "System prompt")
	cmd.Flags().IntVar(&opts.maxRounds, "max-rounds", agent.DefaultConfig().MaxRounds, "Maximum model rounds per prompt")
	cmd.Flags().StringVar(&opts.toolChoice, "tool-choice", agent.DefaultConfig().ToolChoice, "Tool choice for the first round: auto, required or none")
	cmd.Flags().IntVar(&opts.rpm, "requests-per-minute", 0, "Limit model requests per minute (0 = unlimited)")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	cmd.Flags().StringVar(&opts.traceExporter, "trace-exporter", "", "Trace exporter: none, console, otlp-http, otlp-grpc (default: $MCPAGENT_TRACE_EXPORTER)")

	return cmd
}

func runChat(cmd *cobra.Command, opts options, prompt string) error {
	ctx := cmd.Context()
	logger := slog.Default()

	traceCfg := tracing.ProviderConfigFromEnv()
	if opts.traceExporter != "" {
		traceCfg.Exporter = opts.traceExporter
	}
	traceCfg.ServiceVersion, _, _ = shared.GetVersion()
	tp, err := tracing.NewProvider(ctx, traceCfg)
	if err != nil {
		return shared.NewExecutionError("failed to configure tracing", err)
	}
	if tp != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				logger.Warn("trace shutdown failed", "error", err)
			}
		}()
	}

	if opts.metricsAddr != "" {
		stop, err := serveMetrics(opts.metricsAddr, logger)
		if err != nil {
			return shared.NewExecutionError("failed to start metrics server", err)
		}
		defer stop()
	}

	modelCfg := llm.ConfigFromEnv()
	if opts.model != "" {
		modelCfg.Model = opts.model
	}
	if opts.baseURL != "" {
		modelCfg.BaseURL = opts.baseURL
	}
	modelCfg.RequestsPerMinute = opts.rpm
	modelCfg.RetryAttempts = 2
	modelCfg.Logger = logger
	model, err := llm.NewClient(modelCfg)
	if err != nil {
		return shared.NewProviderError("failed to create model client", err)
	}

	registry := mcpcmd.RegistryOptions()
	loop := agent.NewLoop(model, agent.Config{
		MaxRounds:  opts.maxRounds,
		ToolChoice: opts.toolChoice,
		Logger:     logger,
		Tracer:     tracing.Tracer(),
		Registry:   registry,
	})

	openWatcher := func(path string) (*mcp.ConfigWatcher, error) {
		return mcp.NewConfigWatcher(mcp.ConfigWatcherConfig{
			Path:   path,
			Logger: logger,
			OnReload: func(cfg *mcp.Config) {
				logger.Info("server configuration reloaded", "servers", cfg.Len())
			},
		})
	}
	watcher, err := openWatcher(mcpcmd.ConfigPath())
	if err != nil {
		return shared.NewInvalidConfigError("failed to load configuration", mcp.ErrInvalidConfig(mcpcmd.ConfigPath(), err))
	}

	session := NewSession(SessionConfig{
		Loop:        loop,
		Watcher:     watcher,
		Registry:    registry,
		OpenWatcher: openWatcher,
		Out:         cmd.OutOrStdout(),
		ErrOut:      cmd.ErrOrStderr(),
		Quiet:       shared.GetQuiet(),
		System:      opts.system,
		Logger:      logger,
	})
	defer session.Close()

	if prompt != "" {
		return session.Send(ctx, prompt)
	}
	return session.REPL(ctx, cmd.InOrStdin(), !shared.IsNonInteractive())
}

// serveMetrics exposes the Prometheus registry until stop is called.
func serveMetrics(addr string, logger *slog.Logger) (stop func(), err error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
