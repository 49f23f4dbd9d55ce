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
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/tombee/mcpagent/internal/commands/shared"
	"github.com/tombee/mcpagent/internal/mcp"
	"github.com/tombee/mcpagent/pkg/agent"
)

const helpText = `Commands:
  /help           Show this help
  /config         Print the active server configuration (secrets redacted)
  /load <path>    Switch to another server configuration file
  /tools          List tools from the active configuration
  /reset          Forget the conversation so far
  /quit           Exit`

// Session is one interactive conversation. Each prompt is a separate run
// against the latest server configuration.
type Session struct {
	loop     *agent.Loop
	watcher  *mcp.ConfigWatcher
	registry mcp.RegistryConfig
	history  []agent.Message
	out      io.Writer
	errOut   io.Writer
	quiet    bool
	logger   *slog.Logger

	// openWatcher replaces the watcher on /load
	openWatcher func(path string) (*mcp.ConfigWatcher, error)
}

// SessionConfig configures a Session.
type SessionConfig struct {
	Loop        *agent.Loop
	Watcher     *mcp.ConfigWatcher
	Registry    mcp.RegistryConfig
	OpenWatcher func(path string) (*mcp.ConfigWatcher, error)
	Out         io.Writer
	ErrOut      io.Writer
	Quiet       bool
	System      string

	// Logger defaults to the registry logger, then slog.Default.
	Logger *slog.Logger
}

// NewSession creates a session. The session owns the watcher.
func NewSession(cfg SessionConfig) *Session {
	s := &Session{
		loop:        cfg.Loop,
		watcher:     cfg.Watcher,
		registry:    cfg.Registry,
		out:         cfg.Out,
		errOut:      cfg.ErrOut,
		quiet:       cfg.Quiet,
		openWatcher: cfg.OpenWatcher,
		logger:      cfg.Logger,
	}
	if s.errOut == nil {
		s.errOut = s.out
	}
	if s.logger == nil {
		s.logger = cfg.Registry.Logger
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if cfg.System != "" {
		s.history = append(s.history, agent.Message{Role: agent.RoleSystem, Content: cfg.System})
	}
	return s
}

// History returns a copy of the conversation so far.
func (s *Session) History() []agent.Message {
	return slices.Clone(s.history)
}

// Close stops watching the configuration.
func (s *Session) Close() error {
	if s.watcher == nil {
		return nil
	}
	return s.watcher.Close()
}

// Send runs one prompt and renders the stream. The assistant's answer is
// kept for the next prompt.
func (s *Session) Send(ctx context.Context, prompt string) error {
	s.history = append(s.history, agent.Message{Role: agent.RoleUser, Content: prompt})

	var answer strings.Builder
	for chunk := range s.loop.Run(ctx, s.history, s.watcher.Current()) {
		switch chunk.Kind {
		case agent.ChunkContent:
			answer.WriteString(chunk.Text)
			fmt.Fprintln(s.out, chunk.Text)
		case agent.ChunkNotice:
			fmt.Fprintln(s.out, shared.RenderError(chunk.Text))
		case agent.ChunkProgress:
			if !s.quiet {
				fmt.Fprintln(s.errOut, shared.RenderProgress(chunk.Text))
			}
		}
	}

	if answer.Len() > 0 {
		s.history = append(s.history, agent.Message{Role: agent.RoleAssistant, Content: answer.String()})
	}
	return ctx.Err()
}

// Handle processes one input line. It reports whether the session should end.
func (s *Session) Handle(ctx context.Context, line string) (quit bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		return false, s.Send(ctx, line)
	}

	command, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch command {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprintln(s.out, helpText)
	case "/config":
		return false, shared.WriteJSON(s.out, s.watcher.Current().Redacted())
	case "/load":
		return false, s.load(arg)
	case "/tools":
		return false, s.listTools(ctx)
	case "/reset":
		s.history = slices.DeleteFunc(s.history, func(m agent.Message) bool { return m.Role != agent.RoleSystem })
		fmt.Fprintln(s.out, shared.RenderOK("conversation cleared"))
	default:
		fmt.Fprintln(s.out, shared.RenderWarn("unknown command "+command+", try /help"))
	}
	return false, nil
}

func (s *Session) load(path string) error {
	if path == "" {
		fmt.Fprintln(s.out, shared.RenderWarn("usage: /load <path>"))
		return nil
	}
	if s.openWatcher == nil {
		return fmt.Errorf("loading configuration is not supported")
	}

	w, err := s.openWatcher(path)
	if err != nil {
		fmt.Fprintln(s.out, shared.RenderError(err.Error()))
		return nil
	}
	previous := s.watcher.Path()
	if err := s.watcher.Close(); err != nil {
		s.logger.Warn("failed to stop watching mcp config", "path", previous, "error", err)
	}
	s.watcher = w
	s.logger.Info("switched mcp config", "from", previous, "to", w.Path(), "servers", w.Current().Len())
	fmt.Fprintln(s.out, shared.RenderOK(fmt.Sprintf("loaded %s (%d servers)", w.Path(), w.Current().Len())))
	return nil
}

func (s *Session) listTools(ctx context.Context) error {
	reg := mcp.NewRegistry(s.watcher.Current(), s.registry)
	defer reg.TeardownAll()

	reg.InitializeAll(ctx)
	tools := reg.DiscoverTools(ctx)
	if len(tools) == 0 {
		fmt.Fprintln(s.out, shared.RenderWarn("no tools available"))
		return ctx.Err()
	}
	for _, tool := range tools {
		server := ""
		if owner := reg.ResolveOwner(tool); owner != nil {
			server = owner.Name()
		}
		fmt.Fprintf(s.out, "%s %s %s\n", shared.Header.Render(tool.Name), shared.Muted.Render("("+server+")"), tool.Description)
	}
	return nil
}

// REPL reads lines from in until EOF, /quit or cancellation. The prompt is
// only printed when interactive.
func (s *Session) REPL(ctx context.Context, in io.Reader, interactive bool) error {
	readCtx, stopReading := context.WithCancel(ctx)
	defer stopReading()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-readCtx.Done():
				return
			}
		}
	}()

	if interactive {
		fmt.Fprintln(s.out, shared.Muted.Render("Type /help for commands."))
	}
	for {
		if interactive {
			fmt.Fprint(s.out, "> ")
		}

		var line string
		var ok bool
		select {
		case <-ctx.Done():
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			return nil
		}

		quit, err := s.Handle(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintln(s.out, shared.RenderError(err.Error()))
		}
		if quit {
			return nil
		}
	}
}
