package agent

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/mcpagent/internal/log"
	"github.com/tombee/mcpagent/internal/mcp"
	"github.com/tombee/mcpagent/internal/tracing"
	"github.com/tombee/mcpagent/pkg/errors"
)

// Loop runs conversations against a model and a set of tool servers.
type Loop struct {
	// model is the conversational model collaborator
	model Model

	// config holds limits and collaborators, with defaults applied
	config Config

	// logger is used for structured logging
	logger *slog.Logger

	// tracer creates spans (optional)
	tracer trace.Tracer
}

// NewLoop creates a loop for model.
func NewLoop(model Model, cfg Config) *Loop {
	cfg = cfg.WithDefaults()
	return &Loop{
		model:  model,
		config: cfg,
		logger: log.WithComponent(cfg.Logger, "agent"),
		tracer: cfg.Tracer,
	}
}

// Run builds a registry from servers for this run only and drives the
// conversation. See RunWithRegistry.
func (l *Loop) Run(ctx context.Context, conversation []Message, servers *mcp.Config) <-chan Chunk {
	return l.RunWithRegistry(ctx, conversation, mcp.NewRegistry(servers, l.config.Registry))
}

// RunWithRegistry drives the conversation using reg and returns the output
// stream. The registry is torn down before the stream is closed, whether the
// run succeeds, fails or is cancelled. The caller's conversation is never
// modified.
func (l *Loop) RunWithRegistry(ctx context.Context, conversation []Message, reg ToolRegistry) <-chan Chunk {
	out := make(chan Chunk)
	messages := append([]Message(nil), conversation...)

	go func() {
		defer close(out)
		defer reg.TeardownAll()

		r := &run{
			loop:     l,
			registry: reg,
			out:      out,
			messages: messages,
			runID:    uuid.NewString(),
		}
		r.logger = log.WithRunContext(l.logger, r.runID)
		r.execute(ctx)
	}()

	return out
}

// run is the state of one conversation.
type run struct {
	loop     *Loop
	registry ToolRegistry
	out      chan<- Chunk
	messages []Message
	runID    string
	logger   *slog.Logger
	schemas  []map[string]any
}

func (r *run) execute(ctx context.Context) {
	ctx, span := tracing.StartRun(ctx, r.loop.tracer, r.runID)
	defer span.End()

	start := time.Now()
	outcome, rounds := r.rounds(ctx)

	runsTotal.WithLabelValues(outcome).Inc()
	runRounds.Observe(float64(rounds))
	span.SetAttributes(map[string]any{"run.outcome": outcome, "run.rounds": rounds})
	if outcome == outcomeSuccess {
		span.SetOK()
	}

	r.logger.Info("run finished",
		"outcome", outcome,
		"rounds", rounds,
		log.DurationKey, time.Since(start).Milliseconds(),
	)
}

// rounds runs model rounds until the model answers, something fails or the
// round limit is hit.
func (r *run) rounds(ctx context.Context) (outcome string, rounds int) {
	r.registry.InitializeAll(ctx)
	tools := r.registry.DiscoverTools(ctx)
	if ctx.Err() != nil {
		return outcomeCancelled, 0
	}
	defer func() { r.schemas = nil }()
	r.schemas = toolSchemas(tools)
	r.logger.Debug("tools discovered", "count", len(tools))

	toolChoice := r.loop.config.ToolChoice
	for round := 1; ; round++ {
		if round > r.loop.config.MaxRounds {
			r.notice(ctx, &errors.MaxRoundsError{Rounds: r.loop.config.MaxRounds})
			return outcomeMaxRounds, round - 1
		}

		outcome, done := r.round(ctx, round, toolChoice)
		if done {
			return outcome, round
		}
		toolChoice = "auto"
	}
}

// round performs one model call and any tool calls it requests. done is
// false only when another round should follow.
func (r *run) round(ctx context.Context, round int, toolChoice string) (outcome string, done bool) {
	ctx, span := tracing.StartRound(ctx, r.loop.tracer, round)
	defer span.End()
	roundsTotal.Inc()

	logger := r.logger.With(log.RoundKey, round)
	resp, err := r.loop.model.Complete(ctx, CompletionRequest{
		Messages:   r.messages,
		Tools:      r.schemas,
		ToolChoice: toolChoice,
	})
	if err != nil {
		span.RecordError(err)
		if ctx.Err() != nil || errors.IsCancellation(err) {
			return outcomeCancelled, true
		}
		logger.Error("model request failed", "error", err)
		r.noticeText(ctx, "Error handling chat request: "+err.Error())
		return outcomeModelError, true
	}

	logger.Debug("model responded",
		"tool_calls", len(resp.ToolCalls),
		"finish_reason", resp.FinishReason,
		"total_tokens", resp.Usage.TotalTokens,
	)

	if len(resp.ToolCalls) == 0 {
		if resp.Content != "" {
			r.send(ctx, Chunk{Kind: ChunkContent, Text: resp.Content})
		}
		span.SetOK()
		return outcomeSuccess, true
	}

	calls := make([]ToolCall, len(resp.ToolCalls))
	for i, call := range resp.ToolCalls {
		if call.ID == "" {
			call.ID = newCallID()
		}
		calls[i] = call
	}
	r.messages = append(r.messages, Message{
		Role:      RoleAssistant,
		Content:   resp.Content,
		ToolCalls: calls,
	})

	for _, call := range calls {
		if outcome, ok := r.callTool(ctx, logger, call); !ok {
			return outcome, true
		}
	}

	span.SetOK()
	return "", false
}

// callTool resolves, normalizes and executes one call and appends its
// result. ok is false when the run must end.
func (r *run) callTool(ctx context.Context, logger *slog.Logger, call ToolCall) (outcome string, ok bool) {
	tool, found := r.registry.LookupTool(call.Name)
	if !found {
		logger.Warn("model requested unknown tool", log.ToolKey, call.Name)
		r.notice(ctx, &errors.ToolNotFoundError{Tool: call.Name})
		return outcomeToolNotFound, false
	}

	args, err := NormalizeArguments(call.Arguments, tool.Input)
	if err != nil {
		var mismatch *errors.ArgumentMismatchError
		if errors.As(err, &mismatch) {
			mismatch.Tool = call.Name
		}
		logger.Warn("tool arguments rejected", log.ToolKey, call.Name, "error", err)
		r.notice(ctx, err)
		return outcomeBadArguments, false
	}

	if !r.send(ctx, Chunk{Kind: ChunkProgress, Text: "Calling tool " + call.Name}) {
		return outcomeCancelled, false
	}

	server := ""
	if owner := r.registry.ResolveOwner(tool); owner != nil {
		server = owner.Name()
	}
	callCtx, span := tracing.StartToolCall(ctx, r.loop.tracer, server, call.Name, call.ID)
	defer span.End()
	callCtx = log.ContextWithCallID(callCtx, call.ID)

	result, err := r.registry.Execute(callCtx, tool, args)
	if err != nil {
		span.RecordError(err)
		if ctx.Err() != nil || errors.IsCancellation(err) {
			return outcomeCancelled, false
		}
		r.toolFailure(ctx, err)
		return outcomeToolError, false
	}
	span.SetAttributes(map[string]any{"tool.is_error": result.IsError})
	span.SetOK()

	r.messages = append(r.messages, Message{
		Role:       RoleTool,
		Content:    result.Flatten(),
		ToolCallID: call.ID,
	})
	return "", true
}

// toolFailure emits the notice for a failed execution.
func (r *run) toolFailure(ctx context.Context, err error) {
	var uv errors.UserVisibleError
	if errors.As(err, &uv) && uv.IsUserVisible() {
		r.noticeText(ctx, uv.UserMessage())
		return
	}
	r.noticeText(ctx, "Error calling tool: "+err.Error())
}

func (r *run) notice(ctx context.Context, err error) {
	r.noticeText(ctx, errors.UserMessage(err))
}

// noticeText emits a notice unless the run was cancelled.
func (r *run) noticeText(ctx context.Context, text string) {
	if ctx.Err() != nil {
		return
	}
	r.send(ctx, Chunk{Kind: ChunkNotice, Text: text})
}

// send delivers a chunk, giving up when ctx is done.
func (r *run) send(ctx context.Context, chunk Chunk) bool {
	select {
	case r.out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

func toolSchemas(tools []mcp.ToolHandle) []map[string]any {
	if len(tools) == 0 {
		return nil
	}
	schemas := make([]map[string]any, 0, len(tools))
	for _, tool := range tools {
		schemas = append(schemas, tool.FunctionSchema())
	}
	return schemas
}

// newCallID returns a random 32 hex digit identifier.
func newCallID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
