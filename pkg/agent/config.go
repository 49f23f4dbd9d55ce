package agent

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/mcpagent/internal/mcp"
)

// Config configures run limits and collaborators.
type Config struct {
	// MaxRounds limits the number of model rounds in one run
	// Default: 25
	MaxRounds int

	// ToolChoice is sent on the first round; later rounds always use "auto"
	// Default: "auto"
	ToolChoice string

	// Logger is used for structured logging
	// Default: slog.Default()
	Logger *slog.Logger

	// Tracer creates run, round and tool call spans (optional)
	Tracer trace.Tracer

	// Registry configures the connections Run builds for each run
	Registry mcp.RegistryConfig
}

// DefaultConfig returns the default loop configuration.
func DefaultConfig() Config {
	return Config{
		MaxRounds:  25,
		ToolChoice: "auto",
	}
}

// WithDefaults fills in missing config values with defaults.
func (c Config) WithDefaults() Config {
	result := c
	if result.MaxRounds <= 0 {
		result.MaxRounds = 25
	}
	if result.ToolChoice == "" {
		result.ToolChoice = "auto"
	}
	if result.Logger == nil {
		result.Logger = slog.Default()
	}
	if result.Registry.Logger == nil {
		result.Registry.Logger = result.Logger
	}
	if result.Registry.Tracer == nil {
		result.Registry.Tracer = result.Tracer
	}
	return result
}
