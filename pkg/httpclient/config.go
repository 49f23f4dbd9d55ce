package httpclient

import (
	"fmt"
	"log/slog"
	"time"
)

// Config configures the HTTP client with timeout, retry, rate limit and
// logging settings.
type Config struct {
	// Timeout is the total request timeout (includes retries).
	// Default: 60s. Must be > 0.
	Timeout time.Duration

	// RetryAttempts is the number of retries after the first attempt (0 = no retries).
	// Default: 2. Must be >= 0.
	RetryAttempts int

	// RetryBackoff is the delay before the first retry; it doubles after each.
	// Default: 500ms. Must be > 0 if RetryAttempts > 0.
	RetryBackoff time.Duration

	// MaxBackoff caps the retry delay.
	// Default: 30s. Must be >= RetryBackoff.
	MaxBackoff time.Duration

	// UserAgent is the User-Agent header value.
	// Required.
	UserAgent string

	// AllowNonIdempotentRetry enables retries for POST, PUT, PATCH and DELETE.
	// Requests must have a rewindable body (GetBody set).
	// Default: false.
	AllowNonIdempotentRetry bool

	// RequestsPerMinute limits outgoing attempts. Zero disables limiting.
	// Default: 0. Must be >= 0.
	RequestsPerMinute int

	// Logger receives request logs.
	// Default: slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a Config with defaults suited to model endpoints.
func DefaultConfig() Config {
	return Config{
		Timeout:       60 * time.Second,
		RetryAttempts: 2,
		RetryBackoff:  500 * time.Millisecond,
		MaxBackoff:    30 * time.Second,
		UserAgent:     "mcpagent-http-client/1.0",
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be > 0, got %v", c.Timeout)
	}
	if c.RetryAttempts < 0 {
		return fmt.Errorf("retry_attempts must be >= 0, got %d", c.RetryAttempts)
	}
	if c.RetryAttempts > 0 {
		if c.RetryBackoff <= 0 {
			return fmt.Errorf("retry_backoff must be > 0 when retry_attempts > 0, got %v", c.RetryBackoff)
		}
		if c.MaxBackoff < c.RetryBackoff {
			return fmt.Errorf("max_backoff (%v) must be >= retry_backoff (%v)", c.MaxBackoff, c.RetryBackoff)
		}
	}
	if c.RequestsPerMinute < 0 {
		return fmt.Errorf("requests_per_minute must be >= 0, got %d", c.RequestsPerMinute)
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user_agent is required and must be non-empty")
	}
	return nil
}
