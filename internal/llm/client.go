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

// Package llm implements agent.Model against OpenAI-compatible chat
// completion endpoints.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tombee/mcpagent/internal/log"
	"github.com/tombee/mcpagent/pkg/agent"
	"github.com/tombee/mcpagent/pkg/errors"
	"github.com/tombee/mcpagent/pkg/httpclient"
)

const (
	// DefaultBaseURL is the OpenAI API endpoint
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultModel is used when no model is configured
	DefaultModel = "gpt-4o-mini"

	providerName = "openai"
)

// Config configures a Client.
type Config struct {
	// BaseURL is the API root; "/chat/completions" is appended
	BaseURL string

	// APIKey is sent as a bearer token when set
	APIKey string

	// Model is the model identifier
	Model string

	// Timeout bounds one completion including retries (defaults to 2m)
	Timeout time.Duration

	// RequestsPerMinute limits outgoing requests (0 = unlimited)
	RequestsPerMinute int

	// RetryAttempts is the number of retries on 429 and 5xx responses
	RetryAttempts int

	// Logger is used for structured logging (optional)
	Logger *slog.Logger

	// HTTPClient overrides the client built from the settings above
	HTTPClient *http.Client
}

// ConfigFromEnv reads OPENAI_BASE_URL, OPENAI_API_KEY and MCPAGENT_MODEL
// (falling back to OPENAI_MODEL).
func ConfigFromEnv() Config {
	cfg := Config{
		BaseURL: os.Getenv("OPENAI_BASE_URL"),
		APIKey:  os.Getenv("OPENAI_API_KEY"),
		Model:   os.Getenv("MCPAGENT_MODEL"),
	}
	if cfg.Model == "" {
		cfg.Model = os.Getenv("OPENAI_MODEL")
	}
	return cfg
}

// Client talks to a chat completions endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client, filling in defaults.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = log.WithProvider(logger, providerName)

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		hc := httpclient.DefaultConfig()
		hc.Timeout = cfg.Timeout
		hc.UserAgent = "mcpagent/1.0"
		hc.RetryAttempts = cfg.RetryAttempts
		hc.AllowNonIdempotentRetry = true
		hc.RequestsPerMinute = cfg.RequestsPerMinute
		hc.Logger = logger

		var err error
		httpClient, err = httpclient.New(hc)
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP client: %w", err)
		}
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// Complete implements agent.Model.
func (c *Client) Complete(ctx context.Context, req agent.CompletionRequest) (*agent.ModelResponse, error) {
	requestID := uuid.NewString()

	apiReq, err := c.buildRequest(req)
	if err != nil {
		return nil, &errors.ProviderError{Provider: providerName, Message: err.Error(), RequestID: requestID, Cause: err}
	}

	start := time.Now()
	apiResp, err := c.doRequest(ctx, apiReq, requestID)
	if err != nil {
		return nil, err
	}
	if len(apiResp.Choices) == 0 {
		return nil, &errors.ProviderError{Provider: providerName, Message: "response contained no choices", RequestID: requestID}
	}

	choice := apiResp.Choices[0]
	out := &agent.ModelResponse{
		FinishReason: choice.FinishReason,
		Usage: agent.TokenUsage{
			InputTokens:  apiResp.Usage.PromptTokens,
			OutputTokens: apiResp.Usage.CompletionTokens,
			TotalTokens:  apiResp.Usage.TotalTokens,
		},
	}
	if choice.Message.Content != nil {
		out.Content = *choice.Message.Content
	}
	for _, tc := range choice.Message.ToolCalls {
		args, err := decodeArguments(tc.Function.Arguments)
		if err != nil {
			return nil, &errors.ProviderError{
				Provider:  providerName,
				Message:   fmt.Sprintf("tool call %s has malformed arguments: %v", tc.Function.Name, err),
				RequestID: requestID,
				Cause:     err,
			}
		}
		out.ToolCalls = append(out.ToolCalls, agent.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}

	c.logger.Debug("chat completion",
		"request_id", requestID,
		"model", apiResp.Model,
		"tool_calls", len(out.ToolCalls),
		"total_tokens", out.Usage.TotalTokens,
		log.DurationKey, time.Since(start).Milliseconds(),
	)
	return out, nil
}

func (c *Client) buildRequest(req agent.CompletionRequest) (*chatRequest, error) {
	apiReq := &chatRequest{
		Model:    c.model,
		Messages: make([]chatMessage, 0, len(req.Messages)),
	}
	if len(req.Tools) > 0 {
		apiReq.Tools = req.Tools
		apiReq.ToolChoice = req.ToolChoice
	}

	for _, msg := range req.Messages {
		m := chatMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		for _, call := range msg.ToolCalls {
			args, err := encodeArguments(call.Arguments)
			if err != nil {
				return nil, fmt.Errorf("tool call %s: %w", call.Name, err)
			}
			m.ToolCalls = append(m.ToolCalls, chatToolCall{
				ID:       call.ID,
				Type:     "function",
				Function: chatFunction{Name: call.Name, Arguments: args},
			})
		}
		apiReq.Messages = append(apiReq.Messages, m)
	}
	return apiReq, nil
}

// doRequest sends the API request and decodes the response body.
func (c *Client) doRequest(ctx context.Context, apiReq *chatRequest, requestID string) (*chatResponse, error) {
	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, &errors.ProviderError{
			Provider:  providerName,
			Message:   fmt.Sprintf("failed to marshal request: %v", err),
			RequestID: requestID,
			Cause:     err,
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &errors.ProviderError{
			Provider:  providerName,
			Message:   fmt.Sprintf("failed to create request: %v", err),
			RequestID: requestID,
			Cause:     err,
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &errors.ProviderError{
			Provider:  providerName,
			Message:   fmt.Sprintf("request failed: %v", err),
			RequestID: requestID,
			Cause:     err,
		}
	}
	defer resp.Body.Close()

	if id := resp.Header.Get("X-Request-ID"); id != "" {
		requestID = id
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &errors.ProviderError{
			Provider:   providerName,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("failed to read response: %v", err),
			RequestID:  requestID,
			Cause:      err,
		}
	}

	if resp.StatusCode != http.StatusOK {
		var errResp chatErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error.Message != "" {
			return nil, &errors.ProviderError{
				Provider:   providerName,
				StatusCode: resp.StatusCode,
				Message:    errResp.Error.Message,
				RequestID:  requestID,
			}
		}
		return nil, &errors.ProviderError{
			Provider:   providerName,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("API request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))),
			RequestID:  requestID,
		}
	}

	var apiResp chatResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, &errors.ProviderError{
			Provider:  providerName,
			Message:   fmt.Sprintf("failed to parse response: %v", err),
			RequestID: requestID,
			Cause:     err,
		}
	}
	return &apiResp, nil
}

// encodeArguments renders tool call arguments as the JSON string the API
// expects.
func encodeArguments(args any) (string, error) {
	switch v := args.(type) {
	case nil:
		return "{}", nil
	case string:
		return v, nil
	case json.RawMessage:
		return string(v), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}

// decodeArguments accepts arguments sent either as a JSON string or as an
// inline object. Strings are passed through unparsed.
func decodeArguments(raw json.RawMessage) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, err
		}
		return s, nil
	case '{':
		var m map[string]any
		if err := json.Unmarshal(trimmed, &m); err != nil {
			return nil, err
		}
		return m, nil
	default:
		var v any
		if err := json.Unmarshal(trimmed, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
}
