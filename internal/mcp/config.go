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

package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"gopkg.in/yaml.v3"

	"github.com/tombee/mcpagent/pkg/errors"
)

// ServerNameRegex validates MCP server names.
// Names must start with a letter and contain only letters, numbers, hyphens, and underscores.
// Maximum length is 64 characters.
var ServerNameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]{0,63}$`)

var envKeyRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ServerEntry is one entry of the mcpServers map.
type ServerEntry struct {
	// Command is the executable to run (e.g., "npx", "python").
	Command string `json:"command" yaml:"command"`

	// Args are command-line arguments.
	Args []string `json:"args,omitempty" yaml:"args,omitempty"`

	// Env overrides or extends the process environment.
	Env map[string]string `json:"env,omitempty" yaml:"env,omitempty"`

	// Retries is the total number of attempts per tool call. Zero means the default (2).
	Retries int `json:"retries,omitempty" yaml:"retries,omitempty"`

	// RetryDelay is the delay between attempts in seconds. Zero means the default (1).
	RetryDelay float64 `json:"retryDelay,omitempty" yaml:"retryDelay,omitempty"`

	// Timeout bounds each attempt in seconds. Zero means the default (30).
	Timeout float64 `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// ConnectionConfig converts the entry into a connection configuration.
// Launcher, LookPath, Logger and Tracer are left for the caller.
func (e *ServerEntry) ConnectionConfig(name string) ConnectionConfig {
	return ConnectionConfig{
		Name:       name,
		Command:    e.Command,
		Args:       e.Args,
		Env:        e.Env,
		Retries:    e.Retries,
		RetryDelay: seconds(e.RetryDelay),
		Timeout:    seconds(e.Timeout),
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Config is the named-server map in declaration order.
type Config struct {
	servers *orderedmap.OrderedMap[string, *ServerEntry]
}

// configDocument is the on-disk shape.
type configDocument struct {
	MCPServers *orderedmap.OrderedMap[string, *ServerEntry] `json:"mcpServers" yaml:"mcpServers"`
}

// NewConfig returns an empty configuration.
func NewConfig() *Config {
	return &Config{servers: orderedmap.New[string, *ServerEntry]()}
}

// Add appends or replaces a server entry. Replacing keeps the original position.
func (c *Config) Add(name string, entry *ServerEntry) {
	if c.servers == nil {
		c.servers = orderedmap.New[string, *ServerEntry]()
	}
	c.servers.Set(name, entry)
}

// Get returns the entry for name.
func (c *Config) Get(name string) (*ServerEntry, bool) {
	if c.Len() == 0 {
		return nil, false
	}
	return c.servers.Get(name)
}

// Len returns the number of configured servers.
func (c *Config) Len() int {
	if c == nil || c.servers == nil {
		return 0
	}
	return c.servers.Len()
}

// Names returns the server names in declaration order.
func (c *Config) Names() []string {
	if c.Len() == 0 {
		return nil
	}
	names := make([]string, 0, c.servers.Len())
	for pair := c.servers.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// Each calls fn for every entry in declaration order.
func (c *Config) Each(fn func(name string, entry *ServerEntry)) {
	if c.Len() == 0 {
		return
	}
	for pair := c.servers.Oldest(); pair != nil; pair = pair.Next() {
		fn(pair.Key, pair.Value)
	}
}

// ParseConfig decodes a JSON document of the form {"mcpServers": {...}}.
func ParseConfig(data []byte) (*Config, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &errors.ConfigError{Reason: "document is empty"}
	}

	var doc configDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &errors.ConfigError{Reason: "invalid JSON", Cause: err}
	}
	return fromDocument(doc), nil
}

// ParseConfigYAML decodes the same shape from YAML.
func ParseConfigYAML(data []byte) (*Config, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &errors.ConfigError{Reason: "document is empty"}
	}

	var doc configDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &errors.ConfigError{Reason: "invalid YAML", Cause: err}
	}
	return fromDocument(doc), nil
}

func fromDocument(doc configDocument) *Config {
	cfg := NewConfig()
	if doc.MCPServers == nil {
		return cfg
	}
	for pair := doc.MCPServers.Oldest(); pair != nil; pair = pair.Next() {
		entry := pair.Value
		if entry == nil {
			entry = &ServerEntry{}
		}
		cfg.Add(pair.Key, entry)
	}
	return cfg
}

// LoadConfig reads a configuration file. Files ending in .yaml or .yml are
// decoded as YAML, everything else as JSON.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &errors.ConfigError{Key: path, Reason: "cannot read file", Cause: err}
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseConfigYAML(data)
	default:
		return ParseConfig(data)
	}
}

// MarshalJSON encodes the configuration in its document shape.
func (c *Config) MarshalJSON() ([]byte, error) {
	servers := c.servers
	if servers == nil {
		servers = orderedmap.New[string, *ServerEntry]()
	}
	return json.Marshal(configDocument{MCPServers: servers})
}

// Validate checks every entry and returns the first problem as a
// *errors.ConfigError. Commands are not resolved here; an unresolvable
// command only fails its own connection.
func (c *Config) Validate() error {
	var firstErr error
	c.Each(func(name string, entry *ServerEntry) {
		if firstErr != nil {
			return
		}
		if err := ValidateServerName(name); err != nil {
			firstErr = &errors.ConfigError{Key: "mcpServers." + name, Reason: err.Error()}
			return
		}
		if err := entry.Validate(); err != nil {
			firstErr = &errors.ConfigError{Key: "mcpServers." + name, Reason: err.Error()}
		}
	})
	return firstErr
}

// Validate validates a single server entry.
func (e *ServerEntry) Validate() error {
	if strings.TrimSpace(e.Command) == "" {
		return fmt.Errorf("command is required")
	}
	if e.Retries < 0 {
		return fmt.Errorf("retries must be non-negative")
	}
	if e.RetryDelay < 0 {
		return fmt.Errorf("retryDelay must be non-negative")
	}
	if e.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative")
	}

	for i, arg := range e.Args {
		if err := ValidateArg(arg); err != nil {
			return fmt.Errorf("args[%d]: %w", i, err)
		}
	}

	for key, value := range e.Env {
		if err := ValidateEnv(key, value); err != nil {
			return fmt.Errorf("env %s: %w", key, err)
		}
	}

	return nil
}

// ValidateServerName validates an MCP server name.
func ValidateServerName(name string) error {
	if name == "" {
		return fmt.Errorf("server name is required")
	}
	if len(name) > 64 {
		return fmt.Errorf("server name exceeds 64 character limit")
	}
	if !ServerNameRegex.MatchString(name) {
		return fmt.Errorf("invalid server name: must start with a letter and contain only letters, numbers, hyphens, and underscores")
	}
	return nil
}

// shellInjectionPatterns are patterns that could indicate shell injection attempts.
var shellInjectionPatterns = []string{
	";", "&&", "||", "|", "`", "$(", "${", "\n", "\r",
}

// ValidateArg validates a command argument for shell injection.
func ValidateArg(arg string) error {
	for _, pattern := range shellInjectionPatterns {
		if strings.Contains(arg, pattern) {
			return fmt.Errorf("argument contains potentially unsafe pattern %q", pattern)
		}
	}
	return nil
}

// ValidateEnv validates an environment variable key and value.
func ValidateEnv(key, value string) error {
	if key == "" {
		return fmt.Errorf("environment variable key is required")
	}
	if !envKeyRegex.MatchString(key) {
		return fmt.Errorf("invalid environment variable key: %s", key)
	}
	for _, pattern := range []string{"\n", "\r", "\x00"} {
		if strings.Contains(value, pattern) {
			return fmt.Errorf("environment value contains control character %q", pattern)
		}
	}
	return nil
}

// sensitiveKeyPatterns are patterns that indicate a sensitive value.
var sensitiveKeyPatterns = []string{
	"SECRET", "TOKEN", "KEY", "PASSWORD", "CREDENTIAL", "AUTH",
}

// IsSensitiveEnvKey returns true if the key appears to contain sensitive data.
func IsSensitiveEnvKey(key string) bool {
	upperKey := strings.ToUpper(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(upperKey, pattern) {
			return true
		}
	}
	return false
}

// Redacted returns a copy with sensitive environment values masked, for
// printing.
func (c *Config) Redacted() *Config {
	out := NewConfig()
	c.Each(func(name string, entry *ServerEntry) {
		copied := *entry
		if len(entry.Env) > 0 {
			copied.Env = make(map[string]string, len(entry.Env))
			for k, v := range entry.Env {
				if IsSensitiveEnvKey(k) {
					v = "***REDACTED***"
				}
				copied.Env[k] = v
			}
		}
		out.Add(name, &copied)
	})
	return out
}
