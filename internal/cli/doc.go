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

// Package cli builds the mcpagent root command and its global flags.
//
// Global flags:
//
//	--config      server configuration file (JSON or YAML, default: mcp.json)
//	--json        machine-readable output where supported
//	--verbose     debug logging
//	--quiet       suppress non-error output
//	--log-level   explicit log level (overrides --verbose and --quiet)
//
// Logging is configured once in the root's PersistentPreRun from the
// environment (see internal/log.FromEnv) and the flags above, and installed
// as the slog default so every command and library logs the same way.
package cli
