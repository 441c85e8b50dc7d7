/*
 * Copyright 2024 The OmniConfig Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package types

// Config carries every collaborator the resolution engine and its
// parsing-layer callers need: a logger, file-loading knobs, and CLI flag
// synthesis behavior. It is built with the functional options pattern,
// the same shape the engine package's own Config wraps with domain
// defaults.
//
// Usage:
//
//	cfg := NewConfig(
//	    WithLogger(myLogger),
//	    WithConfigFileExts(".yaml", ".yml", ".json"),
//	)
type Config struct {
	// Logger receives structured diagnostics from every layer:
	// file discovery, merging, resolution, and factory application.
	Logger Logger

	// ConfigFileExts lists the file extensions FileLoader treats as
	// loadable configuration files, also tried in order when looking for
	// a __default__.<ext> file in each directory. Defaults to
	// [".yaml", ".yml", ".json"].
	ConfigFileExts []string

	// RecipeFileExts lists the extensions FileLoader treats as
	// recipe files (newline-delimited lists of other config files).
	// Defaults to [".recipe"].
	RecipeFileExts []string

	// CLIFlagPrefix is prepended to every synthesized CLI flag name,
	// letting multiple scopes share one flag set without collisions.
	// Empty by default (no prefix).
	CLIFlagPrefix string

	// SuppressCLI disables CLI flag synthesis entirely; only file and
	// programmatic defaults are considered during resolution.
	SuppressCLI bool

	// Properties holds ad-hoc key/value settings. Nothing in this module
	// reads it, DumpDefaults and the Resolution Engine included.
	Properties map[string]any
}

// NewConfig builds a Config with sensible defaults and applies opts in
// order.
func NewConfig(opts ...Option) Config {
	c := &Config{
		Logger:         NoopLogger(),
		ConfigFileExts: []string{".yaml", ".yml", ".json"},
		RecipeFileExts: []string{".recipe"},
		Properties:     map[string]any{},
	}
	for _, opt := range opts {
		_ = opt(c)
	}
	return *c
}
