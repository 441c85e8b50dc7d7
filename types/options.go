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

// Option is a function that modifies a Config. See the With* functions
// below for the supported knobs.
//
// Usage:
//
//	cfg := NewConfig(
//	    WithLogger(myLogger),
//	    WithCLIFlagPrefix("app"),
//	)
type Option func(*Config) error

// WithLogger sets the Config's Logger.
func WithLogger(logger Logger) Option {
	return func(c *Config) error {
		c.Logger = logger
		return nil
	}
}

// WithConfigFileExts overrides the recognized configuration file
// extensions, also tried in the given order when looking for a
// __default__.<ext> file in each directory.
func WithConfigFileExts(exts ...string) Option {
	return func(c *Config) error {
		c.ConfigFileExts = exts
		return nil
	}
}

// WithRecipeFileExts overrides the recognized recipe file extensions.
func WithRecipeFileExts(exts ...string) Option {
	return func(c *Config) error {
		c.RecipeFileExts = exts
		return nil
	}
}

// WithCLIFlagPrefix sets a prefix applied to every synthesized CLI flag
// name, so multiple scopes registered on one parser don't collide.
func WithCLIFlagPrefix(prefix string) Option {
	return func(c *Config) error {
		c.CLIFlagPrefix = prefix
		return nil
	}
}

// WithSuppressCLI disables CLI flag synthesis entirely.
func WithSuppressCLI(suppress bool) Option {
	return func(c *Config) error {
		c.SuppressCLI = suppress
		return nil
	}
}

// WithProperties sets ad-hoc collaborator properties.
func WithProperties(properties map[string]any) Option {
	return func(c *Config) error {
		c.Properties = properties
		return nil
	}
}
