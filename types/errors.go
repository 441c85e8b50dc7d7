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

import "fmt"

// ConfigError is the common interface implemented by every error kind the
// resolver produces. A caller that only cares "did config resolution
// fail" can type-switch on this; a caller that needs to react to a
// specific failure mode switches on the concrete *ConfigParseError,
// *ConfigReferenceError, etc.
type ConfigError interface {
	error
	configError()
}

// ConfigParseError is raised when parsing a raw configuration value
// (a file, a CLI argument) fails, and also during reference merging when
// a non-integer key is applied to a sequence.
type ConfigParseError struct {
	Path Path
	Msg  string
	Err  error
}

func (e *ConfigParseError) Error() string {
	return fmt.Sprintf("config parse error at %s: %s", e.Path, e.detail())
}

func (e *ConfigParseError) Unwrap() error { return e.Err }
func (*ConfigParseError) configError()    {}

func (e *ConfigParseError) detail() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Msg
}

// ConfigReferenceError is raised when a reference node's target cannot be
// found in the dependency graph, when the target is itself a reference,
// or when the reference string is malformed or points into the node's
// own subtree.
type ConfigReferenceError struct {
	Reference string
	Path      Path
}

func (e *ConfigReferenceError) Error() string {
	return fmt.Sprintf("config reference error: %q (from %s) does not resolve to a known node", e.Reference, e.Path)
}
func (*ConfigReferenceError) configError() {}

// CircularReferenceError is raised when the dependency graph contains a
// cycle among factory and/or reference edges. Cycle holds the concrete
// path of node names that closes the loop, first-detected-node repeated
// at both ends, e.g. ["::a", "::b", "::a"].
type CircularReferenceError struct {
	Cycle []string
}

func (e *CircularReferenceError) Error() string {
	return fmt.Sprintf("circular reference detected: %v", e.Cycle)
}
func (*CircularReferenceError) configError() {}

// ConfigFactoryError is raised when the Factory System cannot coerce a
// node's content into any candidate type in its type chain.
type ConfigFactoryError struct {
	Path Path
	Type string
	Msg  string
	Err  error
}

func (e *ConfigFactoryError) Error() string {
	detail := e.Msg
	if e.Err != nil {
		detail = e.Err.Error()
	}
	return fmt.Sprintf("config factory error at %s (target type %s): %s", e.Path, e.Type, detail)
}

func (e *ConfigFactoryError) Unwrap() error { return e.Err }
func (*ConfigFactoryError) configError()    {}

// TypeRegistrationError is raised when TypeSystem.Register is given an
// ineligible type (a builtin primitive, struct, container or union), a
// nil factory or reducer, or a type already registered with a different
// type hint.
type TypeRegistrationError struct {
	TypeHint string
	Msg      string
}

func (e *TypeRegistrationError) Error() string {
	return fmt.Sprintf("type registration error for %s: %s", e.TypeHint, e.Msg)
}
func (*TypeRegistrationError) configError() {}

// ConfigValidationError is never raised by the core engine itself; it is
// reserved for callers (e.g. a record's own validation logic, run after
// factory application) to signal that a fully-built value failed a
// semantic check the type system has no way to express. The engine
// only ever propagates one of these if a factory function raises it.
type ConfigValidationError struct {
	Path Path
	Msg  string
	Err  error
}

func (e *ConfigValidationError) Error() string {
	detail := e.Msg
	if e.Err != nil {
		detail = e.Err.Error()
	}
	return fmt.Sprintf("config validation error at %s: %s", e.Path, detail)
}

func (e *ConfigValidationError) Unwrap() error { return e.Err }
func (*ConfigValidationError) configError()    {}
