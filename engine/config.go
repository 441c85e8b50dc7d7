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

package engine

import "github.com/omniconfig/resolver/types"

// Config extends types.Config with resolution-engine defaults: a shared
// TypeSystem every ResolutionState built from this Config registers its
// custom scalars, unions, and enums against.
//
// Usage:
//
//	cfg := engine.NewConfig(types.WithLogger(myLogger))
//	cfg.TypeSystem.RegisterEnum(reflect.TypeOf(Color(0)), colorMembers)
type Config struct {
	types.Config

	// TypeSystem is the registry consulted by every ResolutionState
	// built from this Config. Defaults to a fresh, empty TypeSystem.
	TypeSystem *TypeSystem
}

// NewConfig creates a Config with sensible defaults and applies opts to
// the embedded types.Config. Unlike types.NewConfig's noop default, the
// engine's Config starts with a logrus-backed Logger (see
// DefaultLogger); pass types.WithLogger to override it.
func NewConfig(opts ...types.Option) Config {
	merged := append([]types.Option{types.WithLogger(DefaultLogger())}, opts...)
	return Config{
		Config:     types.NewConfig(merged...),
		TypeSystem: NewTypeSystem(),
	}
}
