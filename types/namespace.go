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

// Namespace holds one resolved configuration object per registered
// scope, keyed by scope name. The empty string names the root/default
// scope. A Parser facade returns a Namespace from Parse; callers type-
// assert Get's result to the concrete struct type they registered.
type Namespace struct {
	scopes map[string]any
}

// NewNamespace returns an empty Namespace.
func NewNamespace() *Namespace {
	return &Namespace{scopes: make(map[string]any)}
}

// Has reports whether a scope by this name was resolved.
func (n *Namespace) Has(name string) bool {
	_, ok := n.scopes[name]
	return ok
}

// Get returns the resolved object for name, or def if the scope was
// never registered.
func (n *Namespace) Get(name string, def any) any {
	if v, ok := n.scopes[name]; ok {
		return v
	}
	return def
}

// Set stores the resolved object for name.
func (n *Namespace) Set(name string, value any) {
	n.scopes[name] = value
}

// Names returns the registered scope names. Order is unspecified.
func (n *Namespace) Names() []string {
	names := make([]string, 0, len(n.scopes))
	for name := range n.scopes {
		names = append(names, name)
	}
	return names
}
