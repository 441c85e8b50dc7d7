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

import (
	"reflect"
	"testing"

	"github.com/omniconfig/resolver/types"
)

type stateSimple struct {
	Name  string `cfg:"name"`
	Value int    `cfg:"value"`
}

func childNode(root *ResolutionNode, t *testing.T, keys ...string) *ResolutionNode {
	t.Helper()
	n := root
	for _, key := range keys {
		nm, ok := n.Content.(*NodeMap)
		if !ok {
			t.Fatalf("node %q has no map content", n.Name)
		}
		child, ok := nm.Get(key)
		if !ok {
			t.Fatalf("node %q has no child %q", n.Name, key)
		}
		n = child
	}
	return n
}

// Scenario: single-scope merge+resolve of a plain record.
func TestResolveSingleScope(t *testing.T) {
	data := types.NewRawMap()
	app := types.NewRawMap()
	app.Set("name", "svc")
	app.Set("value", int64(7))
	data.Set("app", app)

	cfg := NewConfig()
	st, err := NewResolutionState(data, map[string]reflect.Type{"app": reflect.TypeOf(stateSimple{})}, cfg)
	if err != nil {
		t.Fatalf("NewResolutionState: %v", err)
	}
	root, err := st.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	appNode := childNode(root, t, "app")
	got, ok := appNode.Value.(stateSimple)
	if !ok {
		t.Fatalf("app Value = %#v (%T), want stateSimple", appNode.Value, appNode.Value)
	}
	if got.Name != "svc" || got.Value != 7 {
		t.Errorf("got %+v, want {svc 7}", got)
	}
}

// Scenario: a reference carrying a partial structural update overrides
// only the keys it names, keeping the rest of the target.
func TestResolveReferenceWithPartialUpdate(t *testing.T) {
	data := types.NewRawMap()
	base := types.NewRawMap()
	base.Set("name", "base")
	base.Set("value", int64(1))
	data.Set("base", base)

	ref := types.NewRawMap()
	refTarget := types.NewRawMap()
	refTarget.Set("_reference_", "::base")
	refTarget.Set("name", "overridden")
	ref.Set("reference_target", refTarget)
	data.Set("ref", ref)

	type refSchema struct {
		ReferenceTarget stateSimple `cfg:"reference_target"`
	}

	cfg := NewConfig()
	configs := map[string]reflect.Type{
		"base": reflect.TypeOf(stateSimple{}),
		"ref":  reflect.TypeOf(refSchema{}),
	}
	st, err := NewResolutionState(data, configs, cfg)
	if err != nil {
		t.Fatalf("NewResolutionState: %v", err)
	}
	root, err := st.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	refNode := childNode(root, t, "ref")
	resolvedRef, ok := refNode.Value.(refSchema)
	if !ok {
		t.Fatalf("ref Value = %#v (%T), want refSchema", refNode.Value, refNode.Value)
	}
	if resolvedRef.ReferenceTarget.Name != "overridden" {
		t.Errorf("ReferenceTarget.Name = %q, want overridden", resolvedRef.ReferenceTarget.Name)
	}
	if resolvedRef.ReferenceTarget.Value != 1 {
		t.Errorf("ReferenceTarget.Value = %d, want 1 (inherited from base, untouched by the override)", resolvedRef.ReferenceTarget.Value)
	}

	baseNode := childNode(root, t, "base")
	baseVal, ok := baseNode.Value.(stateSimple)
	if !ok || baseVal.Name != "base" {
		t.Errorf("base scope itself must remain untouched by ref's override, got %#v", baseNode.Value)
	}
}

// Scenario: a chain of bare references (no override payload) each
// resolve down to the original target, and an override at the tail of
// the chain is applied on top of it.
func TestResolveBareReferenceChain(t *testing.T) {
	data := types.NewRawMap()
	scope1 := types.NewRawMap()
	scope1.Set("name", "first")
	scope1.Set("value", int64(1))
	data.Set("scope1", scope1)
	data.Set("scope2", "::scope1")

	scope3 := types.NewRawMap()
	scope3.Set("_reference_", "::scope2")
	scope3.Set("name", "third")
	data.Set("scope3", scope3)

	cfg := NewConfig()
	configs := map[string]reflect.Type{
		"scope1": reflect.TypeOf(stateSimple{}),
		"scope2": reflect.TypeOf(stateSimple{}),
		"scope3": reflect.TypeOf(stateSimple{}),
	}
	st, err := NewResolutionState(data, configs, cfg)
	if err != nil {
		t.Fatalf("NewResolutionState: %v", err)
	}
	root, err := st.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	scope2Node := childNode(root, t, "scope2")
	scope2Val, ok := scope2Node.Value.(stateSimple)
	if !ok || scope2Val.Name != "first" || scope2Val.Value != 1 {
		t.Errorf("scope2 = %#v, want {first 1}", scope2Node.Value)
	}

	scope3Node := childNode(root, t, "scope3")
	scope3Val, ok := scope3Node.Value.(stateSimple)
	if !ok {
		t.Fatalf("scope3 Value = %#v (%T)", scope3Node.Value, scope3Node.Value)
	}
	if scope3Val.Name != "third" {
		t.Errorf("scope3.Name = %q, want third", scope3Val.Name)
	}
	if scope3Val.Value != 1 {
		t.Errorf("scope3.Value = %d, want 1 (inherited through the chain)", scope3Val.Value)
	}
}

// Scenario: a cycle between two scopes is rejected before resolution
// even begins.
func TestResolveDetectsCycleAtBuildTime(t *testing.T) {
	data := types.NewRawMap()
	data.Set("a", "::b")
	data.Set("b", "::a")

	cfg := NewConfig()
	configs := map[string]reflect.Type{
		"a": reflect.TypeOf(stateSimple{}),
		"b": reflect.TypeOf(stateSimple{}),
	}
	_, err := NewResolutionState(data, configs, cfg)
	if err == nil {
		t.Fatal("expected a CircularReferenceError, got nil")
	}
	if _, ok := err.(*types.CircularReferenceError); !ok {
		t.Fatalf("error type = %T, want *types.CircularReferenceError", err)
	}
}

// Scenario: a field typed as a map of structs resolves each entry
// against the declared element type, keyed by its map key.
func TestResolveTypedContainerElement(t *testing.T) {
	type withMap struct {
		ConfigMap map[string]stateSimple `cfg:"config_map"`
	}

	entryA := types.NewRawMap()
	entryA.Set("name", "a-name")
	entryA.Set("value", int64(1))
	entryB := types.NewRawMap()
	entryB.Set("name", "b-name")
	entryB.Set("value", int64(2))

	configMap := types.NewRawMap()
	configMap.Set("a", entryA)
	configMap.Set("b", entryB)

	data := types.NewRawMap()
	top := types.NewRawMap()
	top.Set("config_map", configMap)
	data.Set("top", top)

	cfg := NewConfig()
	st, err := NewResolutionState(data, map[string]reflect.Type{"top": reflect.TypeOf(withMap{})}, cfg)
	if err != nil {
		t.Fatalf("NewResolutionState: %v", err)
	}
	root, err := st.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	topNode := childNode(root, t, "top")
	got, ok := topNode.Value.(withMap)
	if !ok {
		t.Fatalf("top Value = %#v (%T), want withMap", topNode.Value, topNode.Value)
	}
	if len(got.ConfigMap) != 2 {
		t.Fatalf("len(ConfigMap) = %d, want 2", len(got.ConfigMap))
	}
	if got.ConfigMap["a"].Name != "a-name" || got.ConfigMap["a"].Value != 1 {
		t.Errorf("ConfigMap[a] = %+v, want {a-name 1}", got.ConfigMap["a"])
	}
	if got.ConfigMap["b"].Name != "b-name" || got.ConfigMap["b"].Value != 2 {
		t.Errorf("ConfigMap[b] = %+v, want {b-name 2}", got.ConfigMap["b"])
	}
}

// Scenario: a registered custom scalar wrapping a primitive underlying
// type (the named-string PathValue case that Register must accept,
// see typesystem_test.go) resolves end to end.
func TestResolveRegisteredCustomScalar(t *testing.T) {
	type withPath struct {
		PathField PathValue `cfg:"path"`
	}

	cfg := NewConfig()
	if err := cfg.TypeSystem.Register(reflect.TypeOf(PathValue("")), reflect.TypeOf(""), pathFactory, pathReducer); err != nil {
		t.Fatalf("Register: %v", err)
	}

	data := types.NewRawMap()
	top := types.NewRawMap()
	top.Set("path", "/home/user")
	data.Set("top", top)

	st, err := NewResolutionState(data, map[string]reflect.Type{"top": reflect.TypeOf(withPath{})}, cfg)
	if err != nil {
		t.Fatalf("NewResolutionState: %v", err)
	}
	root, err := st.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	topNode := childNode(root, t, "top")
	got, ok := topNode.Value.(withPath)
	if !ok {
		t.Fatalf("top Value = %#v (%T), want withPath", topNode.Value, topNode.Value)
	}
	if got.PathField != PathValue("/home/user") {
		t.Errorf("PathField = %q, want /home/user", got.PathField)
	}

	serialized, err := cfg.TypeSystem.Serialize(got.PathField, nil)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	info, ok := cfg.TypeSystem.Retrieve(reflect.TypeOf(PathValue("")))
	if !ok {
		t.Fatal("PathValue should still be registered")
	}
	serialized, err = cfg.TypeSystem.Serialize(got.PathField, &info)
	if err != nil {
		t.Fatalf("Serialize with custom info: %v", err)
	}
	if serialized != "/home/user" {
		t.Errorf("round-tripped serialization = %v, want \"/home/user\"", serialized)
	}
}
