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
	"fmt"
	"reflect"
	"testing"

	"github.com/omniconfig/resolver/types"
)

// PathValue is a named string type, the same shape a custom scalar
// wrapping a primitive kind would take (spec.md scenario 6).
type PathValue string

func pathFactory(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("expected string, got %T", v)
	}
	return PathValue(s), nil
}

func pathReducer(v any) (any, error) {
	p, ok := v.(PathValue)
	if !ok {
		return nil, fmt.Errorf("expected PathValue, got %T", v)
	}
	return string(p), nil
}

func TestRegisterNamedPrimitiveUnderlyingType(t *testing.T) {
	ts := NewTypeSystem()
	// A named type whose Kind() is reflect.String must remain
	// registrable: only the literal predeclared `string` type is
	// rejected, not every type sharing its underlying kind.
	if err := ts.Register(reflect.TypeOf(PathValue("")), reflect.TypeOf(""), pathFactory, pathReducer); err != nil {
		t.Fatalf("Register(PathValue) = %v, want nil", err)
	}
	if !ts.IsRegistered(reflect.TypeOf(PathValue(""))) {
		t.Fatal("PathValue should be registered")
	}
}

func TestRegisterRejectsBuiltinPrimitive(t *testing.T) {
	ts := NewTypeSystem()
	err := ts.Register(reflect.TypeOf(""), reflect.TypeOf(""), pathFactory, pathReducer)
	if err == nil {
		t.Fatal("Register(string) = nil, want TypeRegistrationError")
	}
	if _, ok := err.(*types.TypeRegistrationError); !ok {
		t.Fatalf("Register(string) error type = %T, want *types.TypeRegistrationError", err)
	}
}

func TestRegisterRejectsStructAndContainer(t *testing.T) {
	ts := NewTypeSystem()
	type rec struct{ X int }
	if err := ts.Register(reflect.TypeOf(rec{}), reflect.TypeOf(""), pathFactory, pathReducer); err == nil {
		t.Error("Register(struct) = nil, want error")
	}
	if err := ts.Register(reflect.TypeOf([]int{}), reflect.TypeOf(""), pathFactory, pathReducer); err == nil {
		t.Error("Register([]int) = nil, want error")
	}
}

func TestRegisterIdempotentOnIdenticalParams(t *testing.T) {
	ts := NewTypeSystem()
	pt := reflect.TypeOf(PathValue(""))
	hint := reflect.TypeOf("")
	if err := ts.Register(pt, hint, pathFactory, pathReducer); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := ts.Register(pt, hint, pathFactory, pathReducer); err != nil {
		t.Fatalf("re-register with identical hint should be a no-op, got %v", err)
	}
}

func TestRegisterConflictingRedefinitionFails(t *testing.T) {
	ts := NewTypeSystem()
	pt := reflect.TypeOf(PathValue(""))
	if err := ts.Register(pt, reflect.TypeOf(""), pathFactory, pathReducer); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := ts.Register(pt, reflect.TypeOf(0), pathFactory, pathReducer); err == nil {
		t.Fatal("re-register with a different type hint should fail")
	}
}

type unionBranchA struct{ A string }
type unionBranchB struct{ B int }

func TestFlattenExpandsUnionBranchesInDeclarationOrder(t *testing.T) {
	ts := NewTypeSystem()
	iface := reflect.TypeOf((*any)(nil)).Elem()
	ts.RegisterUnion(iface, reflect.TypeOf(unionBranchA{}), reflect.TypeOf(unionBranchB{}))

	chains, err := ts.Flatten(types.TypeInfo{Type: iface})
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}
	if len(chains) != 2 {
		t.Fatalf("len(chains) = %d, want 2", len(chains))
	}
	if chains[0].Leaf().Type != reflect.TypeOf(unionBranchA{}) {
		t.Errorf("chains[0] leaf = %v, want unionBranchA", chains[0].Leaf().Type)
	}
	if chains[1].Leaf().Type != reflect.TypeOf(unionBranchB{}) {
		t.Errorf("chains[1] leaf = %v, want unionBranchB", chains[1].Leaf().Type)
	}
}

func TestFlattenPreservesCustomIndirectionPrefix(t *testing.T) {
	ts := NewTypeSystem()
	pt := reflect.TypeOf(PathValue(""))
	if err := ts.Register(pt, reflect.TypeOf(""), pathFactory, pathReducer); err != nil {
		t.Fatalf("Register: %v", err)
	}
	info, ok := ts.Retrieve(pt)
	if !ok {
		t.Fatal("expected PathValue to be registered")
	}
	chains, err := ts.Flatten(info)
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}
	if len(chains) != 1 {
		t.Fatalf("len(chains) = %d, want 1", len(chains))
	}
	chain := chains[0]
	if len(chain) != 2 {
		t.Fatalf("len(chain) = %d, want 2 (custom prefix + leaf)", len(chain))
	}
	if chain.Root().Type != pt {
		t.Errorf("chain root = %v, want PathValue", chain.Root().Type)
	}
	if chain.Leaf().Type != reflect.TypeOf("") {
		t.Errorf("chain leaf = %v, want string", chain.Leaf().Type)
	}
}

type scanBase struct {
	Inherited string `cfg:"inherited" cfghelp:"inherited field"`
}

type scanChild struct {
	scanBase
	Name     string `cfg:"name"`
	Hidden   string `cfg:"-"`
	Optional string `cfg:"optional" cfgdefault:"fallback"`
}

func TestScanSkipsHiddenFieldsAndAppliesTags(t *testing.T) {
	ts := NewTypeSystem()
	fields := ts.Scan(reflect.TypeOf(scanChild{}))

	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	for _, hidden := range names {
		if hidden == "Hidden" || hidden == "hidden" {
			t.Errorf("field tagged cfg:\"-\" should be skipped, got %v", names)
		}
	}

	var optional *types.FieldInfo
	for i := range fields {
		if fields[i].Name == "optional" {
			optional = &fields[i]
		}
	}
	if optional == nil {
		t.Fatalf("expected an 'optional' field, got %v", names)
	}
	if optional.Required {
		t.Error("field with cfgdefault should not be Required")
	}
	if optional.Default != "fallback" {
		t.Errorf("Default = %v, want fallback", optional.Default)
	}
}

func TestSerializeDefaultsUsesLiteralAndMissing(t *testing.T) {
	type withDefaults struct {
		Name  string `cfg:"name" cfgdefault:"anon"`
		Count int    `cfg:"count" cfgdefault:"3"`
		Req   string `cfg:"req"`
	}
	ts := NewTypeSystem()
	out, err := ts.SerializeDefaults(reflect.TypeOf(withDefaults{}))
	if err != nil {
		t.Fatalf("SerializeDefaults: %v", err)
	}
	if out["name"] != "anon" {
		t.Errorf("name = %v, want anon", out["name"])
	}
	if out["count"] != int64(3) {
		t.Errorf("count = %v (%T), want int64(3)", out["count"], out["count"])
	}
	if out["req"] != "MISSING" {
		t.Errorf("req = %v, want literal MISSING", out["req"])
	}
}

func TestSerializeRoundTripsCustomScalar(t *testing.T) {
	ts := NewTypeSystem()
	pt := reflect.TypeOf(PathValue(""))
	if err := ts.Register(pt, reflect.TypeOf(""), pathFactory, pathReducer); err != nil {
		t.Fatalf("Register: %v", err)
	}
	info, _ := ts.Retrieve(pt)
	out, err := ts.Serialize(PathValue("/home/user"), &info)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if out != "/home/user" {
		t.Errorf("Serialize = %v, want \"/home/user\"", out)
	}
}

func TestClassifyBuckets(t *testing.T) {
	ts := NewTypeSystem()
	type rec struct{ X int }
	cases := []struct {
		name string
		t    reflect.Type
		want types.TypeCategory
	}{
		{"bool", reflect.TypeOf(true), types.CategoryPrimitive},
		{"string", reflect.TypeOf(""), types.CategoryPrimitive},
		{"struct", reflect.TypeOf(rec{}), types.CategoryRecord},
		{"slice", reflect.TypeOf([]int{}), types.CategoryContainer},
		{"map", reflect.TypeOf(map[string]int{}), types.CategoryContainer},
	}
	for _, tc := range cases {
		if got := ts.Classify(tc.t, false); got != tc.want {
			t.Errorf("Classify(%s) = %v, want %v", tc.name, got, tc.want)
		}
	}
}
