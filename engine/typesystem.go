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
	"strconv"
	"strings"
	"sync"

	"github.com/fatih/structs"

	"github.com/omniconfig/resolver/types"
)

// TypeSystem is the registry for custom scalar types, union branch sets,
// and struct (record) field metadata. One TypeSystem instance is shared
// by every ResolutionState built against the same schema set; a fresh
// instance isolates schemas the way a fresh RuleComponentRegistry
// isolates components in the teacher codebase.
type TypeSystem struct {
	mu sync.RWMutex

	custom       map[reflect.Type]types.TypeInfo
	unionBranch  map[reflect.Type][]reflect.Type
	enumMembers  map[reflect.Type]map[string]any
	bucketsCache map[reflect.Type]map[types.TypeCategory]map[reflect.Type]struct{}
	fieldCache   map[reflect.Type][]types.FieldInfo
}

// NewTypeSystem returns an empty, ready-to-use TypeSystem.
func NewTypeSystem() *TypeSystem {
	return &TypeSystem{
		custom:       make(map[reflect.Type]types.TypeInfo),
		unionBranch:  make(map[reflect.Type][]reflect.Type),
		enumMembers:  make(map[reflect.Type]map[string]any),
		bucketsCache: make(map[reflect.Type]map[types.TypeCategory]map[reflect.Type]struct{}),
		fieldCache:   make(map[reflect.Type][]types.FieldInfo),
	}
}

var primitiveKinds = map[reflect.Kind]bool{
	reflect.Bool: true, reflect.String: true,
	reflect.Int: true, reflect.Int8: true, reflect.Int16: true, reflect.Int32: true, reflect.Int64: true,
	reflect.Uint: true, reflect.Uint8: true, reflect.Uint16: true, reflect.Uint32: true, reflect.Uint64: true,
	reflect.Float32: true, reflect.Float64: true,
}

// isBuiltinPrimitive reports whether t is one of Go's predeclared
// basic types (bool, the numeric kinds, string) rather than a named
// type merely sharing that underlying kind. Predeclared types have an
// empty PkgPath; a user type like `type Path string` does not, and is
// eligible for Register even though its Kind() is reflect.String.
func isBuiltinPrimitive(t reflect.Type) bool {
	return t != nil && t.PkgPath() == "" && primitiveKinds[t.Kind()]
}

// IsPrimitiveType reports whether t is a bool/numeric/string kind or a
// type registered as an enum via RegisterEnum.
func (ts *TypeSystem) IsPrimitiveType(t reflect.Type) bool {
	if t == nil {
		return true
	}
	ts.mu.RLock()
	_, isEnum := ts.enumMembers[t]
	ts.mu.RUnlock()
	if isEnum {
		return true
	}
	return primitiveKinds[t.Kind()]
}

// IsContainerType reports whether t is a slice, array, or map.
func IsContainerType(t reflect.Type) bool {
	if t == nil {
		return false
	}
	switch t.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return true
	default:
		return false
	}
}

// IsUnionType reports whether t is an interface type registered via
// RegisterUnion.
func (ts *TypeSystem) IsUnionType(t reflect.Type) bool {
	if t == nil {
		return false
	}
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	_, ok := ts.unionBranch[t]
	return ok
}

// Register records a custom scalar type: a Go type parsed from
// type_hint via factory, serialized back via reducer. Mirrors
// TypeSystem.register's rejection rules: primitives, structs,
// containers, and registered unions may not be registered this way
// (use field-level overrides instead).
func (ts *TypeSystem) Register(t reflect.Type, typeHint reflect.Type, factory, reducer func(any) (any, error)) error {
	if isBuiltinPrimitive(t) {
		return &types.TypeRegistrationError{TypeHint: t.String(), Msg: "cannot register a primitive type; use field metadata instead"}
	}
	if t.Kind() == reflect.Struct {
		return &types.TypeRegistrationError{TypeHint: t.String(), Msg: "cannot register a struct type; use field metadata instead"}
	}
	if IsContainerType(t) {
		return &types.TypeRegistrationError{TypeHint: t.String(), Msg: "cannot register a container type; use field metadata instead"}
	}
	if ts.IsUnionType(t) {
		return &types.TypeRegistrationError{TypeHint: t.String(), Msg: "cannot register a union type; use field metadata instead"}
	}
	if factory == nil || reducer == nil {
		return &types.TypeRegistrationError{TypeHint: t.String(), Msg: "factory and reducer must both be non-nil"}
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()
	if existing, ok := ts.custom[t]; ok {
		if existing.Custom == nil || existing.Custom.TypeHint != typeHint {
			return &types.TypeRegistrationError{TypeHint: t.String(), Msg: "already registered with a different type hint"}
		}
		return nil
	}
	ts.custom[t] = types.TypeInfo{
		Type: t,
		Custom: &types.CustomTypeInfo{
			TypeHint: typeHint,
			Factory:  factory,
			Reducer:  reducer,
		},
	}
	return nil
}

// RegisterUnion declares iface as a union type whose members are
// branches, in declaration order. A field typed as iface is classified
// Union and its type chain candidates are the flattened chains of every
// branch, tried in this order.
func (ts *TypeSystem) RegisterUnion(iface reflect.Type, branches ...reflect.Type) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.unionBranch[iface] = append([]reflect.Type(nil), branches...)
}

// RegisterEnum declares t as an enum type classified as primitive, with
// members resolvable both by name (members map key) and by underlying
// value equality.
func (ts *TypeSystem) RegisterEnum(t reflect.Type, members map[string]any) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.enumMembers[t] = members
}

// Retrieve returns the registered TypeInfo for t, if any.
func (ts *TypeSystem) Retrieve(t reflect.Type) (types.TypeInfo, bool) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	info, ok := ts.custom[t]
	return info, ok
}

// IsRegistered reports whether t has a custom registration.
func (ts *TypeSystem) IsRegistered(t reflect.Type) bool {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	_, ok := ts.custom[t]
	return ok
}

// Classify assigns t (optionally with inline field metadata) to one of
// the five TypeCategory buckets.
func (ts *TypeSystem) Classify(t reflect.Type, hasInlineCustom bool) types.TypeCategory {
	if t == nil {
		return types.CategoryPrimitive
	}
	if hasInlineCustom {
		return types.CategoryCustom
	}
	if ts.IsRegistered(t) {
		return types.CategoryCustom
	}
	if ts.IsUnionType(t) {
		return types.CategoryUnion
	}
	if IsContainerType(t) {
		return types.CategoryContainer
	}
	if t.Kind() == reflect.Struct {
		return types.CategoryRecord
	}
	if ts.IsPrimitiveType(t) {
		return types.CategoryPrimitive
	}
	return types.CategoryCustom
}

// Flatten expands a TypeInfo into every concrete TypeChain it can
// produce: custom indirections extend the chain by one link, union
// types fan out into one chain per branch (sharing whatever prefix
// preceded the union), and everything else terminates the chain.
func (ts *TypeSystem) Flatten(info types.TypeInfo) ([]types.TypeChain, error) {
	var chains []types.TypeChain
	start := info.Type
	prefix := types.TypeChain{}
	if info.Custom != nil {
		start = info.Custom.TypeHint
		prefix = types.TypeChain{info}
	}
	var dfs func(t reflect.Type, chain types.TypeChain) error
	dfs = func(t reflect.Type, chain types.TypeChain) error {
		category := ts.Classify(t, false)
		switch category {
		case types.CategoryCustom:
			nested, ok := ts.Retrieve(t)
			if !ok {
				return fmt.Errorf("type hint %v is not registered", t)
			}
			return dfs(nested.Custom.TypeHint, append(append(types.TypeChain{}, chain...), nested))
		case types.CategoryUnion:
			ts.mu.RLock()
			branches := ts.unionBranch[t]
			ts.mu.RUnlock()
			for _, branch := range branches {
				if err := dfs(branch, chain); err != nil {
					return err
				}
			}
			return nil
		default:
			full := append(append(types.TypeChain{}, chain...), types.TypeInfo{Type: t})
			chains = append(chains, full)
			return nil
		}
	}
	if err := dfs(start, prefix); err != nil {
		return nil, err
	}
	return chains, nil
}

// ExtractContainerElementType returns the element type a container
// field's key (a map key name, or a slice/array index) should be
// classified and factoried as. Returns nil (meaning "any") when it
// cannot be determined structurally.
func (ts *TypeSystem) ExtractContainerElementType(container reflect.Type, key any) reflect.Type {
	if container == nil {
		return nil
	}
	if info, ok := ts.Retrieve(container); ok {
		return ts.ExtractContainerElementType(info.TypeHint(), key)
	}
	switch container.Kind() {
	case reflect.Slice:
		return container.Elem()
	case reflect.Array:
		idx, ok := key.(int)
		if !ok {
			return container.Elem()
		}
		if idx >= 0 && idx < container.Len() {
			return container.Elem()
		}
		return nil
	case reflect.Map:
		return container.Elem()
	case reflect.Struct:
		name, ok := key.(string)
		if !ok {
			return nil
		}
		if field, ok := container.FieldByName(strings.Title(name)); ok {
			return field.Type
		}
		for _, f := range ts.Scan(container) {
			if f.Name == name {
				return f.Type
			}
		}
		return nil
	default:
		return nil
	}
}

// cfgTag holds the parsed `cfg:"..."` struct tag for one field.
type cfgTag struct {
	name     string
	flagName string
	suppress bool
	typeHint string
	skip     bool
}

func parseCfgTag(raw string) cfgTag {
	var out cfgTag
	if raw == "" {
		return out
	}
	parts := strings.Split(raw, ",")
	if parts[0] != "" && parts[0] != "-" && !strings.Contains(parts[0], "=") {
		out.name = parts[0]
		parts = parts[1:]
	}
	for _, part := range parts {
		switch {
		case part == "-":
			out.skip = true
		case part == "suppress":
			out.suppress = true
		case strings.HasPrefix(part, "flag="):
			out.flagName = strings.TrimPrefix(part, "flag=")
		case strings.HasPrefix(part, "typehint="):
			out.typeHint = strings.TrimPrefix(part, "typehint=")
		}
	}
	return out
}

// Scan introspects a struct type, caching the result, and returns its
// field metadata in declaration order. Mirrors TypeSystem.scan: nested
// struct fields are recursively scanned so their docstrings/buckets are
// available when build_type_infos walks the tree.
func (ts *TypeSystem) Scan(t reflect.Type) []types.FieldInfo {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	ts.mu.RLock()
	if cached, ok := ts.fieldCache[t]; ok {
		ts.mu.RUnlock()
		return cached
	}
	ts.mu.RUnlock()

	if t.Kind() != reflect.Struct {
		return nil
	}

	var out []types.FieldInfo
	for _, sf := range structs.Fields(reflect.New(t).Interface()) {
		field := sf.Field
		if field.PkgPath != "" {
			continue // unexported
		}
		tag := parseCfgTag(field.Tag.Get("cfg"))
		if tag.skip {
			continue
		}
		name := tag.name
		if name == "" {
			name = lowerFirst(field.Name)
		}

		info := types.TypeInfo{Type: field.Type}
		hasCustom := tag.typeHint != ""
		if hasCustom {
			info.Custom = &types.CustomTypeInfo{TypeHint: reflect.TypeOf("")}
		} else if reg, ok := ts.Retrieve(field.Type); ok {
			info = reg
		}
		category := ts.Classify(info.TypeHint(), hasCustom)

		var defVal any = types.MissingValue
		required := true
		if d, ok := field.Tag.Lookup("cfgdefault"); ok {
			defVal = d
			required = false
		}

		fi := types.FieldInfo{
			Name:      name,
			GoName:    field.Name,
			Type:      field.Type,
			TypeInfo:  info,
			Category:  category,
			Docstring: field.Tag.Get("cfghelp"),
			Default:   defVal,
			Required:  required,
			Suppress:  tag.suppress,
			FlagName:  tag.flagName,
		}
		out = append(out, fi)

		if category == types.CategoryRecord {
			ts.Scan(field.Type)
		}
	}

	ts.mu.Lock()
	ts.fieldCache[t] = out
	ts.mu.Unlock()
	return out
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// BuildTypeInfos walks cls (a struct type) and its single-nested-record
// fields, accumulating a path -> TypeInfo map the Node Builder consults
// to assign each node its type chain. A field typed as more than one
// distinct record (a union of records) is NOT recursed into here;
// resolution of which branch applies is left to the Factory System.
func (ts *TypeSystem) BuildTypeInfos(cls reflect.Type, path types.Path, out map[string]types.TypeInfo) {
	for cls.Kind() == reflect.Ptr {
		cls = cls.Elem()
	}
	if cls.Kind() != reflect.Struct {
		return
	}
	for _, field := range ts.Scan(cls) {
		fieldPath := path.Child(types.KeySegment(field.Name))
		out[fieldPath.Reference()] = field.TypeInfo

		if field.Category == types.CategoryRecord {
			ft := field.Type
			for ft.Kind() == reflect.Ptr {
				ft = ft.Elem()
			}
			ts.BuildTypeInfos(ft, fieldPath, out)
		}
	}
}

// Serialize converts a resolved Go value back into plain data (nil,
// bool, numeric, string, map[string]any, []any) suitable for dumping
// to YAML/JSON, applying a custom reducer where applicable.
func (ts *TypeSystem) Serialize(v any, info *types.TypeInfo) (any, error) {
	if info != nil && info.Custom != nil {
		reduced, err := info.Custom.Reducer(v)
		if err != nil {
			return nil, err
		}
		return ts.Serialize(reduced, nil)
	}
	if v == nil {
		return nil, nil
	}
	if types.IsMissing(v) {
		return "MISSING", nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return v, nil
	case reflect.Struct:
		result := make(map[string]any)
		for _, field := range ts.Scan(rv.Type()) {
			fv := rv.FieldByName(field.GoName)
			serialized, err := ts.Serialize(fv.Interface(), &field.TypeInfo)
			if err != nil {
				return nil, err
			}
			result[field.Name] = serialized
		}
		return result, nil
	case reflect.Map:
		result := make(map[string]any)
		for _, key := range rv.MapKeys() {
			serialized, err := ts.Serialize(rv.MapIndex(key).Interface(), nil)
			if err != nil {
				return nil, err
			}
			result[fmt.Sprint(key.Interface())] = serialized
		}
		return result, nil
	case reflect.Slice, reflect.Array:
		result := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			serialized, err := ts.Serialize(rv.Index(i).Interface(), nil)
			if err != nil {
				return nil, err
			}
			result[i] = serialized
		}
		return result, nil
	default:
		if reg, ok := ts.Retrieve(rv.Type()); ok && reg.Custom != nil {
			reduced, err := reg.Custom.Reducer(v)
			if err != nil {
				return nil, err
			}
			return ts.Serialize(reduced, nil)
		}
		return v, nil
	}
}

// SerializeDefaults produces a starter configuration document for cls:
// every field's literal default if declared, else its nested record's
// own defaults if it has exactly one record branch, else the literal
// string "MISSING" as a placeholder the user must fill in.
func (ts *TypeSystem) SerializeDefaults(cls reflect.Type) (map[string]any, error) {
	for cls.Kind() == reflect.Ptr {
		cls = cls.Elem()
	}
	out := make(map[string]any)
	for _, field := range ts.Scan(cls) {
		if !types.IsMissing(field.Default) {
			serialized, err := ts.Serialize(convertDefault(field), &field.TypeInfo)
			if err != nil {
				return nil, err
			}
			out[field.Name] = serialized
			continue
		}
		if field.Category == types.CategoryRecord {
			ft := field.Type
			for ft.Kind() == reflect.Ptr {
				ft = ft.Elem()
			}
			nested, err := ts.SerializeDefaults(ft)
			if err != nil {
				return nil, err
			}
			out[field.Name] = nested
			continue
		}
		out[field.Name] = "MISSING"
	}
	return out, nil
}

func convertDefault(field types.FieldInfo) any {
	s, ok := field.Default.(string)
	if !ok {
		return field.Default
	}
	switch field.Type.Kind() {
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err == nil {
			return b
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, 64)
		if err == nil {
			return n
		}
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(s, 64)
		if err == nil {
			return f
		}
	}
	return s
}

// PruneTypeChains narrows chains to those structurally consistent with
// value's shape, the same best-effort heuristic as
// try_prune_type_chains: never guaranteed minimal, but must never
// exclude the chain the Factory System would ultimately succeed with.
func (ts *TypeSystem) PruneTypeChains(value any, chains []types.TypeChain) []types.TypeChain {
	switch v := value.(type) {
	case *types.RawMap:
		var dictChains, recordChains []types.TypeChain
		for _, chain := range chains {
			leaf := chain.Leaf().Type
			if leaf.Kind() == reflect.Struct {
				recordChains = append(recordChains, chain)
				dictChains = append(dictChains, chain)
				continue
			}
			if leaf.Kind() == reflect.Map {
				dictChains = append(dictChains, chain)
			}
		}
		if len(dictChains) == 1 {
			return dictChains
		}
		if len(recordChains) > 0 {
			var matches []types.TypeChain
			for _, chain := range recordChains {
				if requiredFieldsSatisfied(ts, chain.Leaf().Type, v) {
					matches = append(matches, chain)
				}
			}
			if len(matches) > 0 {
				return matches
			}
		}
		if len(dictChains) == len(recordChains) {
			return dictChains
		}
		var nonRecord []types.TypeChain
		for _, chain := range dictChains {
			if chain.Leaf().Type.Kind() != reflect.Struct {
				nonRecord = append(nonRecord, chain)
			}
		}
		return nonRecord
	case []any:
		var pruned []types.TypeChain
		for _, chain := range chains {
			k := chain.Leaf().Type.Kind()
			if k == reflect.Slice || k == reflect.Array {
				pruned = append(pruned, chain)
			}
		}
		return pruned
	default:
		var pruned []types.TypeChain
		rv := reflect.ValueOf(value)
		for _, chain := range chains {
			leaf := chain.Leaf().Type
			if rv.IsValid() && rv.Type().AssignableTo(leaf) {
				pruned = append(pruned, chain)
			} else if members, ok := ts.enumMemberNames(leaf); ok {
				if name, isStr := value.(string); isStr {
					if _, found := members[name]; found {
						pruned = append(pruned, chain)
					}
				}
			}
		}
		return pruned
	}
}

func (ts *TypeSystem) enumMemberNames(t reflect.Type) (map[string]any, bool) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	m, ok := ts.enumMembers[t]
	return m, ok
}

func requiredFieldsSatisfied(ts *TypeSystem, t reflect.Type, value *types.RawMap) bool {
	for _, field := range ts.Scan(t) {
		if field.Required {
			if _, ok := value.Get(field.Name); !ok {
				return false
			}
		}
	}
	return true
}
