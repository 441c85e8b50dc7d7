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

import "reflect"

// TypeCategory classifies a type hint the way the Type System's classify
// operation does: every type hint falls into exactly one of these
// buckets before a type chain can be built for it.
type TypeCategory int

const (
	// CategoryPrimitive covers bool, the numeric kinds, string, and
	// registered enum types.
	CategoryPrimitive TypeCategory = iota
	// CategoryRecord covers Go structs (the analogue of a Python
	// dataclass).
	CategoryRecord
	// CategoryContainer covers slices, arrays, and maps.
	CategoryContainer
	// CategoryUnion covers interface types registered with
	// TypeSystem.RegisterUnion.
	CategoryUnion
	// CategoryCustom covers everything registered via
	// TypeSystem.Register, plus any field carrying inline type-hint
	// metadata.
	CategoryCustom
)

func (c TypeCategory) String() string {
	switch c {
	case CategoryPrimitive:
		return "primitive"
	case CategoryRecord:
		return "record"
	case CategoryContainer:
		return "container"
	case CategoryUnion:
		return "union"
	case CategoryCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// CustomTypeInfo pairs a custom type with the type hint it is parsed
// from and the functions that convert between the two. Factory converts
// a value shaped like TypeHint into the custom Go type; Reducer converts
// back, for serialization.
type CustomTypeInfo struct {
	// TypeHint is the type the raw/merged value is expected to look
	// like before Factory runs (e.g. reflect.TypeOf(""), or a
	// container/record type for a structured custom type).
	TypeHint reflect.Type
	Factory  func(any) (any, error)
	Reducer  func(any) (any, error)
}

// TypeInfo describes one type a resolution node's value might take,
// either a plain Go type or a custom type paired with its indirection.
type TypeInfo struct {
	Type   reflect.Type
	Custom *CustomTypeInfo
}

// TypeHint returns the type the Factory System should present raw
// content as before applying Type/Custom: Custom.TypeHint if this
// TypeInfo is custom, otherwise Type itself.
func (t TypeInfo) TypeHint() reflect.Type {
	if t.Custom != nil {
		return t.Custom.TypeHint
	}
	return t.Type
}

// IsCustom reports whether this TypeInfo carries custom factory/reducer
// functions.
func (t TypeInfo) IsCustom() bool {
	return t.Custom != nil
}

// TypeChain is an ordered sequence of TypeInfo, root-first with the leaf
// last: applying a chain means running TypeInfo[len-1]'s factory first (the innermost,
// concrete Go type the raw content can be coerced to directly), then
// wrapping outward through any custom indirections back to TypeInfo[0].
//
// A chain of length 1 with no Custom info is the common case: a plain
// primitive, record, or container field.
type TypeChain []TypeInfo

// Leaf returns the innermost (last) entry of the chain, the concrete
// type the raw content is coerced into before any custom wrapping.
func (c TypeChain) Leaf() TypeInfo {
	return c[len(c)-1]
}

// Root returns the outermost (first) entry of the chain, the type the
// node's resolved value ultimately takes on.
func (c TypeChain) Root() TypeInfo {
	return c[0]
}

// FieldInfo describes one field of a record (struct) type as discovered
// by TypeSystem.Scan: its Go reflect.StructField plus the schema-facing
// metadata that drives factory application, CLI flag synthesis, and
// defaults serialization.
type FieldInfo struct {
	// Name is the schema-facing field name (the `cfg` tag override, or
	// the Go field name lowercased-first if no tag is present).
	Name string
	// GoName is the literal Go struct field name, for reflect.Value
	// Field-by-name lookups.
	GoName string
	// Type is the field's static Go type.
	Type reflect.Type
	// TypeInfo is the (possibly custom) type info resolved for this
	// field, combining the static type with any registered override.
	TypeInfo TypeInfo
	// Category is the classification of TypeInfo.
	Category TypeCategory
	// Docstring is the help text associated with the field (from a
	// `cfghelp` tag, falling back to "").
	Docstring string
	// Default is the literal default value, or MissingValue if none
	// was declared.
	Default any
	// DefaultFactory builds a fresh default value per call (mirrors a
	// dataclass's default_factory, for defaults that must not be
	// shared, e.g. slices/maps). Nil if Default is used instead.
	DefaultFactory func() any
	// Required is true when the field has neither Default nor
	// DefaultFactory and so must be supplied by some configuration
	// layer.
	Required bool
	// Suppress hides the field from CLI flag synthesis while still
	// allowing it to be set from files.
	Suppress bool
	// FlagName overrides the synthesized CLI flag stem for this field.
	FlagName string
}
