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
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/omniconfig/resolver/types"
)

// FactorySystem turns a node's raw, merged content into a typed value
// by trying each of its candidate type chains in order, children first.
type FactorySystem struct {
	ts *TypeSystem
}

// NewFactorySystem returns a FactorySystem bound to ts for custom-type
// and enum lookups.
func NewFactorySystem(ts *TypeSystem) *FactorySystem {
	return &FactorySystem{ts: ts}
}

// Apply factories node in place, recursing into children first. It is
// idempotent: a node that is already factoried returns immediately. A
// node with no type chains at all stores its materialized content as-is
// once its children are factoried.
func (fs *FactorySystem) Apply(node *ResolutionNode) error {
	if node.IsFactoried() {
		return nil
	}
	if node.IsReference() {
		return &types.ConfigFactoryError{Path: node.Path, Msg: "cannot apply factory to a reference node"}
	}

	switch content := node.Content.(type) {
	case *NodeMap:
		for _, key := range content.Keys() {
			child, _ := content.Get(key)
			if err := fs.Apply(child); err != nil {
				return err
			}
		}
	case []*ResolutionNode:
		for _, child := range content {
			if err := fs.Apply(child); err != nil {
				return err
			}
		}
	}

	value := node.Materialize(true)

	if len(node.TypeChains) == 0 {
		node.Value = value
		return nil
	}

	var lastErr error
	var anyChain *types.TypeChain
	for i := range node.TypeChains {
		chain := node.TypeChains[i]
		if len(chain) == 0 {
			continue
		}
		if chain.Leaf().Type == anyType {
			c := chain
			anyChain = &c
			continue
		}
		result, err := fs.applyTypeChain(value, chain, node.Path)
		if err == nil {
			node.Value = result
			node.TypeChains = []types.TypeChain{chain}
			return nil
		}
		lastErr = err
	}

	if lastErr != nil && anyChain == nil {
		return &types.ConfigFactoryError{Path: node.Path, Msg: "failed to apply any type chain", Err: lastErr}
	}

	node.Value = value
	if anyChain != nil {
		node.TypeChains = []types.TypeChain{*anyChain}
	} else {
		node.TypeChains = nil
	}
	return nil
}

// applyTypeChain runs a chain's transformations from innermost (leaf)
// type to outermost (root), so the Go value returned matches the field's
// declared (possibly custom-indirected) type.
func (fs *FactorySystem) applyTypeChain(value any, chain types.TypeChain, path types.Path) (any, error) {
	result := value
	for i := len(chain) - 1; i >= 0; i-- {
		info := chain[i]
		if info.Custom != nil {
			converted, err := info.Custom.Factory(result)
			if err != nil {
				return nil, &types.ConfigFactoryError{Path: path, Type: info.Type.String(), Err: err}
			}
			result = converted
			continue
		}
		converted, err := fs.applyBuiltinType(result, info.Type, path)
		if err != nil {
			return nil, err
		}
		result = converted
	}
	return result, nil
}

func (fs *FactorySystem) applyBuiltinType(value any, target reflect.Type, path types.Path) (any, error) {
	if value == nil {
		return nil, nil
	}
	if target == anyType {
		return value, nil
	}

	if members, isEnum := fs.ts.enumMemberNames(target); isEnum {
		return convertEnum(value, target, members, path)
	}

	switch target.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return convertPrimitive(value, target, path)
	case reflect.Struct:
		return fs.createRecord(value, target, path)
	case reflect.Slice:
		return coerceSlice(value, target, path)
	case reflect.Array:
		return coerceArray(value, target, path)
	case reflect.Map:
		return coerceMap(value, target, path)
	default:
		return value, nil
	}
}

func convertPrimitive(value any, target reflect.Type, path types.Path) (any, error) {
	rv := reflect.ValueOf(value)
	if rv.Type() == target {
		return value, nil
	}
	switch target.Kind() {
	case reflect.Bool:
		if s, ok := value.(string); ok {
			lower := strings.ToLower(s)
			switch lower {
			case "true", "yes", "1":
				return true, nil
			case "false", "no", "0":
				return false, nil
			default:
				return nil, &types.ConfigFactoryError{Path: path, Type: "bool", Msg: fmt.Sprintf("cannot convert %q to bool", s)}
			}
		}
		return reflect.ValueOf(value).Convert(target).Interface(), nil
	case reflect.String:
		return fmt.Sprint(value), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		if !rv.Type().ConvertibleTo(target) {
			return nil, &types.ConfigFactoryError{Path: path, Type: target.String(), Msg: fmt.Sprintf("cannot convert %T to %s", value, target)}
		}
		return rv.Convert(target).Interface(), nil
	default:
		return value, nil
	}
}

func convertEnum(value any, target reflect.Type, members map[string]any, path types.Path) (any, error) {
	rv := reflect.ValueOf(value)
	if rv.Type() == target {
		return value, nil
	}
	if name, ok := value.(string); ok {
		if member, found := members[name]; found {
			return member, nil
		}
	}
	for _, member := range members {
		if reflect.DeepEqual(member, value) {
			return member, nil
		}
	}
	return nil, &types.ConfigFactoryError{Path: path, Type: target.String(), Msg: fmt.Sprintf("cannot convert %v to %s", value, target)}
}

func (fs *FactorySystem) createRecord(value any, target reflect.Type, path types.Path) (any, error) {
	if rv := reflect.ValueOf(value); rv.IsValid() && rv.Type() == target {
		return value, nil
	}
	rawMap, ok := value.(*types.RawMap)
	if !ok {
		return nil, &types.ConfigFactoryError{Path: path, Type: target.String(), Msg: fmt.Sprintf("cannot create %s from %T", target, value)}
	}

	input := rawMap.ToMap()
	for _, field := range fs.ts.Scan(target) {
		if _, present := input[field.Name]; present {
			continue
		}
		if field.Required {
			return nil, &types.ConfigFactoryError{Path: path, Type: target.String(), Msg: fmt.Sprintf("missing required field %q", field.Name)}
		}
		if !types.IsMissing(field.Default) {
			input[field.Name] = convertDefault(field)
		}
	}

	instance := reflect.New(target).Interface()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           instance,
		WeaklyTypedInput: true,
		TagName:          "cfg",
	})
	if err != nil {
		return nil, &types.ConfigFactoryError{Path: path, Type: target.String(), Err: err}
	}
	if err := decoder.Decode(input); err != nil {
		return nil, &types.ConfigFactoryError{Path: path, Type: target.String(), Err: err}
	}
	return reflect.ValueOf(instance).Elem().Interface(), nil
}

func coerceSlice(value any, target reflect.Type, path types.Path) (any, error) {
	items, ok := value.([]any)
	if !ok {
		return nil, &types.ConfigFactoryError{Path: path, Type: target.String(), Msg: fmt.Sprintf("cannot create slice from %T", value)}
	}
	out := reflect.MakeSlice(target, len(items), len(items))
	for i, item := range items {
		out.Index(i).Set(reflect.ValueOf(item))
	}
	return out.Interface(), nil
}

func coerceArray(value any, target reflect.Type, path types.Path) (any, error) {
	items, ok := value.([]any)
	if !ok {
		return nil, &types.ConfigFactoryError{Path: path, Type: target.String(), Msg: fmt.Sprintf("cannot create array from %T", value)}
	}
	out := reflect.New(target).Elem()
	for i := 0; i < out.Len() && i < len(items); i++ {
		out.Index(i).Set(reflect.ValueOf(items[i]))
	}
	return out.Interface(), nil
}

func coerceMap(value any, target reflect.Type, path types.Path) (any, error) {
	rawMap, ok := value.(*types.RawMap)
	if !ok {
		return nil, &types.ConfigFactoryError{Path: path, Type: target.String(), Msg: fmt.Sprintf("cannot create map from %T", value)}
	}
	if target.Elem() == reflect.TypeOf(struct{}{}) {
		out := reflect.MakeMapWithSize(target, rawMap.Len())
		for _, key := range rawMap.Keys() {
			out.SetMapIndex(reflect.ValueOf(key).Convert(target.Key()), reflect.ValueOf(struct{}{}))
		}
		return out.Interface(), nil
	}
	out := reflect.MakeMapWithSize(target, rawMap.Len())
	for _, entry := range rawMap.Entries() {
		out.SetMapIndex(reflect.ValueOf(entry.Key).Convert(target.Key()), reflect.ValueOf(entry.Value))
	}
	return out.Interface(), nil
}
