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

// Package parsing turns configuration sources (files, recipes, CLI
// flags) into the merged raw data the resolution engine builds its node
// tree from.
package parsing

import (
	"fmt"
	"strconv"

	"github.com/omniconfig/resolver/types"
)

const (
	overwriteKey = "_overwrite_"
	referenceKey = "_reference_"
)

// Merge combines configs in priority order: later configs override
// earlier ones. A dict override carrying _overwrite_ (truthy) or
// _reference_ replaces the base value wholesale; a plain dict override
// merges recursively key by key; a dict override applied to a list base
// treats its integer-string keys as indices to update in place.
func Merge(configs ...types.Raw) (types.Raw, error) {
	if len(configs) == 0 {
		return types.NewRawMap(), nil
	}
	if len(configs) == 1 {
		return deepCopy(configs[0]), nil
	}

	var result types.Raw = types.NewRawMap()
	for _, config := range configs {
		if isEmpty(config) {
			continue
		}
		merged, err := mergeValue(result, config, types.Path{})
		if err != nil {
			return nil, err
		}
		result = merged
	}
	return result, nil
}

func isEmpty(v types.Raw) bool {
	switch val := v.(type) {
	case nil:
		return true
	case *types.RawMap:
		return val.Len() == 0
	case []types.Raw:
		return len(val) == 0
	default:
		return false
	}
}

func mergeValue(base, override types.Raw, path types.Path) (types.Raw, error) {
	if s, ok := override.(string); ok && types.IsReferenceFormat(s) {
		return s, nil
	}

	overrideMap, overrideIsMap := override.(*types.RawMap)
	if overrideIsMap {
		_, hasReference := overrideMap.Get(referenceKey)
		overwriteFlag, hasOverwrite := overrideMap.Get(overwriteKey)
		if hasReference || (hasOverwrite && isTruthy(overwriteFlag)) {
			result := deepCopy(overrideMap).(*types.RawMap)
			result.Delete(overwriteKey)
			return result, nil
		}

		if baseMap, ok := base.(*types.RawMap); ok {
			result := deepCopy(baseMap).(*types.RawMap)
			for _, key := range overrideMap.Keys() {
				if key == overwriteKey {
					continue
				}
				value, _ := overrideMap.Get(key)
				if existing, ok := result.Get(key); ok {
					merged, err := mergeValue(existing, value, path.Child(types.KeySegment(key)))
					if err != nil {
						return nil, err
					}
					result.Set(key, merged)
				} else {
					result.Set(key, deepCopy(value))
				}
			}
			return result, nil
		}

		if baseList, ok := base.([]types.Raw); ok {
			result := append([]types.Raw(nil), baseList...)
			for _, key := range overrideMap.Keys() {
				if key == overwriteKey {
					continue
				}
				value, _ := overrideMap.Get(key)
				index, err := parseListIndex(key)
				if err != nil {
					return nil, &types.ConfigParseError{Path: path, Msg: fmt.Sprintf("invalid list key %q", key)}
				}
				if index >= len(result) {
					return nil, &types.ConfigParseError{Path: path, Msg: fmt.Sprintf("list index %d out of range", index)}
				}
				merged, err := mergeValue(result[index], value, path.Child(types.IndexSegment(index)))
				if err != nil {
					return nil, err
				}
				result[index] = merged
			}
			return result, nil
		}
	}

	return deepCopy(override), nil
}

func parseListIndex(key string) (int, error) {
	return strconv.Atoi(key)
}

func isTruthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case int:
		return val != 0
	default:
		return true
	}
}

func deepCopy(v types.Raw) types.Raw {
	switch val := v.(type) {
	case *types.RawMap:
		out := types.NewRawMap()
		for _, entry := range val.Entries() {
			out.Set(entry.Key, deepCopy(entry.Value))
		}
		return out
	case []types.Raw:
		out := make([]types.Raw, len(val))
		for i, item := range val {
			out[i] = deepCopy(item)
		}
		return out
	default:
		return val
	}
}
