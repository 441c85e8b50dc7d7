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

	"github.com/omniconfig/resolver/types"
)

// BuildNode builds a ResolutionNode tree out of merged raw data,
// propagating type information down from typeInfos (explicit,
// path-keyed schema type hints) and, below the last explicit path, from
// each parent's own type chains via TypeSystem.ExtractContainerElementType.
//
// typeInfos is keyed by the reference string of the field's path (see
// TypeSystem.BuildTypeInfos).
func BuildNode(ts *TypeSystem, data types.Raw, typeInfos map[string]types.TypeInfo, path types.Path, parentChains []types.TypeChain) (*ResolutionNode, error) {
	reference := ""
	rawMap, isMap := data.(*types.RawMap)
	if s, ok := data.(string); ok && types.IsReferenceFormat(s) {
		reference = s
	} else if isMap {
		if refVal, ok := rawMap.Get(reservedReferenceKey); ok {
			refStr, ok := refVal.(string)
			if !ok || !types.IsReferenceFormat(refStr) {
				return nil, &types.ConfigParseError{Path: path, Msg: "invalid _reference_ format"}
			}
			reference = refStr
		}
	}

	var chains []types.TypeChain
	var err error
	key := path.Reference()
	if info, ok := typeInfos[key]; ok {
		chains, err = ts.Flatten(info)
		if err != nil {
			return nil, err
		}
	} else if len(parentChains) > 0 {
		var lastSeg any
		if len(path) > 0 {
			seg := path[len(path)-1]
			if seg.IsIndex {
				lastSeg = seg.Index
			} else {
				lastSeg = seg.Key
			}
		}
		for _, parentChain := range parentChains {
			elemType := ts.ExtractContainerElementType(parentChain.Leaf().TypeHint(), lastSeg)
			if elemType == nil {
				chains = append(chains, types.TypeChain{{Type: anyType}})
				continue
			}
			info := types.TypeInfo{Type: elemType}
			if reg, ok := ts.Retrieve(elemType); ok {
				info = reg
			}
			flattened, ferr := ts.Flatten(info)
			if ferr != nil {
				return nil, ferr
			}
			chains = append(chains, flattened...)
		}
	} else if len(path) > 0 {
		return nil, &types.ConfigParseError{Path: path, Msg: "no type information available"}
	}

	if reference == "" && len(chains) > 1 {
		if pruned := ts.PruneTypeChains(data, chains); len(pruned) > 0 {
			chains = pruned
		}
	}

	switch v := data.(type) {
	case *types.RawMap:
		content := newNodeMap()
		for _, entry := range v.Entries() {
			if entry.Key == reservedReferenceKey || entry.Key == reservedOverwriteKey {
				continue
			}
			child, cerr := BuildNode(ts, entry.Value, typeInfos, path.Child(types.KeySegment(entry.Key)), chains)
			if cerr != nil {
				return nil, cerr
			}
			content.Set(entry.Key, child)
		}
		return newResolutionNode(content, reference, chains, path)

	case []types.Raw:
		var content []*ResolutionNode
		for i, item := range v {
			child, cerr := BuildNode(ts, item, typeInfos, path.Child(types.IndexSegment(i)), chains)
			if cerr != nil {
				return nil, cerr
			}
			content = append(content, child)
		}
		return newResolutionNode(content, reference, chains, path)

	default:
		return newResolutionNode(data, reference, chains, path)
	}
}

var anyType = reflect.TypeOf((*any)(nil)).Elem()
