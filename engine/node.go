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
	"strconv"
	"strings"

	"github.com/omniconfig/resolver/types"
)

// NodeMap is an insertion-ordered string -> *ResolutionNode mapping,
// the node-tree analogue of types.RawMap. Reference merge and node
// scheduling both depend on this order matching the order keys first
// appeared in the merged raw data.
type NodeMap struct {
	keys []string
	m    map[string]*ResolutionNode
}

func newNodeMap() *NodeMap {
	return &NodeMap{m: make(map[string]*ResolutionNode)}
}

func (n *NodeMap) Len() int { return len(n.keys) }

func (n *NodeMap) Keys() []string { return n.keys }

func (n *NodeMap) Get(key string) (*ResolutionNode, bool) {
	v, ok := n.m[key]
	return v, ok
}

func (n *NodeMap) Set(key string, value *ResolutionNode) {
	if _, ok := n.m[key]; !ok {
		n.keys = append(n.keys, key)
	}
	n.m[key] = value
}

// ResolutionNode is one node of the resolution tree: it carries both
// the unfactoried tree structure (Content) and, once the Factory System
// has run, the factoried Value, kept deliberately separate so a
// reference rewrite never contaminates a sibling's already-factoried
// data.
type ResolutionNode struct {
	// Content is one of: a primitive types.Raw value, a *NodeMap (for
	// dict-shaped data), or []*ResolutionNode (for list-shaped data).
	Content any

	// Reference is the reference string this node points at, or "" if
	// this node is not itself a reference.
	Reference string

	// Value is the factoried object once the Factory System has run,
	// or types.MissingValue until then.
	Value any

	// TypeChains are the candidate type chains for this node, narrowed
	// (best-effort) by TypeSystem.PruneTypeChains at build time and
	// pruned to exactly one entry the first time the Factory System
	// succeeds.
	TypeChains []types.TypeChain

	// Path is this node's position in the tree.
	Path types.Path

	// Name is the canonical reference string for Path.
	Name string

	// Aliases collects every other reference string this node has
	// been reached by, via reference resolution.
	Aliases map[string]struct{}

	// Resolved is the reference string this node's content was merged
	// in from, if this node is the result of resolving a reference
	// with an override payload.
	Resolved string
}

const (
	reservedReferenceKey = "_reference_"
	reservedOverwriteKey = "_overwrite_"
)

// newResolutionNode builds a node and validates its reference shape,
// the Go analogue of ResolutionNode.__post_init__.
func newResolutionNode(content any, reference string, chains []types.TypeChain, path types.Path) (*ResolutionNode, error) {
	name := path.Reference()
	if reference != "" {
		if !types.IsReferenceFormat(reference) {
			return nil, &types.ConfigReferenceError{Reference: reference, Path: path}
		}
		if strings.HasPrefix(reference, name) {
			return nil, &types.ConfigReferenceError{Reference: reference, Path: path}
		}
	}
	return &ResolutionNode{
		Content:    content,
		Reference:  reference,
		Value:      types.MissingValue,
		TypeChains: chains,
		Path:       path,
		Name:       name,
		Aliases:    make(map[string]struct{}),
	}, nil
}

// IsRoot reports whether this node is the tree root.
func (n *ResolutionNode) IsRoot() bool { return len(n.Path) == 0 }

// IsReference reports whether this node points at another node.
func (n *ResolutionNode) IsReference() bool { return n.Reference != "" }

// IsFactoried reports whether the Factory System has produced Value.
func (n *ResolutionNode) IsFactoried() bool { return !types.IsMissing(n.Value) }

// MatchesName reports whether name equals this node's canonical Name or
// any of its Aliases.
func (n *ResolutionNode) MatchesName(name string) bool {
	if n.Name == name {
		return true
	}
	_, ok := n.Aliases[name]
	return ok
}

// GetReferences returns every reference string reachable from this node
// and its descendants.
func (n *ResolutionNode) GetReferences() map[string]struct{} {
	out := make(map[string]struct{})
	n.collectReferences(out)
	return out
}

func (n *ResolutionNode) collectReferences(out map[string]struct{}) {
	if n.Reference != "" {
		out[n.Reference] = struct{}{}
	}
	switch content := n.Content.(type) {
	case *NodeMap:
		for _, key := range content.Keys() {
			child, _ := content.Get(key)
			child.collectReferences(out)
		}
	case []*ResolutionNode:
		for _, child := range content {
			child.collectReferences(out)
		}
	}
}

// ResolveReference replaces this reference node with its target,
// applying this node's own payload (if any) as a structural override on
// top of the target via CopyWithUpdate.
func (n *ResolutionNode) ResolveReference(target *ResolutionNode) (*ResolutionNode, error) {
	if !n.IsReference() {
		return nil, &types.ConfigReferenceError{Reference: n.Reference, Path: n.Path}
	}
	if n.IsFactoried() {
		return nil, &types.ConfigReferenceError{Reference: n.Reference, Path: n.Path}
	}
	if !target.MatchesName(n.Reference) {
		return nil, &types.ConfigReferenceError{Reference: n.Reference, Path: n.Path}
	}
	if target.IsReference() {
		return nil, &types.ConfigReferenceError{Reference: n.Reference, Path: n.Path}
	}

	content, isMap := n.Content.(*NodeMap)
	if !isMap {
		target.Aliases[n.Name] = struct{}{}
		return target, nil
	}
	if countMeaningfulKeys(content) <= 0 {
		target.Aliases[n.Name] = struct{}{}
		return target, nil
	}

	resolved := n.Reference
	resolvedNode, err := target.CopyWithUpdate(n)
	if err != nil {
		return nil, err
	}
	if resolvedNode != target {
		resolvedNode.Resolved = resolved
	}
	return resolvedNode, nil
}

func countMeaningfulKeys(m *NodeMap) int {
	count := m.Len()
	if _, ok := m.Get(reservedReferenceKey); ok {
		count--
	}
	if _, ok := m.Get(reservedOverwriteKey); ok {
		count--
	}
	return count
}

// CopyWithUpdate structurally merges updateNode's payload onto the
// receiver, the reference override-merge algorithm: a non-dict update
// replaces wholesale; a dict update carrying no keys beyond the reserved
// ones leaves the receiver as-is and aliases it under the update's name;
// a dict-on-dict merge recurses per key, keeping
// target-only keys (aliased) and inserting override-only keys; a
// dict-on-list merge treats integer-string keys as indices, extending
// the list up to the highest referenced index but erroring on gaps.
func (n *ResolutionNode) CopyWithUpdate(updateNode *ResolutionNode) (*ResolutionNode, error) {
	updateMap, updateIsMap := updateNode.Content.(*NodeMap)
	if !updateIsMap {
		if updateNode.IsReference() {
			return nil, &types.ConfigReferenceError{Reference: updateNode.Reference, Path: updateNode.Path}
		}
		return updateNode, nil
	}
	if countMeaningfulKeys(updateMap) <= 0 {
		n.Aliases[updateNode.Name] = struct{}{}
		return n, nil
	}

	switch content := n.Content.(type) {
	case *NodeMap:
		newContent := newNodeMap()
		for _, key := range content.Keys() {
			if key == reservedReferenceKey || key == reservedOverwriteKey {
				continue
			}
			value, _ := content.Get(key)
			updateChild, ok := updateMap.Get(key)
			if !ok {
				value.Aliases[updateNode.Path.Child(types.KeySegment(key)).Reference()] = struct{}{}
				newContent.Set(key, value)
				continue
			}
			merged, err := value.CopyWithUpdate(updateChild)
			if err != nil {
				return nil, err
			}
			newContent.Set(key, merged)
		}
		for _, key := range updateMap.Keys() {
			if key == reservedReferenceKey || key == reservedOverwriteKey {
				continue
			}
			if _, ok := content.Get(key); !ok {
				value, _ := updateMap.Get(key)
				newContent.Set(key, value)
			}
		}
		return &ResolutionNode{
			Content:    newContent,
			Value:      types.MissingValue,
			TypeChains: updateNode.TypeChains,
			Path:       updateNode.Path,
			Name:       updateNode.Path.Reference(),
			Aliases:    updateNode.Aliases,
		}, nil

	case []*ResolutionNode:
		var newContent []*ResolutionNode
		for index, value := range content {
			updateChild, ok := updateMap.Get(strconv.Itoa(index))
			if !ok {
				value.Aliases[updateNode.Path.Child(types.IndexSegment(index)).Reference()] = struct{}{}
				newContent = append(newContent, value)
				continue
			}
			merged, err := value.CopyWithUpdate(updateChild)
			if err != nil {
				return nil, err
			}
			newContent = append(newContent, merged)
		}
		startIndex := len(newContent)
		maxIndex := -1
		for _, key := range updateMap.Keys() {
			if key == reservedReferenceKey || key == reservedOverwriteKey {
				continue
			}
			idx, err := strconv.Atoi(key)
			if err != nil {
				return nil, &types.ConfigParseError{Path: updateNode.Path, Msg: fmt.Sprintf("non-integer key %q used to update a sequence", key)}
			}
			if idx > maxIndex {
				maxIndex = idx
			}
		}
		for index := startIndex; index <= maxIndex; index++ {
			value, ok := updateMap.Get(strconv.Itoa(index))
			if !ok {
				return nil, fmt.Errorf("key %d not found in node content", index)
			}
			newContent = append(newContent, value)
		}
		return &ResolutionNode{
			Content:    newContent,
			Value:      types.MissingValue,
			TypeChains: updateNode.TypeChains,
			Path:       updateNode.Path,
			Name:       updateNode.Path.Reference(),
			Aliases:    updateNode.Aliases,
		}, nil

	default:
		return updateNode, nil
	}
}

// Materialize flattens the node tree back into plain data. With
// afterFactory true (the default use), a factoried node returns its
// Value directly; otherwise the tree structure is walked and, for
// unfactoried reference nodes, the reference string is round-tripped
// back in as "_reference_".
func (n *ResolutionNode) Materialize(afterFactory bool) any {
	if afterFactory && n.IsFactoried() {
		return n.Value
	}
	switch content := n.Content.(type) {
	case *NodeMap:
		out := types.NewRawMap()
		for _, key := range content.Keys() {
			if key == reservedReferenceKey || key == reservedOverwriteKey {
				continue
			}
			child, _ := content.Get(key)
			out.Set(key, child.Materialize(afterFactory))
		}
		if !afterFactory && n.IsReference() {
			out.Set(reservedReferenceKey, n.Reference)
		}
		return out
	case []*ResolutionNode:
		out := make([]any, len(content))
		for i, child := range content {
			out[i] = child.Materialize(afterFactory)
		}
		return out
	default:
		if !afterFactory && n.IsReference() {
			return n.Reference
		}
		return n.Content
	}
}
