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
	"sort"

	"github.com/omniconfig/resolver/types"
)

// DependencyGraph captures both reference dependencies (a reference
// node depends on its target being resolved first) and factory
// dependencies (a parent depends on every child being factoried first),
// then computes a topological processing order with Kahn's algorithm.
//
// Go's native maps iterate in randomized order, which would make the
// scheduler's tie-breaking nondeterministic across runs; every place
// this type walks a node set in an order that affects output order
// sorts it explicitly first.
type DependencyGraph struct {
	names        map[string]string // path.Reference() -> node name
	nodes        map[string]*ResolutionNode
	order        []string // node names, in collection (pre-order DFS) order
	dependencies map[string]map[string]struct{}
	dependents   map[string]map[string]struct{}
	Queue        []*ResolutionNode
}

// BuildDependencyGraph collects every node under root, builds the
// unified dependency edges, and computes the topological queue. It
// returns a *types.CircularReferenceError if a cycle is found, and a
// *types.ConfigReferenceError if a reference or factory edge points at
// a name no collected node carries.
func BuildDependencyGraph(root *ResolutionNode) (*DependencyGraph, error) {
	g := &DependencyGraph{
		names:        make(map[string]string),
		nodes:        make(map[string]*ResolutionNode),
		dependencies: make(map[string]map[string]struct{}),
		dependents:   make(map[string]map[string]struct{}),
	}
	if err := g.collect(root); err != nil {
		return nil, err
	}
	if err := g.buildDependencies(); err != nil {
		return nil, err
	}
	if err := g.computeTopologicalOrder(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *DependencyGraph) collect(node *ResolutionNode) error {
	if existing, ok := g.nodes[node.Name]; ok {
		if existing != node {
			return fmt.Errorf("duplicate node found for path %q and %q", node.Path, existing.Path)
		}
		return nil
	}
	g.names[node.Path.Reference()] = node.Name
	g.nodes[node.Name] = node
	g.order = append(g.order, node.Name)

	switch content := node.Content.(type) {
	case *NodeMap:
		for _, key := range content.Keys() {
			child, _ := content.Get(key)
			if err := g.collect(child); err != nil {
				return err
			}
		}
	case []*ResolutionNode:
		for _, child := range content {
			if err := g.collect(child); err != nil {
				return err
			}
		}
	}
	return nil
}

func (g *DependencyGraph) buildDependencies() error {
	for _, name := range g.order {
		node := g.nodes[name]
		if node.IsReference() {
			if err := g.addDependency(name, node.Reference); err != nil {
				return err
			}
		}
		switch content := node.Content.(type) {
		case *NodeMap:
			for _, key := range content.Keys() {
				child, _ := content.Get(key)
				if err := g.addDependency(name, child.Name); err != nil {
					return err
				}
			}
		case []*ResolutionNode:
			for _, child := range content {
				if err := g.addDependency(name, child.Name); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (g *DependencyGraph) addDependency(dependent, dependency string) error {
	if _, ok := g.nodes[dependency]; !ok {
		return &types.ConfigReferenceError{Reference: dependency, Path: g.nodes[dependent].Path}
	}
	if g.dependencies[dependent] == nil {
		g.dependencies[dependent] = make(map[string]struct{})
	}
	g.dependencies[dependent][dependency] = struct{}{}
	if g.dependents[dependency] == nil {
		g.dependents[dependency] = make(map[string]struct{})
	}
	g.dependents[dependency][dependent] = struct{}{}
	return nil
}

func (g *DependencyGraph) computeTopologicalOrder() error {
	inDegree := make(map[string]int, len(g.nodes))
	for _, name := range g.order {
		inDegree[name] = len(g.dependencies[name])
	}

	var queue []string
	for _, name := range g.order {
		if inDegree[name] == 0 {
			queue = append(queue, name)
		}
	}

	var processed []string
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		processed = append(processed, name)

		dependents := sortedKeys(g.dependents[name])
		for _, dep := range dependents {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(processed) != len(g.nodes) {
		processedSet := make(map[string]struct{}, len(processed))
		for _, name := range processed {
			processedSet[name] = struct{}{}
		}
		unprocessed := make(map[string]struct{})
		for name := range g.nodes {
			if _, ok := processedSet[name]; !ok {
				unprocessed[name] = struct{}{}
			}
		}
		if cycle := g.findCycle(unprocessed); cycle != nil {
			return &types.CircularReferenceError{Cycle: cycle}
		}
		return &types.CircularReferenceError{Cycle: sortedKeys(unprocessed)}
	}

	g.Queue = make([]*ResolutionNode, len(processed))
	for i, name := range processed {
		g.Queue[i] = g.nodes[name]
	}
	return nil
}

func (g *DependencyGraph) findCycle(nodes map[string]struct{}) []string {
	visited := make(map[string]struct{})
	var recStack []string
	recStackSet := make(map[string]struct{})

	var dfs func(name string) []string
	dfs = func(name string) []string {
		if _, ok := recStackSet[name]; ok {
			idx := indexOf(recStack, name)
			cycle := append([]string{}, recStack[idx:]...)
			return append(cycle, name)
		}
		if _, ok := visited[name]; ok {
			return nil
		}
		visited[name] = struct{}{}
		recStack = append(recStack, name)
		recStackSet[name] = struct{}{}

		for _, dep := range sortedKeys(g.dependencies[name]) {
			if _, ok := nodes[dep]; !ok {
				continue
			}
			if cycle := dfs(dep); cycle != nil {
				return cycle
			}
		}
		recStack = recStack[:len(recStack)-1]
		delete(recStackSet, name)
		return nil
	}

	for _, name := range sortedKeys(nodes) {
		if _, ok := visited[name]; !ok {
			if cycle := dfs(name); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// SetNode replaces the node at path in place: its parent's content
// slot is rewritten to point at node, and the graph's name index is
// updated to match. Both path and its parent must already be known to
// the graph (ordinarily true right after a ResolveReference call, since
// the reference and its target were both collected up front).
func (g *DependencyGraph) SetNode(path types.Path, node *ResolutionNode) error {
	ref := path.Reference()
	name, ok := g.names[ref]
	if !ok {
		return fmt.Errorf("node path %q does not exist in the graph", path)
	}
	if len(path) == 0 {
		g.nodes[name] = node
		return nil
	}
	parentPath := path[:len(path)-1]
	fieldSeg := path[len(path)-1]
	parentRef := parentPath.Reference()
	parentName, ok := g.names[parentRef]
	if !ok {
		return fmt.Errorf("parent path %q does not exist in the graph", parentPath)
	}
	parent := g.nodes[parentName]

	g.nodes[name] = node
	switch content := parent.Content.(type) {
	case *NodeMap:
		content.Set(fieldSeg.Key, node)
	case []*ResolutionNode:
		idx := fieldSeg.Index
		if idx >= 0 && idx < len(content) {
			content[idx] = node
		}
	}
	return nil
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func indexOf(s []string, v string) int {
	for i, item := range s {
		if item == v {
			return i
		}
	}
	return -1
}
