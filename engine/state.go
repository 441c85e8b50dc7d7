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
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/omniconfig/resolver/types"
)

// ResolutionState is the central coordinator for one resolution run: it
// owns the node tree, the dependency graph computed from it, and the
// Factory System used to process the graph's pre-computed topological
// queue.
type ResolutionState struct {
	// RunID identifies this resolution run in log lines. Metrics are
	// not labelled with it.
	RunID string

	root  *ResolutionNode
	graph *DependencyGraph
	ts    *TypeSystem
	fs    *FactorySystem
	log   types.Logger
}

// NewResolutionState builds the node tree for data against configs (a
// scope name -> registered struct type map) and computes its dependency
// graph, returning a *types.CircularReferenceError immediately if the
// graph contains a cycle.
func NewResolutionState(data types.Raw, configs map[string]reflect.Type, cfg Config) (*ResolutionState, error) {
	log := cfg.Logger
	if log == nil {
		log = types.NoopLogger()
	}

	for _, cls := range configs {
		cfg.TypeSystem.Scan(cls)
	}

	typeInfos := make(map[string]types.TypeInfo)
	for scope, cls := range configs {
		path := types.Path{}
		if scope != "" {
			path = types.Path{types.KeySegment(scope)}
		}
		typeInfos[path.Reference()] = types.TypeInfo{Type: cls}
		cfg.TypeSystem.BuildTypeInfos(cls, path, typeInfos)
	}

	root, err := BuildNode(cfg.TypeSystem, data, typeInfos, types.Path{}, nil)
	if err != nil {
		return nil, err
	}

	graph, err := BuildDependencyGraph(root)
	if err != nil {
		return nil, err
	}

	runID, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}

	log.Debugf("built dependency graph with %d nodes", len(graph.Queue))

	return &ResolutionState{
		RunID: runID.String(),
		root:  root,
		graph: graph,
		ts:    cfg.TypeSystem,
		fs:    NewFactorySystem(cfg.TypeSystem),
		log:   log,
	}, nil
}

// Queue returns the pre-computed topological processing order.
func (s *ResolutionState) Queue() []*ResolutionNode { return s.graph.Queue }

// ApplyFactory runs the Factory System on node.
func (s *ResolutionState) ApplyFactory(node *ResolutionNode) error {
	if err := s.fs.Apply(node); err != nil {
		factoryFailuresTotal.WithLabelValues(nodeTypeLabel(node)).Inc()
		return err
	}
	return nil
}

// ResolveReference replaces node (a reference node) with its resolved
// target in place, factories the result, and updates the graph so later
// lookups by node.Path see the resolved node.
func (s *ResolutionState) ResolveReference(node *ResolutionNode) error {
	target, ok := s.graph.nodes[node.Reference]
	if !ok {
		return &types.ConfigReferenceError{Reference: node.Reference, Path: node.Path}
	}
	resolved, err := node.ResolveReference(target)
	if err != nil {
		return err
	}
	if err := s.ApplyFactory(resolved); err != nil {
		return err
	}
	return s.graph.SetNode(node.Path, resolved)
}

// Root returns the tree root. After Resolve completes successfully this
// node (and its whole tree) is fully factoried.
func (s *ResolutionState) Root() *ResolutionNode { return s.root }

// Resolve processes the pre-computed queue in order: reference nodes are
// resolved (which also factories the resolved result), everything else
// is factoried directly. It returns the fully-resolved root node.
func (s *ResolutionState) Resolve() (*ResolutionNode, error) {
	start := time.Now()
	outcome := "ok"
	defer func() {
		resolutionDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	s.log.Debugf("processing %d nodes in topological order (run %s)", len(s.graph.Queue), s.RunID)
	for _, node := range s.graph.Queue {
		var err error
		if node.IsReference() {
			s.log.Debugf("resolving %s -> %s", node.Name, node.Reference)
			err = s.ResolveReference(node)
		} else {
			s.log.Debugf("factorying %s", node.Name)
			err = s.ApplyFactory(node)
		}
		if err != nil {
			outcome = "error"
			resolvedNodesTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		resolvedNodesTotal.WithLabelValues("ok").Inc()
	}
	return s.root, nil
}

func nodeTypeLabel(node *ResolutionNode) string {
	if len(node.TypeChains) == 0 {
		return "unknown"
	}
	return node.TypeChains[0].Leaf().Type.String()
}
