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
	"errors"
	"strings"
	"testing"

	"github.com/omniconfig/resolver/types"
)

func leafNode(t *testing.T, path types.Path, content any) *ResolutionNode {
	t.Helper()
	n, err := newResolutionNode(content, "", nil, path)
	if err != nil {
		t.Fatalf("newResolutionNode: %v", err)
	}
	return n
}

func mapNode(t *testing.T, path types.Path, kv map[string]*ResolutionNode, order []string) *ResolutionNode {
	t.Helper()
	nm := newNodeMap()
	for _, k := range order {
		nm.Set(k, kv[k])
	}
	n, err := newResolutionNode(nm, "", nil, path)
	if err != nil {
		t.Fatalf("newResolutionNode: %v", err)
	}
	return n
}

// TestCopyWithUpdateKeepsTargetOnlyKeysAndAliasesThem mirrors spec.md's
// override-merge requirement: a key present only on the target survives
// unchanged in the merged result, and the override path becomes an
// alias of the preserved node.
func TestCopyWithUpdateKeepsTargetOnlyKeysAndAliasesThem(t *testing.T) {
	targetBase := leafNode(t, types.Path{types.KeySegment("base"), types.KeySegment("extra_field")}, "original")
	target := mapNode(t, types.Path{types.KeySegment("base")}, map[string]*ResolutionNode{
		"extra_field": targetBase,
	}, []string{"extra_field"})

	overrideName := leafNode(t, types.Path{types.KeySegment("ref"), types.KeySegment("name")}, "updated")
	update := mapNode(t, types.Path{types.KeySegment("ref")}, map[string]*ResolutionNode{
		"name": overrideName,
	}, []string{"name"})

	merged, err := target.CopyWithUpdate(update)
	if err != nil {
		t.Fatalf("CopyWithUpdate: %v", err)
	}
	content := merged.Content.(*NodeMap)

	keptChild, ok := content.Get("extra_field")
	if !ok {
		t.Fatal("expected target-only key extra_field to survive the merge")
	}
	if keptChild != targetBase {
		t.Error("target-only key should keep the original node object, not a copy")
	}
	if _, aliased := keptChild.Aliases["::ref::extra_field"]; !aliased {
		t.Errorf("expected keptChild to be aliased as ::ref::extra_field, aliases=%v", keptChild.Aliases)
	}

	insertedChild, ok := content.Get("name")
	if !ok {
		t.Fatal("expected override-only key name to be inserted")
	}
	if insertedChild != overrideName {
		t.Error("override-only key should insert the override node directly")
	}
}

// TestCopyWithUpdateRecursesOnCommonKeys checks that a key present in
// both target and override is replaced by the override's (unfactoried)
// leaf, not merged further when the override leaf isn't itself a map.
func TestCopyWithUpdateRecursesOnCommonKeys(t *testing.T) {
	targetValue := leafNode(t, types.Path{types.KeySegment("base"), types.KeySegment("value")}, int64(1))
	target := mapNode(t, types.Path{types.KeySegment("base")}, map[string]*ResolutionNode{
		"value": targetValue,
	}, []string{"value"})

	overrideValue := leafNode(t, types.Path{types.KeySegment("ref"), types.KeySegment("value")}, int64(9))
	update := mapNode(t, types.Path{types.KeySegment("ref")}, map[string]*ResolutionNode{
		"value": overrideValue,
	}, []string{"value"})

	merged, err := target.CopyWithUpdate(update)
	if err != nil {
		t.Fatalf("CopyWithUpdate: %v", err)
	}
	child, _ := merged.Content.(*NodeMap).Get("value")
	if child != overrideValue {
		t.Error("common key should be replaced by the override's node")
	}
}

// TestCopyWithUpdateEmptyOverridePreservesTargetIdentity mirrors a bare
// reference with no structural override payload: the merge is a no-op
// that returns the target node itself.
func TestCopyWithUpdateEmptyOverridePreservesTargetIdentity(t *testing.T) {
	target := mapNode(t, types.Path{types.KeySegment("base")}, map[string]*ResolutionNode{
		"value": leafNode(t, types.Path{types.KeySegment("base"), types.KeySegment("value")}, int64(1)),
	}, []string{"value"})

	empty := mapNode(t, types.Path{types.KeySegment("ref")}, nil, nil)
	merged, err := target.CopyWithUpdate(empty)
	if err != nil {
		t.Fatalf("CopyWithUpdate: %v", err)
	}
	if merged != target {
		t.Error("an empty override (no meaningful keys) should return the target node itself, per ResolveReference's bare-reference shortcut")
	}
}

// TestCopyWithUpdateRejectsNonIntegerKeyOnSequence mirrors spec.md's
// sequence-override rule: a non-integer key applied to a list target is
// an error, not a silently dropped update.
func TestCopyWithUpdateRejectsNonIntegerKeyOnSequence(t *testing.T) {
	target := leafNode(t, types.Path{types.KeySegment("base")}, nil)
	target.Content = []*ResolutionNode{
		leafNode(t, types.Path{types.KeySegment("base"), types.IndexSegment(0)}, "first"),
	}

	update := mapNode(t, types.Path{types.KeySegment("ref")}, map[string]*ResolutionNode{
		"extra": leafNode(t, types.Path{types.KeySegment("ref"), types.KeySegment("extra")}, "oops"),
	}, []string{"extra"})

	_, err := target.CopyWithUpdate(update)
	if err == nil {
		t.Fatal("expected an error for a non-integer key applied to a sequence, got nil")
	}
	var parseErr *types.ConfigParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected *types.ConfigParseError, got %T (%v)", err, err)
	}
	if !strings.Contains(parseErr.Msg, "extra") {
		t.Errorf("expected error message to name the offending key %q, got %q", "extra", parseErr.Msg)
	}
}

func TestMaterializeUsesFactoriedValueWhenPresent(t *testing.T) {
	n := leafNode(t, types.Path{types.KeySegment("x")}, "raw")
	n.Value = 42
	if got := n.Materialize(true); got != 42 {
		t.Errorf("Materialize(true) = %v, want 42", got)
	}
	if got := n.Materialize(false); got != "raw" {
		t.Errorf("Materialize(false) = %v, want raw content", got)
	}
}

func TestMaterializeMapSkipsReservedKeys(t *testing.T) {
	nm := newNodeMap()
	nm.Set(reservedReferenceKey, leafNode(t, types.Path{types.KeySegment("x"), types.KeySegment(reservedReferenceKey)}, "::other"))
	nm.Set("name", leafNode(t, types.Path{types.KeySegment("x"), types.KeySegment("name")}, "third"))
	n, err := newResolutionNode(nm, "::other", nil, types.Path{types.KeySegment("x")})
	if err != nil {
		t.Fatalf("newResolutionNode: %v", err)
	}
	out := n.Materialize(false).(*types.RawMap)
	if out.Len() != 2 {
		t.Fatalf("Materialize(false) should skip _reference_/_overwrite_ content keys and hold only name plus the round-tripped _reference_, got %v", out.Keys())
	}
	if ref, ok := out.Get(reservedReferenceKey); !ok || ref != "::other" {
		t.Errorf("Materialize(false) should round-trip the reference string back in, got %v", ref)
	}
}
