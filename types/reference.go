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

import (
	"strconv"
	"strings"
)

// ReferenceSeparator joins path segments inside a reference string.
// A root-level reference is just the separator repeated once per segment,
// e.g. the path ["db", "host"] becomes "::db::host".
const ReferenceSeparator = "::"

// Segment is one element of a Path: either a mapping key (string) or a
// sequence index (int).
type Segment struct {
	Key     string
	Index   int
	IsIndex bool
}

// String renders the segment the way it appears inside a reference string.
func (s Segment) String() string {
	if s.IsIndex {
		return strconv.Itoa(s.Index)
	}
	return s.Key
}

// KeySegment builds a mapping-key segment.
func KeySegment(key string) Segment {
	return Segment{Key: key}
}

// IndexSegment builds a sequence-index segment.
func IndexSegment(index int) Segment {
	return Segment{Index: index, IsIndex: true}
}

// Path is the sequence of segments from the resolution root to a node.
// An empty Path identifies the root node itself.
type Path []Segment

// String renders the path as a dotted debug string (not a reference).
func (p Path) String() string {
	parts := make([]string, len(p))
	for i, seg := range p {
		parts[i] = seg.String()
	}
	return strings.Join(parts, ".")
}

// Child appends a segment, returning a new Path. The receiver is never
// mutated, since Path slices are shared across sibling nodes built from
// the same parent.
func (p Path) Child(seg Segment) Path {
	out := make(Path, len(p)+1)
	copy(out, p)
	out[len(p)] = seg
	return out
}

// Reference renders the path as a reference string via PathToReference.
func (p Path) Reference() string {
	return PathToReference(p)
}

// IsReferenceFormat reports whether value begins with the reference
// separator, i.e. looks like a reference string lexically.
func IsReferenceFormat(value string) bool {
	return strings.HasPrefix(value, ReferenceSeparator)
}

// IsReferenceString reports whether value is a string-typed reference.
// Mirrors the source's is_reference_str, which additionally narrows on the
// dynamic type of an arbitrary Python value; in Go the caller already
// knows the static type, so this only needs the format check.
func IsReferenceString(value string) bool {
	return IsReferenceFormat(value)
}

// PathToReference builds the canonical reference string for a path. The
// root path (len == 0) renders as "", matching the source's
// path_to_reference([]) == "".
func PathToReference(path Path) string {
	if len(path) == 0 {
		return ""
	}
	var b strings.Builder
	for _, seg := range path {
		b.WriteString(ReferenceSeparator)
		b.WriteString(seg.String())
	}
	return b.String()
}
