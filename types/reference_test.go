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

import "testing"

func TestPathToReferenceRoot(t *testing.T) {
	if got := PathToReference(Path{}); got != "" {
		t.Errorf("PathToReference(root) = %q, want \"\"", got)
	}
}

func TestPathToReferenceNested(t *testing.T) {
	path := Path{KeySegment("db"), KeySegment("host")}
	if got := path.Reference(); got != "::db::host" {
		t.Errorf("Reference() = %q, want \"::db::host\"", got)
	}
}

func TestPathToReferenceWithIndex(t *testing.T) {
	path := Path{KeySegment("items"), IndexSegment(2)}
	if got := path.Reference(); got != "::items::2" {
		t.Errorf("Reference() = %q, want \"::items::2\"", got)
	}
}

func TestPathChildDoesNotMutateReceiver(t *testing.T) {
	base := Path{KeySegment("a")}
	child := base.Child(KeySegment("b"))

	if len(base) != 1 {
		t.Fatalf("base mutated: len = %d, want 1", len(base))
	}
	if got := child.Reference(); got != "::a::b" {
		t.Errorf("child.Reference() = %q, want \"::a::b\"", got)
	}
}

func TestIsReferenceFormat(t *testing.T) {
	cases := []struct {
		value string
		want  bool
	}{
		{"::db::host", true},
		{"::", true},
		{"db::host", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := IsReferenceFormat(tc.value); got != tc.want {
			t.Errorf("IsReferenceFormat(%q) = %v, want %v", tc.value, got, tc.want)
		}
	}
}
