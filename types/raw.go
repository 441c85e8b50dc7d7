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

// Raw is the shape of merged configuration data before it is run through
// the Node Builder: a JSON/YAML-like value limited to nil, bool, an
// integer (int from YAML files, int64 from JSON files), float64 (also
// every CLI number), string, []Raw, or *RawMap.
//
// Go's native map[string]any loses key insertion order on every decode,
// but the Resolution Engine's determinism guarantees (insertion-order
// tie-breaking in the topological scheduler, target-before-override key
// iteration in the reference merge) both depend on that order being
// preserved end to end from file/CLI decode through to node scheduling.
// RawMap is the ordered substitute: an explicit slice of key/value pairs
// plus an index for O(1) lookup, the same trick go.yaml.in/yaml/v2 uses
// for yaml.MapSlice.
type Raw = any

// RawEntry is one key/value pair of a RawMap, in insertion order.
type RawEntry struct {
	Key   string
	Value Raw
}

// RawMap is an ordered mapping from string keys to Raw values. It is the
// mapping representation used everywhere merged configuration data flows:
// file decode, CLI overlay, the merger, and node building.
type RawMap struct {
	entries []RawEntry
	index   map[string]int
}

// NewRawMap returns an empty, ready-to-use RawMap.
func NewRawMap() *RawMap {
	return &RawMap{index: make(map[string]int)}
}

// Len returns the number of keys.
func (m *RawMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// Keys returns the keys in insertion order. The returned slice must not
// be mutated by the caller.
func (m *RawMap) Keys() []string {
	if m == nil {
		return nil
	}
	keys := make([]string, len(m.entries))
	for i, e := range m.entries {
		keys[i] = e.Key
	}
	return keys
}

// Get returns the value stored for key and whether it was present.
func (m *RawMap) Get(key string) (Raw, bool) {
	if m == nil {
		return nil, false
	}
	i, ok := m.index[key]
	if !ok {
		return nil, false
	}
	return m.entries[i].Value, true
}

// Set inserts or updates key. New keys are appended, preserving the
// order in which they were first seen, exactly like a Python dict.
func (m *RawMap) Set(key string, value Raw) {
	if i, ok := m.index[key]; ok {
		m.entries[i].Value = value
		return
	}
	m.index[key] = len(m.entries)
	m.entries = append(m.entries, RawEntry{Key: key, Value: value})
}

// Delete removes key if present, shifting later entries down by one to
// keep Keys() contiguous.
func (m *RawMap) Delete(key string) {
	i, ok := m.index[key]
	if !ok {
		return
	}
	m.entries = append(m.entries[:i], m.entries[i+1:]...)
	delete(m.index, key)
	for k, v := range m.index {
		if v > i {
			m.index[k] = v - 1
		}
	}
}

// Entries returns the key/value pairs in insertion order. The returned
// slice must not be mutated by the caller.
func (m *RawMap) Entries() []RawEntry {
	if m == nil {
		return nil
	}
	return m.entries
}

// Clone returns a shallow copy: the entry slice and index are fresh, but
// nested RawMap/[]Raw values are shared with the original until a caller
// mutates them through Set.
func (m *RawMap) Clone() *RawMap {
	if m == nil {
		return NewRawMap()
	}
	out := &RawMap{
		entries: make([]RawEntry, len(m.entries)),
		index:   make(map[string]int, len(m.index)),
	}
	copy(out.entries, m.entries)
	for k, v := range m.index {
		out.index[k] = v
	}
	return out
}

// ToMap converts to a plain map[string]any, discarding order. Used at
// API boundaries where callers expect an ordinary Go map, and as the
// decoder input when the factory builds a record.
func (m *RawMap) ToMap() map[string]any {
	out := make(map[string]any, m.Len())
	for _, e := range m.Entries() {
		if nested, ok := e.Value.(*RawMap); ok {
			out[e.Key] = nested.ToMap()
		} else {
			out[e.Key] = e.Value
		}
	}
	return out
}

// RawMapFromMap builds a RawMap from a plain map[string]any, inserting
// keys in the order sortedKeys gives them; keys of m not listed there
// are left out.
func RawMapFromMap(m map[string]any, sortedKeys []string) *RawMap {
	out := NewRawMap()
	for _, k := range sortedKeys {
		out.Set(k, m[k])
	}
	return out
}
