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

// missingType is a distinguished, zero-size type whose only instance is
// MissingValue. It exists so a resolution node can carry a value field
// that is provably unset, distinct from any legitimate nil/zero value a
// schema might declare (including a field whose declared type is a
// pointer, an interface, or a zero-valued struct).
type missingType struct{}

// MissingValue marks a ResolutionNode's Value as not yet produced by the
// Factory System. Compare with ==, never with reflect.DeepEqual against a
// zero value of the declared type.
var MissingValue any = missingType{}

// IsMissing reports whether v is the MISSING sentinel.
func IsMissing(v any) bool {
	_, ok := v.(missingType)
	return ok
}
