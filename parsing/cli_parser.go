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

package parsing

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"unicode"

	"github.com/spf13/pflag"

	"github.com/omniconfig/resolver/engine"
	"github.com/omniconfig/resolver/types"
)

type cliFieldEntry struct {
	flagName  string
	path      types.Path
	category  types.TypeCategory
	isList    bool
	isRecord  bool
	recordCls reflect.Type
}

// CLIParser synthesizes pflag flags from a registered struct's schema
// and converts the parsed flag values back into the universal raw data
// shape (types.Raw) the resolution engine merges and resolves.
type CLIParser struct {
	fs         *pflag.FlagSet
	ts         *engine.TypeSystem
	sep        string
	flagPrefix string

	keepFlagUnderscores        bool
	keepPrivateFlagUnderscores bool

	fieldMap map[string]*cliFieldEntry
	depthMap map[int][]string
}

// CLIParserOption configures a CLIParser.
type CLIParserOption func(*CLIParser)

// WithKeepFlagUnderscores disables the default underscore-to-hyphen flag
// name conversion.
func WithKeepFlagUnderscores(keep bool) CLIParserOption {
	return func(p *CLIParser) { p.keepFlagUnderscores = keep }
}

// WithCLIFlagPrefix prepends prefix to every scope's synthesized flag
// name (and, transitively, every field flag nested under that scope),
// letting multiple scopes registered on one parser share a flag set
// without colliding.
func WithCLIFlagPrefix(prefix string) CLIParserOption {
	return func(p *CLIParser) { p.flagPrefix = prefix }
}

// NewCLIParser returns a CLIParser that registers flags on fs, using ts
// to introspect each registered struct's fields.
func NewCLIParser(fs *pflag.FlagSet, ts *engine.TypeSystem, opts ...CLIParserOption) *CLIParser {
	p := &CLIParser{
		fs:                         fs,
		ts:                         ts,
		sep:                        "-",
		keepPrivateFlagUnderscores: true,
		fieldMap:                   make(map[string]*cliFieldEntry),
		depthMap:                   make(map[int][]string),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AddConfig registers cls under scope: one flag for the scope itself
// (accepting a reference or a JSON container override) plus one flag per
// field, recursing into nested record fields.
func (p *CLIParser) AddConfig(cls reflect.Type, scope, flagName, help string) error {
	for cls.Kind() == reflect.Ptr {
		cls = cls.Elem()
	}
	if flagName == "" {
		flagName = scope
	}

	nestedFlagNamePrefix := p.flagPrefix
	if flagName != "" {
		formatted, err := formatCLIFlagName(flagName, p.flagPrefix, p.sep, p.keepFlagUnderscores, p.keepPrivateFlagUnderscores)
		if err != nil {
			return err
		}
		nestedFlagNamePrefix = formatted
		helpMsg := fmt.Sprintf("Scope %s (%s)", scope, cls.Name())
		if help != "" {
			helpMsg = fmt.Sprintf("%s (%s)", help, helpMsg)
		}
		if _, ok := p.fieldMap[scope]; ok {
			return fmt.Errorf("scope destination %q is already registered", scope)
		}
		p.fs.StringArray(formatted, nil, helpMsg)
		p.fieldMap[scope] = &cliFieldEntry{flagName: formatted, path: types.Path{}, category: types.CategoryRecord, isList: true, isRecord: true, recordCls: cls}
		p.depthMap[0] = append(p.depthMap[0], scope)
	}

	return p.addFieldsToParser(cls, scope, nestedFlagNamePrefix, types.Path{types.KeySegment(scope)})
}

func (p *CLIParser) addFieldsToParser(cls reflect.Type, destPrefix, flagNamePrefix string, path types.Path) error {
	for _, field := range p.ts.Scan(cls) {
		if field.Suppress {
			continue
		}
		fieldPath := path.Child(types.KeySegment(field.Name))

		fieldFlagName := field.FlagName
		if fieldFlagName == "" {
			fieldFlagName = field.Name
		}
		flagName, err := formatCLIFlagName(fieldFlagName, flagNamePrefix, p.sep, p.keepFlagUnderscores, p.keepPrivateFlagUnderscores)
		if err != nil {
			return err
		}
		dest := formatCLIDest(field.Name, destPrefix)
		if _, ok := p.fieldMap[dest]; ok {
			return fmt.Errorf("destination %q is already registered (field %s)", dest, fieldPath.Reference())
		}
		cliHelp := formatCLIHelpMessage(field.Docstring, fieldPath, field.Type)

		switch field.Category {
		case types.CategoryContainer:
			if flagName == "" {
				return fmt.Errorf("container field %q must have a non-empty flag name", fieldPath.Reference())
			}
			p.fs.StringArray(flagName, nil, cliHelp)
			p.fieldMap[dest] = &cliFieldEntry{flagName: flagName, path: fieldPath, category: field.Category, isList: true}
			p.depthMap[len(fieldPath)] = append(p.depthMap[len(fieldPath)], dest)

		case types.CategoryRecord:
			if flagName != "" {
				p.fs.StringArray(flagName, nil, cliHelp)
				p.fieldMap[dest] = &cliFieldEntry{flagName: flagName, path: fieldPath, category: field.Category, isList: true, isRecord: true, recordCls: field.Type}
				p.depthMap[len(fieldPath)] = append(p.depthMap[len(fieldPath)], dest)
			}
			ft := field.Type
			for ft.Kind() == reflect.Ptr {
				ft = ft.Elem()
			}
			if err := p.addFieldsToParser(ft, dest, flagName, fieldPath); err != nil {
				return err
			}

		default:
			p.fs.String(flagName, "", cliHelp)
			p.fieldMap[dest] = &cliFieldEntry{flagName: flagName, path: fieldPath, category: field.Category}
			p.depthMap[len(fieldPath)] = append(p.depthMap[len(fieldPath)], dest)
		}
	}
	return nil
}

// ParseNamespace converts every flag this CLIParser registered that was
// actually set on the command line into the universal raw data shape.
func (p *CLIParser) ParseNamespace() (types.Raw, error) {
	result := types.NewRawMap()

	depths := make([]int, 0, len(p.depthMap))
	for d := range p.depthMap {
		depths = append(depths, d)
	}
	sort.Ints(depths)

	for _, depth := range depths {
		for _, dest := range p.depthMap[depth] {
			entry := p.fieldMap[dest]
			if !p.fs.Changed(entry.flagName) {
				continue
			}

			var value types.Raw
			if entry.isList {
				raw, err := p.fs.GetStringArray(entry.flagName)
				if err != nil {
					return nil, err
				}
				allowList := entry.category == types.CategoryContainer
				v, err := parseCLIValues(raw, allowList, entry.flagName, entry.path)
				if err != nil {
					return nil, err
				}
				value = v
			} else {
				raw, err := p.fs.GetString(entry.flagName)
				if err != nil {
					return nil, err
				}
				value = parseCLIValue(raw)
			}

			if err := setAtPath(result, entry.path, value); err != nil {
				return nil, err
			}
		}
	}
	return result, nil
}

func setAtPath(root *types.RawMap, path types.Path, value types.Raw) error {
	if len(path) == 0 {
		return fmt.Errorf("cannot set value at empty path")
	}
	current := root
	for _, seg := range path[:len(path)-1] {
		existing, ok := current.Get(seg.Key)
		if !ok {
			next := types.NewRawMap()
			current.Set(seg.Key, next)
			current = next
			continue
		}
		switch v := existing.(type) {
		case *types.RawMap:
			current = v
		case string:
			if !types.IsReferenceFormat(v) {
				return &types.ConfigParseError{Path: path, Msg: fmt.Sprintf("invalid reference string %s", v)}
			}
			next := types.NewRawMap()
			next.Set(referenceKey, v)
			current.Set(seg.Key, next)
			current = next
		default:
			return &types.ConfigParseError{Path: path, Msg: fmt.Sprintf("expected mapping at %s, got %T", seg.Key, existing)}
		}
	}
	last := path[len(path)-1]
	current.Set(last.Key, value)
	return nil
}

func formatCLIFlagName(flagName, prefix, sep string, keepUnderscores, keepPrivateUnderscores bool) (string, error) {
	if flagName == "" {
		return "", nil
	}
	name := strings.ToLower(strings.TrimSpace(flagName))
	if strings.HasPrefix(name, "_") {
		if len(name) == 1 {
			return "", fmt.Errorf("flag name cannot be just underscore: %s", name)
		}
		if !unicode.IsLetter(rune(name[1])) {
			return "", fmt.Errorf("after underscore, flag must start with a letter: %s", name)
		}
		if !keepUnderscores && !keepPrivateUnderscores {
			name = strings.ReplaceAll(name, "_", "-")
		}
	} else {
		if !unicode.IsLetter(rune(name[0])) {
			return "", fmt.Errorf("flag name must start with a letter or single underscore: %s", name)
		}
		if !keepUnderscores {
			name = strings.ReplaceAll(name, "_", "-")
		}
	}
	if prefix != "" {
		return prefix + sep + name, nil
	}
	return name, nil
}

func formatCLIDest(name, prefix string) string {
	if name == "" {
		return ""
	}
	if prefix != "" {
		return prefix + "_" + name
	}
	return name
}

func formatCLIHelpMessage(message string, path types.Path, t reflect.Type) string {
	s := fmt.Sprintf("Field %q (%s)", path.Reference(), t)
	if message != "" {
		s += ": " + message
	}
	return s
}

func tryContainerJSONSyntax(value string) (types.Raw, bool, error) {
	isObj := strings.HasPrefix(value, "{") && strings.HasSuffix(value, "}")
	isArr := strings.HasPrefix(value, "[") && strings.HasSuffix(value, "]")
	if !isObj && !isArr {
		return value, false, nil
	}
	var generic any
	if err := json.Unmarshal([]byte(value), &generic); err != nil {
		return value, false, nil
	}
	raw := fromGenericJSON(generic)
	if m, ok := raw.(*types.RawMap); ok {
		m.Set(overwriteKey, true)
		return m, true, nil
	}
	if _, ok := raw.([]types.Raw); ok {
		return raw, true, nil
	}
	return nil, false, fmt.Errorf("invalid JSON container syntax %q", value)
}

func fromGenericJSON(v any) types.Raw {
	switch val := v.(type) {
	case map[string]any:
		out := types.NewRawMap()
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out.Set(k, fromGenericJSON(val[k]))
		}
		return out
	case []any:
		out := make([]types.Raw, len(val))
		for i, item := range val {
			out[i] = fromGenericJSON(item)
		}
		return out
	default:
		return val
	}
}

// parseCLIValue parses a single CLI token as JSON if possible, allowing
// users to control the resulting type explicitly: "128" -> 128 (float64),
// `"128"` -> "128" (string), "true"/"false" -> bool, "none"/"null" -> nil.
func parseCLIValue(value string) types.Raw {
	if types.IsReferenceFormat(value) {
		return value
	}
	lower := strings.ToLower(value)
	switch lower {
	case "none", "null":
		return nil
	case "true":
		return true
	case "false":
		return false
	}
	var generic any
	if err := json.Unmarshal([]byte(value), &generic); err == nil {
		return fromGenericJSON(generic)
	}
	return value
}

// parseCLIValues parses a repeated flag's accumulated tokens into either
// a single reference string, a JSON container override, a dotted-path
// key=value update map, or (when allowList) a plain list of values.
func parseCLIValues(values []string, allowList bool, flag string, path types.Path) (types.Raw, error) {
	errMsg := func(msg string) error {
		return &types.ConfigParseError{Path: path, Msg: fmt.Sprintf("flag %q: %s", flag, msg)}
	}

	var content []types.Raw
	updates := types.NewRawMap()
	var references []string
	var overwrite types.Raw
	numPairs := 0

	for _, item := range values {
		if types.IsReferenceFormat(item) {
			references = append(references, item)
			continue
		}
		if value, ok, err := tryContainerJSONSyntax(item); err != nil {
			return nil, errMsg(err.Error())
		} else if ok {
			if overwrite != nil {
				return nil, errMsg("multiple JSON container syntax found")
			}
			overwrite = value
			continue
		}
		if strings.Contains(item, "=") {
			parts := strings.SplitN(item, "=", 2)
			key, rawValue := parts[0], parts[1]
			keyParts := strings.Split(key, ".")

			value, ok, err := tryContainerJSONSyntax(rawValue)
			if err != nil {
				return nil, errMsg(err.Error())
			}
			if !ok {
				value = parseCLIValue(rawValue)
			}

			if err := setDotted(updates, keyParts, value); err != nil {
				return nil, errMsg(err.Error())
			}
			numPairs++
		}
		content = append(content, parseCLIValue(item))
	}

	if len(references) == len(values) && len(values) > 0 {
		if len(references) == 1 {
			return references[0], nil
		}
		if !allowList {
			return nil, errMsg("multiple reference strings not allowed here")
		}
		out := make([]types.Raw, len(references))
		for i, r := range references {
			out[i] = r
		}
		return out, nil
	}

	if overwrite != nil {
		if len(references) > 0 {
			return nil, errMsg("cannot have both reference and JSON container; write the reference inside the JSON")
		}
		return overwrite, nil
	}

	if len(references) > 0 {
		if len(references) > 1 {
			return nil, errMsg("multiple reference strings found")
		}
		if numPairs == 0 {
			return references[0], nil
		}
		updates.Set(referenceKey, references[0])
		return updates, nil
	}

	if numPairs == len(values) && numPairs > 0 {
		return updates, nil
	}

	if !allowList {
		if len(content) > 1 {
			return nil, errMsg("multiple values not allowed here")
		}
		if len(content) == 0 {
			return nil, nil
		}
		return content[0], nil
	}
	return content, nil
}

func setDotted(root *types.RawMap, parts []string, value types.Raw) error {
	current := root
	for _, part := range parts[:len(parts)-1] {
		existing, ok := current.Get(part)
		if !ok {
			next := types.NewRawMap()
			current.Set(part, next)
			current = next
			continue
		}
		next, ok := existing.(*types.RawMap)
		if !ok {
			return fmt.Errorf("cannot use %q as both a leaf and a mapping key", part)
		}
		current = next
	}
	last := parts[len(parts)-1]
	if _, exists := current.Get(last); exists {
		return fmt.Errorf("duplicate key %q", last)
	}
	current.Set(last, value)
	return nil
}
