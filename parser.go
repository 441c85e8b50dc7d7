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

// Package resolver is the public entry point: it wires file loading, CLI
// flag synthesis, config merging, and the resolution engine into a
// single Parser a caller registers struct types against and calls Parse
// on to get back a fully resolved, typed Namespace.
package resolver

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/spf13/cobra"

	"github.com/omniconfig/resolver/engine"
	"github.com/omniconfig/resolver/parsing"
	"github.com/omniconfig/resolver/types"
)

var dualReferenceSeparator = types.ReferenceSeparator + types.ReferenceSeparator

// Parser is the top-level façade: register one or more struct types with
// AddConfig, then call Parse with the process's command-line arguments
// to load files, read CLI flags, merge everything, and resolve it into a
// Namespace.
type Parser struct {
	cfg        engine.Config
	cmd        *cobra.Command
	cli        *parsing.CLIParser
	fileLoader *parsing.FileLoader

	configs map[string]reflect.Type
	order   []string
}

// NewParser builds a Parser. opts configure the underlying engine.Config
// (logger, file extensions, CLI flag prefix, ...).
func NewParser(use string, opts ...types.Option) *Parser {
	cfg := engine.NewConfig(opts...)
	cmd := &cobra.Command{
		Use:           use,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	var cli *parsing.CLIParser
	if !cfg.SuppressCLI {
		cli = parsing.NewCLIParser(cmd.Flags(), cfg.TypeSystem, parsing.WithCLIFlagPrefix(cfg.CLIFlagPrefix))
	}
	return &Parser{
		cfg:        cfg,
		cmd:        cmd,
		cli:        cli,
		fileLoader: &parsing.FileLoader{ConfigFileExts: cfg.ConfigFileExts, RecipeFileExts: cfg.RecipeFileExts},
		configs:    make(map[string]reflect.Type),
	}
}

// Command returns the underlying cobra.Command, for callers that want to
// attach subcommands or run it directly.
func (p *Parser) Command() *cobra.Command { return p.cmd }

// AddConfig registers cls (a struct type) under scope: its fields become
// CLI flags and config-file keys nested under scope. An empty scope may
// only be used when it is the sole registered config, in which case its
// fields sit at the configuration document's top level.
func (p *Parser) AddConfig(cls reflect.Type, scope, flag, help string) error {
	for cls.Kind() == reflect.Ptr {
		cls = cls.Elem()
	}
	if cls.Kind() != reflect.Struct {
		return fmt.Errorf("%s is not a struct", cls)
	}

	if scope != "" {
		if _, ok := p.configs[""]; ok {
			return fmt.Errorf("cannot add non-empty scope config when an empty scope exists")
		}
		if !isValidIdentifier(scope) {
			return fmt.Errorf("scope %q is not a valid identifier", scope)
		}
	} else if len(p.configs) > 0 {
		return fmt.Errorf("cannot add empty scope config when non-empty scopes exist")
	}
	if _, ok := p.configs[scope]; ok {
		return fmt.Errorf("scope %q is already registered", scope)
	}
	if flag == "" {
		flag = scope
	}

	p.configs[scope] = cls
	p.order = append(p.order, scope)

	if p.cli != nil {
		return p.cli.AddConfig(cls, scope, flag, help)
	}
	return nil
}

func isValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) {
			continue
		}
		if i > 0 && unicode.IsDigit(r) {
			continue
		}
		return false
	}
	return true
}

// Parse loads every file named in args (plain files plus recipe files,
// with __default__.* discovery), reads any registered CLI flags also
// present in args, merges everything file-priority-then-CLI, resolves
// the result against every registered config, and returns the typed
// Namespace.
func (p *Parser) Parse(args []string) (*types.Namespace, error) {
	p.cfg.Logger.Debugf("parsing arguments: %v", args)

	if err := p.cmd.Flags().Parse(args); err != nil {
		return nil, err
	}
	files := p.cmd.Flags().Args()

	var fileConfigs []types.Raw
	if len(files) > 0 {
		p.cfg.Logger.Debugf("loading config files with defaults: %v", files)
		loaded, err := p.fileLoader.LoadWithDefaults(files)
		if err != nil {
			return nil, err
		}
		for _, fc := range loaded {
			if _, hasEmpty := p.configs[""]; hasEmpty {
				if m, ok := fc.(*types.RawMap); ok {
					if _, already := m.Get(""); !already {
						wrapped := types.NewRawMap()
						wrapped.Set("", m)
						fc = wrapped
					}
				}
			}
			fileConfigs = append(fileConfigs, fc)
		}
	}

	var cliData types.Raw = types.NewRawMap()
	if p.cli != nil {
		p.cfg.Logger.Debugf("converting CLI flags to universal structure")
		data, err := p.cli.ParseNamespace()
		if err != nil {
			return nil, err
		}
		cliData = data
	}

	p.cfg.Logger.Debugf("merging sources in priority order")
	universal, err := parsing.Merge(append(fileConfigs, cliData)...)
	if err != nil {
		return nil, err
	}

	if _, hasEmpty := p.configs[""]; hasEmpty {
		universal = translateEmptyScopeReferences(universal, false)
	}

	p.cfg.Logger.Debugf("applying factories and resolving references")
	state, err := engine.NewResolutionState(universal, p.configs, p.cfg)
	if err != nil {
		return nil, err
	}
	root, err := state.Resolve()
	if err != nil {
		return nil, err
	}

	namespace := types.NewNamespace()
	rootMap, _ := root.Content.(*engine.NodeMap)
	for _, scope := range p.order {
		cls := p.configs[scope]
		if rootMap != nil {
			if child, ok := rootMap.Get(scope); ok {
				namespace.Set(scope, child.Value)
				continue
			}
		}
		namespace.Set(scope, reflect.New(cls).Elem().Interface())
	}
	return namespace, nil
}

// DumpDefaults returns a starter configuration document covering every
// registered config: literal defaults where declared, nested defaults
// for single-branch record fields, and "MISSING" placeholders for
// fields the caller must supply.
func (p *Parser) DumpDefaults() (map[string]any, error) {
	result := make(map[string]any)
	for _, scope := range p.order {
		defaults, err := p.cfg.TypeSystem.SerializeDefaults(p.configs[scope])
		if err != nil {
			return nil, err
		}
		if scope == "" {
			return defaults, nil
		}
		result[scope] = defaults
	}
	return result, nil
}

// translateEmptyScopeReferences rewrites top-level reference strings
// ("::field") to ("::::field") so they resolve against the synthetic
// empty-scope wrapper rather than being mistaken for an absolute
// reference into a sibling scope; recover undoes the rewrite.
func translateEmptyScopeReferences(data types.Raw, recover bool) types.Raw {
	switch v := data.(type) {
	case string:
		if recover {
			if strings.HasPrefix(v, dualReferenceSeparator) {
				return v[len(types.ReferenceSeparator):]
			}
			return v
		}
		if strings.HasPrefix(v, types.ReferenceSeparator) && !strings.HasPrefix(v, dualReferenceSeparator) {
			return types.ReferenceSeparator + v
		}
		return v
	case *types.RawMap:
		out := types.NewRawMap()
		for _, entry := range v.Entries() {
			out.Set(entry.Key, translateEmptyScopeReferences(entry.Value, recover))
		}
		return out
	case []types.Raw:
		out := make([]types.Raw, len(v))
		for i, item := range v {
			out[i] = translateEmptyScopeReferences(item, recover)
		}
		return out
	default:
		return v
	}
}
