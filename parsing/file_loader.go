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
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	yaml "go.yaml.in/yaml/v2"

	"github.com/omniconfig/resolver/types"
)

var (
	// ConfigFileExts lists the extensions FileLoader treats as loadable
	// configuration files.
	ConfigFileExts = []string{".yaml", ".yml", ".json", ".jsonl"}
	// RecipeFileExts lists the extensions FileLoader treats as recipe
	// files: newline-delimited lists of other config files.
	RecipeFileExts = []string{".recipe"}
)

// FileLoader loads configuration and recipe files from disk, discovering
// __default__.* files along the way from the current directory down to
// each file's own directory.
type FileLoader struct {
	ConfigFileExts []string
	RecipeFileExts []string
}

// NewFileLoader returns a FileLoader using the package default
// extensions.
func NewFileLoader() *FileLoader {
	return &FileLoader{ConfigFileExts: ConfigFileExts, RecipeFileExts: RecipeFileExts}
}

func (l *FileLoader) configExts() []string {
	if len(l.ConfigFileExts) > 0 {
		return l.ConfigFileExts
	}
	return ConfigFileExts
}

func (l *FileLoader) recipeExts() []string {
	if len(l.RecipeFileExts) > 0 {
		return l.RecipeFileExts
	}
	return RecipeFileExts
}

func hasAnyExt(name string, exts []string) bool {
	lower := strings.ToLower(name)
	for _, ext := range exts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// LoadWithDefaults expands any recipe files in files into their listed
// config files, discovers __default__.* files along the directory
// hierarchy, and loads everything concurrently, returning the configs in
// (defaults..., then the caller's files) order.
func (l *FileLoader) LoadWithDefaults(files []string) ([]types.Raw, error) {
	var configFiles []string
	for _, file := range files {
		switch {
		case hasAnyExt(file, l.recipeExts()):
			expanded, err := l.expandRecipe(file)
			if err != nil {
				return nil, err
			}
			configFiles = append(configFiles, expanded...)
		case hasAnyExt(file, l.configExts()):
			if !isFile(file) {
				return nil, &types.ConfigParseError{Msg: fmt.Sprintf("config file not found: %s", file)}
			}
			configFiles = append(configFiles, file)
		default:
			return nil, &types.ConfigParseError{Msg: fmt.Sprintf("unsupported file type: %s", file)}
		}
	}
	if len(configFiles) == 0 {
		return nil, &types.ConfigParseError{Msg: "no valid configuration files provided"}
	}

	defaultFiles := l.discoverDefaultFiles(configFiles)
	ordered := append(append([]string{}, defaultFiles...), configFiles...)

	results := make([]types.Raw, len(ordered))
	var g errgroup.Group
	for i, path := range ordered {
		i, path := i, path
		g.Go(func() error {
			data, err := l.LoadFile(path)
			if err != nil {
				return err
			}
			results[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (l *FileLoader) expandRecipe(file string) ([]string, error) {
	if !isFile(file) {
		return nil, &types.ConfigParseError{Msg: fmt.Sprintf("recipe file not found: %s", file)}
	}
	f, err := os.Open(file)
	if err != nil {
		return nil, &types.ConfigParseError{Msg: fmt.Sprintf("recipe file not found: %s", file), Err: err}
	}
	defer f.Close()

	var configFiles []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		configFile := strings.TrimSpace(scanner.Text())
		if configFile == "" {
			continue
		}
		if !isFile(configFile) {
			return nil, &types.ConfigParseError{Msg: fmt.Sprintf("config file in recipe %s not found: %s", file, configFile)}
		}
		if !hasAnyExt(configFile, l.configExts()) {
			return nil, &types.ConfigParseError{Msg: fmt.Sprintf("unsupported config file in recipe %s: %s", file, configFile)}
		}
		configFiles = append(configFiles, configFile)
	}
	if err := scanner.Err(); err != nil {
		return nil, &types.ConfigParseError{Msg: fmt.Sprintf("failed to read recipe %s", file), Err: err}
	}
	return configFiles, nil
}

// discoverDefaultFiles walks, for each file, every directory component
// between the current working directory and the file's own directory
// (outside-in), collecting the first __default__.<ext> found per
// directory, each directory visited at most once.
func (l *FileLoader) discoverDefaultFiles(files []string) []string {
	cwd, err := os.Getwd()
	if err != nil {
		return nil
	}

	var defaultFiles []string
	seenFiles := make(map[string]struct{})
	seenDirs := make(map[string]struct{})

	for _, file := range files {
		abs, err := filepath.Abs(file)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(cwd, abs)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		parts := strings.Split(filepath.Dir(rel), string(filepath.Separator))
		current := cwd
		for _, part := range parts {
			if part == "." || part == "" {
				continue
			}
			current = filepath.Join(current, part)
			if _, ok := seenDirs[current]; ok {
				continue
			}
			seenDirs[current] = struct{}{}
			for _, ext := range l.configExts() {
				candidate := filepath.Join(current, "__default__"+ext)
				if isFile(candidate) {
					if _, ok := seenFiles[candidate]; !ok {
						seenFiles[candidate] = struct{}{}
						defaultFiles = append(defaultFiles, candidate)
					}
					break
				}
			}
		}
	}
	return defaultFiles
}

// LoadFile loads and parses a single YAML or JSON configuration file.
func (l *FileLoader) LoadFile(path string) (types.Raw, error) {
	if !isFile(path) {
		return nil, &types.ConfigParseError{Msg: fmt.Sprintf("configuration file not found: %s", path)}
	}

	ext := strings.ToLower(filepath.Ext(path))
	f, err := os.Open(path)
	if err != nil {
		return nil, &types.ConfigParseError{Msg: fmt.Sprintf("failed to load file %s", path), Err: err}
	}
	defer f.Close()

	var data types.Raw
	switch ext {
	case ".yaml", ".yml":
		data, err = parseYAML(f)
	case ".json", ".jsonl":
		data, err = parseJSON(f)
	default:
		return nil, &types.ConfigParseError{Msg: fmt.Sprintf("unsupported file type: %s", ext)}
	}
	if err != nil {
		return nil, &types.ConfigParseError{Msg: fmt.Sprintf("failed to load file %s", path), Err: err}
	}

	if _, ok := data.(*types.RawMap); !ok {
		return nil, &types.ConfigParseError{Msg: fmt.Sprintf("configuration file %s must contain a mapping", path)}
	}
	return data, nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func parseYAML(r io.Reader) (types.Raw, error) {
	var doc yaml.MapSlice
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return types.NewRawMap(), nil
		}
		return nil, err
	}
	return convertYAML(doc), nil
}

func convertYAML(v any) types.Raw {
	switch val := v.(type) {
	case yaml.MapSlice:
		out := types.NewRawMap()
		for _, item := range val {
			key := fmt.Sprint(item.Key)
			out.Set(key, convertYAML(item.Value))
		}
		return out
	case []any:
		out := make([]types.Raw, len(val))
		for i, item := range val {
			out[i] = convertYAML(item)
		}
		return out
	default:
		return val
	}
}

func parseJSON(r io.Reader) (types.Raw, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return decodeJSONValue(dec)
}

func decodeJSONValue(dec *json.Decoder) (types.Raw, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			out := types.NewRawMap()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, _ := keyTok.(string)
				value, err := decodeJSONValue(dec)
				if err != nil {
					return nil, err
				}
				out.Set(key, value)
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return nil, err
			}
			return out, nil
		case '[':
			var out []types.Raw
			for dec.More() {
				value, err := decodeJSONValue(dec)
				if err != nil {
					return nil, err
				}
				out = append(out, value)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return nil, err
			}
			return out, nil
		}
		return nil, fmt.Errorf("unexpected JSON delimiter %v", t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, err
		}
		return f, nil
	default:
		return t, nil
	}
}
