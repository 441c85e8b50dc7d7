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
	"reflect"
	"testing"

	"github.com/spf13/pflag"

	"github.com/omniconfig/resolver/engine"
)

type cliPrefixTarget struct {
	Name string `cfg:"name"`
}

// TestCLIFlagPrefixNamespacesScopeAndFieldFlags exercises
// types.Config.CLIFlagPrefix end to end: WithCLIFlagPrefix should
// prepend the prefix to the scope flag and every field flag nested
// under it, not just be accepted and ignored.
func TestCLIFlagPrefixNamespacesScopeAndFieldFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	ts := engine.NewTypeSystem()
	p := NewCLIParser(fs, ts, WithCLIFlagPrefix("app"))

	if err := p.AddConfig(reflect.TypeOf(cliPrefixTarget{}), "server", "server", ""); err != nil {
		t.Fatalf("AddConfig: %v", err)
	}

	if fs.Lookup("app-server") == nil {
		t.Error("expected scope flag to be namespaced as app-server")
	}
	if fs.Lookup("app-server-name") == nil {
		t.Error("expected nested field flag to be namespaced as app-server-name")
	}
	if fs.Lookup("server") != nil || fs.Lookup("server-name") != nil {
		t.Error("unprefixed flag names should not be registered once a CLIFlagPrefix is set")
	}
}

// TestCLIFlagPrefixDefaultsToNoPrefix confirms the zero-value prefix
// keeps today's unprefixed flag names, so existing callers that never
// set types.WithCLIFlagPrefix see no behavior change.
func TestCLIFlagPrefixDefaultsToNoPrefix(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	ts := engine.NewTypeSystem()
	p := NewCLIParser(fs, ts)

	if err := p.AddConfig(reflect.TypeOf(cliPrefixTarget{}), "server", "server", ""); err != nil {
		t.Fatalf("AddConfig: %v", err)
	}

	if fs.Lookup("server") == nil {
		t.Error("expected unprefixed scope flag server")
	}
	if fs.Lookup("server-name") == nil {
		t.Error("expected unprefixed field flag server-name")
	}
}
