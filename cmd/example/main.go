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

// Command example demonstrates registering a struct schema with the
// resolver and resolving it from config files and CLI flags together.
package main

import (
	"fmt"
	"os"
	"reflect"

	resolver "github.com/omniconfig/resolver"
)

// ServerConfig is a sample top-level configuration schema.
type ServerConfig struct {
	Host string `cfg:"host" cfgdefault:"0.0.0.0" cfghelp:"listen address"`
	Port int    `cfg:"port" cfgdefault:"8080" cfghelp:"listen port"`

	Database DatabaseConfig `cfg:"database"`
}

// DatabaseConfig is a nested record referenced by ServerConfig.
type DatabaseConfig struct {
	DSN        string `cfg:"dsn" cfghelp:"database connection string"`
	MaxConns   int    `cfg:"max_conns" cfgdefault:"10" cfghelp:"maximum open connections"`
	RetryCount int    `cfg:"retry_count" cfgdefault:"3"`
}

func main() {
	p := resolver.NewParser("example")
	if err := p.AddConfig(reflect.TypeOf(ServerConfig{}), "server", "server", "server configuration"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ns, err := p.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	server, _ := ns.Get("server", ServerConfig{}).(ServerConfig)
	fmt.Printf("listening on %s:%d, database=%s\n", server.Host, server.Port, server.Database.DSN)
}
