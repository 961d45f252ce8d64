// Copyright 2026 The Huddle Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads Huddle's configuration file.
//
// The file is named by the --config flag ([LoadFile]) or the
// HUDDLE_CONFIG environment variable ([Load]). There is no discovery
// and no fallback search path. Files ending in .json or .jsonc are
// parsed as JSON with comments and trailing commas; every other
// extension is parsed as YAML.
//
// The file may carry development and production sections that
// override base values when [Config].Environment matches. After
// overrides, ${VAR} and ${VAR:-default} patterns in URL fields are
// expanded from the process environment, so a checked-in file can
// point at per-machine endpoints.
//
// Call [Config.Validate] before use; it reports every problem at once
// through errors.Join.
package config
