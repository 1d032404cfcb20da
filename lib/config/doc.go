// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the qyn tools.
//
// Configuration is loaded from a single file specified by either the
// QYN_CONFIG environment variable (via [Load]) or a --config flag (via
// [LoadFile]). There is no ~/.config discovery and no automatic file
// search. Without a file, commands run on [Default].
//
// The file may contain environment-specific sections (development, ci,
// production) that override base values when [Config].Environment
// matches. Production without an explicit section turns on strict
// morpheme handling and refuses the legacy key derivation.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${QYN_ROOT}, and ${VAR:-default} patterns are expanded.
// No other environment variables override config values.
//
// Key exports:
//
//   - [Config] -- master struct with Compression, Encryption, Codec,
//     Limits, Keys and Project sections
//   - [Default] -- returns a complete Config with development defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//   - [Config.Validate] -- reports every invalid field at once
//
// This package depends only on archive for the resource budget type.
package config
