// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads bureau-console-relay configuration.
//
// Configuration comes from a single file named by the --config flag
// (via [LoadFile]) or the CONSOLE_RELAY_CONFIG environment variable
// (via [Load]). YAML is the native format; files ending in .json or
// .jsonc are accepted after comment stripping. When neither is set,
// [FromEnvironment] builds a configuration from CONSOLE_RELAY_*
// variables alone.
//
// String fields support ${VAR} and ${VAR:-default} expansion. The chat
// access token never appears in the file: it is read from
// chat.access_token_file or the CONSOLE_RELAY_ACCESS_TOKEN variable
// (see [Config.AccessToken]).
//
// Key exports:
//
//   - [Config] -- the full configuration, with [Default] values
//   - [Load], [LoadFile], [FromEnvironment] -- the entry points
//   - [Config.Validate] -- reports every problem at once
package config
