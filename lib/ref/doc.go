// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides validated Matrix identifiers: user IDs
// (@localpart:server), room IDs (!opaque:server), and room aliases
// (#localpart:server).
//
// Each is an immutable value type whose zero value means "unset".
// Values are validated once at the boundary (configuration, API
// responses) and passed around typed afterwards, so a room alias can
// never be sent where a room ID is expected. JSON and YAML use the
// plain string form through encoding.TextMarshaler.
package ref
