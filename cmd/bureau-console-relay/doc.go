// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// bureau-console-relay runs a console program (a game server, a REPL)
// as a child process and bridges its console with a Matrix room.
//
//	bureau-console-relay [flags] [--] <command> [args...]
//
// Every line the child prints is echoed to the relay's stdout. Lines
// accepted by the configured pattern set are also posted to the room.
// Text messages posted to the room by other users are written to the
// child's stdin as "<verb> [<tag>] <@<name>> <text>" (by default
// "say [Chat] <@alice> hello"), interleaved in arrival order with lines
// typed at the relay's own keyboard.
//
// The relay exits when the child exits, with the child's exit status.
// SIGINT or SIGTERM sends the configured stop signal to the child,
// escalates to SIGKILL after shutdown.kill_after, and exits 0 once the
// child is gone.
//
// Configuration is a YAML (or JSONC) file named by --config or
// CONSOLE_RELAY_CONFIG; without one, CONSOLE_RELAY_* variables are used.
// See lib/config for the fields.
package main
