// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package relay shares one child process's console between the local
// terminal and a chat room.
//
// A [Relay] spawns the child and runs four listeners concurrently:
//
//   - output: reads child stdout line by line, echoes every line to the
//     local terminal, and posts the lines accepted by a pattern.Set to
//     chat. This listener runs on the controller's own goroutine and
//     its end (stdout EOF or a read error) is the only trigger for
//     shutdown.
//   - input writer: the single writer of the child's stdin. It takes
//     commands from a cmdqueue.Queue in order and writes each followed
//     by a newline.
//   - keyboard: enqueues lines typed at the local terminal verbatim.
//   - chat: enqueues inbound chat messages formatted as
//     "say [Chat] <@name> text".
//
// Because both producers feed the same queue, commands reach the child
// in the order they were enqueued regardless of origin.
//
// # Lifecycle
//
// A run moves through [StateStarting], [StateRunning], [StateDraining],
// and [StateStopped]. Spawn failure is the only startup error; a chat
// connector that fails to connect is logged and the run continues
// without chat. When the output listener ends the controller marks the
// child exited, cancels the other listeners, closes the queue, joins
// every listener, and reaps the child. No goroutine started by Run
// outlives it.
//
// Cancelling the context passed to Run is an operator interrupt: the
// child receives the configured stop signal (SIGKILL after
// Config.KillAfter if it lingers), and the run drains normally once
// its stdout closes.
package relay
