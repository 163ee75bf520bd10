// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cmdqueue provides the ordered command queue that sits between
// the relay's input producers (keyboard and chat) and the single writer
// feeding the child process's stdin.
//
// [Queue] is unbounded: [Queue.Enqueue] never blocks and never fails
// while the queue is open. [Queue.Dequeue] suspends until a command is
// available, the queue is closed and drained, or the caller's context
// is done. Ordering is global FIFO across all producers: the mutex that
// guards the backing slice is the single ordering point, so the order
// in which Enqueue calls acquire it is the order in which Dequeue
// returns commands.
//
// The queue is meant for one consumer. Multiple consumers are safe
// (no command is delivered twice) but the relay never needs them.
package cmdqueue
