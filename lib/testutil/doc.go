// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for relay packages.
//
// [RequireReceive], [RequireClosed], and [RequireReturns] encapsulate
// the timeout safety valve pattern (select with time.After fallback) so
// that individual tests do not need direct time.After calls. A relay
// test that hangs is a relay bug (a listener that ignored cancellation,
// a queue that lost its wakeup), and these helpers turn the hang into
// a test failure with a message naming what was being waited for.
//
// [Script] writes a small executable shell script into the test's temp
// directory. Relay tests use scripts as stand-in child processes: they
// print known lines, read commands from stdin, and exit on cue.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
