// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret keeps the chat access token out of the Go heap.
//
// A [Buffer] is an anonymous mmap region locked into RAM (mlock) and
// excluded from core dumps (MADV_DONTDUMP). Close zeroes, unlocks, and
// unmaps it; reading a closed Buffer panics.
//
// [ReadFile] loads a token from a file; [FromEnvironment] takes it from
// an environment variable and removes the variable, so the child
// process the relay spawns never inherits it.
package secret
