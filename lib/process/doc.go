// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers. These centralize
// the raw I/O that happens before the structured logger exists or after
// it is no longer useful:
//
//   - [Fatal] reports an error from run() to stderr and exits.
//   - [ExitError] carries a specific exit status (the relayed child's)
//     out of run() without printing anything.
package process
