// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"testing"

	"go.uber.org/goleak"
)

// Every relay run must join all of its goroutines before returning.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
