// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock is the injectable time source for the relay's timeouts:
// the grace period before an interrupted child is killed and the pause
// between failed chat syncs.
//
// Production code uses [Real]. Tests use [Fake], whose time moves only
// when [FakeClock.Advance] is called, so timeout paths can be driven
// step by step without sleeping.
package clock
