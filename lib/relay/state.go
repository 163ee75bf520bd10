// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package relay

// State is a relay lifecycle state. States only move forward.
type State int

const (
	// StateStarting: spawning the child and connecting to chat.
	StateStarting State = iota

	// StateRunning: all listeners active.
	StateRunning

	// StateDraining: the output listener has ended; the others are
	// being cancelled and joined, then the child is reaped.
	StateDraining

	// StateStopped: every listener has returned and the child has been
	// reaped.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
