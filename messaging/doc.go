// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging is a small Matrix client-server API client and the
// Matrix implementation of [chat.Connector].
//
// A [Client] holds the homeserver URL and HTTP transport. A
// [DirectSession] adds an access token (kept in a [secret.Buffer]) and
// exposes the handful of endpoints the relay needs: whoami, join,
// alias resolution, message send, /sync, and profile display names.
//
// [Connector] binds a session to one room. Connect resolves the room
// and joins it; Listen captures the current /sync position and then
// long-polls, delivering only text messages that arrive after Listen
// started and that were not sent by the relay's own user.
package messaging
