// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package chat defines the contract between the relay and a group-chat
// platform. The relay depends only on [Connector]; platform clients
// (see the messaging package for Matrix) implement it.
package chat

import "context"

// Message is one inbound chat message.
type Message struct {
	// SenderID is the platform's opaque identifier for the author
	// (a Matrix user ID, for example). Resolve it to something
	// readable with [Connector.DisplayName].
	SenderID string

	// Text is the message body as plain text.
	Text string
}

// Handler receives inbound messages. Listen calls it sequentially from
// its own goroutine, in delivery order. A Handler must not block for
// long: it delays delivery of every later message.
type Handler func(ctx context.Context, message Message)

// Connector is a session with one chat room.
//
// Connect must be called before any other method. Send and DisplayName
// may be called concurrently with Listen and with each other. Close
// releases the session and may be called more than once, concurrently
// with the other methods. After Close, Send and DisplayName return an
// error and a running Listen returns.
type Connector interface {
	// Connect establishes the session and joins the room.
	Connect(ctx context.Context) error

	// Close ends the session.
	Close() error

	// Send posts text to the room. A single attempt: failures are
	// returned, not retried.
	Send(ctx context.Context, text string) error

	// DisplayName resolves a sender identifier to a human-readable
	// name.
	DisplayName(ctx context.Context, senderID string) (string, error)

	// Listen delivers messages posted to the room after the call
	// begins, one at a time, until ctx is cancelled, Close is called,
	// or the session fails. It returns ctx.Err() (or nil) on
	// cancellation, nil after Close, and a descriptive error on
	// session failure.
	Listen(ctx context.Context, handler Handler) error
}
