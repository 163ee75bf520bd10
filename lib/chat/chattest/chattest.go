// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package chattest provides an in-memory [chat.Connector] for tests.
// Tests drive inbound traffic with [Connector.Deliver] and observe
// outbound traffic with [Connector.Sends] or [Connector.Sent].
package chattest

import (
	"context"
	"errors"
	"sync"

	"github.com/bureau-foundation/consolerelay/lib/chat"
)

// ErrClosed is returned by Send, DisplayName, and Deliver after Close.
var ErrClosed = errors.New("chattest: connector closed")

type delivery struct {
	message chat.Message
	handled chan struct{}
}

// Connector is a fake chat session. The zero value is not usable; call
// New.
type Connector struct {
	mu           sync.Mutex
	sent         []string
	displayNames map[string]string
	connectError error
	nameError    error
	sendFailures []error
	connected    bool
	closeCount   int

	sends      chan string
	deliveries chan delivery
	listening  chan struct{}
	listenOnce sync.Once
	sessionEnd chan error
	closed     chan struct{}
	closeOnce  sync.Once
}

// New returns a Connector with no display names, no injected failures,
// and room for 1024 unobserved sends on the Sends channel.
func New() *Connector {
	return &Connector{
		displayNames: make(map[string]string),
		sends:        make(chan string, 1024),
		deliveries:   make(chan delivery),
		listening:    make(chan struct{}),
		sessionEnd:   make(chan error, 1),
		closed:       make(chan struct{}),
	}
}

// SetDisplayName makes DisplayName(senderID) return name.
func (c *Connector) SetDisplayName(senderID, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.displayNames[senderID] = name
}

// FailDisplayName makes every DisplayName call fail with err. Nil
// restores normal lookups.
func (c *Connector) FailDisplayName(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nameError = err
}

// FailConnect makes Connect fail with err.
func (c *Connector) FailConnect(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectError = err
}

// FailNextSends makes the next count Send calls fail with err. Failed
// sends are not recorded.
func (c *Connector) FailNextSends(count int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for range count {
		c.sendFailures = append(c.sendFailures, err)
	}
}

// EndSession makes a running (or future) Listen call return err, as if
// the platform session had failed.
func (c *Connector) EndSession(err error) {
	select {
	case c.sessionEnd <- err:
	default:
	}
}

// Connect implements chat.Connector.
func (c *Connector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connectError != nil {
		return c.connectError
	}
	c.connected = true
	return nil
}

// Close implements chat.Connector.
func (c *Connector) Close() error {
	c.mu.Lock()
	c.closeCount++
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// Send implements chat.Connector.
func (c *Connector) Send(ctx context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isClosed() {
		return ErrClosed
	}
	if len(c.sendFailures) > 0 {
		err := c.sendFailures[0]
		c.sendFailures = c.sendFailures[1:]
		return err
	}
	c.sent = append(c.sent, text)
	select {
	case c.sends <- text:
	default:
	}
	return nil
}

// DisplayName implements chat.Connector. Unknown senders resolve to
// their own identifier.
func (c *Connector) DisplayName(ctx context.Context, senderID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isClosed() {
		return "", ErrClosed
	}
	if c.nameError != nil {
		return "", c.nameError
	}
	if name, ok := c.displayNames[senderID]; ok {
		return name, nil
	}
	return senderID, nil
}

// Listen implements chat.Connector.
func (c *Connector) Listen(ctx context.Context, handler chat.Handler) error {
	c.listenOnce.Do(func() { close(c.listening) })
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.closed:
			return nil
		case err := <-c.sessionEnd:
			return err
		case pending := <-c.deliveries:
			handler(ctx, pending.message)
			close(pending.handled)
		}
	}
}

// Deliver hands message to the running Listen call and waits until the
// handler has returned. It fails if ctx ends first or the connector is
// closed.
func (c *Connector) Deliver(ctx context.Context, message chat.Message) error {
	pending := delivery{message: message, handled: make(chan struct{})}
	select {
	case c.deliveries <- pending:
	case <-c.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-pending.handled:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Listening is closed once Listen has been called.
func (c *Connector) Listening() <-chan struct{} {
	return c.listening
}

// Closed is closed once Close has been called.
func (c *Connector) Closed() <-chan struct{} {
	return c.closed
}

// Sends receives the text of every successful Send.
func (c *Connector) Sends() <-chan string {
	return c.sends
}

// Sent returns a copy of every successfully sent text, in order.
func (c *Connector) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

// Connected reports whether Connect succeeded.
func (c *Connector) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// CloseCount returns how many times Close was called.
func (c *Connector) CloseCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCount
}

func (c *Connector) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

var _ chat.Connector = (*Connector)(nil)
