// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cmdqueue

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Dequeue once the queue has been closed and
// every command enqueued before Close has been delivered.
var ErrClosed = errors.New("cmdqueue: queue closed")

// Command is one line of text destined for the child process's stdin,
// without its trailing newline.
type Command string

// Queue is an unbounded FIFO of commands, safe for concurrent
// producers. The zero value is not usable; create one with New.
type Queue struct {
	mu      sync.Mutex
	pending []Command
	closed  bool

	// wake holds at most one token. Enqueue and Close deposit a token
	// without blocking; Dequeue waits for one whenever pending is
	// empty. A single slot is enough because Dequeue re-checks pending
	// under the lock after every wakeup.
	wake chan struct{}
}

// New returns an empty, open queue.
func New() *Queue {
	return &Queue{
		wake: make(chan struct{}, 1),
	}
}

// Enqueue appends a command. It never blocks. It reports false (and
// drops nothing that was already queued) when the queue has been
// closed; producers racing with shutdown can ignore the result.
func (q *Queue) Enqueue(command Command) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.pending = append(q.pending, command)
	q.mu.Unlock()

	q.signal()
	return true
}

// Dequeue removes and returns the oldest command. It blocks until a
// command is available, the queue is closed and empty (ErrClosed), or
// ctx is done (ctx.Err()).
func (q *Queue) Dequeue(ctx context.Context) (Command, error) {
	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			command := q.pending[0]
			q.pending[0] = ""
			q.pending = q.pending[1:]
			remaining := len(q.pending)
			q.mu.Unlock()
			// Pass the wakeup along so a second consumer (or the
			// next call) doesn't sleep on a non-empty queue.
			if remaining > 0 {
				q.signal()
			}
			return command, nil
		}
		if q.closed {
			q.mu.Unlock()
			q.signal()
			return "", ErrClosed
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// Close marks the queue closed. Commands already queued remain
// available to Dequeue; further Enqueue calls are rejected. Idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

// Len returns the number of commands waiting to be dequeued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// signal deposits a wakeup token if the slot is empty.
func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
