// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"bufio"
	"context"
	"errors"
	"io"

	"github.com/muesli/cancelreader"

	"github.com/bureau-foundation/consolerelay/lib/cmdqueue"
)

// listenKeyboard enqueues each line read from keyboard verbatim. It
// returns when ctx is cancelled. If the keyboard reaches EOF first
// (stdin redirected from a file, or the operator pressed Ctrl-D) it
// idles until cancellation.
func (r *Relay) listenKeyboard(ctx context.Context, keyboard io.Reader) {
	reader, err := cancelreader.NewReader(keyboard)
	if err != nil {
		// Regular files cannot be polled. Their reads never block, so
		// plain reads are enough.
		r.logger.Debug("keyboard input is not cancellable, using plain reads", "error", err)
		r.readKeyboard(ctx, keyboard)
		<-ctx.Done()
		return
	}
	defer reader.Close()

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		r.readKeyboard(ctx, reader)
	}()

	<-ctx.Done()
	reader.Cancel()
	<-readerDone
}

// readKeyboard enqueues lines until the reader ends or is cancelled.
func (r *Relay) readKeyboard(ctx context.Context, reader io.Reader) {
	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		if !r.queue.Enqueue(cmdqueue.Command(scanner.Text())) {
			return
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, cancelreader.ErrCanceled) {
		r.logger.Warn("reading keyboard input", "error", err)
		return
	}
	r.logger.Debug("keyboard input ended")
}
