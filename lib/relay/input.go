// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"io"

	"github.com/bureau-foundation/consolerelay/lib/netutil"
)

// writeInput is the only writer of the child's stdin. It dequeues
// commands in order and writes each with a trailing newline until the
// queue closes, ctx is cancelled, the child has exited, or a write
// fails. It closes stdin on the way out, so no write can follow the
// close.
func (r *Relay) writeInput(ctx context.Context, stdin io.WriteCloser) {
	defer func() {
		if err := stdin.Close(); err != nil && !netutil.IsClosedStreamError(err) {
			r.logger.Debug("closing child stdin", "error", err)
		}
	}()

	for {
		command, err := r.queue.Dequeue(ctx)
		if err != nil {
			return
		}
		if r.exited.Load() {
			r.logger.Debug("child exited, dropping command", "pending", r.queue.Len()+1)
			return
		}
		if _, err := io.WriteString(stdin, string(command)+"\n"); err != nil {
			if netutil.IsClosedStreamError(err) {
				r.logger.Debug("child stdin closed, input writer stopping", "error", err)
			} else {
				r.logger.Warn("writing to child stdin, input writer stopping", "error", err)
			}
			return
		}
	}
}
