// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/bureau-foundation/consolerelay/lib/chat"
)

// maxLineBytes bounds a single line of child output. Longer lines end
// the output listener with bufio.ErrTooLong.
const maxLineBytes = 1024 * 1024

// listenOutput reads stdout until EOF, echoing every line and posting
// relay-eligible lines through connector (which may be nil) until the
// chat session fails. It returns nil at EOF and the read error
// otherwise. Either way the run drains.
func (r *Relay) listenOutput(ctx context.Context, stdout io.Reader, connector chat.Connector) error {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := scanner.Text()

		if _, err := fmt.Fprintln(r.config.Echo, line); err != nil {
			r.logger.Debug("echoing child output", "error", err)
		}

		if connector == nil || r.chatFailed.Load() {
			continue
		}
		text, ok := r.config.Patterns.ShouldRelay(line)
		if !ok {
			continue
		}
		if err := connector.Send(ctx, text); err != nil {
			r.logger.Warn("relaying output line to chat", "error", err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading child output: %w", err)
	}
	r.logger.Debug("child output closed")
	return nil
}
