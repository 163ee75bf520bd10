// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"fmt"
	"strings"

	"github.com/bureau-foundation/consolerelay/lib/chat"
	"github.com/bureau-foundation/consolerelay/lib/cmdqueue"
)

// listenChat delivers inbound messages to the queue until ctx is
// cancelled or the session fails, then closes the connector. A
// session failure is returned wrapped in ErrChatSession; cancellation
// returns nil. Outbound relay stops once the session has failed.
func (r *Relay) listenChat(ctx context.Context, connector chat.Connector) error {
	listenError := connector.Listen(ctx, r.handleChatMessage)
	if ctx.Err() == nil {
		r.chatFailed.Store(true)
	}

	if err := connector.Close(); err != nil {
		r.logger.Debug("closing chat session", "error", err)
	}

	if ctx.Err() != nil {
		return nil
	}
	if listenError == nil {
		return fmt.Errorf("%w: listener stopped unexpectedly", ErrChatSession)
	}
	return fmt.Errorf("%w: %w", ErrChatSession, listenError)
}

// handleChatMessage resolves the sender's display name and enqueues
// the formatted command. A failed lookup falls back to the raw sender
// identifier.
func (r *Relay) handleChatMessage(ctx context.Context, message chat.Message) {
	name, err := r.config.Connector.DisplayName(ctx, message.SenderID)
	if err != nil {
		r.logger.Warn("resolving chat display name, using sender ID", "sender", message.SenderID, "error", err)
	}
	if name == "" {
		name = message.SenderID
	}

	command := r.formatChatCommand(name, message.Text)
	r.logger.Info("injecting chat message", "sender", message.SenderID)
	r.queue.Enqueue(command)
}

// formatChatCommand builds "say [Chat] <@name> text". Line breaks in the
// message are flattened to spaces so one message is one command.
func (r *Relay) formatChatCommand(name, text string) cmdqueue.Command {
	text = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(text)
	return cmdqueue.Command(fmt.Sprintf("%s [%s] <@%s> %s", r.config.CommandVerb, r.config.Tag, name, text))
}
