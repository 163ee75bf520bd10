// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/consolerelay/lib/chat"
	"github.com/bureau-foundation/consolerelay/lib/clock"
	"github.com/bureau-foundation/consolerelay/lib/ref"
)

// Listen loop defaults.
const (
	DefaultPollTimeout     = 30 * time.Second
	DefaultRetryDelay      = time.Second
	DefaultMaxSyncFailures = 5
)

// ConnectorConfig configures a Matrix [Connector].
type ConnectorConfig struct {
	// Session is the authenticated session. The Connector owns it and
	// closes it in Close.
	Session Session

	// Room is a room ID ("!abc:example.org") or alias
	// ("#minecraft:example.org").
	Room string

	// PollTimeout is how long the server may hold each /sync long-poll.
	// Zero means DefaultPollTimeout.
	PollTimeout time.Duration

	// RetryDelay is the pause after a failed /sync. Zero means
	// DefaultRetryDelay.
	RetryDelay time.Duration

	// MaxSyncFailures is how many consecutive /sync failures end Listen
	// with an error. Zero means DefaultMaxSyncFailures.
	MaxSyncFailures int

	// Clock times the retry delay. Nil means clock.Real().
	Clock clock.Clock

	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Connector relays to and from one Matrix room. Connect must return
// before the other methods are called. After Close, Send and
// DisplayName fail with [ErrSessionClosed] and a running Listen
// returns nil.
type Connector struct {
	session  Session
	room     string
	roomID   ref.RoomID
	ownUser  ref.UserID
	filter   string
	logger   *slog.Logger
	timeout  time.Duration
	retry    time.Duration
	failures int
	clock    clock.Clock

	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error
}

var _ chat.Connector = (*Connector)(nil)

// NewConnector validates config and returns an unconnected Connector.
func NewConnector(config ConnectorConfig) (*Connector, error) {
	if config.Session == nil {
		return nil, fmt.Errorf("messaging: session is required")
	}
	if _, _, err := ref.ParseRoom(config.Room); err != nil {
		return nil, fmt.Errorf("messaging: %w", err)
	}

	connector := &Connector{
		session:  config.Session,
		room:     config.Room,
		logger:   config.Logger,
		timeout:  config.PollTimeout,
		retry:    config.RetryDelay,
		failures: config.MaxSyncFailures,
		clock:    config.Clock,
		closed:   make(chan struct{}),
	}
	if connector.clock == nil {
		connector.clock = clock.Real()
	}
	if connector.logger == nil {
		connector.logger = slog.Default()
	}
	if connector.timeout <= 0 {
		connector.timeout = DefaultPollTimeout
	}
	if connector.retry <= 0 {
		connector.retry = DefaultRetryDelay
	}
	if connector.failures <= 0 {
		connector.failures = DefaultMaxSyncFailures
	}
	return connector, nil
}

// RoomID returns the joined room. Zero before Connect succeeds.
func (c *Connector) RoomID() ref.RoomID {
	return c.roomID
}

// Connect validates the access token, resolves the room alias if one was
// configured, and joins the room.
func (c *Connector) Connect(ctx context.Context) error {
	userID, err := c.session.WhoAmI(ctx)
	if err != nil {
		return err
	}
	if configured := c.session.UserID(); !configured.IsZero() && configured != userID {
		return fmt.Errorf("messaging: access token belongs to %s, not %s", userID, configured)
	}

	roomID, alias, err := ref.ParseRoom(c.room)
	if err != nil {
		return fmt.Errorf("messaging: %w", err)
	}
	if !alias.IsZero() {
		roomID, err = c.session.ResolveAlias(ctx, alias)
		if err != nil {
			return err
		}
	}

	joined, err := c.session.JoinRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if joined.IsZero() {
		joined = roomID
	}

	c.ownUser = userID
	c.roomID = joined
	c.filter = messageSyncFilter(joined)
	c.logger.Info("joined chat room",
		"user_id", userID,
		"room", c.room,
		"room_id", joined,
	)
	return nil
}

// Close stops Listen and releases the session's access token.
// Idempotent.
func (c *Connector) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.closeErr = c.session.Close()
	})
	return c.closeErr
}

func (c *Connector) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Send posts text as a single m.text message. Failures are returned, not
// retried.
func (c *Connector) Send(ctx context.Context, text string) error {
	if c.isClosed() {
		return ErrSessionClosed
	}
	if c.roomID.IsZero() {
		return fmt.Errorf("messaging: send before connect")
	}
	_, err := c.session.SendMessage(ctx, c.roomID, NewTextMessage(text))
	return err
}

// DisplayName returns the sender's profile display name, or the
// localpart of the user ID when the user has none set.
func (c *Connector) DisplayName(ctx context.Context, senderID string) (string, error) {
	if c.isClosed() {
		return "", ErrSessionClosed
	}
	userID, err := ref.ParseUserID(senderID)
	if err != nil {
		return "", fmt.Errorf("messaging: %w", err)
	}

	name, err := c.session.GetDisplayName(ctx, userID)
	if err != nil {
		if IsMatrixError(err, ErrCodeNotFound) {
			return userID.Localpart(), nil
		}
		return "", err
	}
	if name == "" {
		return userID.Localpart(), nil
	}
	return name, nil
}

// Listen delivers text messages posted to the room after Listen starts.
// The initial /sync only records the stream position, so earlier room
// history is never delivered. Messages from the connector's own user
// are skipped. Handlers run one at a time in timeline order.
//
// Listen returns ctx.Err() when ctx is cancelled, nil when Close is
// called, and an error after MaxSyncFailures consecutive /sync
// failures.
func (c *Connector) Listen(ctx context.Context, handler chat.Handler) error {
	if c.isClosed() {
		return ErrSessionClosed
	}
	if c.roomID.IsZero() {
		return fmt.Errorf("messaging: listen before connect")
	}

	listenContext, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.closed:
			cancel()
		case <-listenContext.Done():
		}
	}()

	err := c.listen(listenContext, handler)
	if err != nil && ctx.Err() == nil && c.isClosed() {
		return nil
	}
	return err
}

func (c *Connector) listen(ctx context.Context, handler chat.Handler) error {
	response, err := c.sync(ctx, SyncOptions{Timeout: 0, SetTimeout: true, Filter: c.filter})
	if err != nil {
		return err
	}
	since := response.NextBatch

	pollMilliseconds := int(c.timeout / time.Millisecond)
	for {
		response, err := c.sync(ctx, SyncOptions{
			Since:      since,
			Timeout:    pollMilliseconds,
			SetTimeout: true,
			Filter:     c.filter,
		})
		if err != nil {
			return err
		}
		since = response.NextBatch

		joined, ok := response.Rooms.Join[c.roomID]
		if !ok {
			continue
		}
		for _, event := range joined.Timeline.Events {
			if event.Sender == c.ownUser {
				continue
			}
			body := event.TextBody()
			if body == "" {
				continue
			}
			handler(ctx, chat.Message{SenderID: event.Sender.String(), Text: body})
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
}

// sync performs one /sync, retrying transient failures. It gives up
// after c.failures consecutive failures, or at once when the token is
// rejected.
func (c *Connector) sync(ctx context.Context, options SyncOptions) (*SyncResponse, error) {
	for attempt := 1; ; attempt++ {
		response, err := c.session.Sync(ctx, options)
		if err == nil {
			return response, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, ErrSessionClosed) ||
			IsMatrixError(err, ErrCodeUnknownToken) || IsMatrixError(err, ErrCodeForbidden) {
			return nil, err
		}

		c.session.CloseIdleConnections()
		if attempt >= c.failures {
			return nil, fmt.Errorf("messaging: sync failed %d consecutive times: %w", attempt, err)
		}
		c.logger.Warn("chat sync failed, retrying",
			"error", err,
			"attempt", attempt,
			"retry_delay", c.retry,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.clock.After(c.retry):
		}
	}
}
