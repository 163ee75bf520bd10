// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/consolerelay/lib/ref"
	"github.com/bureau-foundation/consolerelay/lib/secret"
)

// Session is the set of authenticated Matrix operations [Connector]
// uses. [DirectSession] is the production implementation.
type Session interface {
	// UserID returns the session's user, or the zero UserID if it is
	// not known yet.
	UserID() ref.UserID

	// Close releases the access token. Idempotent.
	Close() error

	WhoAmI(ctx context.Context) (ref.UserID, error)
	ResolveAlias(ctx context.Context, alias ref.RoomAlias) (ref.RoomID, error)
	JoinRoom(ctx context.Context, roomID ref.RoomID) (ref.RoomID, error)
	SendMessage(ctx context.Context, roomID ref.RoomID, content MessageContent) (string, error)
	GetDisplayName(ctx context.Context, userID ref.UserID) (string, error)
	Sync(ctx context.Context, options SyncOptions) (*SyncResponse, error)

	// CloseIdleConnections drops pooled HTTP connections after a
	// transport error.
	CloseIdleConnections()
}

var _ Session = (*DirectSession)(nil)

// DirectSession is an authenticated Matrix session holding its access
// token in a [secret.Buffer]. The caller must call Close when done.
// Calls made after Close fail with [ErrSessionClosed].
type DirectSession struct {
	client *Client
	userID ref.UserID

	// mu guards accessToken against Close while a request is
	// building its Authorization header.
	mu          sync.RWMutex
	accessToken *secret.Buffer
	closed      bool

	// transactionCounter makes transaction IDs unique within the process.
	transactionCounter atomic.Int64
}

// UserID returns the user ID the session was created with.
func (s *DirectSession) UserID() ref.UserID {
	return s.userID
}

// CloseIdleConnections closes idle connections of the client transport.
func (s *DirectSession) CloseIdleConnections() {
	s.client.CloseIdleConnections()
}

// Close zeroes and releases the access token. Idempotent.
func (s *DirectSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.accessToken.Close()
}

// authorization returns the Authorization header value, or
// ErrSessionClosed once the token has been released.
func (s *DirectSession) authorization() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", ErrSessionClosed
	}
	return "Bearer " + s.accessToken.String(), nil
}

// request performs an authenticated request against the client.
func (s *DirectSession) request(ctx context.Context, method, path string, requestBody, responseBody any, query ...url.Values) error {
	authorization, err := s.authorization()
	if err != nil {
		return err
	}
	return s.client.doRequest(ctx, method, path, authorization, requestBody, responseBody, query...)
}

// WhoAmI validates the access token and returns the user it belongs to.
func (s *DirectSession) WhoAmI(ctx context.Context) (ref.UserID, error) {
	var response WhoAmIResponse
	if err := s.request(ctx, http.MethodGet, "/_matrix/client/v3/account/whoami", nil, &response); err != nil {
		return ref.UserID{}, fmt.Errorf("messaging: whoami failed: %w", err)
	}
	if response.UserID.IsZero() {
		return ref.UserID{}, fmt.Errorf("messaging: whoami response has no user_id")
	}
	return response.UserID, nil
}

// JoinRoom joins roomID and returns the room the server reports. Joining
// a room the user is already in succeeds.
func (s *DirectSession) JoinRoom(ctx context.Context, roomID ref.RoomID) (ref.RoomID, error) {
	path := "/_matrix/client/v3/join/" + url.PathEscape(roomID.String())
	var response struct {
		RoomID ref.RoomID `json:"room_id"`
	}
	if err := s.request(ctx, http.MethodPost, path, struct{}{}, &response); err != nil {
		return ref.RoomID{}, fmt.Errorf("messaging: join room %s failed: %w", roomID, err)
	}
	return response.RoomID, nil
}

// SendMessage sends an m.room.message event and returns its event ID.
func (s *DirectSession) SendMessage(ctx context.Context, roomID ref.RoomID, content MessageContent) (string, error) {
	return s.SendEvent(ctx, roomID, EventTypeMessage, content)
}

// SendEvent sends a timeline event with a fresh transaction ID. Each call
// is a single attempt.
func (s *DirectSession) SendEvent(ctx context.Context, roomID ref.RoomID, eventType string, content any) (string, error) {
	transactionID := s.nextTransactionID()
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/send/%s/%s",
		url.PathEscape(roomID.String()),
		url.PathEscape(eventType),
		url.PathEscape(transactionID),
	)

	var response SendEventResponse
	if err := s.request(ctx, http.MethodPut, path, content, &response); err != nil {
		return "", fmt.Errorf("messaging: send event to %s failed: %w", roomID, err)
	}
	return response.EventID, nil
}

// Sync performs one /sync request.
func (s *DirectSession) Sync(ctx context.Context, options SyncOptions) (*SyncResponse, error) {
	query := url.Values{}
	if options.Since != "" {
		query.Set("since", options.Since)
	}
	if options.SetTimeout {
		query.Set("timeout", strconv.Itoa(options.Timeout))
	}
	if options.Filter != "" {
		query.Set("filter", options.Filter)
	}

	var response SyncResponse
	if err := s.request(ctx, http.MethodGet, "/_matrix/client/v3/sync", nil, &response, query); err != nil {
		return nil, fmt.Errorf("messaging: sync failed: %w", err)
	}
	return &response, nil
}

// ResolveAlias looks up the room ID an alias points to.
func (s *DirectSession) ResolveAlias(ctx context.Context, alias ref.RoomAlias) (ref.RoomID, error) {
	path := "/_matrix/client/v3/directory/room/" + url.PathEscape(alias.String())
	var response ResolveAliasResponse
	if err := s.request(ctx, http.MethodGet, path, nil, &response); err != nil {
		return ref.RoomID{}, fmt.Errorf("messaging: resolve alias %s failed: %w", alias, err)
	}
	if response.RoomID.IsZero() {
		return ref.RoomID{}, fmt.Errorf("messaging: alias %s resolved to no room", alias)
	}
	return response.RoomID, nil
}

// GetDisplayName returns the user's profile display name. A user with
// no display name set yields "".
func (s *DirectSession) GetDisplayName(ctx context.Context, userID ref.UserID) (string, error) {
	path := "/_matrix/client/v3/profile/" + url.PathEscape(userID.String()) + "/displayname"
	var response DisplayNameResponse
	if err := s.request(ctx, http.MethodGet, path, nil, &response); err != nil {
		return "", fmt.Errorf("messaging: get display name for %s failed: %w", userID, err)
	}
	return response.DisplayName, nil
}

func (s *DirectSession) nextTransactionID() string {
	counter := s.transactionCounter.Add(1)
	return fmt.Sprintf("consolerelay-%d-%d", time.Now().UnixMilli(), counter)
}
