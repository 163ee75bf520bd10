// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"github.com/bureau-foundation/consolerelay/lib/ref"
)

// Matrix event and message types used by the relay.
const (
	EventTypeMessage = "m.room.message"
	MsgTypeText      = "m.text"
)

// MessageContent is the content of an m.room.message event.
type MessageContent struct {
	MsgType string `json:"msgtype"`
	Body    string `json:"body"`
}

// NewTextMessage creates a plain m.text message.
func NewTextMessage(body string) MessageContent {
	return MessageContent{MsgType: MsgTypeText, Body: body}
}

// Event is a Matrix event as returned by /sync.
type Event struct {
	EventID        string         `json:"event_id"`
	Type           string         `json:"type"`
	Sender         ref.UserID     `json:"sender"`
	OriginServerTS int64          `json:"origin_server_ts"`
	Content        map[string]any `json:"content"`
}

// TextBody returns the body of an m.text message event, or "" for any
// other event.
func (e Event) TextBody() string {
	if e.Type != EventTypeMessage {
		return ""
	}
	if msgtype, _ := e.Content["msgtype"].(string); msgtype != MsgTypeText {
		return ""
	}
	body, _ := e.Content["body"].(string)
	return body
}

// SyncOptions are the query parameters of a /sync request.
type SyncOptions struct {
	Since      string // next_batch from the previous sync; empty for the initial sync
	Timeout    int    // long-poll hold in milliseconds
	SetTimeout bool   // send timeout even when it is 0
	Filter     string // filter ID or inline JSON filter
}

// SyncResponse is the subset of a /sync response the relay reads.
type SyncResponse struct {
	NextBatch string       `json:"next_batch"`
	Rooms     RoomsSection `json:"rooms"`
}

// RoomsSection holds per-room sync data.
type RoomsSection struct {
	Join map[ref.RoomID]JoinedRoom `json:"join,omitempty"`
}

// JoinedRoom contains sync data for a joined room.
type JoinedRoom struct {
	Timeline TimelineSection `json:"timeline"`
}

// TimelineSection contains timeline events from a sync response.
type TimelineSection struct {
	Events    []Event `json:"events"`
	PrevBatch string  `json:"prev_batch"`
	Limited   bool    `json:"limited"`
}

// SendEventResponse is returned by SendEvent.
type SendEventResponse struct {
	EventID string `json:"event_id"`
}

// WhoAmIResponse is returned by WhoAmI.
type WhoAmIResponse struct {
	UserID   ref.UserID `json:"user_id"`
	DeviceID string     `json:"device_id,omitempty"`
}

// ResolveAliasResponse is returned by ResolveAlias.
type ResolveAliasResponse struct {
	RoomID  ref.RoomID `json:"room_id"`
	Servers []string   `json:"servers"`
}

// DisplayNameResponse is returned by GetDisplayName.
type DisplayNameResponse struct {
	DisplayName string `json:"displayname"`
}
