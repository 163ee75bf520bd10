// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"encoding/json"

	"github.com/bureau-foundation/consolerelay/lib/ref"
)

// messageTimelineLimit caps timeline events per /sync response.
const messageTimelineLimit = 50

// messageSyncFilter returns an inline /sync filter scoped to roomID that
// carries only m.room.message timeline events. Room state, ephemeral
// events, account data, and presence are all suppressed.
func messageSyncFilter(roomID ref.RoomID) string {
	empty := map[string]any{"types": []string{}}
	filter := map[string]any{
		"room": map[string]any{
			"rooms": []string{roomID.String()},
			"timeline": map[string]any{
				"types": []string{EventTypeMessage},
				"limit": messageTimelineLimit,
			},
			"state":        empty,
			"ephemeral":    empty,
			"account_data": empty,
		},
		"presence":     empty,
		"account_data": empty,
	}

	data, _ := json.Marshal(filter)
	return string(data)
}
