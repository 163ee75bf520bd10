// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import "fmt"

// RoomID is a validated, server-assigned Matrix room ID such as
// "!abc123:example.org".
type RoomID struct {
	id string
}

// ParseRoomID validates raw as !opaque:server.
func ParseRoomID(raw string) (RoomID, error) {
	if _, _, err := parsePrefixedID(raw, '!', "room ID"); err != nil {
		return RoomID{}, err
	}
	return RoomID{id: raw}, nil
}

// MustParseRoomID is ParseRoomID that panics on error.
func MustParseRoomID(raw string) RoomID {
	roomID, err := ParseRoomID(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustParseRoomID(%q): %v", raw, err))
	}
	return roomID
}

func (r RoomID) String() string { return r.id }

// IsZero reports whether r is unset.
func (r RoomID) IsZero() bool { return r.id == "" }

// MarshalText implements encoding.TextMarshaler.
func (r RoomID) MarshalText() ([]byte, error) {
	return []byte(r.id), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. It lets /sync
// responses key their per-room maps by RoomID.
func (r *RoomID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*r = RoomID{}
		return nil
	}
	parsed, err := ParseRoomID(string(data))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// RoomAlias is a validated human-readable room name such as
// "#minecraft:example.org". Aliases resolve to a RoomID.
type RoomAlias struct {
	alias string
}

// ParseRoomAlias validates raw as #localpart:server.
func ParseRoomAlias(raw string) (RoomAlias, error) {
	if _, _, err := parsePrefixedID(raw, '#', "room alias"); err != nil {
		return RoomAlias{}, err
	}
	return RoomAlias{alias: raw}, nil
}

func (a RoomAlias) String() string { return a.alias }

// IsZero reports whether a is unset.
func (a RoomAlias) IsZero() bool { return a.alias == "" }

// ParseRoom accepts either a room ID or a room alias, as written in
// configuration. Exactly one of the results is non-zero on success.
func ParseRoom(raw string) (RoomID, RoomAlias, error) {
	if raw == "" {
		return RoomID{}, RoomAlias{}, fmt.Errorf("empty room")
	}
	switch raw[0] {
	case '!':
		roomID, err := ParseRoomID(raw)
		return roomID, RoomAlias{}, err
	case '#':
		alias, err := ParseRoomAlias(raw)
		return RoomID{}, alias, err
	default:
		return RoomID{}, RoomAlias{}, fmt.Errorf("room %q must be a room ID (!...) or alias (#...)", raw)
	}
}
