// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pattern

import (
	"fmt"
	"slices"

	"github.com/dlclark/regexp2"
)

// DefaultTag is the origin marker placed in commands injected from chat
// ("say [Chat] <@alice> hello").
const DefaultTag = "Chat"

// minecraftPrefix matches the vanilla dedicated server's log prefix for
// messages logged by the main server thread, e.g.
// "[12:34:56] [Server thread/INFO] [minecraft/MinecraftServer]: ".
const minecraftPrefix = `\[\d\d:\d\d:\d\d\] \[Server thread/INFO\] \[minecraft/MinecraftServer\]: `

// PresetNames lists the names accepted by Preset, sorted.
func PresetNames() []string {
	names := []string{"default", "minecraft"}
	slices.Sort(names)
	return names
}

// Preset returns a named rule triple. tag is the chat origin marker
// (without brackets); the exclude rule suppresses lines carrying it so
// that chat messages echoed back by the child are not relayed again.
// An empty tag uses DefaultTag.
//
//   - "default": relay every non-empty line except echoed chat.
//   - "minecraft": relay only messages from the server thread, with
//     the log prefix removed.
func Preset(name, tag string) (Rules, error) {
	if tag == "" {
		tag = DefaultTag
	}
	marker := `\[` + regexp2.Escape(tag) + `\] `

	switch name {
	case "default":
		return Rules{
			Include: `.`,
			Exclude: `(?:.* )?` + marker,
			Extract: `(.*)`,
		}, nil
	case "minecraft":
		return Rules{
			Include: minecraftPrefix,
			Exclude: minecraftPrefix + `(?:.* )?` + marker,
			Extract: minecraftPrefix + `(.*)`,
		}, nil
	default:
		return Rules{}, fmt.Errorf("unknown pattern preset %q (known: %v)", name, PresetNames())
	}
}
