// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package pattern decides which lines of child process output are
// relayed to chat, and what text is sent for each.
//
// A [Set] holds three rules, each anchored at the start of the line
// (a match need not consume the whole line):
//
//   - include: the line must match to be considered at all.
//   - exclude: if the line also matches, it is suppressed. The usual
//     use is suppressing the child's echo of commands the relay itself
//     injected from chat, which would otherwise loop back out.
//   - extract: must match, and its first capture group is the text
//     actually relayed.
//
// [Set.ShouldRelay] returns the extracted text only when the capture
// group participated in the match and is non-empty. A rule like
// (a)|(b) matching through its second branch leaves group 1 empty, and
// the line is dropped rather than relayed as an empty message.
//
// Rules are compiled with github.com/dlclark/regexp2, a backtracking
// engine whose syntax covers lookarounds and backreferences. Because
// backtracking can be pathological, [Options].MatchTimeout bounds each
// evaluation; an evaluation that times out counts as "no match".
//
// [Preset] returns ready-made rule triples, including one for the
// vanilla Minecraft server log format.
package pattern
