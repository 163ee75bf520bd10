// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pattern

import (
	"fmt"
	"slices"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/dlclark/regexp2"
)

// Rules holds the uncompiled rule strings of a Set.
type Rules struct {
	// Include must match the start of a line for it to be relayed.
	Include string `yaml:"include"`

	// Exclude suppresses lines whose start it matches. Empty disables
	// exclusion.
	Exclude string `yaml:"exclude"`

	// Extract must match the start of a line and declare at least one
	// capture group. Group 1 is the relayed text.
	Extract string `yaml:"extract"`
}

// Options tune how lines are prepared and matched.
type Options struct {
	// StripANSI removes terminal escape sequences (colors, cursor
	// movement) from each line before the rules see it. The relayed
	// text is taken from the stripped line.
	StripANSI bool

	// MatchTimeout bounds a single rule evaluation. Zero means no
	// bound.
	MatchTimeout time.Duration
}

// Set is a compiled, immutable rule triple. Safe for concurrent use.
type Set struct {
	rules   Rules
	options Options
	include *regexp2.Regexp
	exclude *regexp2.Regexp
	extract *regexp2.Regexp
}

// New compiles rules into a Set. Each rule is anchored at the start of
// the line. Returns an error naming the offending rule if any rule
// fails to compile, if include or extract is empty, or if extract has
// no capture group.
func New(rules Rules, options Options) (*Set, error) {
	set := &Set{rules: rules, options: options}

	if rules.Include == "" {
		return nil, fmt.Errorf("include rule is required")
	}
	if rules.Extract == "" {
		return nil, fmt.Errorf("extract rule is required")
	}

	var err error
	if set.include, err = compileAnchored(rules.Include, options.MatchTimeout); err != nil {
		return nil, fmt.Errorf("include rule %q: %w", rules.Include, err)
	}
	if rules.Exclude != "" {
		if set.exclude, err = compileAnchored(rules.Exclude, options.MatchTimeout); err != nil {
			return nil, fmt.Errorf("exclude rule %q: %w", rules.Exclude, err)
		}
	}
	if set.extract, err = compileAnchored(rules.Extract, options.MatchTimeout); err != nil {
		return nil, fmt.Errorf("extract rule %q: %w", rules.Extract, err)
	}
	if !slices.Contains(set.extract.GetGroupNumbers(), 1) {
		return nil, fmt.Errorf("extract rule %q has no capture group for the relayed text", rules.Extract)
	}

	return set, nil
}

// compileAnchored compiles rule so that it only matches at the start
// of the input. The non-capturing wrapper keeps the rule's own group
// numbering intact.
func compileAnchored(rule string, timeout time.Duration) (*regexp2.Regexp, error) {
	compiled, err := regexp2.Compile(`\A(?:`+rule+`)`, regexp2.None)
	if err != nil {
		return nil, err
	}
	if timeout > 0 {
		compiled.MatchTimeout = timeout
	}
	return compiled, nil
}

// Rules returns the uncompiled rules the Set was built from.
func (s *Set) Rules() Rules {
	return s.rules
}

// ShouldRelay evaluates line against include, exclude, and extract, in
// that order. It returns the text of extract's first capture group and
// true when include matches, exclude does not, extract matches, and
// the group is non-empty. Otherwise it returns "" and false.
func (s *Set) ShouldRelay(line string) (string, bool) {
	if s.options.StripANSI {
		line = ansi.Strip(line)
	}

	if !matches(s.include, line) {
		return "", false
	}
	if s.exclude != nil && matches(s.exclude, line) {
		return "", false
	}

	match, err := s.extract.FindStringMatch(line)
	if err != nil || match == nil {
		return "", false
	}
	group := match.GroupByNumber(1)
	if group == nil || len(group.Captures) == 0 {
		return "", false
	}
	text := group.String()
	if text == "" {
		return "", false
	}
	return text, true
}

// matches reports whether re matches line. A match timeout is treated
// as no match.
func matches(re *regexp2.Regexp, line string) bool {
	matched, err := re.MatchString(line)
	return err == nil && matched
}
