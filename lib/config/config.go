// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/tidwall/jsonc"
	"golang.org/x/sys/unix"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/consolerelay/lib/pattern"
	"github.com/bureau-foundation/consolerelay/lib/ref"
	"github.com/bureau-foundation/consolerelay/lib/secret"
)

// Environment variables read by this package.
const (
	EnvConfig          = "CONSOLE_RELAY_CONFIG"
	EnvAccessToken     = "CONSOLE_RELAY_ACCESS_TOKEN"
	EnvAccessTokenFile = "CONSOLE_RELAY_ACCESS_TOKEN_FILE"
	EnvHomeserver      = "CONSOLE_RELAY_HOMESERVER"
	EnvUser            = "CONSOLE_RELAY_USER"
	EnvRoom            = "CONSOLE_RELAY_ROOM"
	EnvPreset          = "CONSOLE_RELAY_PRESET"
	EnvInclude         = "CONSOLE_RELAY_INCLUDE"
	EnvExclude         = "CONSOLE_RELAY_EXCLUDE"
	EnvExtract         = "CONSOLE_RELAY_EXTRACT"
	EnvTag             = "CONSOLE_RELAY_TAG"
	EnvCommandVerb     = "CONSOLE_RELAY_COMMAND_VERB"
)

// Config is the relay configuration.
type Config struct {
	// Command is the child executable followed by its arguments. The
	// command line after "--" replaces it.
	Command []string `yaml:"command"`

	// WorkingDirectory is the child's working directory. Empty means
	// the relay's own.
	WorkingDirectory string `yaml:"working_directory"`

	// Environment holds extra variables for the child, added to the
	// relay's environment.
	Environment map[string]string `yaml:"environment"`

	Patterns PatternsConfig `yaml:"patterns"`
	Chat     ChatConfig     `yaml:"chat"`
	Keyboard KeyboardConfig `yaml:"keyboard"`
	Shutdown ShutdownConfig `yaml:"shutdown"`
}

// PatternsConfig selects the output filter. Custom rules, when any is
// set, replace the preset.
type PatternsConfig struct {
	Preset string `yaml:"preset"`

	pattern.Rules `yaml:",inline"`

	StripANSI bool `yaml:"strip_ansi"`

	// MatchTimeout bounds one rule evaluation, as a Go duration.
	MatchTimeout string `yaml:"match_timeout"`
}

// ChatConfig configures the Matrix side. Chat is enabled when
// HomeserverURL is set.
type ChatConfig struct {
	HomeserverURL string `yaml:"homeserver_url"`

	// UserID is optional; when set, the access token must belong to it.
	UserID string `yaml:"user_id"`

	// Room is a room ID (!...) or alias (#...).
	Room string `yaml:"room"`

	AccessTokenFile string `yaml:"access_token_file"`

	// Tag and CommandVerb shape injected chat lines:
	// "<verb> [<tag>] <@<name>> <text>".
	Tag         string `yaml:"tag"`
	CommandVerb string `yaml:"command_verb"`
}

// KeyboardConfig controls the local keyboard listener.
type KeyboardConfig struct {
	Enabled bool `yaml:"enabled"`
}

// ShutdownConfig controls how an interrupted child is stopped.
type ShutdownConfig struct {
	// StopSignal is sent first, by name ("SIGTERM", "INT", ...).
	StopSignal string `yaml:"stop_signal"`

	// KillAfter is how long to wait before SIGKILL, as a Go duration.
	KillAfter string `yaml:"kill_after"`
}

// Default returns the configuration every loader starts from.
func Default() *Config {
	return &Config{
		Patterns: PatternsConfig{
			Preset: "default",
		},
		Chat: ChatConfig{
			Tag:         pattern.DefaultTag,
			CommandVerb: "say",
		},
		Keyboard: KeyboardConfig{
			Enabled: true,
		},
		Shutdown: ShutdownConfig{
			StopSignal: "SIGTERM",
			KillAfter:  "10s",
		},
	}
}

// Load loads the file named by CONSOLE_RELAY_CONFIG, or falls back to
// [FromEnvironment] when that variable is unset.
func Load() (*Config, error) {
	if path := os.Getenv(EnvConfig); path != "" {
		return LoadFile(path)
	}
	return FromEnvironment(), nil
}

// LoadFile loads configuration from path. Files ending in .json or
// .jsonc may contain comments and trailing commas.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.expandVariables()
	return cfg, nil
}

// FromEnvironment builds a configuration from CONSOLE_RELAY_* variables
// on top of [Default]. The child command is left empty.
func FromEnvironment() *Config {
	cfg := Default()
	setFromEnv(&cfg.Chat.HomeserverURL, EnvHomeserver)
	setFromEnv(&cfg.Chat.UserID, EnvUser)
	setFromEnv(&cfg.Chat.Room, EnvRoom)
	setFromEnv(&cfg.Chat.AccessTokenFile, EnvAccessTokenFile)
	setFromEnv(&cfg.Chat.Tag, EnvTag)
	setFromEnv(&cfg.Chat.CommandVerb, EnvCommandVerb)
	setFromEnv(&cfg.Patterns.Preset, EnvPreset)
	setFromEnv(&cfg.Patterns.Include, EnvInclude)
	setFromEnv(&cfg.Patterns.Exclude, EnvExclude)
	setFromEnv(&cfg.Patterns.Extract, EnvExtract)
	return cfg
}

func setFromEnv(field *string, name string) {
	if value := os.Getenv(name); value != "" {
		*field = value
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} in string fields.
// Pattern rules are left alone: "$" and "{" are regex syntax.
func (c *Config) expandVariables() {
	for index := range c.Command {
		c.Command[index] = expandVars(c.Command[index])
	}
	for key, value := range c.Environment {
		c.Environment[key] = expandVars(value)
	}
	c.WorkingDirectory = expandVars(c.WorkingDirectory)
	c.Chat.HomeserverURL = expandVars(c.Chat.HomeserverURL)
	c.Chat.UserID = expandVars(c.Chat.UserID)
	c.Chat.Room = expandVars(c.Chat.Room)
	c.Chat.AccessTokenFile = expandVars(c.Chat.AccessTokenFile)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate checks the configuration and reports all problems together.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Command) == 0 || c.Command[0] == "" {
		errs = append(errs, fmt.Errorf("command is required (set command or pass it after --)"))
	}

	rules, err := c.PatternRules()
	if err != nil {
		errs = append(errs, err)
	} else if _, err := pattern.New(rules, pattern.Options{}); err != nil {
		errs = append(errs, fmt.Errorf("patterns: %w", err))
	}
	if _, err := c.PatternOptions(); err != nil {
		errs = append(errs, err)
	}

	if c.ChatEnabled() {
		if c.Chat.Room == "" {
			errs = append(errs, fmt.Errorf("chat.room is required when chat.homeserver_url is set"))
		} else if _, _, err := ref.ParseRoom(c.Chat.Room); err != nil {
			errs = append(errs, fmt.Errorf("chat.room: %w", err))
		}
		if c.Chat.UserID != "" {
			if _, err := ref.ParseUserID(c.Chat.UserID); err != nil {
				errs = append(errs, fmt.Errorf("chat.user_id: %w", err))
			}
		}
	}
	if c.Chat.CommandVerb == "" {
		errs = append(errs, fmt.Errorf("chat.command_verb is required"))
	}
	if c.Chat.Tag == "" {
		errs = append(errs, fmt.Errorf("chat.tag is required"))
	}

	if _, err := c.StopSignal(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.KillAfter(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ChatEnabled reports whether a homeserver is configured.
func (c *Config) ChatEnabled() bool {
	return c.Chat.HomeserverURL != ""
}

// PatternRules returns the custom rules if any is set, otherwise the
// configured preset built for the chat tag.
func (c *Config) PatternRules() (pattern.Rules, error) {
	if c.Patterns.Rules != (pattern.Rules{}) {
		return c.Patterns.Rules, nil
	}
	rules, err := pattern.Preset(c.Patterns.Preset, c.Chat.Tag)
	if err != nil {
		return pattern.Rules{}, fmt.Errorf("patterns.preset: %w", err)
	}
	return rules, nil
}

// PatternOptions returns the matching options.
func (c *Config) PatternOptions() (pattern.Options, error) {
	options := pattern.Options{StripANSI: c.Patterns.StripANSI}
	if c.Patterns.MatchTimeout != "" {
		timeout, err := time.ParseDuration(c.Patterns.MatchTimeout)
		if err != nil {
			return pattern.Options{}, fmt.Errorf("patterns.match_timeout: %w", err)
		}
		if timeout < 0 {
			return pattern.Options{}, fmt.Errorf("patterns.match_timeout must not be negative, got %s", timeout)
		}
		options.MatchTimeout = timeout
	}
	return options, nil
}

// StopSignal parses shutdown.stop_signal. Names are case-insensitive
// and the SIG prefix is optional.
func (c *Config) StopSignal() (syscall.Signal, error) {
	name := strings.ToUpper(strings.TrimSpace(c.Shutdown.StopSignal))
	if !strings.HasPrefix(name, "SIG") {
		name = "SIG" + name
	}
	signal := unix.SignalNum(name)
	if signal == 0 {
		return 0, fmt.Errorf("shutdown.stop_signal: unknown signal %q", c.Shutdown.StopSignal)
	}
	return signal, nil
}

// KillAfter parses shutdown.kill_after.
func (c *Config) KillAfter() (time.Duration, error) {
	duration, err := time.ParseDuration(c.Shutdown.KillAfter)
	if err != nil {
		return 0, fmt.Errorf("shutdown.kill_after: %w", err)
	}
	if duration < 0 {
		return 0, fmt.Errorf("shutdown.kill_after must not be negative, got %s", duration)
	}
	return duration, nil
}

// ChildEnvironment returns Environment as sorted KEY=VALUE pairs.
func (c *Config) ChildEnvironment() []string {
	pairs := make([]string, 0, len(c.Environment))
	for key, value := range c.Environment {
		pairs = append(pairs, key+"="+value)
	}
	slices.Sort(pairs)
	return pairs
}

// AccessToken reads the chat access token from chat.access_token_file,
// or else from CONSOLE_RELAY_ACCESS_TOKEN (which is then unset). The
// caller owns the returned buffer.
func (c *Config) AccessToken() (*secret.Buffer, error) {
	if c.Chat.AccessTokenFile != "" {
		buffer, err := secret.ReadFile(c.Chat.AccessTokenFile)
		if err != nil {
			return nil, fmt.Errorf("reading chat.access_token_file: %w", err)
		}
		return buffer, nil
	}

	buffer, err := secret.FromEnvironment(EnvAccessToken)
	if err != nil {
		return nil, err
	}
	if buffer == nil {
		return nil, fmt.Errorf("no chat access token: set chat.access_token_file or %s", EnvAccessToken)
	}
	return buffer, nil
}
