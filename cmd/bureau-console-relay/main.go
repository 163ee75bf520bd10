// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/consolerelay/lib/chat"
	"github.com/bureau-foundation/consolerelay/lib/config"
	"github.com/bureau-foundation/consolerelay/lib/pattern"
	"github.com/bureau-foundation/consolerelay/lib/process"
	"github.com/bureau-foundation/consolerelay/lib/ref"
	"github.com/bureau-foundation/consolerelay/lib/relay"
	"github.com/bureau-foundation/consolerelay/lib/version"
	"github.com/bureau-foundation/consolerelay/messaging"
)

const binaryName = "bureau-console-relay"

// exitUsage is the exit status for bad flags or configuration.
const exitUsage = 2

func main() {
	if err := run(os.Args[1:]); err != nil {
		process.Exit(err)
	}
}

// options holds the parsed command line.
type options struct {
	configPath  string
	preset      string
	noKeyboard  bool
	noChat      bool
	verbose     bool
	showVersion bool
	showHelp    bool
	command     []string
}

func newFlagSet(opts *options) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet(binaryName, pflag.ContinueOnError)
	flagSet.SetInterspersed(false)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVar(&opts.configPath, "config", "", "path to the relay configuration file (default: $"+config.EnvConfig+")")
	flagSet.StringVar(&opts.preset, "preset", "", fmt.Sprintf("output pattern preset, replacing configured rules (one of %v)", pattern.PresetNames()))
	flagSet.BoolVar(&opts.noKeyboard, "no-keyboard", false, "do not forward the relay's stdin to the child")
	flagSet.BoolVar(&opts.noChat, "no-chat", false, "run without connecting to chat")
	flagSet.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	flagSet.BoolVar(&opts.showVersion, "version", false, "print version information and exit")
	flagSet.BoolVarP(&opts.showHelp, "help", "h", false, "show help")
	return flagSet
}

// parseArgs parses flags; everything from the first non-flag argument
// (or after "--") is the child command.
func parseArgs(args []string) (options, error) {
	var opts options
	flagSet := newFlagSet(&opts)
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			opts.showHelp = true
			return opts, nil
		}
		return options{}, err
	}
	if command := flagSet.Args(); len(command) > 0 {
		opts.command = command
	}
	return opts, nil
}

func printHelp(w io.Writer) {
	var opts options
	flagSet := newFlagSet(&opts)
	fmt.Fprintf(w, "Usage: %s [flags] [--] <command> [args...]\n\n", binaryName)
	fmt.Fprintf(w, "Relay a console program's output to a Matrix room and room messages to its input.\n\n")
	fmt.Fprintf(w, "Flags:\n%s", flagSet.FlagUsages())
}

func run(args []string) error {
	opts, err := parseArgs(args)
	if err != nil {
		return &process.ExitError{Code: exitUsage, Err: err}
	}
	if opts.showHelp {
		printHelp(os.Stdout)
		return nil
	}
	if opts.showVersion {
		version.Fprint(os.Stdout, binaryName)
		return nil
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return &process.ExitError{Code: exitUsage, Err: err}
	}

	logger := newLogger(os.Stderr, opts.verbose)
	slog.SetDefault(logger)

	relayConfig, cleanup, err := buildRelayConfig(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()
	if cfg.Keyboard.Enabled {
		relayConfig.Keyboard = os.Stdin
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	consoleRelay, err := relay.New(relayConfig)
	if err != nil {
		return err
	}
	logger.Info("starting console relay",
		"version", version.Info(),
		"command", cfg.Command,
		"chat", cfg.ChatEnabled(),
		"keyboard", cfg.Keyboard.Enabled,
	)

	result, err := consoleRelay.Run(ctx)
	if err != nil {
		return err
	}
	if result.ChatError != nil {
		logger.Warn("chat was unavailable for part of the run", "error", result.ChatError)
	}
	logger.Info("console relay stopped",
		"exit_code", result.ExitCode,
		"interrupted", result.Interrupted,
	)

	return exitStatus(result)
}

// exitStatus maps a finished run to the relay's own exit: the child's
// status, except that an operator interrupt is a clean shutdown even
// though the child died from the forwarded stop signal.
func exitStatus(result relay.Result) error {
	if result.Interrupted || result.ExitCode == 0 {
		return nil
	}
	return &process.ExitError{Code: result.ExitCode}
}

// loadConfig loads the configuration file (or environment), applies
// the command-line overrides, and validates the result.
func loadConfig(opts options) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if opts.configPath != "" {
		cfg, err = config.LoadFile(opts.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	if len(opts.command) > 0 {
		cfg.Command = opts.command
	}
	if opts.preset != "" {
		cfg.Patterns.Preset = opts.preset
		cfg.Patterns.Rules = pattern.Rules{}
	}
	if opts.noKeyboard {
		cfg.Keyboard.Enabled = false
	}
	if opts.noChat {
		cfg.Chat.HomeserverURL = ""
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}

// buildRelayConfig translates a validated configuration into a
// relay.Config, connecting nothing yet. The returned cleanup releases
// the chat connector if Run never gets to close it.
func buildRelayConfig(cfg *config.Config, logger *slog.Logger) (relay.Config, func(), error) {
	rules, err := cfg.PatternRules()
	if err != nil {
		return relay.Config{}, nil, err
	}
	patternOptions, err := cfg.PatternOptions()
	if err != nil {
		return relay.Config{}, nil, err
	}
	patterns, err := pattern.New(rules, patternOptions)
	if err != nil {
		return relay.Config{}, nil, err
	}
	stopSignal, err := cfg.StopSignal()
	if err != nil {
		return relay.Config{}, nil, err
	}
	killAfter, err := cfg.KillAfter()
	if err != nil {
		return relay.Config{}, nil, err
	}

	relayConfig := relay.Config{
		Command: relay.Command{
			Path: cfg.Command[0],
			Args: cfg.Command[1:],
			Dir:  cfg.WorkingDirectory,
			Env:  cfg.ChildEnvironment(),
		},
		Patterns:    patterns,
		Tag:         cfg.Chat.Tag,
		CommandVerb: cfg.Chat.CommandVerb,
		StopSignal:  stopSignal,
		KillAfter:   killAfter,
		Logger:      logger,
	}

	cleanup := func() {}
	if cfg.ChatEnabled() {
		connector, err := newConnector(cfg, logger)
		if err != nil {
			return relay.Config{}, nil, err
		}
		relayConfig.Connector = connector
		cleanup = func() { connector.Close() }
	}
	return relayConfig, cleanup, nil
}

// newConnector builds the Matrix connector. The access token is read
// here so a missing token fails before the child is spawned.
func newConnector(cfg *config.Config, logger *slog.Logger) (chat.Connector, error) {
	var userID ref.UserID
	if cfg.Chat.UserID != "" {
		parsed, err := ref.ParseUserID(cfg.Chat.UserID)
		if err != nil {
			return nil, fmt.Errorf("chat.user_id: %w", err)
		}
		userID = parsed
	}

	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: cfg.Chat.HomeserverURL,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}

	accessToken, err := cfg.AccessToken()
	if err != nil {
		return nil, err
	}
	session, err := client.SessionFromToken(userID, accessToken)
	if err != nil {
		accessToken.Close()
		return nil, err
	}

	connector, err := messaging.NewConnector(messaging.ConnectorConfig{
		Session: session,
		Room:    cfg.Chat.Room,
		Logger:  logger,
	})
	if err != nil {
		session.Close()
		return nil, err
	}
	return connector, nil
}

// newLogger returns a text logger when w is a terminal and a JSON
// logger otherwise.
func newLogger(w *os.File, verbose bool) *slog.Logger {
	options := &slog.HandlerOptions{Level: slog.LevelInfo}
	if verbose {
		options.Level = slog.LevelDebug
	}
	if term.IsTerminal(int(w.Fd())) {
		return slog.New(slog.NewTextHandler(w, options))
	}
	return slog.New(slog.NewJSONHandler(w, options))
}
