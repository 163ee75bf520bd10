// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/consolerelay/lib/chat"
	"github.com/bureau-foundation/consolerelay/lib/clock"
	"github.com/bureau-foundation/consolerelay/lib/cmdqueue"
	"github.com/bureau-foundation/consolerelay/lib/pattern"
)

// ErrChatSession marks failures of the chat session: a connector that
// could not connect, or a Listen call that ended with an error. These
// never stop the run.
var ErrChatSession = errors.New("chat session failed")

// DefaultKillAfter is how long an interrupted child may take to exit
// after the stop signal before it is killed.
const DefaultKillAfter = 10 * time.Second

// DefaultCommandVerb is the console command chat messages are wrapped
// in.
const DefaultCommandVerb = "say"

// Config holds the configuration for a Relay.
type Config struct {
	// Command is the child process to run. Required.
	Command Command

	// Spawner starts the child. Nil means ExecSpawner{}.
	Spawner Spawner

	// Connector is the chat session. Nil disables chat entirely: no
	// output is relayed and no chat listener runs.
	Connector chat.Connector

	// Patterns selects the output lines posted to chat. Required when
	// Connector is set.
	Patterns *pattern.Set

	// Keyboard is the local input source, normally os.Stdin. Nil
	// disables the keyboard listener. Cancellation interrupts a
	// blocked read only when Keyboard is an *os.File that supports
	// polling; other readers must return from Read on their own once
	// the run drains.
	Keyboard io.Reader

	// Echo receives every child output line. Nil means os.Stdout.
	Echo io.Writer

	// Tag is the origin marker placed in chat commands, without
	// brackets. Empty means pattern.DefaultTag.
	Tag string

	// CommandVerb is the console command chat messages are wrapped in.
	// Empty means DefaultCommandVerb.
	CommandVerb string

	// StopSignal is sent to the child on operator interrupt. Nil means
	// SIGTERM.
	StopSignal os.Signal

	// KillAfter is the grace period between StopSignal and SIGKILL.
	// Zero means DefaultKillAfter.
	KillAfter time.Duration

	// Clock times the KillAfter grace period. Nil means clock.Real().
	Clock clock.Clock

	// OnStateChange, if set, is called synchronously on every state
	// transition.
	OnStateChange func(from, to State)

	// Logger is the structured logger. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Result describes a finished run.
type Result struct {
	// ExitCode is the child's exit status (128+N if killed by signal
	// N).
	ExitCode int

	// Interrupted is true when the run ended because its context was
	// cancelled.
	Interrupted bool

	// ChatError is the chat session failure, if any. It wraps
	// ErrChatSession.
	ChatError error
}

// Relay runs one child process with its console shared between the
// terminal and a chat room. A Relay is single-use.
type Relay struct {
	config Config
	logger *slog.Logger
	queue  *cmdqueue.Queue

	mu    sync.Mutex
	state State
	ran   bool

	// exited is set once the output listener has ended. The input
	// writer checks it before every write.
	exited atomic.Bool

	// chatFailed is set when the chat session ends before the run
	// drains. The output listener stops sending once it is set.
	chatFailed atomic.Bool
}

// New validates config and returns a Relay ready to Run.
func New(config Config) (*Relay, error) {
	if config.Command.Path == "" {
		return nil, fmt.Errorf("command path is required")
	}
	if config.Connector != nil && config.Patterns == nil {
		return nil, fmt.Errorf("patterns are required when a chat connector is configured")
	}
	if config.KillAfter < 0 {
		return nil, fmt.Errorf("kill_after must not be negative, got %s", config.KillAfter)
	}

	if config.Spawner == nil {
		config.Spawner = ExecSpawner{}
	}
	if config.Echo == nil {
		config.Echo = os.Stdout
	}
	if config.Tag == "" {
		config.Tag = pattern.DefaultTag
	}
	if config.CommandVerb == "" {
		config.CommandVerb = DefaultCommandVerb
	}
	if config.StopSignal == nil {
		config.StopSignal = syscall.SIGTERM
	}
	if config.KillAfter == 0 {
		config.KillAfter = DefaultKillAfter
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Relay{
		config: config,
		logger: logger,
		queue:  cmdqueue.New(),
		state:  StateStarting,
	}, nil
}

// State returns the current lifecycle state.
func (r *Relay) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Relay) setState(next State) {
	r.mu.Lock()
	previous := r.state
	r.state = next
	r.mu.Unlock()

	r.logger.Debug("relay state change", "from", previous, "to", next)
	if r.config.OnStateChange != nil {
		r.config.OnStateChange(previous, next)
	}
}

// Run spawns the child and relays until its stdout closes. It returns
// an error only if the child cannot be started or reaped; chat
// failures are reported in Result.ChatError.
func (r *Relay) Run(ctx context.Context) (Result, error) {
	r.mu.Lock()
	if r.ran {
		r.mu.Unlock()
		return Result{}, fmt.Errorf("relay has already run")
	}
	r.ran = true
	r.mu.Unlock()

	var result Result

	process, err := r.config.Spawner.Spawn(ctx, r.config.Command)
	if err != nil {
		r.setState(StateStopped)
		return result, fmt.Errorf("spawning child process: %w", err)
	}
	r.logger.Info("child process started", "command", r.config.Command.Path, "args", r.config.Command.Args)

	connector := r.config.Connector
	if connector != nil {
		if err := connector.Connect(ctx); err != nil {
			result.ChatError = fmt.Errorf("%w: connecting: %w", ErrChatSession, err)
			r.logger.Error("chat unavailable, continuing without it", "error", err)
			connector = nil
		}
	}

	// Listeners are cancelled only when the output listener ends, never
	// directly by the caller's context.
	listenerContext, cancelListeners := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelListeners()

	waited := make(chan struct{})
	outputClosed := make(chan struct{})
	stopRequest := make(chan string, 1)
	stopperDone := make(chan struct{})
	go func() {
		defer close(stopperDone)
		r.stopChild(ctx, process, stopRequest, outputClosed, waited)
	}()

	r.setState(StateRunning)

	var group errgroup.Group
	group.Go(func() error {
		r.writeInput(listenerContext, process.Stdin())
		return nil
	})
	if r.config.Keyboard != nil {
		group.Go(func() error {
			r.listenKeyboard(listenerContext, r.config.Keyboard)
			return nil
		})
	}
	var chatError error
	if connector != nil {
		group.Go(func() error {
			if err := r.listenChat(listenerContext, connector); err != nil {
				r.logger.Error("chat session ended, relay continues without inbound chat", "error", err)
				chatError = err
			}
			return nil
		})
	}

	outputError := r.listenOutput(listenerContext, process.Stdout(), connector)

	r.setState(StateDraining)
	r.exited.Store(true)
	close(outputClosed)
	if outputError != nil {
		r.logger.Warn("reading child output failed, stopping child", "error", outputError)
		stopRequest <- "output stream failed"
	}
	cancelListeners()
	r.queue.Close()
	group.Wait()
	if chatError != nil {
		result.ChatError = chatError
	}

	exitCode, waitError := process.Wait()
	close(waited)
	<-stopperDone

	result.ExitCode = exitCode
	result.Interrupted = ctx.Err() != nil
	r.setState(StateStopped)

	if waitError != nil {
		return result, waitError
	}
	r.logger.Info("child process exited", "exit_code", exitCode, "interrupted", result.Interrupted)
	return result, nil
}

// stopChild waits for an operator interrupt (ctx cancelled), an
// internal stop request, or a child that is still running KillAfter
// after closing its stdout. It then sends the stop signal and, if the
// child is still running after another KillAfter, SIGKILL. It returns
// once the child has been reaped.
func (r *Relay) stopChild(ctx context.Context, process Process, requests <-chan string, outputClosed, waited <-chan struct{}) {
	var reason string
	var linger <-chan time.Time
	for reason == "" {
		select {
		case <-waited:
			return
		case <-ctx.Done():
			reason = "interrupted"
		case reason = <-requests:
		case <-outputClosed:
			outputClosed = nil
			linger = r.config.Clock.After(r.config.KillAfter)
		case <-linger:
			reason = "child kept running after closing its output"
		}
	}

	r.logger.Info("stopping child process", "reason", reason, "signal", r.config.StopSignal)
	if err := process.Signal(r.config.StopSignal); err != nil {
		r.logger.Debug("sending stop signal", "error", err)
	}

	select {
	case <-waited:
	case <-r.config.Clock.After(r.config.KillAfter):
		r.logger.Warn("child did not exit after stop signal, killing", "kill_after", r.config.KillAfter)
		if err := process.Signal(syscall.SIGKILL); err != nil {
			r.logger.Debug("sending SIGKILL", "error", err)
		}
		<-waited
	}
}
