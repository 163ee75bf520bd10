// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
)

// Command describes the child process to spawn.
type Command struct {
	// Path is the executable. Looked up in PATH when it contains no
	// slash.
	Path string

	// Args are the arguments after the executable name.
	Args []string

	// Dir is the working directory. Empty means the relay's own.
	Dir string

	// Env is appended to the relay's environment.
	Env []string
}

// Process is a running child. The relay owns its lifecycle; listeners
// only use its streams.
type Process interface {
	// Stdin is the child's input stream. Closing it delivers EOF to
	// the child.
	Stdin() io.WriteCloser

	// Stdout is the child's output stream. It reports EOF once the
	// child (and anything it forked that inherited the stream) has
	// closed it.
	Stdout() io.Reader

	// Signal delivers sig to the child.
	Signal(sig os.Signal) error

	// Wait blocks until the child exits and returns its exit code. A
	// child killed by a signal reports 128 plus the signal number. The
	// error is non-nil only when the exit status could not be
	// collected.
	Wait() (int, error)
}

// Spawner starts child processes.
type Spawner interface {
	Spawn(ctx context.Context, command Command) (Process, error)
}

// ExecSpawner starts children with os/exec. Stdin and stdout are pipes;
// stderr goes to Stderr, or the relay's own stderr when nil.
type ExecSpawner struct {
	Stderr io.Writer
}

// Spawn implements Spawner. The child is not bound to ctx: stopping it
// is the relay's job, so that a cancelled context produces the
// configured stop signal instead of an immediate SIGKILL.
func (spawner ExecSpawner) Spawn(ctx context.Context, command Command) (Process, error) {
	if command.Path == "" {
		return nil, fmt.Errorf("no command to run")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command(command.Path, command.Args...)
	cmd.Dir = command.Dir
	if len(command.Env) > 0 {
		cmd.Env = append(os.Environ(), command.Env...)
	}
	cmd.Stderr = spawner.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		stdin.Close()
		return nil, fmt.Errorf("starting %s: %w", command.Path, err)
	}

	return &execProcess{cmd: cmd, stdin: stdin, stdout: stdout}, nil
}

// execProcess wraps an exec.Cmd to implement Process.
type execProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.Reader
}

func (process *execProcess) Stdin() io.WriteCloser { return process.stdin }

func (process *execProcess) Stdout() io.Reader { return process.stdout }

func (process *execProcess) Signal(sig os.Signal) error {
	return process.cmd.Process.Signal(sig)
}

func (process *execProcess) Wait() (int, error) {
	err := process.cmd.Wait()
	if err == nil {
		return 0, nil
	}
	var exitError *exec.ExitError
	if !errors.As(err, &exitError) {
		return -1, fmt.Errorf("waiting for child: %w", err)
	}
	if status, ok := exitError.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return 128 + int(status.Signal()), nil
	}
	return exitError.ExitCode(), nil
}
