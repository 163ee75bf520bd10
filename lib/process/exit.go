// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ExitError asks the entrypoint to exit with Code without printing an
// error message. A nil Err means the exit is not itself a failure (a
// child exiting non-zero, say).
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode returns Code.
func (e *ExitError) ExitCode() int { return e.Code }

// Exit terminates the process for err returned from run(). A nil err
// exits 0.
func Exit(err error) {
	os.Exit(report(os.Stderr, err))
}

// Fatal writes "error: err" to stderr and exits with code 1. Use it in
// main() for errors where the structured logger may not be initialized.
func Fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

// report writes err to w as Fatal would and returns the exit code.
// An *ExitError anywhere in the chain sets the code; its wrapped error,
// if any, is still printed.
func report(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Err != nil {
			fmt.Fprintf(w, "error: %v\n", err)
		}
		return exitErr.Code
	}
	fmt.Fprintf(w, "error: %v\n", err)
	return 1
}
