// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"errors"
	"io"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// IsClosedStreamError reports whether err means the stream's other end
// (or our own side) is already closed: EOF, a closed file, pipe, or
// connection, a broken pipe, or a connection reset. Writing to a child
// that has exited produces one of these; they are expected during
// shutdown and not worth more than a debug log.
func IsClosedStreamError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, net.ErrClosed) {
		return true
	}
	return errors.Is(err, unix.EPIPE) || errors.Is(err, unix.ECONNRESET)
}
