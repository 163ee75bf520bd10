// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
)

// discardLogger returns a logger that drops everything.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// syncBuffer is a goroutine-safe bytes.Buffer for capturing echo
// output.
type syncBuffer struct {
	mu     sync.Mutex
	buffer bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buffer.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buffer.String()
}

// recordingStdin stands in for a child's stdin. Complete lines are
// published on lines; any write after Close is counted as a defect.
type recordingStdin struct {
	mu               sync.Mutex
	partial          strings.Builder
	all              []string
	closed           bool
	writesAfterClose int
	lines            chan string
}

func newRecordingStdin() *recordingStdin {
	return &recordingStdin{lines: make(chan string, 64)}
}

func (s *recordingStdin) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.writesAfterClose++
		return 0, os.ErrClosed
	}
	s.partial.Write(p)
	for {
		buffered := s.partial.String()
		index := strings.IndexByte(buffered, '\n')
		if index < 0 {
			break
		}
		line := buffered[:index]
		s.all = append(s.all, line)
		s.lines <- line
		s.partial.Reset()
		s.partial.WriteString(buffered[index+1:])
	}
	return len(p), nil
}

func (s *recordingStdin) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingStdin) snapshot() (lines []string, closed bool, writesAfterClose int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.all...), s.closed, s.writesAfterClose
}

// fakeProcess is a child whose output and exit the test controls.
type fakeProcess struct {
	stdin        *recordingStdin
	stdoutReader *io.PipeReader
	stdoutWriter *io.PipeWriter

	exitOnce sync.Once
	exited   chan struct{}
	exitCode int

	signals chan os.Signal
}

func newFakeProcess() *fakeProcess {
	reader, writer := io.Pipe()
	return &fakeProcess{
		stdin:        newRecordingStdin(),
		stdoutReader: reader,
		stdoutWriter: writer,
		exited:       make(chan struct{}),
		signals:      make(chan os.Signal, 8),
	}
}

// print writes one output line as the child.
func (p *fakeProcess) print(t *testing.T, line string) {
	t.Helper()
	if _, err := io.WriteString(p.stdoutWriter, line+"\n"); err != nil {
		t.Fatalf("fake child writing %q: %v", line, err)
	}
}

// exit closes the child's stdout and makes Wait return code.
func (p *fakeProcess) exit(code int) {
	p.exitOnce.Do(func() {
		p.exitCode = code
		p.stdoutWriter.Close()
		close(p.exited)
	})
}

func (p *fakeProcess) Stdin() io.WriteCloser { return p.stdin }

func (p *fakeProcess) Stdout() io.Reader { return p.stdoutReader }

func (p *fakeProcess) Signal(sig os.Signal) error {
	p.signals <- sig
	return nil
}

func (p *fakeProcess) Wait() (int, error) {
	<-p.exited
	return p.exitCode, nil
}

// fakeSpawner hands out a prepared fakeProcess, or fails.
type fakeSpawner struct {
	process *fakeProcess
	err     error
	spawned []Command
}

func (s *fakeSpawner) Spawn(ctx context.Context, command Command) (Process, error) {
	s.spawned = append(s.spawned, command)
	if s.err != nil {
		return nil, s.err
	}
	return s.process, nil
}

// keyboardPipe returns an os.Pipe pair standing in for a terminal. The
// read end is pollable, so the keyboard listener can be cancelled
// while blocked on it.
func keyboardPipe(t *testing.T) (*os.File, *os.File) {
	t.Helper()
	reader, writer, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	t.Cleanup(func() {
		writer.Close()
		reader.Close()
	})
	return reader, writer
}
