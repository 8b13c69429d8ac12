// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package link owns the serial connection to the rig: it sends ASCII
// commands, reads telemetry lines with a bounded timeout and reports how much
// unread input is queued.
package link

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/relabs-tech/rotor_bench/internal/telemetry"
)

// maxPending bounds an unterminated run of input. Anything longer without a
// line break is treated as line noise and discarded.
const maxPending = 64 * 1024

// ErrClosed is returned by operations on a closed Link.
var ErrClosed = errors.New("link closed")

// Port is the driver-level serial port. go.bug.st/serial ports satisfy it
// directly; the termios driver is adapted in driver.go.
//
// SetReadTimeout(0) must make Read return immediately with whatever is queued.
// A Read that times out returns (0, nil).
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

// Link is a line-oriented view over a Port. It is not safe for concurrent use.
type Link struct {
	port    Port
	pending []byte
	chunk   []byte
	timeout time.Duration
	closed  bool

	// discarding is set while skipping the remainder of an oversized run.
	discarding bool
}

// New wraps an already opened port.
func New(port Port) *Link {
	return &Link{
		port:    port,
		chunk:   make([]byte, 4096),
		timeout: -2, // nothing applied yet
	}
}

// Send writes cmd followed by a line break. No acknowledgement is awaited.
func (l *Link) Send(cmd string) error {
	if l.closed {
		return ErrClosed
	}
	if _, err := l.port.Write([]byte(cmd + "\n")); err != nil {
		return fmt.Errorf("link: send %q: %w", cmd, err)
	}
	return nil
}

// Pending pulls whatever the driver has queued without blocking and returns
// the number of unread bytes held by the link.
func (l *Link) Pending() (int, error) {
	if l.closed {
		return 0, ErrClosed
	}
	if err := l.setTimeout(0); err != nil {
		return 0, err
	}
	for len(l.pending) < maxPending {
		n, err := l.fill()
		if err != nil {
			return len(l.pending), err
		}
		if n == 0 {
			break
		}
	}
	return len(l.pending), nil
}

// TryReadLine returns the next complete line, or ok=false when none arrived
// within timeout. Partial lines stay buffered for the next call.
func (l *Link) TryReadLine(timeout time.Duration) (line string, ok bool, err error) {
	if l.closed {
		return "", false, ErrClosed
	}
	deadline := time.Now().Add(timeout)
	for {
		if line, ok := l.popLine(); ok {
			return line, true, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", false, nil
		}
		if err := l.setTimeout(remaining); err != nil {
			return "", false, err
		}
		if _, err := l.fill(); err != nil {
			return "", false, err
		}
	}
}

// ResetInputBuffer discards everything queued before this call, both in the
// driver and in the link.
func (l *Link) ResetInputBuffer() error {
	if l.closed {
		return ErrClosed
	}
	l.pending = l.pending[:0]
	l.discarding = false
	if err := l.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("link: reset input: %w", err)
	}
	return nil
}

// DecodeFields parses a tab separated telemetry line.
func DecodeFields(line string) ([]float64, bool) {
	return telemetry.DecodeFields(line)
}

// Close releases the port.
func (l *Link) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	return l.port.Close()
}

func (l *Link) setTimeout(t time.Duration) error {
	if t == l.timeout {
		return nil
	}
	if err := l.port.SetReadTimeout(t); err != nil {
		return fmt.Errorf("link: set read timeout: %w", err)
	}
	l.timeout = t
	return nil
}

func (l *Link) fill() (int, error) {
	n, err := l.port.Read(l.chunk)
	if n > 0 {
		l.pending = append(l.pending, l.chunk[:n]...)
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return n, fmt.Errorf("link: read: %w", err)
	}
	if l.discarding {
		i := bytes.IndexByte(l.pending, '\n')
		if i < 0 {
			l.pending = l.pending[:0]
			return n, nil
		}
		l.pending = l.pending[:copy(l.pending, l.pending[i+1:])]
		l.discarding = false
	}
	if len(l.pending) >= maxPending && bytes.IndexByte(l.pending, '\n') < 0 {
		l.pending = l.pending[:0]
		l.discarding = true
	}
	return n, nil
}

func (l *Link) popLine() (string, bool) {
	i := bytes.IndexByte(l.pending, '\n')
	if i < 0 {
		return "", false
	}
	line := string(bytes.TrimRight(l.pending[:i], "\r"))
	l.pending = l.pending[:copy(l.pending, l.pending[i+1:])]
	return line, true
}
