// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package operator is the bench operator's side of a session: single key
// polling for go-ahead signals and line prompts for answers and numbers.
package operator

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
)

// Key codes delivered on the key channel besides printable runes.
const (
	KeyEnter     = '\r'
	KeyBackspace = '\b'
	KeyCtrlC     = 0x03
	KeyEsc       = 0x1b
)

var (
	// ErrInterrupted is returned when the operator presses Ctrl+C.
	ErrInterrupted = errors.New("operator: interrupted")
	// ErrClosed is returned once the key source has gone away.
	ErrClosed = errors.New("operator: input closed")
)

// Console reads keys from a channel fed by the keyboard reader and, when
// wired, the go-ahead button. Prompts echo to out.
type Console struct {
	keys chan rune
	out  io.Writer

	mu     sync.Mutex
	closed bool
}

// NewConsole returns a console fed through keys.
func NewConsole(keys chan rune, out io.Writer) *Console {
	return &Console{keys: keys, out: out}
}

// Inject queues a key as if it was typed. It never blocks; the key is dropped
// when the queue is full.
func (c *Console) Inject(r rune) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.keys <- r:
	default:
	}
}

// shutdown closes the key queue; pending keys can still be read.
func (c *Console) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.keys)
	}
}

// PollKey returns a pending key without blocking.
func (c *Console) PollKey() (rune, bool, error) {
	select {
	case r, ok := <-c.keys:
		if !ok {
			return 0, false, ErrClosed
		}
		if r == KeyCtrlC {
			return 0, false, ErrInterrupted
		}
		if r == '\n' {
			r = KeyEnter
		}
		return r, true, nil
	default:
		return 0, false, nil
	}
}

// Drain discards keys typed ahead of time.
func (c *Console) Drain() {
	for {
		select {
		case _, ok := <-c.keys:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// Prompt prints msg and blocks until the operator finishes a line with Enter.
func (c *Console) Prompt(msg string) (string, error) {
	fmt.Fprintf(c.out, "%s > ", msg)
	var line []rune
	for r := range c.keys {
		switch r {
		case KeyCtrlC:
			fmt.Fprintln(c.out)
			return "", ErrInterrupted
		case KeyEnter, '\n':
			fmt.Fprintln(c.out)
			return string(line), nil
		case KeyBackspace, 0x7f:
			if len(line) > 0 {
				line = line[:len(line)-1]
				fmt.Fprint(c.out, "\b \b")
			}
		case KeyEsc:
			// ignored inside a prompt
		default:
			line = append(line, r)
			fmt.Fprint(c.out, string(r))
		}
	}
	return "", ErrClosed
}

// PromptFloat asks until the answer parses as a finite number.
func (c *Console) PromptFloat(msg string) (float64, error) {
	for {
		ans, err := c.Prompt(msg)
		if err != nil {
			return 0, err
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(ans), 64)
		if err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
			return v, nil
		}
		fmt.Fprintf(c.out, "invalid number %q, try again\n", ans)
	}
}

// Confirm asks a y/n question. Anything other than y or n is asked again.
func (c *Console) Confirm(msg string) (bool, error) {
	for {
		ans, err := c.Prompt(msg + " (y/n)")
		if err != nil {
			return false, err
		}
		switch strings.ToLower(strings.TrimSpace(ans)) {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
	}
}
