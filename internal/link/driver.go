// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package link

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	jserial "github.com/jacobsa/go-serial/serial"
	"go.bug.st/serial"

	"github.com/relabs-tech/rotor_bench/internal/config"
)

// Serial drivers selectable with SERIAL_DRIVER.
const (
	DriverBugst   = "bugst"
	DriverTermios = "termios"
)

// Open opens the configured serial port and wraps it in a Link.
// Failure here is fatal to the session; the caller does not retry.
func Open(cfg *config.Config) (*Link, error) {
	port, err := OpenPort(cfg)
	if err != nil {
		return nil, err
	}
	return New(port), nil
}

// OpenPort opens the raw driver port for cfg.SerialPort.
func OpenPort(cfg *config.Config) (Port, error) {
	switch cfg.SerialDriver {
	case "", DriverBugst:
		mode := &serial.Mode{
			BaudRate: cfg.SerialBaudRate,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		}
		port, err := serial.Open(cfg.SerialPort, mode)
		if err != nil {
			return nil, fmt.Errorf("link: open %s: %w", cfg.SerialPort, err)
		}
		log.Printf("link: opened %s at %d baud (driver=%s)", cfg.SerialPort, cfg.SerialBaudRate, DriverBugst)
		return port, nil

	case DriverTermios:
		opts := jserial.OpenOptions{
			PortName:              cfg.SerialPort,
			BaudRate:              uint(cfg.SerialBaudRate),
			DataBits:              8,
			StopBits:              1,
			MinimumReadSize:       0,
			ParityMode:            jserial.PARITY_NONE,
			InterCharacterTimeout: 100,
		}
		rwc, err := jserial.Open(opts)
		if err != nil {
			return nil, fmt.Errorf("link: open %s: %w", cfg.SerialPort, err)
		}
		log.Printf("link: opened %s at %d baud (driver=%s)", cfg.SerialPort, cfg.SerialBaudRate, DriverTermios)
		return newPumpedPort(rwc), nil

	default:
		return nil, fmt.Errorf("link: unknown serial driver %q", cfg.SerialDriver)
	}
}

// pumpedPort adapts a blocking io.ReadWriteCloser (jacobsa/go-serial has no
// per-call timeout and no input flush) to Port. A single goroutine keeps
// reading into a buffer so Read can honour any timeout, including zero.
type pumpedPort struct {
	rwc io.ReadWriteCloser

	mu      sync.Mutex
	buf     []byte
	err     error
	timeout time.Duration

	ready chan struct{}
}

func newPumpedPort(rwc io.ReadWriteCloser) *pumpedPort {
	p := &pumpedPort{
		rwc:     rwc,
		timeout: serial.NoTimeout,
		ready:   make(chan struct{}, 1),
	}
	go p.pump()
	return p
}

func (p *pumpedPort) pump() {
	chunk := make([]byte, 4096)
	for {
		n, err := p.rwc.Read(chunk)
		p.mu.Lock()
		if n > 0 {
			p.buf = append(p.buf, chunk[:n]...)
		}
		// VMIN=0 reads report io.EOF on an idle line; that is just silence.
		if err != nil && !errors.Is(err, io.EOF) {
			p.err = err
		}
		failed := p.err != nil
		p.mu.Unlock()

		if n > 0 || failed {
			select {
			case p.ready <- struct{}{}:
			default:
			}
		}
		if failed {
			return
		}
	}
}

func (p *pumpedPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	timeout := p.timeout
	p.mu.Unlock()

	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	for {
		p.mu.Lock()
		if len(p.buf) > 0 {
			n := copy(b, p.buf)
			p.buf = p.buf[:copy(p.buf, p.buf[n:])]
			p.mu.Unlock()
			return n, nil
		}
		err := p.err
		p.mu.Unlock()

		if err != nil {
			return 0, err
		}
		if timeout == 0 {
			return 0, nil
		}
		select {
		case <-p.ready:
		case <-expired:
			return 0, nil
		}
	}
}

func (p *pumpedPort) Write(b []byte) (int, error) { return p.rwc.Write(b) }

func (p *pumpedPort) Close() error { return p.rwc.Close() }

func (p *pumpedPort) SetReadTimeout(t time.Duration) error {
	p.mu.Lock()
	p.timeout = t
	p.mu.Unlock()
	return nil
}

func (p *pumpedPort) ResetInputBuffer() error {
	p.mu.Lock()
	p.buf = p.buf[:0]
	p.mu.Unlock()
	return nil
}
