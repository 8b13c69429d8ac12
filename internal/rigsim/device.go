// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package rigsim is a toy stand-in for the rig firmware. It answers the same
// ASCII commands and streams telemetry lines at a fixed rate so sessions can be
// dry-run and tested without hardware.
package rigsim

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/relabs-tech/rotor_bench/internal/link"
)

// maxBacklog is the most unread output the device keeps; older bytes are
// dropped the way a full UART FIFO would.
const maxBacklog = 1 << 20

// Options tune the simulated device.
type Options struct {
	RateHz       float64       // telemetry lines per second (default 100)
	Tau          time.Duration // velocity time constant (default 400ms)
	CorruptEvery int           // emit a garbled line every N lines; 0 disables
	Seed         uint64
}

// Device implements link.Port.
type Device struct {
	mu sync.Mutex

	opts    Options
	epoch   time.Time
	emitted int64

	out []byte // generated, not yet read
	in  []byte // partial command

	setpoint float64
	velReal  float64
	pos      float64
	baseline float64 // load cell offset in counts; M3 tares it
	mode     int

	rng     *rand.Rand
	timeout time.Duration
	closed  bool

	commands []string
}

var _ link.Port = (*Device)(nil)

// New creates a simulated device that starts streaming immediately.
func New(opts Options) *Device {
	if opts.RateHz <= 0 {
		opts.RateHz = 100
	}
	if opts.Tau <= 0 {
		opts.Tau = 400 * time.Millisecond
	}
	return &Device{
		opts:     opts,
		epoch:    time.Now(),
		baseline: 8400,
		rng:      rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)),
		timeout:  -1,
	}
}

// Commands returns every command line received so far.
func (d *Device) Commands() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.commands...)
}

// Setpoint returns the last commanded velocity.
func (d *Device) Setpoint() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setpoint
}

// Mode returns 3 while zeroing, 0 otherwise.
func (d *Device) Mode() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

func (d *Device) Read(b []byte) (int, error) {
	d.mu.Lock()
	timeout := d.timeout
	d.mu.Unlock()

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		d.mu.Lock()
		if d.closed {
			d.mu.Unlock()
			return 0, fmt.Errorf("rigsim: port closed")
		}
		now := time.Now()
		d.generate(now)
		if len(d.out) > 0 {
			n := copy(b, d.out)
			d.out = d.out[:copy(d.out, d.out[n:])]
			d.mu.Unlock()
			return n, nil
		}
		wait := d.nextLineAt().Sub(now)
		d.mu.Unlock()

		if timeout == 0 {
			return 0, nil
		}
		if timeout > 0 {
			left := time.Until(deadline)
			if left <= 0 {
				return 0, nil
			}
			wait = min(wait, left)
		}
		time.Sleep(max(wait, 100*time.Microsecond))
	}
}

// Write accepts newline terminated commands: T<value> sets the velocity
// setpoint, M3 enters zeroing mode and tares the load cell, M0 returns to
// normal operation. Unknown commands are ignored like the firmware does.
func (d *Device) Write(b []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, fmt.Errorf("rigsim: port closed")
	}
	d.generate(time.Now())
	d.in = append(d.in, b...)
	for {
		i := strings.IndexByte(string(d.in), '\n')
		if i < 0 {
			break
		}
		cmd := strings.TrimSpace(string(d.in[:i]))
		d.in = d.in[i+1:]
		d.apply(cmd)
	}
	return len(b), nil
}

func (d *Device) apply(cmd string) {
	if cmd == "" {
		return
	}
	d.commands = append(d.commands, cmd)
	switch {
	case cmd[0] == 'T':
		v, err := strconv.ParseFloat(cmd[1:], 64)
		if err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
			d.setpoint = v
		}
	case cmd == "M3":
		d.mode = 3
		d.baseline = 0
	case cmd == "M0":
		d.mode = 0
	}
}

func (d *Device) SetReadTimeout(t time.Duration) error {
	d.mu.Lock()
	d.timeout = t
	d.mu.Unlock()
	return nil
}

func (d *Device) ResetInputBuffer() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.generate(time.Now())
	d.out = d.out[:0]
	return nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

func (d *Device) nextLineAt() time.Time {
	period := time.Duration(float64(time.Second) / d.opts.RateHz)
	return d.epoch.Add(time.Duration(d.emitted+1) * period)
}

// generate appends every line that is due by now. Caller holds mu.
func (d *Device) generate(now time.Time) {
	due := int64(now.Sub(d.epoch).Seconds() * d.opts.RateHz)
	dt := 1 / d.opts.RateHz
	alpha := dt / d.opts.Tau.Seconds()
	if alpha > 1 {
		alpha = 1
	}
	for d.emitted < due {
		d.emitted++
		d.velReal += (d.setpoint - d.velReal) * alpha
		d.pos = math.Mod(d.pos+d.velReal*dt, 2*math.Pi)

		if d.opts.CorruptEvery > 0 && d.emitted%int64(d.opts.CorruptEvery) == 0 {
			d.out = append(d.out, "\x00\x13garbled\t1.0\n"...)
			continue
		}

		vib := 0.02 * d.velReal
		line := fmt.Sprintf("%.3f\t%.3f\t%.4f\t%.3f\t%.3f\t%.3f\t%.0f\t%.0f\n",
			d.setpoint,
			d.velReal+d.rng.NormFloat64()*0.05,
			d.pos,
			vib*math.Sin(d.pos)+d.rng.NormFloat64()*0.01,
			vib*math.Cos(d.pos)+d.rng.NormFloat64()*0.01,
			9.81+d.rng.NormFloat64()*0.01,
			d.baseline+0.15*d.velReal*d.velReal+d.rng.NormFloat64()*3,
			d.baseline+d.rng.NormFloat64()*3,
		)
		d.out = append(d.out, line...)
	}
	if len(d.out) > maxBacklog {
		d.out = d.out[:copy(d.out, d.out[len(d.out)-maxBacklog:])]
	}
}
