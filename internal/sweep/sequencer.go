// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package sweep runs a multi-setpoint test: bring the rotor to the initial
// speed, wait for the operator, let the flow settle, then ramp to each target
// and record one collection window per setpoint.
package sweep

import (
	"fmt"
	"log"
	"time"

	"github.com/relabs-tech/rotor_bench/internal/acquisition"
	"github.com/relabs-tech/rotor_bench/internal/telemetry"
)

// KeyEnter is the key that gives the go-ahead.
const KeyEnter = '\r'

// Ramper moves the actuator setpoint.
type Ramper interface {
	RampTo(target float64) (float64, error)
}

// KeyPoller returns a pressed key without blocking.
type KeyPoller interface {
	PollKey() (key rune, ok bool, err error)
}

// Input is the part of the link the sequencer touches directly.
type Input interface {
	ResetInputBuffer() error
}

// Collector runs one collection window.
type Collector interface {
	Collect(d time.Duration, setpoint float64, sink acquisition.StatusSink) (acquisition.Window, error)
}

// SetpointRun is everything recorded while holding one setpoint.
type SetpointRun struct {
	Setpoint   float64
	Samples    []telemetry.Sample
	MaxBacklog int
	Dropped    int
}

// Result of a sweep.
type Result struct {
	Runs  []SetpointRun
	Final float64
}

// Sequencer wires the core pieces for one test.
type Sequencer struct {
	Ramp      Ramper
	Keys      KeyPoller
	Input     Input
	Collector Collector
	Status    acquisition.StatusSink // optional

	Window       time.Duration
	Dwell        time.Duration
	KeyPollEvery time.Duration

	// OnWaiting is called once before polling for the go-ahead.
	OnWaiting func()
	// OnDwell receives the remaining dwell time, roughly once a second.
	OnDwell func(remaining time.Duration)
	// OnRun is called after each setpoint window closes.
	OnRun func(run SetpointRun)

	sleep func(time.Duration)
}

// Run executes the sweep. Runs are returned in the order of targets.
func (q *Sequencer) Run(initial float64, targets []float64) (Result, error) {
	var res Result

	cur, err := q.Ramp.RampTo(initial)
	res.Final = cur
	if err != nil {
		return res, fmt.Errorf("sweep: ramp to initial %g: %w", initial, err)
	}

	if err := q.waitForGo(); err != nil {
		return res, err
	}

	if err := q.Input.ResetInputBuffer(); err != nil {
		return res, fmt.Errorf("sweep: reset input: %w", err)
	}
	q.dwell()

	for _, target := range targets {
		cur, err := q.Ramp.RampTo(target)
		res.Final = cur
		if err != nil {
			return res, fmt.Errorf("sweep: ramp to %g: %w", target, err)
		}
		if err := q.Input.ResetInputBuffer(); err != nil {
			return res, fmt.Errorf("sweep: reset input: %w", err)
		}

		w, err := q.Collector.Collect(q.Window, target, q.Status)
		if err != nil {
			return res, fmt.Errorf("sweep: collect at %g: %w", target, err)
		}
		run := SetpointRun{
			Setpoint:   target,
			Samples:    w.Samples,
			MaxBacklog: w.MaxBacklog,
			Dropped:    w.Dropped,
		}
		res.Runs = append(res.Runs, run)
		log.Printf("sweep: setpoint %g: %d samples, max backlog %d, dropped %d",
			target, len(w.Samples), w.MaxBacklog, w.Dropped)
		if q.OnRun != nil {
			q.OnRun(run)
		}
	}
	return res, nil
}

func (q *Sequencer) waitForGo() error {
	if q.OnWaiting != nil {
		q.OnWaiting()
	}
	every := q.KeyPollEvery
	if every <= 0 {
		every = 50 * time.Millisecond
	}
	for {
		key, ok, err := q.Keys.PollKey()
		if err != nil {
			return fmt.Errorf("sweep: waiting for go-ahead: %w", err)
		}
		if ok && (key == KeyEnter || key == '\n') {
			return nil
		}
		q.sleepFor(every)
	}
}

func (q *Sequencer) dwell() {
	left := q.Dwell
	for left > 0 {
		if q.OnDwell != nil {
			q.OnDwell(left)
		}
		d := min(left, time.Second)
		q.sleepFor(d)
		left -= d
	}
}

func (q *Sequencer) sleepFor(d time.Duration) {
	if q.sleep != nil {
		q.sleep(d)
		return
	}
	time.Sleep(d)
}
