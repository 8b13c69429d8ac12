// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package ramp walks the actuator setpoint toward a target in bounded steps.
package ramp

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

var (
	// ErrBadStep is returned for a step that is not a positive finite number.
	ErrBadStep = errors.New("ramp: step must be positive")
	// ErrBadTarget is returned for NaN or infinite targets.
	ErrBadTarget = errors.New("ramp: target must be finite")
	// ErrNoProgress is returned when a step is too small to change the
	// setpoint at its current magnitude.
	ErrNoProgress = errors.New("ramp: step below float resolution")
)

// Commander sends one command line to the rig.
type Commander interface {
	Send(cmd string) error
}

// State is the last setpoint successfully commanded. It outlives a single
// ramp and is shared by calibration and test runs of one session.
type State struct {
	Current float64
}

// Controller owns the only write path to a State.
type Controller struct {
	cmd   Commander
	state *State
	step  float64
	delay time.Duration

	// OnStep, when set, is called after each successful step.
	OnStep func(value float64)

	sleep func(time.Duration)
}

// New returns a controller stepping by step with delay between steps.
func New(cmd Commander, state *State, step float64, delay time.Duration) (*Controller, error) {
	if !(step > 0) || math.IsInf(step, 0) {
		return nil, fmt.Errorf("%w, got %g", ErrBadStep, step)
	}
	return &Controller{
		cmd:   cmd,
		state: state,
		step:  step,
		delay: delay,
		sleep: time.Sleep,
	}, nil
}

// Current returns the last commanded setpoint.
func (c *Controller) Current() float64 { return c.state.Current }

// RampTo drives the setpoint to target. Every intermediate value is sent as
// T<value>, and the state only advances after the send succeeded, so on error
// State.Current is the last value the rig actually received.
func (c *Controller) RampTo(target float64) (float64, error) {
	if math.IsNaN(target) || math.IsInf(target, 0) {
		return c.state.Current, ErrBadTarget
	}
	if c.state.Current == target {
		return target, nil
	}

	step := c.step
	if target < c.state.Current {
		step = -step
	}
	for c.state.Current != target {
		next := c.state.Current + step
		if (step > 0 && next > target) || (step < 0 && next < target) {
			next = target
		}
		if next == c.state.Current {
			return c.state.Current, fmt.Errorf("%w at %g", ErrNoProgress, next)
		}
		if err := c.cmd.Send(Command(next)); err != nil {
			return c.state.Current, fmt.Errorf("ramp: send setpoint %g: %w", next, err)
		}
		c.state.Current = next
		if c.OnStep != nil {
			c.OnStep(next)
		}
		if c.delay > 0 {
			c.sleep(c.delay)
		}
	}
	return c.state.Current, nil
}

// Command formats a velocity setpoint with the shortest decimal that
// round-trips.
func Command(v float64) string {
	return "T" + strconv.FormatFloat(v, 'f', -1, 64)
}
