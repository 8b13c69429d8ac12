// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/relabs-tech/rotor_bench/internal/acquisition"
	"github.com/relabs-tech/rotor_bench/internal/calibration"
	"github.com/relabs-tech/rotor_bench/internal/config"
	"github.com/relabs-tech/rotor_bench/internal/export"
	"github.com/relabs-tech/rotor_bench/internal/link"
	"github.com/relabs-tech/rotor_bench/internal/ramp"
	"github.com/relabs-tech/rotor_bench/internal/sweep"
)

// Operator is what the session asks of the person at the bench.
// *operator.Console implements it.
type Operator interface {
	PollKey() (rune, bool, error)
	Prompt(msg string) (string, error)
	PromptFloat(msg string) (float64, error)
	Confirm(msg string) (bool, error)
	Drain()
}

// Session is one connection to the rig, from boot wait to quit. The ramp
// state lives as long as the session so a test started after a calibration
// ramps from wherever the rotor actually is.
type Session struct {
	cfg  *config.Config
	plan *config.Plan
	link *link.Link
	op   Operator
	pub  *Publisher
	out  io.Writer

	state     ramp.State
	ramp      *ramp.Controller
	collector *acquisition.Collector
	term      *statusLine
	tests     int

	sleep func(time.Duration)
	now   func() time.Time
}

// NewSession wires the core around an open link. pub may be nil.
func NewSession(cfg *config.Config, plan *config.Plan, l *link.Link, op Operator, pub *Publisher, out io.Writer) (*Session, error) {
	s := &Session{
		cfg:       cfg,
		plan:      plan,
		link:      l,
		op:        op,
		pub:       pub,
		out:       out,
		collector: acquisition.FromConfig(l, cfg),
		term:      &statusLine{out: out},
		sleep:     time.Sleep,
		now:       time.Now,
	}
	rc, err := ramp.New(l, &s.state, cfg.RampStep, cfg.RampDelay())
	if err != nil {
		return nil, err
	}
	rc.OnStep = func(v float64) {
		fmt.Fprintf(out, "\rRamping [rad/s]: %g   ", v)
	}
	s.ramp = rc
	return s, nil
}

// Boot waits out the rig's reset after the port was opened.
func (s *Session) Boot() {
	s.term.countdown("Waiting for the rig to boot...", s.cfg.StartupWait(), s.sleep)
	fmt.Fprintf(s.out, "Connected to %s @ %d\n", s.cfg.SerialPort, s.cfg.SerialBaudRate)
}

// Run boots and serves the menu until the operator quits.
func (s *Session) Run() error {
	s.Boot()

	for {
		fmt.Fprint(s.out, "\n=== MENU ===\n1 - Calibration\n2 - Test\n3 - Quit\n")
		choice, err := s.op.Prompt("Choice")
		if err != nil {
			return s.abort(err)
		}

		switch strings.TrimSpace(choice) {
		case "1":
			if err := s.Calibrate(); err != nil {
				return s.abort(err)
			}
		case "2":
			if err := s.TestLoop(); err != nil {
				return s.abort(err)
			}
		case "3":
			fmt.Fprintln(s.out, "Bye.")
			return nil
		default:
			fmt.Fprintf(s.out, "Unknown option %q\n", choice)
		}
	}
}

// RunCalibration boots and performs a single calibration.
func (s *Session) RunCalibration() error {
	s.Boot()
	if err := s.Calibrate(); err != nil {
		return s.abort(err)
	}
	return nil
}

// Zero re-zeroes the load cell amplifier.
func (s *Session) Zero() error {
	if err := s.link.Send("M3"); err != nil {
		return err
	}
	s.sleep(s.cfg.ModeSettle())
	if err := s.link.Send("M0"); err != nil {
		return err
	}
	s.sleep(s.cfg.ModeSettle())
	return nil
}

// Calibrate measures every mass of the plan, exports and publishes the result.
func (s *Session) Calibrate() error {
	fmt.Fprintln(s.out, "Starting calibration...")
	if err := s.Zero(); err != nil {
		return fmt.Errorf("calibration: zero: %w", err)
	}
	s.op.Drain()
	if _, err := s.op.Prompt("Load cell zeroed. Press ENTER to start"); err != nil {
		return err
	}

	seq := &calibration.Sequencer{
		Prompt:    s.op,
		Input:     s.link,
		Collector: s.collector,
		Plot:      &calibrationPlot{out: s.out, pub: s.pub},
		Window:    s.cfg.CalibrationWindow(),
		Masses:    s.plan.Calibration.MassesG,
	}
	points, err := seq.Run()
	if err != nil {
		return err
	}

	path, err := export.WriteCalibration(s.cfg.OutputDir, s.now(), s.plan.Calibration.ArmLengthMM, points)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Calibration saved to %s\n", path)
	s.pub.PublishCalibration(points, path)
	return nil
}

// TestLoop runs tests until the operator is done, then brings the rotor to
// rest. The tunnel must be confirmed off before the rotor is stopped.
func (s *Session) TestLoop() error {
	for {
		fmt.Fprintln(s.out, "Starting test...")
		if err := s.Zero(); err != nil {
			return fmt.Errorf("test: zero: %w", err)
		}
		initial, err := s.op.PromptFloat("Initial setpoint (rad/s)")
		if err != nil {
			return err
		}

		if err := s.runTest(initial); err != nil {
			return err
		}

		fmt.Fprintln(s.out, "Returning to the initial setpoint...")
		if _, err := s.ramp.RampTo(initial); err != nil {
			return err
		}
		fmt.Fprintln(s.out)

		again, err := s.op.Confirm("Run another test?")
		if err != nil {
			return err
		}
		if !again {
			break
		}
	}

	for {
		off, err := s.op.Confirm("Switch the wind tunnel off. Is it off?")
		if err != nil {
			return err
		}
		if off {
			break
		}
	}
	return s.stop()
}

func (s *Session) runTest(initial float64) error {
	s.tests++
	test := s.tests
	index := 0

	seq := &sweep.Sequencer{
		Ramp:         s.ramp,
		Keys:         s.op,
		Input:        s.link,
		Collector:    s.collector,
		Status:       acquisition.MultiSink{s.term, s.pub},
		Window:       s.cfg.AcquisitionWindow(),
		Dwell:        s.cfg.Dwell(),
		KeyPollEvery: s.cfg.KeyPollInterval(),
		OnWaiting: func() {
			s.op.Drain()
			fmt.Fprintf(s.out, "\nInitial setpoint reached: %g rad/s. Press ENTER to start the test.\n", initial)
		},
		OnDwell: func(left time.Duration) {
			fmt.Fprintf(s.out, "\rSettling: %4.1fs  ", left.Seconds())
		},
		OnRun: func(run sweep.SetpointRun) {
			sum := Summarize(test, index, run)
			index++
			fmt.Fprintf(s.out, "\n--- setpoint %g rad/s: %d samples, mean vel %.2f, max backlog %d ---\n",
				sum.Setpoint, sum.Samples, sum.MeanVelReal, sum.MaxBacklog)
			s.pub.PublishRun(sum)
		},
	}

	res, err := seq.Run(initial, s.plan.Acquisition.SetpointsRadS)
	if len(res.Runs) > 0 {
		path, werr := export.WriteAcquisition(s.cfg.OutputDir, s.now(), res.Runs)
		if werr != nil {
			return errors.Join(err, werr)
		}
		fmt.Fprintf(s.out, "Data saved to %s\n", path)
	}
	return err
}

// stop ramps the rotor to rest and sends an explicit zero setpoint.
func (s *Session) stop() error {
	fmt.Fprintln(s.out, "Stopping: ramping to 0...")
	if _, err := s.ramp.RampTo(0); err != nil {
		return err
	}
	fmt.Fprintln(s.out)
	return s.link.Send(ramp.Command(0))
}

// abort brings the rotor down after a failure when the link still works.
func (s *Session) abort(err error) error {
	if s.state.Current != 0 {
		log.Printf("rig: aborting at %g rad/s: %v", s.state.Current, err)
		if serr := s.stop(); serr != nil {
			log.Printf("rig: could not stop the rotor: %v", serr)
		}
	}
	return err
}

// calibrationPlot prints each measured point and forwards it to MQTT.
type calibrationPlot struct {
	out io.Writer
	pub *Publisher
}

func (c *calibrationPlot) PointMeasured(p calibration.Point) {
	fmt.Fprintf(c.out, "Mass %g g -> mean reading %.4f (%d samples)\n", p.Mass, p.Mean, p.Samples)
	c.pub.PointMeasured(p)
}

func (c *calibrationPlot) PointDiscarded(mass float64) {
	fmt.Fprintf(c.out, "Discarded %g g\n", mass)
	c.pub.PointDiscarded(mass)
}
