// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package calibration walks the operator through hanging each reference mass
// on the load cell arm, measures the raw channel-1 reading for every mass and
// lets the operator throw away and redo the most recent measurement.
package calibration

import (
	"fmt"
	"log"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/relabs-tech/rotor_bench/internal/acquisition"
)

// Prompter asks the operator a question and returns the answer line.
type Prompter interface {
	Prompt(msg string) (string, error)
}

// Collector runs one collection window.
type Collector interface {
	Collect(d time.Duration, setpoint float64, sink acquisition.StatusSink) (acquisition.Window, error)
}

// InputResetter drops stale telemetry before a measurement.
type InputResetter interface {
	ResetInputBuffer() error
}

// PlotSink follows the calibration as it happens.
type PlotSink interface {
	PointMeasured(p Point)
	PointDiscarded(mass float64)
}

// Point is the measurement for one reference mass.
type Point struct {
	Index      int       `json:"index"`
	Mass       float64   `json:"mass_g"`
	RawSamples []float64 `json:"-"` // V1 readings
	Mean       float64   `json:"mean"`
	Samples    int       `json:"samples"`
	MaxBacklog int       `json:"max_backlog"`
}

// State names the step the sequencer is in.
type State int

const (
	AwaitPlacement State = iota
	Measuring
	Reviewing
	Done
)

func (s State) String() string {
	switch s {
	case AwaitPlacement:
		return "await-placement"
	case Measuring:
		return "measuring"
	case Reviewing:
		return "reviewing"
	case Done:
		return "done"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Sequencer runs one calibration over Masses.
type Sequencer struct {
	Prompt    Prompter
	Input     InputResetter
	Collector Collector
	Plot      PlotSink // optional
	Window    time.Duration
	Masses    []float64

	// OnState, when set, sees every transition.
	OnState func(s State, index int)
}

// Run executes the sequence and returns one point per mass, in mass order.
func (q *Sequencer) Run() ([]Point, error) {
	if len(q.Masses) == 0 {
		return nil, fmt.Errorf("calibration: no masses to measure")
	}
	for i, m := range q.Masses {
		for _, prev := range q.Masses[:i] {
			if m == prev {
				return nil, fmt.Errorf("calibration: mass %.2f g listed twice", m)
			}
		}
	}

	points := make([]Point, 0, len(q.Masses))
	state, i := AwaitPlacement, 0

	for state != Done {
		if q.OnState != nil {
			q.OnState(state, i)
		}

		switch state {
		case AwaitPlacement:
			msg := fmt.Sprintf("Place %.2f g (%d/%d) and press ENTER", q.Masses[i], i+1, len(q.Masses))
			if i > 0 {
				msg += fmt.Sprintf(" [d = discard %.2f g]", q.Masses[i-1])
			}
			ans, err := q.Prompt.Prompt(msg)
			if err != nil {
				return points, fmt.Errorf("calibration: prompt: %w", err)
			}
			if isDiscard(ans) && i > 0 {
				i--
				points = q.discardLast(points)
				continue
			}
			state = Measuring

		case Measuring:
			p, err := q.measure(i)
			if err != nil {
				return points, err
			}
			// Overwrite when re-measuring the same index.
			if i < len(points) {
				points = points[:i]
			}
			points = append(points, p)
			if q.Plot != nil {
				q.Plot.PointMeasured(p)
			}
			log.Printf("calibration: %.2f g -> mean %.1f (%d samples, max backlog %d)",
				p.Mass, p.Mean, p.Samples, p.MaxBacklog)

			if i == len(q.Masses)-1 {
				state = Reviewing
			} else {
				i++
				state = AwaitPlacement
			}

		case Reviewing:
			ans, err := q.Prompt.Prompt(fmt.Sprintf(
				"All %d masses measured. Press ENTER to finish [d = discard %.2f g and measure again]",
				len(q.Masses), q.Masses[i]))
			if err != nil {
				return points, fmt.Errorf("calibration: prompt: %w", err)
			}
			if isDiscard(ans) {
				points = q.discardLast(points)
				state = Measuring
				continue
			}
			state = Done
		}
	}

	if q.OnState != nil {
		q.OnState(Done, i)
	}
	return points, nil
}

func (q *Sequencer) measure(i int) (Point, error) {
	if err := q.Input.ResetInputBuffer(); err != nil {
		return Point{}, fmt.Errorf("calibration: reset input: %w", err)
	}
	w, err := q.Collector.Collect(q.Window, 0, nil)
	if err != nil {
		return Point{}, fmt.Errorf("calibration: collect %.2f g: %w", q.Masses[i], err)
	}

	raw := make([]float64, len(w.Samples))
	for k, s := range w.Samples {
		raw[k] = s.V1
	}
	return Point{
		Index:      i,
		Mass:       q.Masses[i],
		RawSamples: raw,
		Mean:       Mean(raw),
		Samples:    len(raw),
		MaxBacklog: w.MaxBacklog,
	}, nil
}

func (q *Sequencer) discardLast(points []Point) []Point {
	if len(points) == 0 {
		return points
	}
	last := points[len(points)-1]
	if q.Plot != nil {
		q.Plot.PointDiscarded(last.Mass)
	}
	log.Printf("calibration: discarded %.2f g", last.Mass)
	return points[:len(points)-1]
}

// Mean is the average reading, 0 for an empty window.
func Mean(raw []float64) float64 {
	if len(raw) == 0 {
		return 0
	}
	return stat.Mean(raw, nil)
}

func isDiscard(ans string) bool {
	return strings.EqualFold(strings.TrimSpace(ans), "d")
}
