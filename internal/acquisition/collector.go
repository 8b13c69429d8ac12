// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package acquisition drains telemetry from the link for a fixed window of
// time without ever blocking past the window or starving on a busy link.
package acquisition

import (
	"fmt"
	"time"

	"github.com/relabs-tech/rotor_bench/internal/config"
	"github.com/relabs-tech/rotor_bench/internal/telemetry"
)

// LineSource is the part of the link a collector needs.
type LineSource interface {
	Pending() (int, error)
	TryReadLine(timeout time.Duration) (string, bool, error)
}

// StatusSink receives throttled live status while a window is open.
type StatusSink interface {
	PublishStatus(s telemetry.Status)
}

// StatusFunc adapts a function to StatusSink.
type StatusFunc func(telemetry.Status)

func (f StatusFunc) PublishStatus(s telemetry.Status) { f(s) }

// MultiSink fans one status out to several sinks. Nil entries are skipped.
type MultiSink []StatusSink

func (m MultiSink) PublishStatus(s telemetry.Status) {
	for _, sink := range m {
		if sink != nil {
			sink.PublishStatus(s)
		}
	}
}

// Window is the result of one collection.
type Window struct {
	Samples    []telemetry.Sample
	MaxBacklog int
	Dropped    int // malformed or short lines
}

// Collector runs time-boxed collection windows.
type Collector struct {
	src            LineSource
	readTimeout    time.Duration
	pollInterval   time.Duration
	statusInterval time.Duration
	now            func() time.Time
}

// Option tunes a Collector.
type Option func(*Collector)

// WithReadTimeout bounds each line read (default 10ms).
func WithReadTimeout(d time.Duration) Option {
	return func(c *Collector) { c.readTimeout = d }
}

// WithPollInterval sets the idle sleep when nothing is pending (default 1ms).
func WithPollInterval(d time.Duration) Option {
	return func(c *Collector) { c.pollInterval = d }
}

// WithStatusInterval sets the minimum time between status emissions. Values
// below config.MinStatusIntervalMS are raised to it.
func WithStatusInterval(d time.Duration) Option {
	return func(c *Collector) { c.statusInterval = d }
}

// NewCollector returns a collector reading from src.
func NewCollector(src LineSource, opts ...Option) *Collector {
	c := &Collector{
		src:            src,
		readTimeout:    10 * time.Millisecond,
		pollInterval:   time.Millisecond,
		statusInterval: 800 * time.Millisecond,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if floor := config.MinStatusIntervalMS * time.Millisecond; c.statusInterval < floor {
		c.statusInterval = floor
	}
	return c
}

// FromConfig builds a collector with the timing taken from cfg.
func FromConfig(src LineSource, cfg *config.Config) *Collector {
	return NewCollector(src,
		WithReadTimeout(cfg.ReadTimeout()),
		WithPollInterval(cfg.PollInterval()),
		WithStatusInterval(cfg.StatusInterval()),
	)
}

// Collect gathers samples for d. It returns no earlier than d after the call
// and issues no reads once d has elapsed. sink may be nil. setpoint only tags
// the emitted status.
//
// Collect does not flush stale input; callers reset the link first when the
// window must only contain fresh data.
func (c *Collector) Collect(d time.Duration, setpoint float64, sink StatusSink) (Window, error) {
	var w Window
	start := c.now()
	deadline := start.Add(d)
	lastEmit := start

	for c.now().Before(deadline) {
		backlog, err := c.src.Pending()
		if err != nil {
			return w, fmt.Errorf("acquisition: backlog: %w", err)
		}
		if backlog > w.MaxBacklog {
			w.MaxBacklog = backlog
		}

		if backlog == 0 {
			c.idle(deadline)
			continue
		}

		for backlog > 0 && c.now().Before(deadline) {
			line, ok, err := c.src.TryReadLine(min(c.readTimeout, deadline.Sub(c.now())))
			if err != nil {
				return w, fmt.Errorf("acquisition: read: %w", err)
			}
			if !ok {
				break
			}
			now := c.now()
			sample, ok := telemetry.ParseSample(line, now)
			if !ok {
				w.Dropped++
			} else {
				w.Samples = append(w.Samples, sample)
				if sink != nil && now.Sub(lastEmit) >= c.statusInterval {
					sink.PublishStatus(telemetry.Status{
						Setpoint: setpoint,
						Latest:   sample,
						Samples:  len(w.Samples),
						Backlog:  backlog,
						Elapsed:  now.Sub(start).Seconds(),
					})
					lastEmit = now
				}
			}

			if backlog, err = c.src.Pending(); err != nil {
				return w, fmt.Errorf("acquisition: backlog: %w", err)
			}
			if backlog > w.MaxBacklog {
				w.MaxBacklog = backlog
			}
		}
	}
	return w, nil
}

func (c *Collector) idle(deadline time.Time) {
	if c.pollInterval <= 0 {
		return
	}
	if left := deadline.Sub(c.now()); left < c.pollInterval {
		if left > 0 {
			time.Sleep(left)
		}
		return
	}
	time.Sleep(c.pollInterval)
}
