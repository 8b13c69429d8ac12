// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package telemetry

import (
	"strconv"
	"strings"
	"time"
)

// MinFields is the number of tab separated values a telemetry line must carry.
// Extra fields are ignored.
const MinFields = 8

// Sample is one decoded telemetry line stamped with the local receive time.
type Sample struct {
	Timestamp float64 `json:"ts"` // unix seconds, local receive clock

	VelSet  float64 `json:"vel_set"`  // commanded angular velocity (rad/s)
	VelReal float64 `json:"vel_real"` // measured angular velocity (rad/s)
	Pos     float64 `json:"pos"`

	Ax float64 `json:"ax"` // accel
	Ay float64 `json:"ay"`
	Az float64 `json:"az"`

	V1 float64 `json:"v1"` // load cell channel 1 (raw counts)
	V2 float64 `json:"v2"` // load cell channel 2 (raw counts)
}

// Status is the live view of a collection window, built from its newest sample.
type Status struct {
	Setpoint float64 `json:"setpoint"`
	Latest   Sample  `json:"latest"`
	Samples  int     `json:"samples"` // samples collected so far in the window
	Backlog  int     `json:"backlog"` // unread bytes seen at the last poll
	Elapsed  float64 `json:"elapsed"` // seconds since the window opened
}

// DecodeFields splits a line on tabs and parses every field as a float.
// It reports false for an empty line or when any field fails to parse.
func DecodeFields(line string) ([]float64, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, false
	}
	parts := strings.Split(line, "\t")
	vals := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, false
		}
		vals[i] = v
	}
	return vals, true
}

// ParseSample decodes a telemetry line received at ts.
// Lines with fewer than MinFields values never produce a Sample.
func ParseSample(line string, ts time.Time) (Sample, bool) {
	f, ok := DecodeFields(line)
	if !ok || len(f) < MinFields {
		return Sample{}, false
	}
	return Sample{
		Timestamp: UnixSeconds(ts),
		VelSet:    f[0],
		VelReal:   f[1],
		Pos:       f[2],
		Ax:        f[3],
		Ay:        f[4],
		Az:        f[5],
		V1:        f[6],
		V2:        f[7],
	}, true
}

// UnixSeconds converts t to fractional unix seconds.
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
