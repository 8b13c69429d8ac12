// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package export writes finished calibrations and test runs to tab separated
// text files.
package export

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/relabs-tech/rotor_bench/internal/calibration"
	"github.com/relabs-tech/rotor_bench/internal/sweep"
)

// Gravity in m/s² times 1e-3, turning grams times millimetres into N·mm.
const gramMMToNmm = 9.81e-3

var (
	calibrationHeader = []string{"Massa[g]", "Torque[N.mm]", "Leitura[int]"}
	acquisitionHeader = []string{"Setpoint", "TimeStamp", "VelSet", "VelReal", "Pos", "Ax", "Ay", "Az", "V1", "V2"}
)

// Torque is the moment of mass grams hanging at armMM millimetres, in N·mm.
func Torque(mass, armMM float64) float64 {
	return mass * armMM * gramMMToNmm
}

// CalibrationFileName names the calibration export written at t.
func CalibrationFileName(t time.Time) string {
	return "calibration_samples_" + t.Format("20060102_150405") + ".txt"
}

// AcquisitionFileName names the acquisition export written at t.
func AcquisitionFileName(t time.Time) string {
	return "acquisition_" + t.Format("20060102_150405") + ".txt"
}

type tsvFile struct {
	file *os.File
	buf  *bufio.Writer
	tsv  *csv.Writer
}

func create(path string, header []string) (*tsvFile, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("export: create %s: %w", path, err)
	}
	bw := bufio.NewWriterSize(f, 64*1024)
	cw := csv.NewWriter(bw)
	cw.Comma = '\t'
	if err := cw.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("export: write header: %w", err)
	}
	return &tsvFile{file: f, buf: bw, tsv: cw}, nil
}

func (t *tsvFile) close() error {
	t.tsv.Flush()
	if err := t.tsv.Error(); err != nil {
		t.file.Close()
		return fmt.Errorf("export: write: %w", err)
	}
	if err := t.buf.Flush(); err != nil {
		t.file.Close()
		return fmt.Errorf("export: flush: %w", err)
	}
	return t.file.Close()
}

func num(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// WriteCalibration writes one row per raw reading of every point and returns
// the file path.
func WriteCalibration(dir string, at time.Time, armMM float64, points []calibration.Point) (string, error) {
	path := filepath.Join(dir, CalibrationFileName(at))
	out, err := create(path, calibrationHeader)
	if err != nil {
		return "", err
	}
	for _, p := range points {
		torque := fmt.Sprintf("%5f", Torque(p.Mass, armMM))
		for _, v := range p.RawSamples {
			_ = out.tsv.Write([]string{num(p.Mass), torque, num(v)}) // checked on close
		}
	}
	if err := out.close(); err != nil {
		return "", err
	}
	return path, nil
}

// WriteAcquisition writes one row per sample, runs in order, and returns the
// file path.
func WriteAcquisition(dir string, at time.Time, runs []sweep.SetpointRun) (string, error) {
	path := filepath.Join(dir, AcquisitionFileName(at))
	out, err := create(path, acquisitionHeader)
	if err != nil {
		return "", err
	}
	row := make([]string, len(acquisitionHeader))
	for _, r := range runs {
		for _, s := range r.Samples {
			row[0] = num(r.Setpoint)
			row[1] = strconv.FormatFloat(s.Timestamp, 'f', 6, 64)
			row[2] = num(s.VelSet)
			row[3] = num(s.VelReal)
			row[4] = num(s.Pos)
			row[5] = num(s.Ax)
			row[6] = num(s.Ay)
			row[7] = num(s.Az)
			row[8] = num(s.V1)
			row[9] = num(s.V2)
			_ = out.tsv.Write(row)
		}
	}
	if err := out.close(); err != nil {
		return "", err
	}
	return path, nil
}
