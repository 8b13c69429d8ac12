package app

import (
	"gonum.org/v1/gonum/stat"

	"github.com/relabs-tech/rotor_bench/internal/calibration"
	"github.com/relabs-tech/rotor_bench/internal/sweep"
)

// Calibration event types published on the calibration topic.
const (
	CalibrationMeasured  = "measured"
	CalibrationDiscarded = "discarded"
	CalibrationComplete  = "complete"
)

// CalibrationEvent is the JSON payload of the calibration topic.
type CalibrationEvent struct {
	Type   string              `json:"type"`
	Mass   float64             `json:"mass_g"`
	Point  *calibration.Point  `json:"point,omitempty"`
	Points []calibration.Point `json:"points,omitempty"`
	Torque []float64           `json:"torque_nmm,omitempty"` // per point, complete only
	File   string              `json:"file,omitempty"`
}

// RunSummary is the JSON payload of the runs topic, one per setpoint window.
type RunSummary struct {
	Test       int     `json:"test"`  // test number within the session
	Index      int     `json:"index"` // position of the setpoint in the test
	Setpoint   float64 `json:"setpoint"`
	Samples    int     `json:"samples"`
	MaxBacklog int     `json:"max_backlog"`
	Dropped    int     `json:"dropped"`

	MeanVelReal float64 `json:"mean_vel_real"`
	StdVelReal  float64 `json:"std_vel_real"`
	MeanV1      float64 `json:"mean_v1"`
	MeanV2      float64 `json:"mean_v2"`
}

// Summarize reduces a setpoint window to its summary.
func Summarize(test, index int, run sweep.SetpointRun) RunSummary {
	s := RunSummary{
		Test:       test,
		Index:      index,
		Setpoint:   run.Setpoint,
		Samples:    len(run.Samples),
		MaxBacklog: run.MaxBacklog,
		Dropped:    run.Dropped,
	}
	if len(run.Samples) == 0 {
		return s
	}

	vel := make([]float64, len(run.Samples))
	v1 := make([]float64, len(run.Samples))
	v2 := make([]float64, len(run.Samples))
	for i, smp := range run.Samples {
		vel[i] = smp.VelReal
		v1[i] = smp.V1
		v2[i] = smp.V2
	}
	if len(vel) > 1 {
		s.MeanVelReal, s.StdVelReal = stat.MeanStdDev(vel, nil)
	} else {
		s.MeanVelReal = vel[0]
	}
	s.MeanV1 = stat.Mean(v1, nil)
	s.MeanV2 = stat.Mean(v2, nil)
	return s
}
