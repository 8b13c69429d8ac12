package config

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// CalibrationPlan lists the reference masses hung on the lever arm.
type CalibrationPlan struct {
	ArmLengthMM float64   `yaml:"arm_length_mm"`
	MassesG     []float64 `yaml:"masses_g"`
}

// AcquisitionPlan lists the angular velocity setpoints of one test run, in
// the order they are visited.
type AcquisitionPlan struct {
	SetpointsRadS []float64 `yaml:"setpoints_rad_s"`
}

// Plan is the top-level structure of plan.yaml.
type Plan struct {
	Calibration CalibrationPlan `yaml:"calibration"`
	Acquisition AcquisitionPlan `yaml:"acquisition"`
}

// DefaultPlan returns the bench's standard masses and setpoints.
func DefaultPlan() *Plan {
	return &Plan{
		Calibration: CalibrationPlan{
			ArmLengthMM: 41,
			MassesG:     []float64{4.66, 10.75, 16.59, 23.96, 28.62, 33.63, 38.00},
		},
		Acquisition: AcquisitionPlan{
			SetpointsRadS: []float64{
				73.30, 83.78, 94.25, 99.48, 104.72, 109.96, 115.19, 120.43, 125.66, 130.90,
				136.14, 141.37, 146.61, 151.84, 157.08, 167.55, 178.02, 188.50, 198.97, 209.44,
			},
		},
	}
}

// LoadPlan reads plan.yaml. Sections missing from the file keep their
// defaults; a list present in the file replaces the default list.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	plan := DefaultPlan()
	if err := yaml.Unmarshal(data, plan); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return plan, nil
}

// Validate rejects plans the sequencers cannot run.
func (p *Plan) Validate() error {
	if p.Calibration.ArmLengthMM <= 0 {
		return fmt.Errorf("plan: arm_length_mm must be positive, got %g", p.Calibration.ArmLengthMM)
	}
	if len(p.Calibration.MassesG) == 0 {
		return fmt.Errorf("plan: masses_g is empty")
	}
	seen := make(map[float64]int, len(p.Calibration.MassesG))
	for i, m := range p.Calibration.MassesG {
		if m <= 0 || math.IsNaN(m) || math.IsInf(m, 0) {
			return fmt.Errorf("plan: masses_g[%d] must be a positive number, got %g", i, m)
		}
		if j, dup := seen[m]; dup {
			return fmt.Errorf("plan: masses_g[%d] repeats masses_g[%d] (%g g)", i, j, m)
		}
		seen[m] = i
	}
	if len(p.Acquisition.SetpointsRadS) == 0 {
		return fmt.Errorf("plan: setpoints_rad_s is empty")
	}
	for i, sp := range p.Acquisition.SetpointsRadS {
		if math.IsNaN(sp) || math.IsInf(sp, 0) {
			return fmt.Errorf("plan: setpoints_rad_s[%d] is not finite", i)
		}
	}
	return nil
}
