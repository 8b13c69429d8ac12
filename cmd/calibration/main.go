// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// ./cmd/calibration/main.go
//
// Load cell calibration only: boots the rig, walks through the masses of the
// plan and writes calibration_samples_<date>_<time>.txt.
package main

import (
	"errors"
	"flag"
	"log"

	"github.com/relabs-tech/rotor_bench/internal/app"
	"github.com/relabs-tech/rotor_bench/internal/config"
	"github.com/relabs-tech/rotor_bench/internal/operator"
)

func main() {
	configPath := flag.String("config", "rig_config.txt", "Path to configuration file")
	planPath := flag.String("plan", "", "Path to a YAML test plan (masses and setpoints)")
	simulate := flag.Bool("simulate", false, "Drive a simulated rig instead of the serial port")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	plan := config.DefaultPlan()
	if *planPath != "" {
		if plan, err = config.LoadPlan(*planPath); err != nil {
			log.Fatalf("failed to load plan: %v", err)
		}
	}

	if err := app.RunCalibration(cfg, plan, *simulate); err != nil {
		if errors.Is(err, operator.ErrInterrupted) {
			log.Println("calibration interrupted, nothing written")
			return
		}
		log.Fatalf("fatal: %v", err)
	}
}
