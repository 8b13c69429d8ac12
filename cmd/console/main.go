// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/rotor_bench/internal/app"
	"github.com/relabs-tech/rotor_bench/internal/config"
)

func main() {
	configPath := flag.String("config", "rig_config.txt", "Path to configuration file")
	simulate := flag.Bool("simulate", false, "Read from a simulated rig")
	flag.Parse()

	log.Println("starting rotor bench telemetry monitor")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunMonitor(cfg, *simulate); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
