// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"log"

	"github.com/relabs-tech/rotor_bench/internal/app"
	"github.com/relabs-tech/rotor_bench/internal/config"
)

func main() {
	log.Println("starting rotor bench web server (MQTT subscriber)")

	// Load configuration
	cfg, err := config.Load("rig_config.txt")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	log.Println("Note: live data requires the rig session to run with MQTT_BROKER set")

	if err := app.RunWeb(cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
