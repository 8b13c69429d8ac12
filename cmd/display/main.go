package main

import (
	"log"

	"github.com/relabs-tech/rotor_bench/internal/app"
	"github.com/relabs-tech/rotor_bench/internal/config"
)

func main() {
	log.Println("starting rotor bench display (MQTT subscriber)")

	cfg, err := config.Load("rig_config.txt")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunDisplay(cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
