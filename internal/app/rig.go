// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/relabs-tech/rotor_bench/internal/config"
	"github.com/relabs-tech/rotor_bench/internal/link"
	"github.com/relabs-tech/rotor_bench/internal/operator"
	"github.com/relabs-tech/rotor_bench/internal/rigsim"
)

// openLink opens the serial link, or a simulated rig when simulate is set.
func openLink(cfg *config.Config, simulate bool) (*link.Link, error) {
	if simulate {
		log.Println("rig: using the simulated rig")
		return link.New(rigsim.New(rigsim.Options{Seed: uint64(time.Now().UnixNano())})), nil
	}
	return link.Open(cfg)
}

// rigSession opens everything a session needs. The returned cleanup
// releases it in reverse order.
func rigSession(cfg *config.Config, plan *config.Plan, simulate bool) (*Session, func(), error) {
	l, err := openLink(cfg, simulate)
	if err != nil {
		return nil, nil, err
	}
	cleanups := []func(){func() { l.Close() }}
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	console, closeKeys, err := operator.OpenKeyboard()
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	cleanups = append(cleanups, closeKeys)

	if cfg.GoButtonPin != "" {
		stop, err := operator.WatchButton(console, cfg.GoButtonPin)
		if err != nil {
			log.Printf("rig: go button disabled: %v", err)
		} else {
			cleanups = append(cleanups, stop)
		}
	}

	var pub *Publisher
	if cfg.MQTTBroker != "" {
		p, disconnect, err := ConnectPublisher(cfg, plan.Calibration.ArmLengthMM)
		if err != nil {
			log.Printf("rig: publishing disabled: %v", err)
		} else {
			pub = p
			cleanups = append(cleanups, disconnect)
		}
	}

	s, err := NewSession(cfg, plan, l, console, pub, os.Stdout)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("rig: %w", err)
	}
	return s, cleanup, nil
}

// RunRig runs the interactive bench session.
func RunRig(cfg *config.Config, plan *config.Plan, simulate bool) error {
	s, cleanup, err := rigSession(cfg, plan, simulate)
	if err != nil {
		return err
	}
	defer cleanup()
	return s.Run()
}

// RunCalibration runs one calibration and exits.
func RunCalibration(cfg *config.Config, plan *config.Plan, simulate bool) error {
	s, cleanup, err := rigSession(cfg, plan, simulate)
	if err != nil {
		return err
	}
	defer cleanup()
	return s.RunCalibration()
}
