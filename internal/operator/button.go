// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package operator

import (
	"fmt"
	"log"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

const buttonDebounce = 200 * time.Millisecond

// WatchButton turns presses of a push button wired between pinName and ground
// into Enter keys on c. Call the returned function to stop watching.
func WatchButton(c *Console, pinName string) (func(), error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("operator: periph host init: %w", err)
	}
	pin := gpioreg.ByName(pinName)
	if pin == nil {
		return nil, fmt.Errorf("operator: button pin %q not found", pinName)
	}
	if err := pin.In(gpio.PullUp, gpio.FallingEdge); err != nil {
		return nil, fmt.Errorf("operator: button pin %s: %w", pinName, err)
	}

	done := make(chan struct{})
	go watchEdges(pin, done, func() { c.Inject(KeyEnter) })
	log.Printf("operator: go-ahead button on %s", pinName)

	return func() { close(done) }, nil
}

type edgeWaiter interface {
	WaitForEdge(timeout time.Duration) bool
}

func watchEdges(pin edgeWaiter, done <-chan struct{}, press func()) {
	var last time.Time
	for {
		select {
		case <-done:
			return
		default:
		}
		if !pin.WaitForEdge(100 * time.Millisecond) {
			continue
		}
		if now := time.Now(); now.Sub(last) >= buttonDebounce {
			last = now
			press()
		}
	}
}
