// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relabs-tech/rotor_bench/internal/acquisition"
	"github.com/relabs-tech/rotor_bench/internal/config"
)

// monitorWindow is the length of one monitoring window.
const monitorWindow = 5 * time.Second

// monitor collects back to back windows into sink until stop is closed,
// printing a summary line after each one.
func monitor(c *acquisition.Collector, window time.Duration, sink acquisition.StatusSink, out io.Writer, stop <-chan struct{}) error {
	for n := 1; ; n++ {
		select {
		case <-stop:
			return nil
		default:
		}

		w, err := c.Collect(window, 0, sink)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\nwindow %d: %d samples, max backlog %d, dropped %d\n",
			n, len(w.Samples), w.MaxBacklog, w.Dropped)
	}
}

// RunMonitor prints the rig's telemetry without commanding it.
func RunMonitor(cfg *config.Config, simulate bool) error {
	l, err := openLink(cfg, simulate)
	if err != nil {
		return err
	}
	defer l.Close()

	stop := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("monitor: shutting down")
		close(stop)
	}()

	term := &statusLine{out: os.Stdout}
	term.countdown("Waiting for the rig to boot...", cfg.StartupWait(), time.Sleep)
	if err := l.ResetInputBuffer(); err != nil {
		return err
	}
	return monitor(acquisition.FromConfig(l, cfg), monitorWindow, term, os.Stdout, stop)
}
