// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/rotor_bench/internal/calibration"
	"github.com/relabs-tech/rotor_bench/internal/config"
	"github.com/relabs-tech/rotor_bench/internal/export"
	"github.com/relabs-tech/rotor_bench/internal/telemetry"
)

// mqttPublisher is the slice of mqtt.Client the publisher needs.
type mqttPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Publisher fans session events out over MQTT. A nil *Publisher is valid and
// drops everything, so a session without a broker needs no special casing.
type Publisher struct {
	client mqttPublisher
	cfg    *config.Config
	armMM  float64
}

// ConnectPublisher connects to cfg.MQTTBroker as the rig client.
func ConnectPublisher(cfg *config.Config, armMM float64) (*Publisher, func(), error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDRig).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, nil, fmt.Errorf("MQTT connect %s: %w", cfg.MQTTBroker, token.Error())
	}
	log.Printf("rig: connected to MQTT broker at %s", cfg.MQTTBroker)

	return newPublisher(client, cfg, armMM), func() { client.Disconnect(250) }, nil
}

func newPublisher(client mqttPublisher, cfg *config.Config, armMM float64) *Publisher {
	return &Publisher{client: client, cfg: cfg, armMM: armMM}
}

// PublishStatus sends a live status without waiting for the broker; it is
// called from inside a collection window.
func (p *Publisher) PublishStatus(s telemetry.Status) {
	if p == nil {
		return
	}
	payload, err := json.Marshal(s)
	if err != nil {
		log.Printf("json marshal error (status): %v", err)
		return
	}
	token := p.client.Publish(p.cfg.TopicStatus, 0, true, payload)
	go func() {
		if token.Wait() && token.Error() != nil {
			log.Printf("MQTT publish error (status): %v", token.Error())
		}
	}()
}

// PointMeasured implements calibration.PlotSink.
func (p *Publisher) PointMeasured(pt calibration.Point) {
	if p == nil {
		return
	}
	p.publish(p.cfg.TopicCalibration, CalibrationEvent{
		Type:  CalibrationMeasured,
		Mass:  pt.Mass,
		Point: &pt,
	})
}

// PointDiscarded implements calibration.PlotSink.
func (p *Publisher) PointDiscarded(mass float64) {
	if p == nil {
		return
	}
	p.publish(p.cfg.TopicCalibration, CalibrationEvent{
		Type: CalibrationDiscarded,
		Mass: mass,
	})
}

// PublishCalibration announces a finished calibration and its export file.
func (p *Publisher) PublishCalibration(points []calibration.Point, file string) {
	if p == nil {
		return
	}
	torque := make([]float64, len(points))
	for i, pt := range points {
		torque[i] = export.Torque(pt.Mass, p.armMM)
	}
	p.publish(p.cfg.TopicCalibration, CalibrationEvent{
		Type:   CalibrationComplete,
		Points: points,
		Torque: torque,
		File:   file,
	})
}

// PublishRun sends the summary of one setpoint window.
func (p *Publisher) PublishRun(s RunSummary) {
	if p == nil {
		return
	}
	p.publish(p.cfg.TopicRuns, s)
}

func (p *Publisher) publish(topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("json marshal error (%s): %v", topic, err)
		return
	}
	if token := p.client.Publish(topic, 0, true, payload); token.Wait() && token.Error() != nil {
		log.Printf("MQTT publish error (%s): %v", topic, token.Error())
	}
}
