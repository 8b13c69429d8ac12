package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/rotor_bench/internal/config"
	"github.com/relabs-tech/rotor_bench/internal/telemetry"
)

// formatMessage renders one rig message as a console line.
func formatMessage(cfg *config.Config, topic string, payload []byte) (string, error) {
	switch topic {
	case cfg.TopicStatus:
		var s telemetry.Status
		if err := json.Unmarshal(payload, &s); err != nil {
			return "", fmt.Errorf("status unmarshal error: %w", err)
		}
		return fmt.Sprintf(
			"[STAT] SP=%7.2f  t=%4.1fs  n=%5d  vel=%7.2f  V1=%8.0f  V2=%8.0f  backlog=%d",
			s.Setpoint, s.Elapsed, s.Samples, s.Latest.VelReal, s.Latest.V1, s.Latest.V2, s.Backlog,
		), nil

	case cfg.TopicCalibration:
		var ev CalibrationEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return "", fmt.Errorf("calibration unmarshal error: %w", err)
		}
		switch ev.Type {
		case CalibrationMeasured:
			if ev.Point == nil {
				return fmt.Sprintf("[CAL ] measured %.2f g", ev.Mass), nil
			}
			return fmt.Sprintf("[CAL ] measured %.2f g  mean=%.1f  n=%d",
				ev.Mass, ev.Point.Mean, ev.Point.Samples), nil
		case CalibrationDiscarded:
			return fmt.Sprintf("[CAL ] discarded %.2f g", ev.Mass), nil
		default:
			var b strings.Builder
			fmt.Fprintf(&b, "[CAL ] complete, %d points -> %s", len(ev.Points), ev.File)
			for i, p := range ev.Points {
				torque := 0.0
				if i < len(ev.Torque) {
					torque = ev.Torque[i]
				}
				fmt.Fprintf(&b, "\n       %7.2f g  %8.4f N.mm  mean=%.1f", p.Mass, torque, p.Mean)
			}
			return b.String(), nil
		}

	case cfg.TopicRuns:
		var r RunSummary
		if err := json.Unmarshal(payload, &r); err != nil {
			return "", fmt.Errorf("run unmarshal error: %w", err)
		}
		return fmt.Sprintf(
			"[RUN ] test=%d #%d  SP=%7.2f  n=%5d  vel=%7.2f±%.2f  V1=%8.0f  V2=%8.0f  backlog=%d dropped=%d",
			r.Test, r.Index, r.Setpoint, r.Samples, r.MeanVelReal, r.StdVelReal, r.MeanV1, r.MeanV2, r.MaxBacklog, r.Dropped,
		), nil
	}
	return "", fmt.Errorf("unexpected topic %q", topic)
}

// RunConsoleMQTT prints every rig message until interrupted.
func RunConsoleMQTT(cfg *config.Config) error {
	if cfg.MQTTBroker == "" {
		return fmt.Errorf("console: MQTT_BROKER is not configured")
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDConsole)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("console: connected to MQTT broker at %s", cfg.MQTTBroker)

	for _, topic := range []string{cfg.TopicStatus, cfg.TopicCalibration, cfg.TopicRuns} {
		token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
			line, err := formatMessage(cfg, msg.Topic(), msg.Payload())
			if err != nil {
				log.Printf("console: %v", err)
				return
			}
			fmt.Println(line)
		})
		token.Wait()
		if token.Error() != nil {
			return token.Error()
		}
		log.Printf("console: subscribed to %s", topic)
	}

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}
