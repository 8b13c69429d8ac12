package app

import (
	"encoding/json"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/rotor_bench/internal/config"
	"github.com/relabs-tech/rotor_bench/internal/telemetry"
)

// displayData holds the latest data for the OLED.
type displayData struct {
	mu sync.RWMutex

	status     telemetry.Status
	haveStatus bool
	run        RunSummary
	haveRun    bool
}

func (d *displayData) handle(cfg *config.Config, topic string, payload []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch topic {
	case cfg.TopicStatus:
		var st telemetry.Status
		if err := json.Unmarshal(payload, &st); err != nil {
			return err
		}
		d.status, d.haveStatus = st, true
	case cfg.TopicRuns:
		var run RunSummary
		if err := json.Unmarshal(payload, &run); err != nil {
			return err
		}
		d.run, d.haveRun = run, true
	}
	return nil
}

// RunDisplay mirrors the live status on an SSD1306 panel.
func RunDisplay(cfg *config.Config) error {
	if cfg.MQTTBroker == "" {
		return fmt.Errorf("display: MQTT_BROKER is not configured")
	}

	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open(cfg.DisplayI2CBus)
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	log.Println("display: initialized")

	if err := dev.Draw(dev.Bounds(), renderSplash(), image.Point{}); err != nil {
		log.Printf("display: error showing splash: %v", err)
	}

	data := &displayData{}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDDisplay)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer client.Disconnect(250)
	log.Printf("display: connected to MQTT broker at %s", cfg.MQTTBroker)

	for _, topic := range []string{cfg.TopicStatus, cfg.TopicRuns} {
		token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
			if err := data.handle(cfg, msg.Topic(), msg.Payload()); err != nil {
				log.Printf("display: payload error on %s: %v", msg.Topic(), err)
			}
		})
		if token.Wait() && token.Error() != nil {
			return fmt.Errorf("subscribe %s: %w", topic, token.Error())
		}
	}

	ticker := time.NewTicker(time.Duration(cfg.DisplayUpdateInterval) * time.Millisecond)
	defer ticker.Stop()

	log.Println("display: starting update loop")

	for range ticker.C {
		data.mu.RLock()
		img := renderStatus(data.status, data.haveStatus, data.run, data.haveRun)
		data.mu.RUnlock()

		if err := dev.Draw(dev.Bounds(), img, image.Point{}); err != nil {
			log.Printf("display: error updating display: %v", err)
		}
	}
	return nil
}

func newCanvas() (*image1bit.VerticalLSB, *font.Drawer) {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	return img, drawer
}

func renderSplash() *image1bit.VerticalLSB {
	img, drawer := newCanvas()
	drawer.Dot = fixed.P(0, 26)
	drawer.DrawBytes([]byte("Rotor bench"))
	drawer.Dot = fixed.P(0, 39)
	drawer.DrawBytes([]byte("Starting..."))
	return img
}

// renderStatus lays out four 13px rows: setpoint, velocity, both load
// cell channels, and the last finished window.
func renderStatus(st telemetry.Status, have bool, run RunSummary, haveRun bool) *image1bit.VerticalLSB {
	img, drawer := newCanvas()

	if !have {
		drawer.Dot = fixed.P(0, 26)
		drawer.DrawBytes([]byte("Rotor bench"))
		drawer.Dot = fixed.P(0, 39)
		drawer.DrawBytes([]byte("Waiting..."))
		return img
	}

	drawer.Dot = fixed.P(0, 13)
	drawer.DrawBytes([]byte(fmt.Sprintf("SP %6.1f t%4.1f", st.Setpoint, st.Elapsed)))
	drawer.Dot = fixed.P(0, 26)
	drawer.DrawBytes([]byte(fmt.Sprintf("W  %6.1f n%5d", st.Latest.VelReal, st.Samples)))
	drawer.Dot = fixed.P(0, 39)
	drawer.DrawBytes([]byte(fmt.Sprintf("V %7.0f/%7.0f", st.Latest.V1, st.Latest.V2)))
	drawer.Dot = fixed.P(0, 52)
	if haveRun {
		drawer.DrawBytes([]byte(fmt.Sprintf("#%d.%d %5.1f n%d", run.Test, run.Index, run.MeanVelReal, run.Samples)))
	} else {
		drawer.DrawBytes([]byte(fmt.Sprintf("backlog %d", st.Backlog)))
	}
	return img
}
