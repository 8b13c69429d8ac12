package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/ini.v1"
)

// Config holds all application configuration values.
type Config struct {
	// Serial link
	SerialPort          string
	SerialBaudRate      int
	SerialDriver        string // "bugst" or "termios"
	SerialReadTimeoutMS int    // per-line read timeout inside a collection window

	// Session timing (milliseconds unless noted)
	StartupWaitMS       int
	ModeSettleMS        int
	CalibrationWindowMS int
	AcquisitionWindowMS int
	DwellMS             int
	RampStep            float64 // rad/s per ramp step
	RampDelayMS         int
	StatusIntervalMS    int // floored at MinStatusIntervalMS by the collector
	PollIntervalMS      int
	KeyPollIntervalMS   int

	// MQTT
	MQTTBroker          string // empty disables publishing
	MQTTClientIDRig     string
	MQTTClientIDConsole string
	MQTTClientIDWeb     string
	MQTTClientIDDisplay string

	// Topics
	TopicStatus      string
	TopicCalibration string
	TopicRuns        string

	// Web Server
	WebServerPort int

	// Display
	DisplayI2CBus         string // "" selects the first bus
	DisplayUpdateInterval int    // milliseconds

	// Go-ahead push button (GPIO name, e.g. "GPIO17"); empty disables it
	GoButtonPin string

	// Export files
	OutputDir string
}

// MinStatusIntervalMS caps live status emission at 2 Hz.
const MinStatusIntervalMS = 500

// Default returns the configuration of the bench as it is normally wired.
func Default() *Config {
	return &Config{
		SerialPort:          "/dev/ttyACM0",
		SerialBaudRate:      230400,
		SerialDriver:        "bugst",
		SerialReadTimeoutMS: 10,

		StartupWaitMS:       15000,
		ModeSettleMS:        3000,
		CalibrationWindowMS: 2000,
		AcquisitionWindowMS: 5000,
		DwellMS:             5000,
		RampStep:            5,
		RampDelayMS:         1000,
		StatusIntervalMS:    800,
		PollIntervalMS:      1,
		KeyPollIntervalMS:   50,

		MQTTClientIDRig:     "rotor-bench-rig",
		MQTTClientIDConsole: "rotor-bench-console",
		MQTTClientIDWeb:     "rotor-bench-web",
		MQTTClientIDDisplay: "rotor-bench-display",

		TopicStatus:      "rig/status",
		TopicCalibration: "rig/calibration",
		TopicRuns:        "rig/runs",

		WebServerPort:         8080,
		DisplayUpdateInterval: 500,
		OutputDir:             ".",
	}
}

// Load reads a KEY=VALUE configuration file on top of Default.
func Load(configPath string) (*Config, error) {
	file, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment: true,
	}, configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	cfg := Default()
	for _, key := range file.Section(ini.DefaultSection).Keys() {
		if err := cfg.setValue(key.Name(), strings.TrimSpace(key.Value())); err != nil {
			return nil, fmt.Errorf("config %s: %w", configPath, err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// Serial link
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD_RATE":
		c.SerialBaudRate, err = intInRange(key, value, 1200, 4000000)
	case "SERIAL_DRIVER":
		if value != "bugst" && value != "termios" {
			return fmt.Errorf("SERIAL_DRIVER must be bugst or termios, got %q", value)
		}
		c.SerialDriver = value
	case "SERIAL_READ_TIMEOUT_MS":
		c.SerialReadTimeoutMS, err = intInRange(key, value, 1, 1000)

	// Session timing
	case "STARTUP_WAIT_MS":
		c.StartupWaitMS, err = intInRange(key, value, 0, 600000)
	case "MODE_SETTLE_MS":
		c.ModeSettleMS, err = intInRange(key, value, 0, 60000)
	case "CALIBRATION_WINDOW_MS":
		c.CalibrationWindowMS, err = intInRange(key, value, 1, 600000)
	case "ACQUISITION_WINDOW_MS":
		c.AcquisitionWindowMS, err = intInRange(key, value, 1, 600000)
	case "DWELL_MS":
		c.DwellMS, err = intInRange(key, value, 0, 600000)
	case "RAMP_STEP":
		step, perr := strconv.ParseFloat(value, 64)
		if perr != nil {
			return fmt.Errorf("invalid RAMP_STEP %q: %w", value, perr)
		}
		if step <= 0 || step > 1000 {
			return fmt.Errorf("RAMP_STEP must be in (0, 1000], got %g", step)
		}
		c.RampStep = step
	case "RAMP_DELAY_MS":
		c.RampDelayMS, err = intInRange(key, value, 0, 60000)
	case "STATUS_INTERVAL_MS":
		c.StatusIntervalMS, err = intInRange(key, value, 1, 60000)
	case "POLL_INTERVAL_MS":
		c.PollIntervalMS, err = intInRange(key, value, 0, 100)
	case "KEY_POLL_INTERVAL_MS":
		c.KeyPollIntervalMS, err = intInRange(key, value, 1, 1000)

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_RIG":
		c.MQTTClientIDRig = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value

	// Topics
	case "TOPIC_STATUS":
		c.TopicStatus = value
	case "TOPIC_CALIBRATION":
		c.TopicCalibration = value
	case "TOPIC_RUNS":
		c.TopicRuns = value

	// Web Server
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = intInRange(key, value, 1, 65535)

	// Display
	case "DISPLAY_I2C_BUS":
		c.DisplayI2CBus = value
	case "DISPLAY_UPDATE_INTERVAL":
		c.DisplayUpdateInterval, err = intInRange(key, value, 50, 60000)

	case "GO_BUTTON_PIN":
		c.GoButtonPin = value
	case "OUTPUT_DIR":
		c.OutputDir = value

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}
	return err
}

func intInRange(key, value string, lo, hi int) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if v < lo || v > hi {
		return 0, fmt.Errorf("%s must be %d-%d, got %d", key, lo, hi, v)
	}
	return v, nil
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.SerialPort == "" {
		return fmt.Errorf("SERIAL_PORT is required")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("OUTPUT_DIR is required")
	}
	if c.TopicStatus == "" || c.TopicCalibration == "" || c.TopicRuns == "" {
		return fmt.Errorf("TOPIC_STATUS, TOPIC_CALIBRATION and TOPIC_RUNS must not be empty")
	}
	return nil
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func (c *Config) StartupWait() time.Duration       { return ms(c.StartupWaitMS) }
func (c *Config) ModeSettle() time.Duration        { return ms(c.ModeSettleMS) }
func (c *Config) CalibrationWindow() time.Duration { return ms(c.CalibrationWindowMS) }
func (c *Config) AcquisitionWindow() time.Duration { return ms(c.AcquisitionWindowMS) }
func (c *Config) Dwell() time.Duration             { return ms(c.DwellMS) }
func (c *Config) RampDelay() time.Duration         { return ms(c.RampDelayMS) }
func (c *Config) ReadTimeout() time.Duration       { return ms(c.SerialReadTimeoutMS) }
func (c *Config) PollInterval() time.Duration      { return ms(c.PollIntervalMS) }
func (c *Config) KeyPollInterval() time.Duration   { return ms(c.KeyPollIntervalMS) }

// StatusInterval returns the live status period, never shorter than
// MinStatusIntervalMS.
func (c *Config) StatusInterval() time.Duration {
	if c.StatusIntervalMS < MinStatusIntervalMS {
		return ms(MinStatusIntervalMS)
	}
	return ms(c.StatusIntervalMS)
}
