package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeFile(t, "rig_config.txt", `
# bench on the lab Pi
SERIAL_PORT=/dev/ttyUSB1
SERIAL_DRIVER=termios
MQTT_BROKER=tcp://localhost:1883
RAMP_STEP=2.5
STATUS_INTERVAL_MS=1000
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB1", cfg.SerialPort)
	assert.Equal(t, "termios", cfg.SerialDriver)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTTBroker)
	assert.Equal(t, 2.5, cfg.RampStep)
	assert.Equal(t, time.Second, cfg.StatusInterval())

	// untouched keys keep their defaults
	assert.Equal(t, 230400, cfg.SerialBaudRate)
	assert.Equal(t, 2*time.Second, cfg.CalibrationWindow())
	assert.Equal(t, 5*time.Second, cfg.AcquisitionWindow())
	assert.Equal(t, "rig/status", cfg.TopicStatus)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"unknown key":    "FOO=1\n",
		"bad driver":     "SERIAL_DRIVER=ftdi\n",
		"baud not int":   "SERIAL_BAUD_RATE=fast\n",
		"negative step":  "RAMP_STEP=-1\n",
		"zero window":    "ACQUISITION_WINDOW_MS=0\n",
		"empty port":     "SERIAL_PORT=\n",
		"port too large": "WEB_SERVER_PORT=70000\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, "rig_config.txt", content))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}

func TestStatusIntervalFloor(t *testing.T) {
	cfg := Default()
	cfg.StatusIntervalMS = 100
	assert.Equal(t, 500*time.Millisecond, cfg.StatusInterval())

	cfg.StatusIntervalMS = 800
	assert.Equal(t, 800*time.Millisecond, cfg.StatusInterval())
}

func TestDefaultPlan(t *testing.T) {
	p := DefaultPlan()
	require.NoError(t, p.Validate())
	assert.Len(t, p.Calibration.MassesG, 7)
	assert.Equal(t, 41.0, p.Calibration.ArmLengthMM)
	assert.Len(t, p.Acquisition.SetpointsRadS, 20)
	assert.Equal(t, 73.30, p.Acquisition.SetpointsRadS[0])
}

func TestLoadPlan(t *testing.T) {
	path := writeFile(t, "plan.yaml", `
calibration:
  masses_g: [5, 10]
acquisition:
  setpoints_rad_s: [50, 60, 70]
`)
	p, err := LoadPlan(path)
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 10}, p.Calibration.MassesG)
	assert.Equal(t, 41.0, p.Calibration.ArmLengthMM, "arm length keeps default")
	assert.Equal(t, []float64{50, 60, 70}, p.Acquisition.SetpointsRadS)
}

func TestLoadPlanRejectsInvalid(t *testing.T) {
	_, err := LoadPlan(writeFile(t, "plan.yaml", "calibration:\n  masses_g: []\n"))
	assert.Error(t, err)

	_, err = LoadPlan(writeFile(t, "plan.yaml", "calibration:\n  masses_g: [1, -2]\n"))
	assert.Error(t, err)

	_, err = LoadPlan(writeFile(t, "plan.yaml", "calibration: [oops\n"))
	assert.Error(t, err)
}

func TestPlanRejectsRepeatedMass(t *testing.T) {
	p := DefaultPlan()
	p.Calibration.MassesG = []float64{5, 10, 5}
	err := p.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "masses_g[2] repeats masses_g[0]")

	_, err = LoadPlan(writeFile(t, "plan.yaml", "calibration:\n  masses_g: [5, 5]\n"))
	assert.Error(t, err)
}
