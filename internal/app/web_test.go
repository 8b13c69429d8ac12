package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/rotor_bench/internal/config"
	"github.com/relabs-tech/rotor_bench/internal/telemetry"
)

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func newTestWeb(t *testing.T, static string) (*liveState, *httptest.Server) {
	t.Helper()
	hub := newLiveHub()
	state := newLiveState(config.Default(), hub)
	srv := httptest.NewServer(newWebRouter(state, hub, static))
	t.Cleanup(srv.Close)
	return state, srv
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK && v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestWebStatusBeforeAndAfterData(t *testing.T) {
	state, srv := newTestWeb(t, "")

	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, srv.URL+"/api/status", nil))
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, srv.URL+"/api/calibration", nil))

	st := telemetry.Status{Setpoint: 52.36, Samples: 120, Backlog: 3, Elapsed: 1.5,
		Latest: telemetry.Sample{VelReal: 51.9, V1: 8423}}
	require.NoError(t, state.handle("rig/status", mustJSON(t, st)))

	var got telemetry.Status
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/status", &got))
	assert.Equal(t, st, got)
}

func TestWebRuns(t *testing.T) {
	state, srv := newTestWeb(t, "")

	var runs []RunSummary
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/runs", &runs))
	assert.Empty(t, runs)

	require.NoError(t, state.handle("rig/runs", mustJSON(t, RunSummary{Test: 1, Index: 0, Setpoint: 30})))
	require.NoError(t, state.handle("rig/runs", mustJSON(t, RunSummary{Test: 2, Index: 0, Setpoint: 40})))
	require.NoError(t, state.handle("rig/runs", mustJSON(t, RunSummary{Test: 2, Index: 1, Setpoint: 50})))

	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/runs", &runs))
	assert.Len(t, runs, 3)

	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/runs/2", &runs))
	require.Len(t, runs, 2)
	assert.Equal(t, 50.0, runs[1].Setpoint)

	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/runs/9", nil))
}

func TestWebCalibration(t *testing.T) {
	state, srv := newTestWeb(t, "")

	ev := CalibrationEvent{Type: CalibrationComplete, Torque: []float64{1.87}, File: "calibration_samples_x.txt"}
	require.NoError(t, state.handle("rig/calibration", mustJSON(t, ev)))

	var got CalibrationEvent
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/calibration", &got))
	assert.Equal(t, ev, got)
}

func TestWebRejectsBadPayloads(t *testing.T) {
	state, _ := newTestWeb(t, "")
	assert.Error(t, state.handle("rig/status", []byte("{")))
	assert.Error(t, state.handle("rig/other", []byte("{}")))
}

func TestWebRunsAreBounded(t *testing.T) {
	state, _ := newTestWeb(t, "")
	for i := 0; i < maxRuns+10; i++ {
		require.NoError(t, state.handle("rig/runs", mustJSON(t, RunSummary{Test: 1, Index: i})))
	}
	assert.Len(t, state.runs, maxRuns)
	assert.Equal(t, 10, state.runs[0].Index)
}

func TestWebStaticFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>bench</h1>"), 0o644))
	_, srv := newTestWeb(t, dir)

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWebLiveSocket(t *testing.T) {
	state, srv := newTestWeb(t, "")
	require.NoError(t, state.handle("rig/status", mustJSON(t, telemetry.Status{Setpoint: 10})))

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/live"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var m liveMessage
	require.NoError(t, conn.ReadJSON(&m))
	assert.Equal(t, "rig/status", m.Topic)

	require.NoError(t, state.handle("rig/runs", mustJSON(t, RunSummary{Test: 1, Setpoint: 30})))
	require.NoError(t, conn.ReadJSON(&m))
	assert.Equal(t, "rig/runs", m.Topic)

	var run RunSummary
	require.NoError(t, json.Unmarshal(m.Payload, &run))
	assert.Equal(t, 30.0, run.Setpoint)
}
