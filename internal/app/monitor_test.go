package app

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/rotor_bench/internal/acquisition"
	"github.com/relabs-tech/rotor_bench/internal/config"
	"github.com/relabs-tech/rotor_bench/internal/link"
	"github.com/relabs-tech/rotor_bench/internal/rigsim"
)

func TestMonitorStopsBetweenWindows(t *testing.T) {
	l := link.New(rigsim.New(rigsim.Options{RateHz: 200, Seed: 3}))
	defer l.Close()

	var out bytes.Buffer
	stop := make(chan struct{})
	time.AfterFunc(250*time.Millisecond, func() { close(stop) })

	c := acquisition.FromConfig(l, config.Default())
	require.NoError(t, monitor(c, 100*time.Millisecond, nil, &out, stop))

	windows := strings.Count(out.String(), "window ")
	assert.GreaterOrEqual(t, windows, 2)
	assert.LessOrEqual(t, windows, 4)
}
