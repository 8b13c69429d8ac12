package acquisition

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/rotor_bench/internal/link"
	"github.com/relabs-tech/rotor_bench/internal/rigsim"
	"github.com/relabs-tech/rotor_bench/internal/telemetry"
)

type scriptedSource struct {
	lines []string
	err   error
}

func (s *scriptedSource) Pending() (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	n := 0
	for _, l := range s.lines {
		n += len(l) + 1
	}
	return n, nil
}

func (s *scriptedSource) TryReadLine(time.Duration) (string, bool, error) {
	if len(s.lines) == 0 {
		return "", false, nil
	}
	l := s.lines[0]
	s.lines = s.lines[1:]
	return l, true, nil
}

type recordingSink struct {
	got []telemetry.Status
}

func (r *recordingSink) PublishStatus(s telemetry.Status) {
	r.got = append(r.got, s)
}

func TestCollectSilentLinkReturnsOnTime(t *testing.T) {
	c := NewCollector(&scriptedSource{})

	start := time.Now()
	w, err := c.Collect(100*time.Millisecond, 0, nil)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Empty(t, w.Samples)
	assert.Zero(t, w.MaxBacklog)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, 300*time.Millisecond)
}

func TestCollectDropsMalformedLines(t *testing.T) {
	src := &scriptedSource{lines: []string{
		"1\t2\t3\t4\t5\t6\t7\t8",
		"1\t2\t3",
		"",
		"1\t2\t3\t4\t5\t6\tseven\t8",
		"9\t9\t9\t9\t9\t9\t9\t9\t9",
	}}
	c := NewCollector(src)

	w, err := c.Collect(30*time.Millisecond, 0, nil)
	require.NoError(t, err)
	require.Len(t, w.Samples, 2)
	assert.Equal(t, 1.0, w.Samples[0].VelSet)
	assert.Equal(t, 9.0, w.Samples[1].V2)
	assert.Equal(t, 3, w.Dropped)
	assert.Positive(t, w.MaxBacklog)
}

// endlessSource always has a line ready and advances a fake clock on every
// read, recording when each read started.
type endlessSource struct {
	clock    time.Time
	perRead  time.Duration
	starts   []time.Time
	timeouts []time.Duration
}

func (s *endlessSource) Pending() (int, error) { return 64, nil }

func (s *endlessSource) TryReadLine(timeout time.Duration) (string, bool, error) {
	s.starts = append(s.starts, s.clock)
	s.timeouts = append(s.timeouts, timeout)
	s.clock = s.clock.Add(s.perRead)
	return "1\t1\t0\t0\t0\t9.8\t8400\t8400", true, nil
}

func TestCollectStopsReadingAtDeadline(t *testing.T) {
	src := &endlessSource{clock: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), perRead: 3 * time.Millisecond}
	c := NewCollector(src)
	c.now = func() time.Time { return src.clock }

	start := src.clock
	deadline := start.Add(50 * time.Millisecond)
	w, err := c.Collect(50*time.Millisecond, 0, nil)
	require.NoError(t, err)

	require.NotEmpty(t, src.starts)
	assert.Len(t, w.Samples, len(src.starts))
	for i, at := range src.starts {
		assert.True(t, at.Before(deadline), "read %d started at +%v", i, at.Sub(start))
		assert.Positive(t, src.timeouts[i])
		assert.LessOrEqual(t, src.timeouts[i], deadline.Sub(at))
	}
	assert.False(t, src.clock.Before(deadline), "window closed early")
	assert.Equal(t, 17, len(src.starts))
}

func TestCollectPropagatesLinkErrors(t *testing.T) {
	c := NewCollector(&scriptedSource{err: errors.New("unplugged")})
	_, err := c.Collect(50*time.Millisecond, 0, nil)
	assert.Error(t, err)
}

func TestCollectFromSimulatedDevice(t *testing.T) {
	dev := rigsim.New(rigsim.Options{RateHz: 100, Seed: 7})
	l := link.New(dev)
	defer l.Close()
	require.NoError(t, l.ResetInputBuffer())

	c := NewCollector(l)
	start := time.Now()
	w, err := c.Collect(time.Second, 0, nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), time.Second)

	assert.InDelta(t, 100, len(w.Samples), 15)
	for i := 1; i < len(w.Samples); i++ {
		assert.GreaterOrEqual(t, w.Samples[i].Timestamp, w.Samples[i-1].Timestamp)
	}
	assert.Zero(t, w.Dropped)
}

func TestCollectCountsCorruptLinesFromDevice(t *testing.T) {
	dev := rigsim.New(rigsim.Options{RateHz: 200, CorruptEvery: 10, Seed: 8})
	l := link.New(dev)
	defer l.Close()
	require.NoError(t, l.ResetInputBuffer())

	w, err := NewCollector(l).Collect(500*time.Millisecond, 0, nil)
	require.NoError(t, err)
	assert.Positive(t, w.Dropped)
	assert.InDelta(t, 9*w.Dropped, len(w.Samples), 20)
}

func TestCollectStatusRateIsCapped(t *testing.T) {
	dev := rigsim.New(rigsim.Options{RateHz: 1000, Seed: 9})
	l := link.New(dev)
	defer l.Close()

	sink := &recordingSink{}
	c := NewCollector(l, WithStatusInterval(time.Millisecond))
	w, err := c.Collect(1200*time.Millisecond, 42, sink)
	require.NoError(t, err)

	require.NotEmpty(t, sink.got)
	assert.LessOrEqual(t, len(sink.got), 2, "500ms floor allows at most two updates in 1.2s")
	for i := 1; i < len(sink.got); i++ {
		assert.GreaterOrEqual(t, sink.got[i].Elapsed-sink.got[i-1].Elapsed, 0.5-1e-9)
	}
	for _, s := range sink.got {
		assert.Equal(t, 42.0, s.Setpoint)
		assert.LessOrEqual(t, s.Samples, len(w.Samples))
		assert.GreaterOrEqual(t, s.Elapsed, 0.5)
	}
}

func TestMultiSinkSkipsNil(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	MultiSink{a, nil, b}.PublishStatus(telemetry.Status{Samples: 3})
	assert.Len(t, a.got, 1)
	assert.Len(t, b.got, 1)

	var fromFunc int
	StatusFunc(func(s telemetry.Status) { fromFunc = s.Samples }).PublishStatus(telemetry.Status{Samples: 5})
	assert.Equal(t, 5, fromFunc)
}
