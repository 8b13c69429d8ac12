package calibration

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/rotor_bench/internal/acquisition"
	"github.com/relabs-tech/rotor_bench/internal/telemetry"
)

type scriptedPrompter struct {
	answers []string
	asked   []string
}

func (p *scriptedPrompter) Prompt(msg string) (string, error) {
	p.asked = append(p.asked, msg)
	if len(p.answers) == 0 {
		return "", errors.New("no more answers")
	}
	a := p.answers[0]
	p.answers = p.answers[1:]
	return a, nil
}

// fakeCollector returns windows whose V1 readings are 100, 200, 300, ...
// one value per call.
type fakeCollector struct {
	calls  int
	resets int
}

func (f *fakeCollector) ResetInputBuffer() error {
	f.resets++
	return nil
}

func (f *fakeCollector) Collect(time.Duration, float64, acquisition.StatusSink) (acquisition.Window, error) {
	f.calls++
	v := float64(f.calls * 100)
	return acquisition.Window{
		Samples: []telemetry.Sample{{V1: v - 1}, {V1: v}, {V1: v + 1}},
	}, nil
}

type plotRecorder struct {
	measured  []float64
	discarded []float64
}

func (p *plotRecorder) PointMeasured(pt Point)       { p.measured = append(p.measured, pt.Mass) }
func (p *plotRecorder) PointDiscarded(mass float64) { p.discarded = append(p.discarded, mass) }

func newSequencer(masses []float64, answers ...string) (*Sequencer, *fakeCollector, *plotRecorder, *scriptedPrompter) {
	col := &fakeCollector{}
	plot := &plotRecorder{}
	pr := &scriptedPrompter{answers: answers}
	return &Sequencer{
		Prompt:    pr,
		Input:     col,
		Collector: col,
		Plot:      plot,
		Window:    2 * time.Second,
		Masses:    masses,
	}, col, plot, pr
}

func TestRunMeasuresEveryMass(t *testing.T) {
	q, col, plot, _ := newSequencer([]float64{4.66, 10.75, 16.59}, "", "", "", "")

	points, err := q.Run()
	require.NoError(t, err)
	require.Len(t, points, 3)
	for i, p := range points {
		assert.Equal(t, i, p.Index)
		assert.Equal(t, q.Masses[i], p.Mass)
		assert.Equal(t, float64((i+1)*100), p.Mean)
		assert.Len(t, p.RawSamples, 3)
	}
	assert.Equal(t, 3, col.calls)
	assert.Equal(t, 3, col.resets, "input is reset before every window")
	assert.Equal(t, []float64{4.66, 10.75, 16.59}, plot.measured)
	assert.Empty(t, plot.discarded)
}

func TestReviewDiscardRemeasuresLastMass(t *testing.T) {
	// place 4.66, place 10.75, review: discard, review: finish
	q, col, plot, _ := newSequencer([]float64{4.66, 10.75}, "", "", "d", "")

	points, err := q.Run()
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, 4.66, points[0].Mass)
	assert.Equal(t, 10.75, points[1].Mass)
	assert.Equal(t, 300.0, points[1].Mean, "second point comes from the re-measurement")
	assert.Equal(t, 3, col.calls)
	assert.Equal(t, []float64{10.75}, plot.discarded)
}

func TestPlacementDiscardStepsBack(t *testing.T) {
	// place 1, place 2 -> "d" at placement of 3 drops 2, redo 2, place 3, finish
	q, col, plot, pr := newSequencer([]float64{1, 2, 3}, "", "", "D", "", "", "")

	points, err := q.Run()
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.Equal(t, []float64{1, 2, 3}, []float64{points[0].Mass, points[1].Mass, points[2].Mass})
	assert.Equal(t, 4, col.calls)
	assert.Equal(t, []float64{2}, plot.discarded)
	assert.Equal(t, []float64{1, 2, 2, 3}, plot.measured)
	assert.Contains(t, pr.asked[2], "discard 2.00 g")
}

func TestDiscardAtFirstMassMeasures(t *testing.T) {
	q, col, plot, _ := newSequencer([]float64{5}, "d", "")

	points, err := q.Run()
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, 1, col.calls)
	assert.Empty(t, plot.discarded)
}

func TestPointsStayAGapFreePrefix(t *testing.T) {
	masses := []float64{1, 2, 3, 4}
	q, _, plot, _ := newSequencer(masses, "", "", "d", "d", "", "", "", "d", "", "", "")

	prefixOK := true
	q.OnState = func(s State, i int) {
		live := len(plot.measured) - len(plot.discarded)
		if s == AwaitPlacement && live != i {
			prefixOK = false
		}
	}
	points, err := q.Run()
	require.NoError(t, err)
	assert.True(t, prefixOK)
	require.Len(t, points, len(masses))
	for i, p := range points {
		assert.Equal(t, masses[i], p.Mass)
	}
	assert.Equal(t, []float64{2, 1, 3}, plot.discarded)
}

func TestPromptErrorAborts(t *testing.T) {
	q, _, _, _ := newSequencer([]float64{1, 2}, "")
	points, err := q.Run()
	require.Error(t, err)
	assert.Len(t, points, 1)
}

func TestRepeatedMassIsRejected(t *testing.T) {
	q, col, _, pr := newSequencer([]float64{5, 5}, "", "", "")
	points, err := q.Run()
	require.Error(t, err)
	assert.Empty(t, points)
	assert.Zero(t, col.calls)
	assert.Empty(t, pr.asked)
}

func TestMeanOfEmptyWindowIsZero(t *testing.T) {
	assert.Equal(t, 0.0, Mean(nil))
	assert.Equal(t, 2.0, Mean([]float64{1, 2, 3}))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "reviewing", Reviewing.String())
	assert.Equal(t, "State(9)", State(9).String())
}
