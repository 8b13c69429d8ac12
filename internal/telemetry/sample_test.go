package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFields(t *testing.T) {
	vals, ok := DecodeFields("1.5\t-2\t3e2\r\n")
	require.True(t, ok)
	assert.Equal(t, []float64{1.5, -2, 300}, vals)

	_, ok = DecodeFields("")
	assert.False(t, ok)

	_, ok = DecodeFields("   \r\n")
	assert.False(t, ok)

	_, ok = DecodeFields("1\t2\tabc\t4")
	assert.False(t, ok, "one bad field rejects the whole line")

	_, ok = DecodeFields("1\t\t3")
	assert.False(t, ok, "empty field is not a number")
}

func TestParseSample(t *testing.T) {
	ts := time.Unix(1700000000, 500_000_000)

	s, ok := ParseSample("10\t9.5\t0.25\t0.1\t0.2\t9.8\t8400\t8300", ts)
	require.True(t, ok)
	assert.Equal(t, 10.0, s.VelSet)
	assert.Equal(t, 9.5, s.VelReal)
	assert.Equal(t, 0.25, s.Pos)
	assert.Equal(t, 9.8, s.Az)
	assert.Equal(t, 8400.0, s.V1)
	assert.Equal(t, 8300.0, s.V2)
	assert.InDelta(t, 1700000000.5, s.Timestamp, 1e-6)
}

func TestParseSampleRejectsShortAndCorruptLines(t *testing.T) {
	ts := time.Now()

	_, ok := ParseSample("1\t2\t3\t4\t5\t6\t7", ts)
	assert.False(t, ok, "seven fields")

	_, ok = ParseSample("1\t2\t3\t4\t5\t6\t7\tx", ts)
	assert.False(t, ok, "non numeric eighth field")

	s, ok := ParseSample("1\t2\t3\t4\t5\t6\t7\t8\t9\t10", ts)
	require.True(t, ok, "extra fields are ignored")
	assert.Equal(t, 8.0, s.V2)
}
