package segment

import (
	"math"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syntheticTrace returns low noise with a decaying burst at every onset.
func syntheticTrace(n int, onsets []int) []float64 {
	var rnd = rand.New(rand.NewSource(1))
	var trace = make([]float64, n)
	for i := range trace {
		trace[i] = 0.01 * rnd.NormFloat64()
	}
	for _, onset := range onsets {
		for j := 0; j < 60 && onset+j < n; j++ {
			trace[onset+j] += math.Exp(-float64(j)/15) * math.Sin(float64(j)*0.8)
		}
	}
	return trace
}

func testConfig() Config {
	var cfg = DefaultConfig()
	cfg.EventLength = 200
	cfg.Smooth = 8
	return cfg
}

func TestSegmentFindsFootsteps(t *testing.T) {
	var trace = syntheticTrace(3000, []int{500, 1200, 2100})
	events, err := Segment(trace, "P03", testConfig())
	require.NoError(t, err)
	require.Len(t, events, 3)

	onsets, err := Onsets(trace, testConfig())
	require.NoError(t, err)
	for i, want := range []int{500, 1200, 2100} {
		var pre = 40
		assert.InDelta(t, want-pre, onsets[i], 10)
		assert.Equal(t, "P03", events[i].Label)
		assert.Len(t, events[i].Signal, 200)
		assert.Equal(t, trace[onsets[i]], events[i].Signal[0])
	}
}

func TestSegmentCopiesSamples(t *testing.T) {
	var trace = syntheticTrace(1000, []int{400})
	events, err := Segment(trace, "x", testConfig())
	require.NoError(t, err)
	require.Len(t, events, 1)
	events[0].Signal[0] = 42
	assert.NotEqual(t, 42.0, trace[0])
	for _, x := range trace {
		assert.NotEqual(t, 42.0, x)
	}
}

func TestSegmentSkipsEventsOutsideTrace(t *testing.T) {
	var trace = syntheticTrace(1000, []int{10, 950})
	events, err := Segment(trace, "x", testConfig())
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestSegmentGap(t *testing.T) {
	var trace = syntheticTrace(2000, []int{300, 560})
	events, err := Segment(trace, "x", testConfig())
	require.NoError(t, err)
	assert.Len(t, events, 2)

	var cfg = testConfig()
	cfg.Gap = 300
	events, err = Segment(trace, "x", cfg)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestSegmentFlatTrace(t *testing.T) {
	events, err := Segment(make([]float64, 1000), "x", testConfig())
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestSegmentShortTrace(t *testing.T) {
	_, err := Segment(make([]float64, 100), "x", testConfig())
	assert.True(t, errors.Is(err, ErrTraceTooShort))
}

func TestSegmentBadConfig(t *testing.T) {
	var cfg = testConfig()
	cfg.PreTrigger = cfg.EventLength
	_, err := Segment(make([]float64, 1000), "x", cfg)
	assert.Error(t, err)
}

func TestEnvelope(t *testing.T) {
	env, err := Envelope([]float64{1, -1, 1, -1}, 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 1, 1}, env)
}
