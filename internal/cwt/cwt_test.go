package cwt

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(n int, period float64) []float64 {
	var result = make([]float64, n)
	for i := range result {
		result[i] = math.Sin(2*math.Pi*float64(i)/period) + 3
	}
	return result
}

func TestTransformFindsScaleOfSine(t *testing.T) {
	var m = Morlet{Omega0: DefaultOmega0, MinScale: 2, MaxScale: 64, Scales: 48}
	const period = 16.0
	sc, err := m.Transform(sine(512, period))
	require.NoError(t, err)
	require.Len(t, sc.Power, 48)

	var best = 0
	var mid = 256
	for i := range sc.Power {
		if sc.Power[i][mid] > sc.Power[best][mid] {
			best = i
		}
	}
	// Morlet with omega0 = 6 peaks at period ≈ 1.03 × scale
	var expectedScale = period * (m.Omega0 + math.Sqrt(2+m.Omega0*m.Omega0)) / (4 * math.Pi)
	assert.InDelta(t, expectedScale, sc.Scales[best], expectedScale*0.1)
}

func TestTransformIgnoresOffset(t *testing.T) {
	var m = NewMorlet(8)
	var signal = make([]float64, 64)
	for i := range signal {
		signal[i] = 42
	}
	sc, err := m.Transform(signal)
	require.NoError(t, err)
	assert.InDelta(t, 0, sc.Max(), 1e-9)
}

func TestTransformIsDeterministic(t *testing.T) {
	var m = NewMorlet(16)
	var signal = sine(200, 9)
	a, err := m.Transform(signal)
	require.NoError(t, err)
	b, err := m.Transform(signal)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestTransformRejectsBadInput(t *testing.T) {
	var m = NewMorlet(8)
	_, err := m.Transform([]float64{1, 2})
	assert.True(t, errors.Is(err, ErrInvalidSignal))

	_, err = m.Transform([]float64{1, 2, math.NaN(), 4, 5, 6})
	assert.True(t, errors.Is(err, ErrInvalidSignal))

	_, err = Morlet{Omega0: 6, MinScale: 10, MaxScale: 2, Scales: 4}.Transform(sine(64, 8))
	assert.Error(t, err)
}

func TestScalesAreGeometric(t *testing.T) {
	var m = Morlet{Omega0: 6, MinScale: 2, MaxScale: 32, Scales: 5}
	scales, err := m.scales(100)
	require.NoError(t, err)
	for i, expected := range []float64{2, 4, 8, 16, 32} {
		assert.InDelta(t, expected, scales[i], 1e-9)
	}

	m.MaxScale = 0
	scales, err = m.scales(100)
	require.NoError(t, err)
	assert.InDelta(t, 25, scales[4], 1e-9)
}
