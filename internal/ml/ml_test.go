package ml

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSoftmaxCrossEntropy(t *testing.T) {
	var cost = &SoftmaxCrossEntropyCost{}
	var logits = []float64{1, 2, 3}

	var probs = make([]float64, 3)
	Softmax(logits, probs)
	var sum float64
	for _, p := range probs {
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
	assert.InDelta(t, -math.Log(probs[2]), cost.Cost(logits, 2), 1e-12)

	var grad = make([]float64, 3)
	cost.CostPrime(logits, 2, grad)
	const h = 1e-6
	for i := range logits {
		var plus = append([]float64(nil), logits...)
		var minus = append([]float64(nil), logits...)
		plus[i] += h
		minus[i] -= h
		var numeric = (cost.Cost(plus, 2) - cost.Cost(minus, 2)) / (2 * h)
		assert.InDelta(t, numeric, grad[i], 1e-6, "logit %d", i)
	}
}

func TestSoftmaxLargeLogits(t *testing.T) {
	var cost = &SoftmaxCrossEntropyCost{}
	var loss = cost.Cost([]float64{1000, 0}, 0)
	require.False(t, math.IsNaN(loss))
	assert.InDelta(t, 0, loss, 1e-9)
}

func TestArgmaxFirstOfTies(t *testing.T) {
	assert.Equal(t, 1, Argmax([]float64{0, 5, 5, 1}))
	assert.Equal(t, 0, Argmax([]float64{7}))
}

func TestAdamFirstStep(t *testing.T) {
	var opt = NewAdam(0.1)
	var m = NewMatrix(1, 2)
	var g = NewGradients(1, 2)
	g.Add(0, 0, 4)
	g.Add(0, 1, -2)

	opt.NextStep()
	g.Apply(&m, opt, 0.5)

	// bias-corrected first step moves every weight by lr against the gradient sign
	assert.InDelta(t, -0.1, m.Data[0], 1e-6)
	assert.InDelta(t, 0.1, m.Data[1], 1e-6)
	assert.Zero(t, g.Value(0))
	assert.Zero(t, g.Value(1))
}

func TestGradientsAddTo(t *testing.T) {
	var parent = NewGradients(2, 1)
	var child = NewGradients(2, 1)
	child.AddAt(1, 3)
	parent.AddAt(1, 1)
	child.AddTo(&parent)
	assert.Equal(t, 4.0, parent.Value(1))
	assert.Zero(t, child.Value(1))
}

func TestPlateauScheduler(t *testing.T) {
	var opt = NewAdam(1)
	var s = NewPlateauScheduler(DefaultPlateauFactor, DefaultPlateauPatience)

	assert.False(t, s.Step(1.0, opt))
	for i := 0; i < DefaultPlateauPatience; i++ {
		assert.False(t, s.Step(1.0, opt))
	}
	assert.True(t, s.Step(1.0, opt))
	assert.InDelta(t, 0.1, opt.LearningRate, 1e-12)

	assert.False(t, s.Step(0.5, opt))
	assert.InDelta(t, 0.1, opt.LearningRate, 1e-12)
}
