package ml

import (
	"math"
	"math/rand"
)

func InitUniform(rnd *rand.Rand, data []float64, variance float64) {
	var uniformVariance = 1.0 / 12
	var scale = math.Sqrt(variance / uniformVariance)
	for i := range data {
		data[i] = (rnd.Float64() - 0.5) * scale
	}
}

// InitHe draws from N(0, 2/fanIn), the usual choice in front of ReLU.
func InitHe(rnd *rand.Rand, data []float64, fanIn int) {
	var stDev = math.Sqrt(2.0 / float64(fanIn))
	for i := range data {
		data[i] = rnd.NormFloat64() * stDev
	}
}

func Softmax(logits, output []float64) {
	var maxLogit = logits[Argmax(logits)]
	var sum float64
	for i, x := range logits {
		output[i] = math.Exp(x - maxLogit)
		sum += output[i]
	}
	for i := range output {
		output[i] /= sum
	}
}

// Argmax returns the first index of the largest value.
func Argmax(data []float64) int {
	var best = 0
	for i := 1; i < len(data); i++ {
		if data[i] > data[best] {
			best = i
		}
	}
	return best
}
