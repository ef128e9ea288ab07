package ml

import "math"

// IClassificationCost scores raw network outputs (logits) against a class index.
type IClassificationCost interface {
	Cost(logits []float64, target int) float64
	CostPrime(logits []float64, target int, grad []float64)
}

// SoftmaxCrossEntropyCost is the usual multi-class loss: softmax followed by
// negative log-likelihood of the target class.
type SoftmaxCrossEntropyCost struct{}

func (*SoftmaxCrossEntropyCost) Cost(logits []float64, target int) float64 {
	var maxLogit = logits[Argmax(logits)]
	var sum float64
	for _, x := range logits {
		sum += math.Exp(x - maxLogit)
	}
	return math.Log(sum) - (logits[target] - maxLogit)
}

func (*SoftmaxCrossEntropyCost) CostPrime(logits []float64, target int, grad []float64) {
	Softmax(logits, grad)
	grad[target] -= 1
}
