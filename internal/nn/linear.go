package nn

import (
	"fmt"
	"math/rand"

	"github.com/ChizhovVadim/vibeid/internal/ml"
)

// Linear is a fully connected layer over the flattened input.
type Linear struct {
	Inputs    int
	Outputs   int
	weights   *Param
	biases    *Param
	input     *Tensor
	output    *Tensor
	inputGrad *Tensor
}

func NewLinear(inputs, outputs int) *Linear {
	return &Linear{
		Inputs:  inputs,
		Outputs: outputs,
		weights: newParam("linear.weights", outputs, inputs),
		biases:  newParam("linear.biases", outputs, 1),
	}
}

// InitWeights uses the default initialization of a classifier head:
// uniform with variance 1/(3·inputs).
func (l *Linear) InitWeights(rnd *rand.Rand) *Linear {
	ml.InitUniform(rnd, l.weights.Value.Data, 1.0/(3*float64(l.Inputs)))
	return l
}

func (l *Linear) Forward(input *Tensor) *Tensor {
	if input.Len() != l.Inputs {
		panic(fmt.Sprintf("linear: got %v inputs, want %v", input.Len(), l.Inputs))
	}
	l.input = input
	l.output = reuse(l.output, l.Outputs, 1, 1)
	var weights = &l.weights.Value
	for outputIndex := 0; outputIndex < l.Outputs; outputIndex++ {
		var x = l.biases.Value.Data[outputIndex]
		for inputIndex, inputValue := range input.Data {
			x += weights.Get(outputIndex, inputIndex) * inputValue
		}
		l.output.Data[outputIndex] = x
	}
	return l.output
}

func (l *Linear) Backward(outputGrad *Tensor) *Tensor {
	var input = l.input
	l.inputGrad = reuse(l.inputGrad, input.C, input.H, input.W)
	var weights = &l.weights.Value
	for outputIndex := 0; outputIndex < l.Outputs; outputIndex++ {
		var g = outputGrad.Data[outputIndex]
		l.biases.Grad.AddAt(outputIndex, g)
		for inputIndex, inputValue := range input.Data {
			l.weights.Grad.Add(outputIndex, inputIndex, g*inputValue)
			l.inputGrad.Data[inputIndex] += weights.Get(outputIndex, inputIndex) * g
		}
	}
	return l.inputGrad
}

func (l *Linear) Params() []*Param {
	return []*Param{l.weights, l.biases}
}

func (l *Linear) ThreadCopy() Layer {
	return &Linear{
		Inputs:  l.Inputs,
		Outputs: l.Outputs,
		weights: l.weights.threadCopy(),
		biases:  l.biases.threadCopy(),
	}
}
