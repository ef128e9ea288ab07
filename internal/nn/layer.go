package nn

import "github.com/ChizhovVadim/vibeid/internal/ml"

// Layer is one differentiable step of a network working on a single sample.
// Forward caches what Backward needs, so a Layer value must not be shared
// between goroutines: use ThreadCopy.
type Layer interface {
	Forward(input *Tensor) *Tensor
	// Backward takes dLoss/dOutput of the last Forward call, accumulates the
	// parameter gradients and returns dLoss/dInput.
	Backward(outputGrad *Tensor) *Tensor
	Params() []*Param
	ThreadCopy() Layer
}

// Activation applies fn element-wise.
type Activation struct {
	fn        ml.IActivationFn
	input     *Tensor
	output    *Tensor
	inputGrad *Tensor
}

func NewActivation(fn ml.IActivationFn) *Activation {
	return &Activation{fn: fn}
}

func NewReLU() *Activation {
	return NewActivation(&ml.ReLuActivation{})
}

func (l *Activation) Forward(input *Tensor) *Tensor {
	l.input = input
	l.output = reuse(l.output, input.C, input.H, input.W)
	for i, x := range input.Data {
		l.output.Data[i] = l.fn.Sigma(x)
	}
	return l.output
}

func (l *Activation) Backward(outputGrad *Tensor) *Tensor {
	l.inputGrad = reuse(l.inputGrad, outputGrad.C, outputGrad.H, outputGrad.W)
	for i, g := range outputGrad.Data {
		l.inputGrad.Data[i] = g * l.fn.SigmaPrime(l.input.Data[i])
	}
	return l.inputGrad
}

func (l *Activation) Params() []*Param { return nil }

func (l *Activation) ThreadCopy() Layer { return NewActivation(l.fn) }

// Sequential chains layers.
type Sequential struct {
	Layers []Layer
}

func NewSequential(layers ...Layer) *Sequential {
	return &Sequential{Layers: layers}
}

func (s *Sequential) Forward(input *Tensor) *Tensor {
	var x = input
	for _, l := range s.Layers {
		x = l.Forward(x)
	}
	return x
}

func (s *Sequential) Backward(outputGrad *Tensor) *Tensor {
	var g = outputGrad
	for i := len(s.Layers) - 1; i >= 0; i-- {
		g = s.Layers[i].Backward(g)
	}
	return g
}

func (s *Sequential) Params() []*Param {
	var result []*Param
	for _, l := range s.Layers {
		result = append(result, l.Params()...)
	}
	return result
}

func (s *Sequential) ThreadCopy() Layer {
	var layers = make([]Layer, len(s.Layers))
	for i, l := range s.Layers {
		layers[i] = l.ThreadCopy()
	}
	return &Sequential{Layers: layers}
}
