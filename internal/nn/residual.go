package nn

import "math/rand"

// Residual computes relu(branch(x) + shortcut(x)). A nil shortcut is identity.
type Residual struct {
	branch    *Sequential
	shortcut  Layer
	relu      *Activation
	sum       *Tensor
	inputGrad *Tensor
}

func (r *Residual) Forward(input *Tensor) *Tensor {
	var main = r.branch.Forward(input)
	var skip = input
	if r.shortcut != nil {
		skip = r.shortcut.Forward(input)
	}
	r.sum = reuse(r.sum, main.C, main.H, main.W)
	for i := range r.sum.Data {
		r.sum.Data[i] = main.Data[i] + skip.Data[i]
	}
	return r.relu.Forward(r.sum)
}

func (r *Residual) Backward(outputGrad *Tensor) *Tensor {
	var g = r.relu.Backward(outputGrad)
	var mainGrad = r.branch.Backward(g)
	var skipGrad = g
	if r.shortcut != nil {
		skipGrad = r.shortcut.Backward(g)
	}
	r.inputGrad = reuse(r.inputGrad, mainGrad.C, mainGrad.H, mainGrad.W)
	for i := range r.inputGrad.Data {
		r.inputGrad.Data[i] = mainGrad.Data[i] + skipGrad.Data[i]
	}
	return r.inputGrad
}

func (r *Residual) Params() []*Param {
	var result = r.branch.Params()
	if r.shortcut != nil {
		result = append(result, r.shortcut.Params()...)
	}
	return result
}

func (r *Residual) ThreadCopy() Layer {
	var result = &Residual{
		branch: r.branch.ThreadCopy().(*Sequential),
		relu:   NewReLU(),
	}
	if r.shortcut != nil {
		result.shortcut = r.shortcut.ThreadCopy()
	}
	return result
}

func projection(rnd *rand.Rand, inC, outC, stride int) Layer {
	if inC == outC && stride == 1 {
		return nil
	}
	return NewConv2D(inC, outC, 1, stride, 0).InitWeightsHe(rnd)
}

// NewBasicBlock is the two 3×3 convolution block of ResNet-18/34.
func NewBasicBlock(rnd *rand.Rand, inC, outC, stride int) *Residual {
	return &Residual{
		branch: NewSequential(
			NewConv2D(inC, outC, 3, stride, 1).InitWeightsHe(rnd),
			NewReLU(),
			NewConv2D(outC, outC, 3, 1, 1).InitWeightsZero(),
		),
		shortcut: projection(rnd, inC, outC, stride),
		relu:     NewReLU(),
	}
}

const bottleneckExpansion = 4

// NewBottleneck is the 1×1, 3×3, 1×1 block of ResNet-50 with 4× expansion.
func NewBottleneck(rnd *rand.Rand, inC, midC, stride int) *Residual {
	var outC = midC * bottleneckExpansion
	return &Residual{
		branch: NewSequential(
			NewConv2D(inC, midC, 1, 1, 0).InitWeightsHe(rnd),
			NewReLU(),
			NewConv2D(midC, midC, 3, stride, 1).InitWeightsHe(rnd),
			NewReLU(),
			NewConv2D(midC, outC, 1, 1, 0).InitWeightsZero(),
		),
		shortcut: projection(rnd, inC, outC, stride),
		relu:     NewReLU(),
	}
}
