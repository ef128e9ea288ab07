package nn

import (
	"fmt"
	"math/rand"

	"github.com/ChizhovVadim/vibeid/internal/ml"
)

// Conv2D is a 2D convolution with square kernels, zero padding and bias.
// Weights are a OutC × (InC·K·K) matrix.
type Conv2D struct {
	InC, OutC int
	Kernel    int
	Stride    int
	Pad       int
	weights   *Param
	biases    *Param
	input     *Tensor
	output    *Tensor
	inputGrad *Tensor
}

func NewConv2D(inC, outC, kernel, stride, pad int) *Conv2D {
	return &Conv2D{
		InC:     inC,
		OutC:    outC,
		Kernel:  kernel,
		Stride:  stride,
		Pad:     pad,
		weights: newParam("conv.weights", outC, inC*kernel*kernel),
		biases:  newParam("conv.biases", outC, 1),
	}
}

func (l *Conv2D) InitWeightsHe(rnd *rand.Rand) *Conv2D {
	ml.InitHe(rnd, l.weights.Value.Data, l.InC*l.Kernel*l.Kernel)
	return l
}

// InitWeightsZero makes the layer output only its bias. Used for the last
// convolution of a residual branch so that a fresh block starts as identity.
func (l *Conv2D) InitWeightsZero() *Conv2D {
	l.weights.Value.Reset()
	return l
}

func (l *Conv2D) OutputSize(h, w int) (int, int) {
	return (h+2*l.Pad-l.Kernel)/l.Stride + 1, (w+2*l.Pad-l.Kernel)/l.Stride + 1
}

func (l *Conv2D) weightIndex(oc, ic, ky, kx int) int {
	var col = (ic*l.Kernel+ky)*l.Kernel + kx
	return col*l.OutC + oc
}

func (l *Conv2D) Forward(input *Tensor) *Tensor {
	if input.C != l.InC {
		panic(fmt.Sprintf("conv2d: got %v input channels, want %v", input.C, l.InC))
	}
	l.input = input
	var outH, outW = l.OutputSize(input.H, input.W)
	l.output = reuse(l.output, l.OutC, outH, outW)

	var w = l.weights.Value.Data
	var planeIn = input.H * input.W
	var planeOut = outH * outW
	for oc := 0; oc < l.OutC; oc++ {
		var out = l.output.Data[oc*planeOut : (oc+1)*planeOut]
		var bias = l.biases.Value.Data[oc]
		for i := range out {
			out[i] = bias
		}
		for ic := 0; ic < l.InC; ic++ {
			var in = input.Data[ic*planeIn : (ic+1)*planeIn]
			for ky := 0; ky < l.Kernel; ky++ {
				for kx := 0; kx < l.Kernel; kx++ {
					var weight = w[l.weightIndex(oc, ic, ky, kx)]
					for oy := 0; oy < outH; oy++ {
						var iy = oy*l.Stride - l.Pad + ky
						if iy < 0 || iy >= input.H {
							continue
						}
						var inRow = in[iy*input.W : (iy+1)*input.W]
						var outRow = out[oy*outW : (oy+1)*outW]
						for ox := range outRow {
							var ix = ox*l.Stride - l.Pad + kx
							if ix < 0 || ix >= input.W {
								continue
							}
							outRow[ox] += weight * inRow[ix]
						}
					}
				}
			}
		}
	}
	return l.output
}

func (l *Conv2D) Backward(outputGrad *Tensor) *Tensor {
	var input = l.input
	l.inputGrad = reuse(l.inputGrad, input.C, input.H, input.W)

	var w = l.weights.Value.Data
	var outH, outW = outputGrad.H, outputGrad.W
	var planeIn = input.H * input.W
	var planeOut = outH * outW
	for oc := 0; oc < l.OutC; oc++ {
		var g = outputGrad.Data[oc*planeOut : (oc+1)*planeOut]
		var biasGrad float64
		for _, x := range g {
			biasGrad += x
		}
		l.biases.Grad.AddAt(oc, biasGrad)

		for ic := 0; ic < l.InC; ic++ {
			var in = input.Data[ic*planeIn : (ic+1)*planeIn]
			var inGrad = l.inputGrad.Data[ic*planeIn : (ic+1)*planeIn]
			for ky := 0; ky < l.Kernel; ky++ {
				for kx := 0; kx < l.Kernel; kx++ {
					var index = l.weightIndex(oc, ic, ky, kx)
					var weight = w[index]
					var weightGrad float64
					for oy := 0; oy < outH; oy++ {
						var iy = oy*l.Stride - l.Pad + ky
						if iy < 0 || iy >= input.H {
							continue
						}
						var inRow = in[iy*input.W : (iy+1)*input.W]
						var inGradRow = inGrad[iy*input.W : (iy+1)*input.W]
						var gRow = g[oy*outW : (oy+1)*outW]
						for ox, gv := range gRow {
							var ix = ox*l.Stride - l.Pad + kx
							if ix < 0 || ix >= input.W {
								continue
							}
							weightGrad += gv * inRow[ix]
							inGradRow[ix] += gv * weight
						}
					}
					l.weights.Grad.AddAt(index, weightGrad)
				}
			}
		}
	}
	return l.inputGrad
}

func (l *Conv2D) Params() []*Param {
	return []*Param{l.weights, l.biases}
}

func (l *Conv2D) ThreadCopy() Layer {
	return &Conv2D{
		InC:     l.InC,
		OutC:    l.OutC,
		Kernel:  l.Kernel,
		Stride:  l.Stride,
		Pad:     l.Pad,
		weights: l.weights.threadCopy(),
		biases:  l.biases.threadCopy(),
	}
}
