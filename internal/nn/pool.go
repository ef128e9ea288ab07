package nn

import "math"

type MaxPool2D struct {
	Kernel    int
	Stride    int
	Pad       int
	input     *Tensor
	output    *Tensor
	inputGrad *Tensor
	argmax    []int
}

func NewMaxPool2D(kernel, stride, pad int) *MaxPool2D {
	return &MaxPool2D{
		Kernel: kernel,
		Stride: stride,
		Pad:    pad,
	}
}

func (l *MaxPool2D) Forward(input *Tensor) *Tensor {
	l.input = input
	var outH = (input.H+2*l.Pad-l.Kernel)/l.Stride + 1
	var outW = (input.W+2*l.Pad-l.Kernel)/l.Stride + 1
	l.output = reuse(l.output, input.C, outH, outW)
	if cap(l.argmax) >= l.output.Len() {
		l.argmax = l.argmax[:l.output.Len()]
	} else {
		l.argmax = make([]int, l.output.Len())
	}

	var outIndex = 0
	for c := 0; c < input.C; c++ {
		for oy := 0; oy < outH; oy++ {
			for ox := 0; ox < outW; ox++ {
				var best = math.Inf(-1)
				var bestIndex = -1
				for ky := 0; ky < l.Kernel; ky++ {
					var iy = oy*l.Stride - l.Pad + ky
					if iy < 0 || iy >= input.H {
						continue
					}
					for kx := 0; kx < l.Kernel; kx++ {
						var ix = ox*l.Stride - l.Pad + kx
						if ix < 0 || ix >= input.W {
							continue
						}
						var index = input.Index(c, iy, ix)
						if bestIndex < 0 || input.Data[index] > best {
							best = input.Data[index]
							bestIndex = index
						}
					}
				}
				l.output.Data[outIndex] = best
				l.argmax[outIndex] = bestIndex
				outIndex++
			}
		}
	}
	return l.output
}

func (l *MaxPool2D) Backward(outputGrad *Tensor) *Tensor {
	l.inputGrad = reuse(l.inputGrad, l.input.C, l.input.H, l.input.W)
	for i, g := range outputGrad.Data {
		l.inputGrad.Data[l.argmax[i]] += g
	}
	return l.inputGrad
}

func (l *MaxPool2D) Params() []*Param { return nil }

func (l *MaxPool2D) ThreadCopy() Layer {
	return NewMaxPool2D(l.Kernel, l.Stride, l.Pad)
}

// GlobalAvgPool averages every channel down to a single value.
type GlobalAvgPool struct {
	input     *Tensor
	output    *Tensor
	inputGrad *Tensor
}

func NewGlobalAvgPool() *GlobalAvgPool { return &GlobalAvgPool{} }

func (l *GlobalAvgPool) Forward(input *Tensor) *Tensor {
	l.input = input
	l.output = reuse(l.output, input.C, 1, 1)
	var plane = input.H * input.W
	for c := 0; c < input.C; c++ {
		var sum float64
		for _, x := range input.Data[c*plane : (c+1)*plane] {
			sum += x
		}
		l.output.Data[c] = sum / float64(plane)
	}
	return l.output
}

func (l *GlobalAvgPool) Backward(outputGrad *Tensor) *Tensor {
	var input = l.input
	l.inputGrad = reuse(l.inputGrad, input.C, input.H, input.W)
	var plane = input.H * input.W
	for c := 0; c < input.C; c++ {
		var g = outputGrad.Data[c] / float64(plane)
		var grad = l.inputGrad.Data[c*plane : (c+1)*plane]
		for i := range grad {
			grad[i] = g
		}
	}
	return l.inputGrad
}

func (l *GlobalAvgPool) Params() []*Param { return nil }

func (l *GlobalAvgPool) ThreadCopy() Layer { return &GlobalAvgPool{} }
