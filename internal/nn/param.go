package nn

import "github.com/ChizhovVadim/vibeid/internal/ml"

// Param is a trainable weight tensor. Thread copies of a layer share Value
// and own their Gradients.
type Param struct {
	Name  string
	Value ml.Matrix
	Grad  ml.Gradients
}

func newParam(name string, rows, cols int) *Param {
	return &Param{
		Name:  name,
		Value: ml.NewMatrix(rows, cols),
		Grad:  ml.NewGradients(rows, cols),
	}
}

func (p *Param) threadCopy() *Param {
	return &Param{
		Name:  p.Name,
		Value: p.Value,
		Grad:  ml.NewGradients(p.Grad.Rows, p.Grad.Cols),
	}
}

func (p *Param) Size() int {
	return len(p.Value.Data)
}
