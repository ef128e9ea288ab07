package nn

import (
	"github.com/ChizhovVadim/vibeid/internal/ml"
	"github.com/pkg/errors"
)

// FreezeMode selects which top-level units of a model are trained.
type FreezeMode string

const (
	FreezeNone  FreezeMode = "all"
	FreezeLast3 FreezeMode = "last3"
)

const lastTrainableUnits = 3

var ErrUnknownFreezeMode = errors.New("unknown freeze mode")

func ParseFreezeMode(s string) (FreezeMode, error) {
	switch FreezeMode(s) {
	case FreezeNone, FreezeLast3:
		return FreezeMode(s), nil
	}
	return "", errors.Wrapf(ErrUnknownFreezeMode, "%q (want %q or %q)", s, FreezeNone, FreezeLast3)
}

// Model is a classifier built from top-level units (stem, residual blocks,
// pooling, head). Units before trainableFrom are frozen: they run forward but
// receive no gradients and are not updated.
type Model struct {
	Arch          Architecture
	units         []Layer
	trainableFrom int
	cost          ml.IClassificationCost
	logitsGrad    *Tensor
}

func newModel(arch Architecture, units []Layer) *Model {
	return &Model{
		Arch:       arch,
		units:      units,
		cost:       &ml.SoftmaxCrossEntropyCost{},
		logitsGrad: NewTensor(arch.Classes, 1, 1),
	}
}

func (m *Model) ThreadCopy() *Model {
	var units = make([]Layer, len(m.units))
	for i, u := range m.units {
		units[i] = u.ThreadCopy()
	}
	var result = newModel(m.Arch, units)
	result.trainableFrom = m.trainableFrom
	return result
}

// Freeze applies mode. FreezeLast3 keeps only the last three units that own
// parameters trainable.
func (m *Model) Freeze(mode FreezeMode) error {
	switch mode {
	case FreezeNone:
		m.trainableFrom = 0
	case FreezeLast3:
		var found = 0
		m.trainableFrom = 0
		for i := len(m.units) - 1; i >= 0; i-- {
			if len(m.units[i].Params()) == 0 {
				continue
			}
			found++
			if found == lastTrainableUnits {
				m.trainableFrom = i
				break
			}
		}
	default:
		return errors.Wrapf(ErrUnknownFreezeMode, "%q", mode)
	}
	return nil
}

func (m *Model) Forward(input *Tensor) []float64 {
	var x = input
	for _, u := range m.units {
		x = u.Forward(x)
	}
	return x.Data
}

func (m *Model) Predict(input *Tensor) int {
	return ml.Argmax(m.Forward(input))
}

// CalcCost returns the loss on one sample and the predicted class.
func (m *Model) CalcCost(input *Tensor, label int) (float64, int) {
	var logits = m.Forward(input)
	return m.cost.Cost(logits, label), ml.Argmax(logits)
}

// Train runs forward and backward for one sample, accumulating gradients of
// the trainable units.
func (m *Model) Train(input *Tensor, label int) (float64, int) {
	var logits = m.Forward(input)
	var cost = m.cost.Cost(logits, label)
	var predicted = ml.Argmax(logits)

	m.cost.CostPrime(logits, label, m.logitsGrad.Data)
	var g = m.logitsGrad
	for i := len(m.units) - 1; i >= m.trainableFrom; i-- {
		g = m.units[i].Backward(g)
	}
	return cost, predicted
}

func (m *Model) Params() []*Param {
	var result []*Param
	for _, u := range m.units {
		result = append(result, u.Params()...)
	}
	return result
}

func (m *Model) TrainableParams() []*Param {
	var result []*Param
	for _, u := range m.units[m.trainableFrom:] {
		result = append(result, u.Params()...)
	}
	return result
}

func (m *Model) ParamCount() int {
	var count int
	for _, p := range m.Params() {
		count += p.Size()
	}
	return count
}

func (m *Model) AddGradients(mainModel *Model) {
	if m == mainModel {
		return
	}
	var dst = mainModel.TrainableParams()
	for i, p := range m.TrainableParams() {
		p.Grad.AddTo(&dst[i].Grad)
	}
}

func (m *Model) ApplyGradients(opt *ml.Adam, scale float64) {
	for _, p := range m.TrainableParams() {
		p.Grad.Apply(&p.Value, opt, scale)
	}
}
