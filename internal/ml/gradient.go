package ml

import "math"

const (
	DefaultLearningRate = 0.001
	Beta1               = 0.9
	Beta2               = 0.999
	Epsilon             = 1e-8
)

// Adam holds the optimizer state shared by all gradients of a model.
// Per-weight moments live in Gradient.
type Adam struct {
	LearningRate float64
	step         int
	correction1  float64
	correction2  float64
}

func NewAdam(learningRate float64) *Adam {
	return &Adam{LearningRate: learningRate}
}

// NextStep must be called once before applying the gradients of a batch.
func (a *Adam) NextStep() {
	a.step++
	a.correction1 = 1 - math.Pow(Beta1, float64(a.step))
	a.correction2 = 1 - math.Pow(Beta2, float64(a.step))
}

type Gradient struct {
	Value float64
	M1    float64
	M2    float64
}

func (g *Gradient) Calculate(opt *Adam, scale float64) float64 {
	var value = g.Value * scale
	g.M1 = g.M1*Beta1 + value*(1-Beta1)
	g.M2 = g.M2*Beta2 + (value*value)*(1-Beta2)

	var m1 = g.M1 / opt.correction1
	var m2 = g.M2 / opt.correction2
	return opt.LearningRate * m1 / (math.Sqrt(m2) + Epsilon)
}

type Gradients struct {
	Data []Gradient
	Rows int
	Cols int
}

func NewGradients(rows, cols int) Gradients {
	return Gradients{
		Data: make([]Gradient, cols*rows),
		Rows: rows,
		Cols: cols,
	}
}

func (g *Gradients) Add(row, col int, delta float64) {
	g.Data[col*g.Rows+row].Value += delta
}

func (g *Gradients) AddAt(index int, delta float64) {
	g.Data[index].Value += delta
}

func (g *Gradients) Value(index int) float64 {
	return g.Data[index].Value
}

func (g *Gradients) AddTo(parent *Gradients) {
	for i := range g.Data {
		parent.Data[i].Value += g.Data[i].Value
		g.Data[i].Value = 0
	}
}

// Apply updates m with the accumulated gradients multiplied by scale
// (1/batch size for a mean loss) and clears them.
func (g *Gradients) Apply(m *Matrix, opt *Adam, scale float64) {
	for i := range g.Data {
		m.Data[i] -= g.Data[i].Calculate(opt, scale)
		g.Data[i].Value = 0
	}
}
