package nn

// Tensor is a single C×H×W activation volume stored channel-major.
type Tensor struct {
	C, H, W int
	Data    []float64
}

func NewTensor(c, h, w int) *Tensor {
	return &Tensor{
		C:    c,
		H:    h,
		W:    w,
		Data: make([]float64, c*h*w),
	}
}

func (t *Tensor) Index(c, y, x int) int {
	return (c*t.H+y)*t.W + x
}

func (t *Tensor) At(c, y, x int) float64 {
	return t.Data[t.Index(c, y, x)]
}

func (t *Tensor) Len() int {
	return len(t.Data)
}

// reuse returns t when it already has the requested shape, a new tensor otherwise.
// Layers keep their output buffers between samples this way.
func reuse(t *Tensor, c, h, w int) *Tensor {
	if t != nil && t.C == c && t.H == h && t.W == w {
		for i := range t.Data {
			t.Data[i] = 0
		}
		return t
	}
	return NewTensor(c, h, w)
}
