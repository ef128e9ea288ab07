// Package cwt computes continuous wavelet transforms of short signals.
package cwt

import (
	"math"
	"math/cmplx"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	DefaultOmega0   = 6.0
	DefaultMinScale = 2.0
	minSignalLength = 4
)

var ErrInvalidSignal = errors.New("invalid signal")

// Morlet configures an analytic Morlet wavelet transform evaluated on
// Scales geometrically spaced scales between MinScale and MaxScale (in
// samples). A zero MaxScale means a quarter of the signal length.
type Morlet struct {
	Omega0   float64
	MinScale float64
	MaxScale float64
	Scales   int
}

func NewMorlet(scales int) Morlet {
	return Morlet{
		Omega0:   DefaultOmega0,
		MinScale: DefaultMinScale,
		Scales:   scales,
	}
}

// Scalogram holds |W(scale, time)|; row i corresponds to Scales[i].
type Scalogram struct {
	Scales []float64
	Power  [][]float64
}

func (s *Scalogram) Max() float64 {
	var result float64
	for _, row := range s.Power {
		for _, x := range row {
			if x > result {
				result = x
			}
		}
	}
	return result
}

func (m Morlet) scales(n int) ([]float64, error) {
	var maxScale = m.MaxScale
	if maxScale == 0 {
		maxScale = float64(n) / 4
	}
	if m.Scales < 1 || m.Omega0 <= 0 || m.MinScale <= 0 || maxScale < m.MinScale {
		return nil, errors.Errorf("bad wavelet parameters %+v for %v samples", m, n)
	}
	var result = make([]float64, m.Scales)
	for i := range result {
		if m.Scales == 1 {
			result[i] = m.MinScale
			continue
		}
		var t = float64(i) / float64(m.Scales-1)
		result[i] = m.MinScale * math.Pow(maxScale/m.MinScale, t)
	}
	return result, nil
}

// Transform removes the mean of signal and convolves it with the wavelet at
// every scale in the frequency domain.
func (m Morlet) Transform(signal []float64) (*Scalogram, error) {
	var n = len(signal)
	if n < minSignalLength {
		return nil, errors.Wrapf(ErrInvalidSignal, "%v samples", n)
	}
	for i, x := range signal {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, errors.Wrapf(ErrInvalidSignal, "sample %v is %v", i, x)
		}
	}
	scales, err := m.scales(n)
	if err != nil {
		return nil, err
	}
	mean, err := stats.Mean(stats.Float64Data(signal))
	if err != nil {
		return nil, errors.Wrap(err, "signal mean")
	}

	var size = paddedSize(n)
	var seq = make([]complex128, size)
	for i, x := range signal {
		seq[i] = complex(x-mean, 0)
	}
	var fft = fourier.NewCmplxFFT(size)
	var coeff = fft.Coefficients(nil, seq)

	var omega = make([]float64, size)
	for k := range omega {
		var f = k
		if k > size/2 {
			f = k - size
		}
		omega[k] = 2 * math.Pi * float64(f) / float64(size)
	}

	var norm = math.Pow(math.Pi, -0.25)
	var filtered = make([]complex128, size)
	var result = &Scalogram{
		Scales: scales,
		Power:  make([][]float64, len(scales)),
	}
	for i, s := range scales {
		var amplitude = norm * math.Sqrt(2*math.Pi*s)
		for k, w := range omega {
			if w <= 0 {
				filtered[k] = 0
				continue
			}
			var d = s*w - m.Omega0
			filtered[k] = coeff[k] * complex(amplitude*math.Exp(-d*d/2), 0)
		}
		var inverse = fft.Sequence(seq, filtered)
		var row = make([]float64, n)
		for t := range row {
			row[t] = cmplx.Abs(inverse[t]) / float64(size)
		}
		result.Power[i] = row
	}
	return result, nil
}

// paddedSize is the smallest power of two holding the signal twice, which
// keeps the circular convolution from wrapping onto the signal.
func paddedSize(n int) int {
	var size = 1
	for size < 2*n {
		size <<= 1
	}
	return size
}
