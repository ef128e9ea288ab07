// Package tfimage turns footstep events into time-frequency images.
package tfimage

import (
	"image"
	"image/color"
	"image/png"
	"io"
	"sort"

	"github.com/ChizhovVadim/vibeid/internal/cwt"
	"github.com/pkg/errors"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
)

const (
	DefaultSize     = 64
	DefaultColorMap = "kindlmann"
)

var colorMaps = map[string]func() palette.ColorMap{
	"kindlmann":          moreland.Kindlmann,
	"extended-kindlmann": moreland.ExtendedKindlmann,
	"blackbody":          moreland.BlackBody,
	"extended-blackbody": moreland.ExtendedBlackBody,
	"bluered":            func() palette.ColorMap { return moreland.SmoothBlueRed() },
}

var ErrUnknownColorMap = errors.New("unknown color map")

func ColorMapNames() []string {
	var result = make([]string, 0, len(colorMaps))
	for name := range colorMaps {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

// NewColorMap returns a color map over [0, 1].
func NewColorMap(name string) (palette.ColorMap, error) {
	var ctor, ok = colorMaps[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownColorMap, "%q (known: %v)", name, ColorMapNames())
	}
	var cmap = ctor()
	cmap.SetMin(0)
	cmap.SetMax(1)
	return cmap, nil
}

// Render draws a size×size image of the scalogram. The smallest scale is the
// top row, time runs left to right sampled by nearest index and magnitudes
// are normalized by the scalogram maximum.
func Render(sc *cwt.Scalogram, size int, cmap palette.ColorMap) (*image.RGBA, error) {
	if len(sc.Power) != size {
		return nil, errors.Errorf("scalogram has %v scales, image height is %v", len(sc.Power), size)
	}
	var peak = sc.Max()
	var img = image.NewRGBA(image.Rect(0, 0, size, size))
	for y, row := range sc.Power {
		var n = len(row)
		for x := 0; x < size; x++ {
			var v float64
			if peak > 0 {
				v = row[x*n/size] / peak
			}
			if v > 1 {
				v = 1
			}
			c, err := cmap.At(v)
			if err != nil {
				return nil, errors.Wrapf(err, "color at %v", v)
			}
			img.SetRGBA(x, y, color.RGBAModel.Convert(c).(color.RGBA))
		}
	}
	return img, nil
}

// Options controls the event to image conversion.
type Options struct {
	Size     int
	Wavelet  cwt.Morlet
	ColorMap string
}

func DefaultOptions() Options {
	return Options{
		Size:     DefaultSize,
		Wavelet:  cwt.NewMorlet(DefaultSize),
		ColorMap: DefaultColorMap,
	}
}

// EncodeEvent writes the PNG image of one event signal to w.
func EncodeEvent(w io.Writer, signal []float64, opts Options) error {
	var wavelet = opts.Wavelet
	wavelet.Scales = opts.Size
	sc, err := wavelet.Transform(signal)
	if err != nil {
		return err
	}
	cmap, err := NewColorMap(opts.ColorMap)
	if err != nil {
		return err
	}
	img, err := Render(sc, opts.Size, cmap)
	if err != nil {
		return err
	}
	var encoder = png.Encoder{CompressionLevel: png.DefaultCompression}
	return encoder.Encode(w, img)
}
