package main

import (
	"context"
	"runtime"

	"github.com/ChizhovVadim/vibeid/internal/cwt"
	"github.com/ChizhovVadim/vibeid/internal/tfimage"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/sbwhitecap/tqdm"
	"github.com/sbwhitecap/tqdm/iterators"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

type encodeCmd struct {
	Input       []string `arg:"--input,required" help:"event CSV files"`
	OutputDir   string   `arg:"--output-dir,required" help:"root of the per-class image tree"`
	Size        int      `arg:"--size" default:"64" help:"image width and height"`
	EventLength int      `arg:"--event-length" default:"0" help:"required event length; 0 takes the first row's length"`
	Omega0      float64  `arg:"--omega0" default:"6" help:"Morlet central frequency"`
	MinScale    float64  `arg:"--min-scale" default:"2" help:"smallest wavelet scale in samples"`
	MaxScale    float64  `arg:"--max-scale" default:"0" help:"largest wavelet scale in samples; 0 means event length / 4"`
	ColorMap    string   `arg:"--colormap" default:"kindlmann" help:"color map name"`
	Workers     int      `arg:"--workers" help:"images encoded in parallel per file"`
}

func (c *encodeCmd) run(ctx context.Context, logger *zap.SugaredLogger) error {
	var workers = c.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	var encoder = &tfimage.Encoder{
		Fs: afero.NewOsFs(),
		Options: tfimage.Options{
			Size: c.Size,
			Wavelet: cwt.Morlet{
				Omega0:   c.Omega0,
				MinScale: c.MinScale,
				MaxScale: c.MaxScale,
				Scales:   c.Size,
			},
			ColorMap: c.ColorMap,
		},
		EventLength: c.EventLength,
		Workers:     workers,
		Logger:      logger,
	}
	if _, err := tfimage.NewColorMap(c.ColorMap); err != nil {
		return errors.Wrapf(err, "available: %v", tfimage.ColorMapNames())
	}

	var report tfimage.Report
	err := tqdm.With(iterators.Interval(0, len(c.Input)), "Encoding events", func(v interface{}) (brk bool) {
		if ctx.Err() != nil {
			return true
		}
		report.Files = append(report.Files, encoder.EncodeFile(ctx, c.Input[v.(int)], c.OutputDir))
		return false
	})
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var failed = report.Failed()
	for _, f := range failed {
		logger.Errorw("file not converted", "source", f.Source, "error", f.Err)
	}
	logger.Infow("encode finished",
		"files", len(report.Files),
		"images", humanize.Comma(int64(report.Images())),
		"failed", len(failed))
	if len(failed) != 0 {
		return errors.Errorf("%v of %v files failed", len(failed), len(report.Files))
	}
	return nil
}
