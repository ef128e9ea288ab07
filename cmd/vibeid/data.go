package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/ChizhovVadim/vibeid/internal/domain"
	"github.com/ChizhovVadim/vibeid/internal/events"
	"github.com/ChizhovVadim/vibeid/internal/kaggle"
	"github.com/ChizhovVadim/vibeid/internal/segment"
	"github.com/ChizhovVadim/vibeid/internal/split"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

type downloadCmd struct {
	KaggleJSON string `arg:"--kaggle-json" help:"path to kaggle.json with username and key"`
	Dataset    string `arg:"--dataset" default:"mainakml/vibeid-a-4-1" help:"owner/name of the dataset"`
	OutputDir  string `arg:"--output-dir" default:"vibeid-a-4-1/VIBeID_A_4_1" help:"extraction directory"`
}

func (c *downloadCmd) run(ctx context.Context, logger *zap.SugaredLogger) error {
	if kaggle.Ready(c.OutputDir) {
		logger.Infow("dataset already present", "outputDir", c.OutputDir)
		return nil
	}
	creds, err := kaggle.ResolveCredentials(c.KaggleJSON)
	if err != nil {
		return err
	}
	var client = kaggle.NewClient(creds, logger)
	_, err = client.DownloadDataset(ctx, c.Dataset, c.OutputDir)
	return err
}

type segmentCmd struct {
	Input       []string `arg:"--input,required" help:"raw trace files, one sample per line"`
	Label       string   `arg:"--label" help:"class label; defaults to the trace file name"`
	Output      string   `arg:"--output,required" help:"events CSV file"`
	EventLength int      `arg:"--event-length" default:"500" help:"samples per event"`
	Smooth      int      `arg:"--smooth" default:"32" help:"envelope smoothing window"`
	Threshold   float64  `arg:"--threshold" default:"3" help:"onset threshold in envelope standard deviations"`
	PreTrigger  int      `arg:"--pre-trigger" default:"-1" help:"samples kept before the onset; -1 means event length / 5"`
	Gap         int      `arg:"--gap" default:"0" help:"samples skipped after every event"`
}

func (c *segmentCmd) run(ctx context.Context, logger *zap.SugaredLogger) error {
	var cfg = segment.Config{
		EventLength: c.EventLength,
		Smooth:      c.Smooth,
		Threshold:   c.Threshold,
		PreTrigger:  c.PreTrigger,
		Gap:         c.Gap,
	}
	var all []domain.Event
	for _, path := range c.Input {
		if err := ctx.Err(); err != nil {
			return err
		}
		var label = c.Label
		if label == "" {
			label = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}
		trace, err := readTrace(path)
		if err != nil {
			return err
		}
		list, err := segment.Segment(trace, label, cfg)
		if err != nil {
			return errors.Wrapf(err, "segment %v", path)
		}
		logger.Infow("trace segmented",
			"path", path,
			"label", label,
			"samples", len(trace),
			"events", len(list))
		all = append(all, list...)
	}

	if err := os.MkdirAll(filepath.Dir(c.Output), 0o755); err != nil {
		return err
	}
	f, err := os.Create(c.Output)
	if err != nil {
		return err
	}
	if err := events.WriteEvents(f, all); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	logger.Infow("events written",
		"output", c.Output,
		"events", humanize.Comma(int64(len(all))))
	return nil
}

func readTrace(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	trace, err := events.ReadTrace(f)
	if err != nil {
		return nil, errors.Wrapf(err, "read %v", path)
	}
	return trace, nil
}

type splitCmd struct {
	InputDir  string  `arg:"--input-dir,required" help:"directory of class subdirectories"`
	OutputDir string  `arg:"--output-dir,required" help:"destination of the train/test trees"`
	TestSize  float64 `arg:"--test-size" default:"0.2" help:"held-out test fraction"`
	ValSize   float64 `arg:"--val-size" default:"0" help:"held-out validation fraction"`
	Seed      int64   `arg:"--seed" default:"42" help:"shuffle seed"`
}

func (c *splitCmd) run(ctx context.Context, logger *zap.SugaredLogger) error {
	counts, err := split.Split(afero.NewOsFs(), c.InputDir, c.OutputDir, split.Options{
		TestFraction: c.TestSize,
		ValFraction:  c.ValSize,
		Seed:         c.Seed,
	}, logger)
	if err != nil {
		return err
	}
	var total split.ClassCounts
	for _, cc := range counts {
		total.Train += cc.Train
		total.Val += cc.Val
		total.Test += cc.Test
	}
	logger.Infow("split finished",
		"classes", len(counts),
		"train", total.Train,
		"val", total.Val,
		"test", total.Test)
	return nil
}
