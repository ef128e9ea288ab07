package tfimage

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ChizhovVadim/vibeid/internal/events"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Encoder converts event tables into per-class image directories.
type Encoder struct {
	Fs          afero.Fs
	Options     Options
	EventLength int
	Workers     int
	Logger      *zap.SugaredLogger
}

// FileResult describes the conversion of one event table. A non-nil Err
// means no image of that file should be trusted.
type FileResult struct {
	Source string
	Images int
	Err    error
}

type Report struct {
	Files []FileResult
}

func (r *Report) Images() int {
	var result int
	for _, f := range r.Files {
		result += f.Images
	}
	return result
}

func (r *Report) Failed() []FileResult {
	var result []FileResult
	for _, f := range r.Files {
		if f.Err != nil {
			result = append(result, f)
		}
	}
	return result
}

// EncodeFiles converts every source. A failing file is reported and the
// batch goes on; only cancellation of ctx stops it early.
func (e *Encoder) EncodeFiles(ctx context.Context, sources []string, outDir string) Report {
	var report Report
	for _, source := range sources {
		if ctx.Err() != nil {
			report.Files = append(report.Files, FileResult{Source: source, Err: ctx.Err()})
			continue
		}
		report.Files = append(report.Files, e.EncodeFile(ctx, source, outDir))
	}
	return report
}

func (e *Encoder) EncodeFile(ctx context.Context, source, outDir string) FileResult {
	var result = FileResult{Source: source}
	images, err := e.encodeFile(ctx, source, outDir)
	result.Images = images
	if err != nil {
		result.Err = errors.Wrapf(err, "encode %v", source)
		e.Logger.Warnw("encode file failed",
			"source", source,
			"error", err)
		return result
	}
	e.Logger.Infow("encode file finished",
		"source", source,
		"images", images)
	return result
}

func (e *Encoder) encodeFile(ctx context.Context, source, outDir string) (int, error) {
	if _, err := NewColorMap(e.Options.ColorMap); err != nil {
		return 0, err
	}
	f, err := e.Fs.Open(source)
	if err != nil {
		return 0, err
	}
	list, err := events.ReadEvents(f)
	f.Close()
	if err != nil {
		return 0, err
	}
	if err := events.CheckLength(list, e.EventLength); err != nil {
		return 0, err
	}

	var base = strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	var images = make([][]byte, len(list))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, e.Workers))
	for i := range list {
		var row = i
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var buf bytes.Buffer
			if err := EncodeEvent(&buf, list[row].Signal, e.Options); err != nil {
				return errors.Wrapf(err, "row %v", row+1)
			}
			images[row] = buf.Bytes()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	// Nothing is written unless every row encoded.
	var written []string
	for row, event := range list {
		var path = filepath.Join(outDir, event.Label, fmt.Sprintf("%v_%05d.png", base, row+1))
		err := e.Fs.MkdirAll(filepath.Dir(path), 0o755)
		if err == nil {
			err = afero.WriteFile(e.Fs, path, images[row], 0o644)
		}
		if err != nil {
			for _, p := range written {
				e.Fs.Remove(p)
			}
			return 0, err
		}
		written = append(written, path)
	}
	return len(list), nil
}
