// Package split partitions a class-labeled image directory into disjoint
// train/test (and optionally validation) trees with the same per-class
// proportions.
package split

import (
	"io"
	"math"
	"math/rand"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ChizhovVadim/vibeid/internal/domain"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	DefaultTestFraction = 0.2
	DefaultSeed         = 42
)

var ErrInvalidFraction = errors.New("invalid split fraction")

type Options struct {
	TestFraction float64
	ValFraction  float64
	Seed         int64
}

func (o Options) Validate() error {
	if !(o.TestFraction > 0 && o.TestFraction < 1) {
		return errors.Wrapf(ErrInvalidFraction, "test fraction %v is outside (0, 1)", o.TestFraction)
	}
	if o.ValFraction < 0 || o.TestFraction+o.ValFraction >= 1 {
		return errors.Wrapf(ErrInvalidFraction, "validation fraction %v with test fraction %v", o.ValFraction, o.TestFraction)
	}
	return nil
}

type ClassCounts struct {
	Class string
	Train int
	Val   int
	Test  int
}

// HeldOut returns how many of n samples go to a subset of the given fraction.
func HeldOut(n int, fraction float64) int {
	return int(math.Round(fraction * float64(n)))
}

// Assign returns the subset of every name. The names are sorted and then
// shuffled with seed, so the result does not depend on directory order.
func Assign(names []string, opts Options) map[string]string {
	var sorted = append([]string(nil), names...)
	sort.Strings(sorted)
	var rnd = rand.New(rand.NewSource(opts.Seed))
	rnd.Shuffle(len(sorted), func(i, j int) {
		sorted[i], sorted[j] = sorted[j], sorted[i]
	})

	var testCount = HeldOut(len(sorted), opts.TestFraction)
	var valCount = HeldOut(len(sorted), opts.ValFraction)
	if testCount+valCount > len(sorted) {
		valCount = len(sorted) - testCount
	}
	var result = make(map[string]string, len(sorted))
	for i, name := range sorted {
		switch {
		case i < testCount:
			result[name] = domain.TestSubset
		case i < testCount+valCount:
			result[name] = domain.ValSubset
		default:
			result[name] = domain.TrainSubset
		}
	}
	return result
}

var subsets = []string{domain.TrainSubset, domain.ValSubset, domain.TestSubset}

// clearSubsets removes the subset trees of a previous split under dstRoot.
func clearSubsets(fs afero.Fs, srcRoot, dstRoot string) error {
	var src = filepath.Clean(srcRoot)
	for _, subset := range subsets {
		var dir = filepath.Join(dstRoot, subset)
		if src == dir || strings.HasPrefix(src, dir+string(filepath.Separator)) {
			return errors.Errorf("source %v is inside output subset %v", srcRoot, dir)
		}
	}
	for _, subset := range subsets {
		if err := fs.RemoveAll(filepath.Join(dstRoot, subset)); err != nil {
			return errors.Wrapf(err, "clear %v", subset)
		}
	}
	return nil
}

// Split copies srcRoot/<class>/<file> to dstRoot/<subset>/<class>/<file>.
// Subset trees left in dstRoot by an earlier split are replaced.
func Split(fs afero.Fs, srcRoot, dstRoot string, opts Options, logger *zap.SugaredLogger) ([]ClassCounts, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := clearSubsets(fs, srcRoot, dstRoot); err != nil {
		return nil, err
	}
	entries, err := afero.ReadDir(fs, srcRoot)
	if err != nil {
		return nil, errors.Wrapf(err, "read %v", srcRoot)
	}

	var result []ClassCounts
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		var class = entry.Name()
		files, err := afero.ReadDir(fs, filepath.Join(srcRoot, class))
		if err != nil {
			return nil, err
		}
		var names []string
		for _, file := range files {
			if !file.IsDir() {
				names = append(names, file.Name())
			}
		}

		var counts = ClassCounts{Class: class}
		var assignment = Assign(names, opts)
		for _, name := range names {
			var subset = assignment[name]
			var dst = filepath.Join(dstRoot, subset, class, name)
			if err := copyFile(fs, filepath.Join(srcRoot, class, name), dst); err != nil {
				return nil, err
			}
			switch subset {
			case domain.TrainSubset:
				counts.Train++
			case domain.ValSubset:
				counts.Val++
			case domain.TestSubset:
				counts.Test++
			}
		}
		logger.Infow("split class",
			"class", class,
			"train", counts.Train,
			"val", counts.Val,
			"test", counts.Test)
		if counts.Train == 0 {
			logger.Warnw("class has no training images",
				"class", class,
				"images", len(names))
		}
		result = append(result, counts)
	}
	if len(result) == 0 {
		return nil, errors.Errorf("no class directories in %v", srcRoot)
	}
	return result, nil
}

func copyFile(fs afero.Fs, src, dst string) error {
	if err := fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := fs.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.Wrapf(err, "copy %v", src)
	}
	return out.Close()
}
