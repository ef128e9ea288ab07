package split

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/ChizhovVadim/vibeid/internal/domain"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func makeClasses(t *testing.T, fs afero.Fs, root string, sizes map[string]int) {
	t.Helper()
	for class, n := range sizes {
		for i := 0; i < n; i++ {
			var path = filepath.Join(root, class, fmt.Sprintf("img_%03d.png", i))
			require.NoError(t, afero.WriteFile(fs, path, []byte(path), 0o644))
		}
	}
}

func listNames(t *testing.T, fs afero.Fs, dir string) []string {
	t.Helper()
	files, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil
	}
	var result []string
	for _, f := range files {
		result = append(result, f.Name())
	}
	return result
}

func TestSplitHundredImages(t *testing.T) {
	var fs = afero.NewMemMapFs()
	makeClasses(t, fs, "/images", map[string]int{"P01": 100})

	counts, err := Split(fs, "/images", "/split", Options{TestFraction: 0.2, Seed: 1}, zap.NewNop().Sugar())
	require.NoError(t, err)
	assert.Equal(t, []ClassCounts{{Class: "P01", Train: 80, Test: 20}}, counts)
	assert.Len(t, listNames(t, fs, "/split/train/P01"), 80)
	assert.Len(t, listNames(t, fs, "/split/test/P01"), 20)

	data, err := afero.ReadFile(fs, filepath.Join("/split/test/P01", listNames(t, fs, "/split/test/P01")[0]))
	require.NoError(t, err)
	assert.Contains(t, string(data), "/images/P01/img_")
}

func TestSplitIsDisjointAndBalanced(t *testing.T) {
	var sizes = map[string]int{"A": 7, "B": 33, "C": 1, "D": 50}
	for _, fraction := range []float64{0.01, 0.1, 0.25, 0.5, 0.77, 0.99} {
		var fs = afero.NewMemMapFs()
		makeClasses(t, fs, "/in", sizes)
		counts, err := Split(fs, "/in", "/out", Options{TestFraction: fraction, Seed: 7}, zap.NewNop().Sugar())
		require.NoError(t, err)
		require.Len(t, counts, len(sizes))

		for _, c := range counts {
			var n = sizes[c.Class]
			assert.Equal(t, n, c.Train+c.Test)
			assert.InDelta(t, fraction*float64(n), float64(c.Test), 1, "class %v fraction %v", c.Class, fraction)

			var seen = make(map[string]bool)
			for _, subset := range []string{domain.TrainSubset, domain.TestSubset} {
				for _, name := range listNames(t, fs, filepath.Join("/out", subset, c.Class)) {
					assert.False(t, seen[name], "%v appears twice", name)
					seen[name] = true
				}
			}
			assert.Len(t, seen, n)
		}
	}
}

func TestSplitWithValidation(t *testing.T) {
	var fs = afero.NewMemMapFs()
	makeClasses(t, fs, "/in", map[string]int{"A": 20})
	counts, err := Split(fs, "/in", "/out", Options{TestFraction: 0.2, ValFraction: 0.1, Seed: 3}, zap.NewNop().Sugar())
	require.NoError(t, err)
	assert.Equal(t, []ClassCounts{{Class: "A", Train: 14, Val: 2, Test: 4}}, counts)
	assert.Len(t, listNames(t, fs, "/out/val/A"), 2)
}

func TestAssignIsReproducible(t *testing.T) {
	var names = []string{"e", "b", "a", "d", "c", "f"}
	var opts = Options{TestFraction: 0.5, Seed: 11}
	var first = Assign(names, opts)
	var reversed = []string{"f", "c", "d", "a", "b", "e"}
	assert.Equal(t, first, Assign(reversed, opts))
}

func TestSplitRejectsBadFractions(t *testing.T) {
	var fs = afero.NewMemMapFs()
	makeClasses(t, fs, "/in", map[string]int{"A": 3})
	for _, opts := range []Options{
		{TestFraction: 0},
		{TestFraction: 1},
		{TestFraction: -0.1},
		{TestFraction: 0.5, ValFraction: 0.5},
		{TestFraction: 0.5, ValFraction: -0.1},
	} {
		_, err := Split(fs, "/in", "/out", opts, zap.NewNop().Sugar())
		assert.True(t, errors.Is(err, ErrInvalidFraction), "%+v", opts)
	}
}

func TestHeldOut(t *testing.T) {
	assert.Equal(t, 20, HeldOut(100, 0.2))
	assert.Equal(t, 2, HeldOut(7, 0.25))
	assert.Equal(t, 0, HeldOut(1, 0.2))
}

func TestSplitRerunReplacesPreviousSplit(t *testing.T) {
	var fs = afero.NewMemMapFs()
	makeClasses(t, fs, "/in", map[string]int{"P01": 10})
	for _, seed := range []int64{1, 2} {
		counts, err := Split(fs, "/in", "/dst", Options{TestFraction: 0.2, Seed: seed}, zap.NewNop().Sugar())
		require.NoError(t, err)
		assert.Equal(t, []ClassCounts{{Class: "P01", Train: 8, Test: 2}}, counts)
	}

	var train = listNames(t, fs, "/dst/train/P01")
	var test = listNames(t, fs, "/dst/test/P01")
	assert.Len(t, train, 8)
	assert.Len(t, test, 2)
	for _, name := range test {
		assert.NotContains(t, train, name)
	}
}

func TestSplitRejectsSourceInsideOutput(t *testing.T) {
	var fs = afero.NewMemMapFs()
	makeClasses(t, fs, "/data/train", map[string]int{"P01": 4})
	_, err := Split(fs, "/data/train", "/data", Options{TestFraction: 0.5}, zap.NewNop().Sugar())
	assert.Error(t, err)
	exists, err := afero.Exists(fs, "/data/train/P01/img_000.png")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSplitSingleImageClassGoesToTest(t *testing.T) {
	var fs = afero.NewMemMapFs()
	makeClasses(t, fs, "/in", map[string]int{"P01": 1, "P02": 4})
	core, logs := observer.New(zap.WarnLevel)
	counts, err := Split(fs, "/in", "/out", Options{TestFraction: 0.5, Seed: 1}, zap.New(core).Sugar())
	require.NoError(t, err)
	assert.Equal(t, ClassCounts{Class: "P01", Train: 0, Test: 1}, counts[0])

	var warnings = logs.FilterMessage("class has no training images").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, "P01", warnings[0].ContextMap()["class"])
}
