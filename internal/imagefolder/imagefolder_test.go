package imagefolder

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sort"
	"testing"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSolidPNG(t *testing.T, fs afero.Fs, path string, size int, c color.RGBA) {
	t.Helper()
	var img = image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, afero.WriteFile(fs, path, buf.Bytes(), 0o644))
}

func testFolder(t *testing.T) afero.Fs {
	var fs = afero.NewMemMapFs()
	for i := 0; i < 5; i++ {
		writeSolidPNG(t, fs, fmt.Sprintf("/data/train/B/%02d.png", i), 8, color.RGBA{0, 0, 255, 255})
	}
	for i := 0; i < 3; i++ {
		writeSolidPNG(t, fs, fmt.Sprintf("/data/train/A/%02d.png", i), 8, color.RGBA{255, 0, 0, 255})
	}
	require.NoError(t, afero.WriteFile(fs, "/data/train/A/notes.txt", []byte("x"), 0o644))
	return fs
}

func TestScan(t *testing.T) {
	var fs = testFolder(t)
	folder, err := Scan(fs, "/data/train")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, folder.Classes)
	assert.Equal(t, 8, folder.Len())
	assert.Equal(t, []int{3, 5}, folder.ClassCounts())
	assert.Equal(t, Item{Path: "/data/train/A/00.png", Label: 0}, folder.Items[0])

	_, err = Scan(fs, "/data/missing")
	assert.Error(t, err)

	require.NoError(t, fs.MkdirAll("/empty/A", 0o755))
	_, err = Scan(fs, "/empty")
	assert.True(t, errors.Is(err, ErrEmptyFolder))
}

func TestSameClasses(t *testing.T) {
	var a = &Folder{Classes: []string{"1", "2"}}
	assert.True(t, SameClasses(a, &Folder{Classes: []string{"1", "2"}}))
	assert.False(t, SameClasses(a, &Folder{Classes: []string{"1", "3"}}))
	assert.False(t, SameClasses(a, &Folder{Classes: []string{"1"}}))
}

func TestWalkDeliversEverySampleOnce(t *testing.T) {
	var fs = testFolder(t)
	folder, err := Scan(fs, "/data/train")
	require.NoError(t, err)
	loader, err := NewLoader(fs, 4, 3, 3, 16)
	require.NoError(t, err)

	for pass := 0; pass < 2; pass++ {
		var labels []int
		var batches []int
		err = loader.Walk(context.Background(), folder.Items, Identity(folder.Len()), func(batch []Sample) error {
			batches = append(batches, len(batch))
			for _, s := range batch {
				labels = append(labels, s.Label)
				require.Equal(t, 3, s.Input.C)
				require.Equal(t, 4, s.Input.H)
				if s.Label == 0 {
					assert.InDelta(t, 1.0, s.Input.At(0, 1, 1), 1e-2)
					assert.InDelta(t, 0.0, s.Input.At(2, 1, 1), 1e-2)
				} else {
					assert.InDelta(t, 1.0, s.Input.At(2, 1, 1), 1e-2)
				}
			}
			return nil
		})
		require.NoError(t, err)
		sort.Ints(labels)
		assert.Equal(t, []int{0, 0, 0, 1, 1, 1, 1, 1}, labels)
		assert.Equal(t, []int{3, 3, 2}, batches)
	}
}

func TestWalkStopsOnError(t *testing.T) {
	var fs = testFolder(t)
	folder, err := Scan(fs, "/data/train")
	require.NoError(t, err)
	loader, err := NewLoader(fs, 8, 2, 2, 0)
	require.NoError(t, err)

	var stop = errors.New("stop")
	err = loader.Walk(context.Background(), folder.Items, Identity(folder.Len()), func(batch []Sample) error {
		return stop
	})
	assert.Equal(t, stop, err)

	require.NoError(t, afero.WriteFile(fs, "/data/train/B/99.png", []byte("not png"), 0o644))
	folder, err = Scan(fs, "/data/train")
	require.NoError(t, err)
	err = loader.Walk(context.Background(), folder.Items, Identity(folder.Len()), func(batch []Sample) error {
		return nil
	})
	assert.Error(t, err)
}

func TestLoadUsesCache(t *testing.T) {
	var fs = testFolder(t)
	loader, err := NewLoader(fs, 8, 1, 1, 4)
	require.NoError(t, err)
	a, err := loader.Load("/data/train/A/00.png")
	require.NoError(t, err)
	b, err := loader.Load("/data/train/A/00.png")
	require.NoError(t, err)
	assert.True(t, a == b)
}
