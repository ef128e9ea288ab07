package tfimage

import (
	"bytes"
	"context"
	"image/png"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ChizhovVadim/vibeid/internal/domain"
	"github.com/ChizhovVadim/vibeid/internal/events"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func footstep(n int, shift float64) []float64 {
	var result = make([]float64, n)
	for i := range result {
		var t = float64(i) - float64(n)/2 - shift
		result[i] = math.Exp(-t*t/200) * math.Sin(float64(i)/3)
	}
	return result
}

func smallOptions() Options {
	var opts = DefaultOptions()
	opts.Size = 32
	return opts
}

func TestEncodeEventIsDeterministic(t *testing.T) {
	var signal = footstep(300, 0)
	var a, b bytes.Buffer
	require.NoError(t, EncodeEvent(&a, signal, smallOptions()))
	require.NoError(t, EncodeEvent(&b, append([]float64(nil), signal...), smallOptions()))
	assert.Equal(t, a.Bytes(), b.Bytes())

	img, err := png.Decode(bytes.NewReader(a.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 32, img.Bounds().Dx())
	assert.Equal(t, 32, img.Bounds().Dy())

	var c bytes.Buffer
	require.NoError(t, EncodeEvent(&c, footstep(300, 40), smallOptions()))
	assert.NotEqual(t, a.Bytes(), c.Bytes())
}

func TestEncodeEventRejectsUnknownColorMap(t *testing.T) {
	var opts = smallOptions()
	opts.ColorMap = "jet"
	var buf bytes.Buffer
	err := EncodeEvent(&buf, footstep(100, 0), opts)
	assert.True(t, errors.Is(err, ErrUnknownColorMap))
}

func TestColorMapsCoverUnitRange(t *testing.T) {
	for _, name := range ColorMapNames() {
		cmap, err := NewColorMap(name)
		require.NoError(t, err)
		for _, v := range []float64{0, 0.5, 1} {
			_, err := cmap.At(v)
			assert.NoError(t, err, "%v at %v", name, v)
		}
	}
}

func writeEvents(t *testing.T, fs afero.Fs, path string, list []domain.Event) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, events.WriteEvents(&buf, list))
	require.NoError(t, afero.WriteFile(fs, path, buf.Bytes(), 0o644))
}

func TestEncoderWritesClassTree(t *testing.T) {
	var fs = afero.NewMemMapFs()
	writeEvents(t, fs, "/in/session1.csv", []domain.Event{
		{Signal: footstep(128, 0), Label: "P01"},
		{Signal: footstep(128, 10), Label: "P02"},
		{Signal: footstep(128, 20), Label: "P01"},
	})
	writeEvents(t, fs, "/in/broken.csv", []domain.Event{
		{Signal: footstep(128, 0), Label: "P01"},
		{Signal: footstep(100, 0), Label: "P01"},
	})
	require.NoError(t, afero.WriteFile(fs, "/in/garbage.csv", []byte("a,b,c\n"), 0o644))

	var encoder = &Encoder{
		Fs:      fs,
		Options: smallOptions(),
		Workers: 3,
		Logger:  zap.NewNop().Sugar(),
	}
	var report = encoder.EncodeFiles(context.Background(),
		[]string{"/in/session1.csv", "/in/broken.csv", "/in/missing.csv", "/in/garbage.csv"}, "/out")

	require.Len(t, report.Files, 4)
	assert.NoError(t, report.Files[0].Err)
	assert.Equal(t, 3, report.Images())
	var failed = report.Failed()
	require.Len(t, failed, 3)
	assert.True(t, errors.Is(failed[0].Err, events.ErrMalformedEvent))
	assert.True(t, errors.Is(failed[2].Err, events.ErrMalformedEvent))

	for _, path := range []string{
		"/out/P01/session1_00001.png",
		"/out/P02/session1_00002.png",
		"/out/P01/session1_00003.png",
	} {
		exists, err := afero.Exists(fs, path)
		require.NoError(t, err)
		assert.True(t, exists, path)
	}
	names, err := afero.Glob(fs, filepath.Join("/out/P01", "broken_*"))
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestEncoderEnforcesEventLength(t *testing.T) {
	var fs = afero.NewMemMapFs()
	writeEvents(t, fs, "/in/a.csv", []domain.Event{{Signal: footstep(64, 0), Label: "1"}})
	var encoder = &Encoder{
		Fs:          fs,
		Options:     smallOptions(),
		EventLength: 500,
		Workers:     1,
		Logger:      zap.NewNop().Sugar(),
	}
	var result = encoder.EncodeFile(context.Background(), "/in/a.csv", "/out")
	require.Error(t, result.Err)
	assert.True(t, strings.Contains(result.Err.Error(), "want 500"))
}

func TestEncoderLeavesNoImagesOfFailedFile(t *testing.T) {
	var fs = afero.NewMemMapFs()
	var bad = footstep(128, 0)
	bad[5] = math.NaN()
	writeEvents(t, fs, "/in/s.csv", []domain.Event{
		{Signal: footstep(128, 0), Label: "P01"},
		{Signal: footstep(128, 10), Label: "P01"},
		{Signal: bad, Label: "P02"},
	})
	var encoder = &Encoder{
		Fs:      fs,
		Options: smallOptions(),
		Workers: 1,
		Logger:  zap.NewNop().Sugar(),
	}
	var result = encoder.EncodeFile(context.Background(), "/in/s.csv", "/out")
	require.Error(t, result.Err)
	assert.Zero(t, result.Images)

	for _, dir := range []string{"/out/P01", "/out/P02"} {
		exists, err := afero.Exists(fs, dir)
		require.NoError(t, err)
		assert.False(t, exists, dir)
	}
}
