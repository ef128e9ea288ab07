package nn

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"math/rand"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

var ErrBadCheckpoint = errors.New("bad checkpoint")

// CheckpointInfo is the metadata stored next to the parameters.
type CheckpointInfo struct {
	Arch     Architecture
	Classes  []string
	Epoch    int
	Accuracy float64
}

// Binary layout of a checkpoint file:
// - All the data is stored in little-endian layout
// - Magic/version, 4 bytes: 'V', 'B', 1 (major), 0 (minor)
// - Family: uint32 length + bytes
// - Classes, input size, width, channels, epoch: uint32 each
// - Accuracy: float64
// - Class names: uint32 count, then uint32 length + bytes per name
// - Parameters: uint32 count, then per parameter uint32 rows, uint32 cols
//   and rows*cols float64 values in column-major order
//
// Values are kept as float64 so that a loaded model reproduces the saved one
// exactly.
var checkpointMagic = [4]byte{'V', 'B', 1, 0}

func SaveCheckpoint(fs afero.Fs, path string, m *Model, info CheckpointInfo) error {
	var tmpPath = path + ".tmp"
	f, err := fs.Create(tmpPath)
	if err != nil {
		return err
	}
	var w = &binaryWriter{w: bufio.NewWriter(f)}
	w.bytes(checkpointMagic[:])
	w.string(string(m.Arch.Family))
	w.uint32(m.Arch.Classes)
	w.uint32(m.Arch.InputSize)
	w.uint32(m.Arch.Width)
	w.uint32(m.Arch.Channels)
	w.uint32(info.Epoch)
	w.float64(info.Accuracy)
	w.uint32(len(info.Classes))
	for _, name := range info.Classes {
		w.string(name)
	}
	var params = m.Params()
	w.uint32(len(params))
	for _, p := range params {
		w.uint32(p.Value.Rows)
		w.uint32(p.Value.Cols)
		for _, x := range p.Value.Data {
			w.float64(x)
		}
	}
	if w.err == nil {
		w.err = w.w.Flush()
	}
	if closeErr := f.Close(); w.err == nil {
		w.err = closeErr
	}
	if w.err != nil {
		fs.Remove(tmpPath)
		return errors.Wrapf(w.err, "write checkpoint %v", path)
	}
	return fs.Rename(tmpPath, path)
}

func LoadCheckpoint(fs afero.Fs, path string) (*Model, CheckpointInfo, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, CheckpointInfo{}, err
	}
	defer f.Close()

	var r = &binaryReader{r: bufio.NewReader(f)}
	var magic = r.bytes(4)
	if r.err == nil && string(magic) != string(checkpointMagic[:]) {
		return nil, CheckpointInfo{}, errors.Wrapf(ErrBadCheckpoint, "%v: unsupported header %v", path, magic)
	}

	var info CheckpointInfo
	info.Arch.Family = Family(r.string())
	info.Arch.Classes = r.uint32()
	info.Arch.InputSize = r.uint32()
	info.Arch.Width = r.uint32()
	info.Arch.Channels = r.uint32()
	info.Epoch = r.uint32()
	info.Accuracy = r.float64()
	var classCount = r.uint32()
	for i := 0; i < classCount && r.err == nil; i++ {
		info.Classes = append(info.Classes, r.string())
	}
	if r.err != nil {
		return nil, CheckpointInfo{}, errors.Wrapf(ErrBadCheckpoint, "%v: %v", path, r.err)
	}

	if info.Arch.Classes > maxCheckpointDim || info.Arch.Width > maxCheckpointDim || info.Arch.InputSize > maxCheckpointDim {
		return nil, CheckpointInfo{}, errors.Wrapf(ErrBadCheckpoint, "%v: implausible architecture %+v", path, info.Arch)
	}
	// Scalograms are always RGB.
	if info.Arch.Channels != DefaultChannels {
		return nil, CheckpointInfo{}, errors.Wrapf(ErrBadCheckpoint, "%v: %v input channels, want %v", path, info.Arch.Channels, DefaultChannels)
	}
	model, err := NewModel(info.Arch, rand.New(rand.NewSource(0)))
	if err != nil {
		return nil, CheckpointInfo{}, errors.Wrapf(ErrBadCheckpoint, "%v: %v", path, err)
	}
	var params = model.Params()
	if count := r.uint32(); r.err == nil && count != len(params) {
		return nil, CheckpointInfo{}, errors.Wrapf(ErrBadCheckpoint,
			"%v: %v parameters, architecture has %v", path, count, len(params))
	}
	for _, p := range params {
		var rows, cols = r.uint32(), r.uint32()
		if r.err == nil && (rows != p.Value.Rows || cols != p.Value.Cols) {
			return nil, CheckpointInfo{}, errors.Wrapf(ErrBadCheckpoint,
				"%v: parameter %v is %vx%v, want %vx%v", path, p.Name, rows, cols, p.Value.Rows, p.Value.Cols)
		}
		for i := range p.Value.Data {
			p.Value.Data[i] = r.float64()
		}
	}
	if r.err != nil {
		return nil, CheckpointInfo{}, errors.Wrapf(ErrBadCheckpoint, "%v: %v", path, r.err)
	}
	return model, info, nil
}

type binaryWriter struct {
	w   *bufio.Writer
	buf [8]byte
	err error
}

func (w *binaryWriter) bytes(b []byte) {
	if w.err == nil {
		_, w.err = w.w.Write(b)
	}
}

func (w *binaryWriter) uint32(x int) {
	binary.LittleEndian.PutUint32(w.buf[:4], uint32(x))
	w.bytes(w.buf[:4])
}

func (w *binaryWriter) float64(x float64) {
	binary.LittleEndian.PutUint64(w.buf[:], math.Float64bits(x))
	w.bytes(w.buf[:])
}

func (w *binaryWriter) string(s string) {
	w.uint32(len(s))
	w.bytes([]byte(s))
}

type binaryReader struct {
	r   io.Reader
	buf [8]byte
	err error
}

const (
	maxStringSize    = 1 << 16
	maxCheckpointDim = 1 << 14
)

func (r *binaryReader) bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	var b = make([]byte, n)
	_, r.err = io.ReadFull(r.r, b)
	return b
}

func (r *binaryReader) uint32() int {
	if r.err != nil {
		return 0
	}
	_, r.err = io.ReadFull(r.r, r.buf[:4])
	return int(binary.LittleEndian.Uint32(r.buf[:4]))
}

func (r *binaryReader) float64() float64 {
	if r.err != nil {
		return 0
	}
	_, r.err = io.ReadFull(r.r, r.buf[:])
	return math.Float64frombits(binary.LittleEndian.Uint64(r.buf[:]))
}

func (r *binaryReader) string() string {
	var n = r.uint32()
	if r.err == nil && n > maxStringSize {
		r.err = errors.Errorf("string of %v bytes", n)
	}
	return string(r.bytes(n))
}
