package imagefolder

import (
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"sync"

	"github.com/ChizhovVadim/vibeid/internal/nn"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"
)

type Sample struct {
	Input *nn.Tensor
	Label int
}

// Loader decodes images into input tensors (RGB scaled to [0, 1]) of
// InputSize×InputSize, resizing when needed. Decoded tensors are cached and
// must be treated as read-only.
type Loader struct {
	fs        afero.Fs
	inputSize int
	workers   int
	batchSize int
	cache     *lru.Cache
}

func NewLoader(fs afero.Fs, inputSize, workers, batchSize, cacheSize int) (*Loader, error) {
	if inputSize < 1 || batchSize < 1 {
		return nil, errors.Errorf("bad input size %v or batch size %v", inputSize, batchSize)
	}
	var l = &Loader{
		fs:        fs,
		inputSize: inputSize,
		workers:   max(1, workers),
		batchSize: batchSize,
	}
	if cacheSize > 0 {
		cache, err := lru.New(cacheSize)
		if err != nil {
			return nil, err
		}
		l.cache = cache
	}
	return l, nil
}

func (l *Loader) BatchSize() int {
	return l.batchSize
}

// Walk loads items[order[0]], items[order[1]], ... with a pool of workers and
// hands them to fn in batches of BatchSize (the last one may be shorter).
// Samples arrive in completion order, so a batch is not guaranteed to hold
// consecutive entries of order, but every entry is delivered exactly once.
// fn is called from a single goroutine and must not retain batch.
func (l *Loader) Walk(
	ctx context.Context,
	items []Item,
	order []int,
	fn func(batch []Sample) error,
) error {
	g, ctx := errgroup.WithContext(ctx)

	var indices = make(chan int, l.batchSize)
	var samples = make(chan Sample, 2*l.batchSize)

	g.Go(func() error {
		defer close(indices)
		for _, index := range order {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case indices <- index:
			}
		}
		return nil
	})

	var wg = &sync.WaitGroup{}
	for i := 0; i < l.workers; i++ {
		wg.Add(1)
		g.Go(func() error {
			defer wg.Done()
			for index := range indices {
				var item = items[index]
				input, err := l.Load(item.Path)
				if err != nil {
					return err
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case samples <- Sample{Input: input, Label: item.Label}:
				}
			}
			return nil
		})
	}

	g.Go(func() error {
		wg.Wait()
		close(samples)
		return nil
	})

	g.Go(func() error {
		var batch = make([]Sample, 0, l.batchSize)
		for sample := range samples {
			batch = append(batch, sample)
			if len(batch) == l.batchSize {
				if err := fn(batch); err != nil {
					return err
				}
				batch = batch[:0]
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if len(batch) != 0 {
			return fn(batch)
		}
		return nil
	})

	return g.Wait()
}

// Load returns the input tensor of one image file.
func (l *Loader) Load(path string) (*nn.Tensor, error) {
	if l.cache != nil {
		if cached, found := l.cache.Get(path); found {
			return cached.(*nn.Tensor), nil
		}
	}
	f, err := l.fs.Open(path)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(f)
	f.Close()
	if err != nil {
		return nil, errors.Wrapf(err, "decode %v", path)
	}
	var input = l.toTensor(img)
	if l.cache != nil {
		l.cache.Add(path, input)
	}
	return input, nil
}

func (l *Loader) toTensor(img image.Image) *nn.Tensor {
	var size = l.inputSize
	var bounds = img.Bounds()
	if bounds.Dx() != size || bounds.Dy() != size {
		var resized = image.NewRGBA(image.Rect(0, 0, size, size))
		draw.ApproxBiLinear.Scale(resized, resized.Bounds(), img, bounds, draw.Src, nil)
		img = resized
		bounds = resized.Bounds()
	}
	var result = nn.NewTensor(3, size, size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			var r, g, b, _ = img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			result.Data[result.Index(0, y, x)] = float64(r) / 0xffff
			result.Data[result.Index(1, y, x)] = float64(g) / 0xffff
			result.Data[result.Index(2, y, x)] = float64(b) / 0xffff
		}
	}
	return result
}

// Identity returns 0, 1, ..., n-1.
func Identity(n int) []int {
	var result = make([]int, n)
	for i := range result {
		result[i] = i
	}
	return result
}
