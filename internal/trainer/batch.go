package trainer

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ChizhovVadim/vibeid/internal/imagefolder"
	"github.com/ChizhovVadim/vibeid/internal/ml"
	"github.com/ChizhovVadim/vibeid/internal/nn"
)

// totals accumulates loss and correct predictions over samples.
type totals struct {
	cost    float64
	correct int
	count   int
}

func (t *totals) add(other totals) {
	t.cost += other.cost
	t.correct += other.correct
	t.count += other.count
}

func (t *totals) mean() (float64, float64) {
	if t.count == 0 {
		return 0, 0
	}
	return t.cost / float64(t.count), float64(t.correct) / float64(t.count)
}

type sampleFn func(m *nn.Model, sample *imagefolder.Sample) (float64, int)

func trainSample(m *nn.Model, sample *imagefolder.Sample) (float64, int) {
	return m.Train(sample.Input, sample.Label)
}

func costSample(m *nn.Model, sample *imagefolder.Sample) (float64, int) {
	return m.CalcCost(sample.Input, sample.Label)
}

// runBatch spreads samples over the models, one goroutine per model.
func runBatch(samples []imagefolder.Sample, models []*nn.Model, fn sampleFn) totals {
	var index int32 = -1
	var wg = &sync.WaitGroup{}
	var mu = &sync.Mutex{}
	var result totals
	for i := range models {
		wg.Add(1)
		go func(m *nn.Model) {
			defer wg.Done()
			var local totals
			for {
				var i = int(atomic.AddInt32(&index, 1))
				if i >= len(samples) {
					break
				}
				var sample = &samples[i]
				cost, predicted := fn(m, sample)
				local.cost += cost
				local.count++
				if predicted == sample.Label {
					local.correct++
				}
			}
			mu.Lock()
			result.add(local)
			mu.Unlock()
		}(models[i])
	}
	wg.Wait()
	return result
}

func trainBatch(samples []imagefolder.Sample, models []*nn.Model) totals {
	return runBatch(samples, models, trainSample)
}

func applyGradients(models []*nn.Model, opt *ml.Adam, scale float64) {
	for i := 1; i < len(models); i++ {
		models[i].AddGradients(models[0])
	}
	opt.NextStep()
	models[0].ApplyGradients(opt, scale)
}

func calcCost(
	ctx context.Context,
	loader *imagefolder.Loader,
	folder *imagefolder.Folder,
	models []*nn.Model,
) (totals, error) {
	var result totals
	var err = loader.Walk(ctx, folder.Items, imagefolder.Identity(folder.Len()), func(batch []imagefolder.Sample) error {
		result.add(runBatch(batch, models, costSample))
		return nil
	})
	return result, err
}
