package trainer

import (
	"runtime"

	"github.com/ChizhovVadim/vibeid/internal/ml"
	"github.com/ChizhovVadim/vibeid/internal/nn"
	"github.com/pkg/errors"
)

const (
	DefaultEpochs     = 50
	DefaultBatchSize  = 16
	DefaultWorkers    = 2
	DefaultCacheSize  = 4096
	DefaultCheckpoint = "best_model.vbn"
)

type Config struct {
	Epochs          int
	BatchSize       int
	Workers         int
	Threads         int
	CacheSize       int
	LearningRate    float64
	PlateauFactor   float64
	PlateauPatience int
	Freeze          nn.FreezeMode
	Seed            int64
	// Checkpoint is where the best snapshot is written. Empty disables saving.
	Checkpoint string
}

func DefaultConfig() Config {
	return Config{
		Epochs:          DefaultEpochs,
		BatchSize:       DefaultBatchSize,
		Workers:         DefaultWorkers,
		Threads:         runtime.NumCPU(),
		CacheSize:       DefaultCacheSize,
		LearningRate:    ml.DefaultLearningRate,
		PlateauFactor:   ml.DefaultPlateauFactor,
		PlateauPatience: ml.DefaultPlateauPatience,
		Freeze:          nn.FreezeNone,
		Checkpoint:      DefaultCheckpoint,
	}
}

func (c Config) Validate() error {
	if c.Epochs < 1 {
		return errors.Errorf("epochs %v", c.Epochs)
	}
	if c.BatchSize < 1 {
		return errors.Errorf("batch size %v", c.BatchSize)
	}
	if c.Threads < 1 {
		return errors.Errorf("threads %v", c.Threads)
	}
	if !(c.LearningRate > 0) {
		return errors.Errorf("learning rate %v", c.LearningRate)
	}
	if _, err := nn.ParseFreezeMode(string(c.Freeze)); err != nil {
		return err
	}
	return nil
}
