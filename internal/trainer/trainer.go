// Package trainer fits a classifier to an image folder split, keeps the
// best snapshot by test accuracy and adapts saved snapshots to new domains.
package trainer

import (
	"context"
	"math/rand"

	"github.com/ChizhovVadim/vibeid/internal/domain"
	"github.com/ChizhovVadim/vibeid/internal/imagefolder"
	"github.com/ChizhovVadim/vibeid/internal/ml"
	"github.com/ChizhovVadim/vibeid/internal/nn"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

var ErrClassMismatch = errors.New("class mismatch")

// Recorder receives the statistics of every pass.
type Recorder interface {
	RecordEpoch(ctx context.Context, stats domain.EpochStats) error
}

type Trainer struct {
	cfg      Config
	fs       afero.Fs
	logger   *zap.SugaredLogger
	recorder Recorder
}

func New(cfg Config, fs afero.Fs, logger *zap.SugaredLogger) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "trainer config")
	}
	return &Trainer{
		cfg:    cfg,
		fs:     fs,
		logger: logger,
	}, nil
}

func (t *Trainer) SetRecorder(r Recorder) {
	t.recorder = r
}

// Checkpoint returns the path of the best snapshot, empty when saving is
// disabled.
func (t *Trainer) Checkpoint() string {
	return t.cfg.Checkpoint
}

type Report struct {
	History      []domain.EpochStats
	BestEpoch    int
	BestAccuracy float64
	// Checkpoint is empty when saving is disabled.
	Checkpoint string
}

func checkClasses(model *nn.Model, train, test *imagefolder.Folder) error {
	if model.Arch.Classes != len(train.Classes) {
		return errors.Wrapf(ErrClassMismatch, "model has %v outputs, %v has %v classes",
			model.Arch.Classes, train.Root, len(train.Classes))
	}
	if !imagefolder.SameClasses(train, test) {
		return errors.Wrapf(ErrClassMismatch, "%v classes %v differ from %v classes %v",
			train.Root, train.Classes, test.Root, test.Classes)
	}
	return nil
}

func (t *Trainer) newLoader(model *nn.Model) (*imagefolder.Loader, error) {
	return imagefolder.NewLoader(t.fs, model.Arch.InputSize, t.cfg.Workers, t.cfg.BatchSize, t.cfg.CacheSize)
}

// threadModels returns the model followed by Threads-1 copies sharing its
// parameters.
func (t *Trainer) threadModels(model *nn.Model) []*nn.Model {
	var models = make([]*nn.Model, t.cfg.Threads)
	models[0] = model
	for i := 1; i < len(models); i++ {
		models[i] = model.ThreadCopy()
	}
	return models
}

// Train runs Epochs passes over train, evaluating on test after each one.
// The first pass and every pass with a strictly better test accuracy
// overwrite the checkpoint.
func (t *Trainer) Train(ctx context.Context, model *nn.Model, train, test *imagefolder.Folder) (Report, error) {
	if err := checkClasses(model, train, test); err != nil {
		return Report{}, err
	}
	if err := model.Freeze(t.cfg.Freeze); err != nil {
		return Report{}, err
	}
	loader, err := t.newLoader(model)
	if err != nil {
		return Report{}, err
	}

	t.logger.Infow("train started",
		"family", model.Arch.Family,
		"classes", model.Arch.Classes,
		"params", model.ParamCount(),
		"freeze", t.cfg.Freeze,
		"train", train.Len(),
		"perClass", train.ClassCounts(),
		"test", test.Len(),
		"threads", t.cfg.Threads)

	var models = t.threadModels(model)
	var opt = ml.NewAdam(t.cfg.LearningRate)
	var scheduler = ml.NewPlateauScheduler(t.cfg.PlateauFactor, t.cfg.PlateauPatience)
	var rnd = rand.New(rand.NewSource(t.cfg.Seed))
	var report = Report{Checkpoint: t.cfg.Checkpoint}

	for epoch := 1; epoch <= t.cfg.Epochs; epoch++ {
		var stats = domain.EpochStats{
			Epoch:        epoch,
			LearningRate: opt.LearningRate,
		}

		var trainTotal totals
		err := loader.Walk(ctx, train.Items, rnd.Perm(train.Len()), func(batch []imagefolder.Sample) error {
			trainTotal.add(trainBatch(batch, models))
			applyGradients(models, opt, 1/float64(len(batch)))
			return nil
		})
		if err != nil {
			return report, errors.Wrapf(err, "epoch %v", epoch)
		}
		stats.TrainLoss, stats.TrainAccuracy = trainTotal.mean()

		testTotal, err := calcCost(ctx, loader, test, models)
		if err != nil {
			return report, errors.Wrapf(err, "evaluate epoch %v", epoch)
		}
		stats.TestLoss, stats.TestAccuracy = testTotal.mean()
		report.History = append(report.History, stats)

		t.logger.Infow("epoch finished",
			"epoch", epoch,
			"trainLoss", stats.TrainLoss,
			"trainAccuracy", stats.TrainAccuracy,
			"testLoss", stats.TestLoss,
			"testAccuracy", stats.TestAccuracy,
			"lr", stats.LearningRate)

		if t.recorder != nil {
			if err := t.recorder.RecordEpoch(ctx, stats); err != nil {
				return report, err
			}
		}

		if report.BestEpoch == 0 ||
			stats.TestAccuracy > report.BestAccuracy {
			report.BestEpoch = epoch
			report.BestAccuracy = stats.TestAccuracy
			if err := t.saveCheckpoint(model, train.Classes, epoch, stats.TestAccuracy); err != nil {
				return report, err
			}
		} else {
			t.logger.Infow("no improvement",
				"bestAccuracy", report.BestAccuracy,
				"bestEpoch", report.BestEpoch)
		}

		if scheduler.Step(stats.TestLoss, opt) {
			t.logger.Infow("learning rate reduced", "lr", opt.LearningRate)
		}
	}

	t.logger.Infow("train finished",
		"bestEpoch", report.BestEpoch,
		"bestAccuracy", report.BestAccuracy)
	return report, nil
}

func (t *Trainer) saveCheckpoint(model *nn.Model, classes []string, epoch int, accuracy float64) error {
	if t.cfg.Checkpoint == "" {
		return nil
	}
	var err = nn.SaveCheckpoint(t.fs, t.cfg.Checkpoint, model, nn.CheckpointInfo{
		Arch:     model.Arch,
		Classes:  classes,
		Epoch:    epoch,
		Accuracy: accuracy,
	})
	if err != nil {
		return errors.Wrap(err, "save checkpoint")
	}
	t.logger.Infow("stored checkpoint",
		"path", t.cfg.Checkpoint,
		"epoch", epoch,
		"accuracy", accuracy)
	return nil
}

// Evaluate returns the mean loss and the accuracy of model on folder.
func (t *Trainer) Evaluate(ctx context.Context, model *nn.Model, folder *imagefolder.Folder) (float64, float64, error) {
	if model.Arch.Classes != len(folder.Classes) {
		return 0, 0, errors.Wrapf(ErrClassMismatch, "model has %v outputs, %v has %v classes",
			model.Arch.Classes, folder.Root, len(folder.Classes))
	}
	loader, err := t.newLoader(model)
	if err != nil {
		return 0, 0, err
	}
	total, err := calcCost(ctx, loader, folder, t.threadModels(model))
	if err != nil {
		return 0, 0, err
	}
	loss, accuracy := total.mean()
	return loss, accuracy, nil
}
