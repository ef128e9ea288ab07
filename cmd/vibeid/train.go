package main

import (
	"context"
	"math/rand"
	"path/filepath"
	"runtime"

	"github.com/ChizhovVadim/vibeid/internal/domain"
	"github.com/ChizhovVadim/vibeid/internal/imagefolder"
	"github.com/ChizhovVadim/vibeid/internal/nn"
	"github.com/ChizhovVadim/vibeid/internal/runlog"
	"github.com/ChizhovVadim/vibeid/internal/trainer"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	trainCheckpoint = trainer.DefaultCheckpoint
	adaptCheckpoint = "adapted_model.vbn"
)

type TrainFlags struct {
	DataDir    string  `arg:"--data-dir,required" help:"split root with train/ and test/"`
	Model      string  `arg:"--model" default:"resnet18" help:"resnet18 or resnet50"`
	NumClasses int     `arg:"--num-classes" default:"15" help:"number of output classes"`
	Freeze     string  `arg:"--freeze" help:"all or last3"`
	NumEpochs  int     `arg:"--num-epochs" default:"50" help:"passes over the training subset"`
	BatchSize  int     `arg:"--batch-size" default:"16"`
	NumWorkers int     `arg:"--num-workers" default:"2" help:"image decoding workers"`
	Threads    int     `arg:"--threads" help:"goroutines computing gradients; 0 means all CPUs"`
	LR         float64 `arg:"--lr" default:"0.001" help:"Adam learning rate"`
	Width      int     `arg:"--width" default:"16" help:"channels of the first stage"`
	InputSize  int     `arg:"--input-size" default:"64" help:"model input resolution"`
	Seed       int64   `arg:"--seed" default:"0"`
	Checkpoint string  `arg:"--checkpoint" help:"where the best snapshot is written; best_model.vbn for train, adapted_model.vbn for adapt"`
	Init       string  `arg:"--init" help:"start from the parameters of this snapshot"`
	Cache      int     `arg:"--cache" default:"4096" help:"decoded images kept in memory"`
	History    string  `arg:"--history" help:"SQLite database recording runs"`
}

func threads(n int) int {
	if n <= 0 {
		return runtime.NumCPU()
	}
	return n
}

func (f *TrainFlags) config(defaultFreeze nn.FreezeMode, defaultCheckpoint string) (trainer.Config, error) {
	var cfg = trainer.DefaultConfig()
	cfg.Epochs = f.NumEpochs
	cfg.BatchSize = f.BatchSize
	cfg.Workers = f.NumWorkers
	cfg.Threads = threads(f.Threads)
	cfg.CacheSize = f.Cache
	cfg.LearningRate = f.LR
	cfg.Seed = f.Seed
	cfg.Checkpoint = f.Checkpoint
	if cfg.Checkpoint == "" {
		cfg.Checkpoint = defaultCheckpoint
	}
	cfg.Freeze = defaultFreeze
	if f.Freeze != "" {
		mode, err := nn.ParseFreezeMode(f.Freeze)
		if err != nil {
			return cfg, err
		}
		cfg.Freeze = mode
	}
	return cfg, cfg.Validate()
}

func (f *TrainFlags) architecture() (nn.Architecture, error) {
	family, err := nn.ParseFamily(f.Model)
	if err != nil {
		return nn.Architecture{}, err
	}
	var arch = nn.Architecture{
		Family:    family,
		Classes:   f.NumClasses,
		InputSize: f.InputSize,
		Width:     f.Width,
		Channels:  nn.DefaultChannels,
	}
	return arch, arch.Validate()
}

func scanSplit(fs afero.Fs, root string) (*imagefolder.Folder, *imagefolder.Folder, error) {
	train, err := imagefolder.Scan(fs, filepath.Join(root, domain.TrainSubset))
	if err != nil {
		return nil, nil, err
	}
	test, err := imagefolder.Scan(fs, filepath.Join(root, domain.TestSubset))
	if err != nil {
		return nil, nil, err
	}
	return train, test, nil
}

// history opens the run database when requested. The returned finish
// function records the outcome of the run, failed or not, closes the database
// and returns runErr if set.
func (f *TrainFlags) history(
	ctx context.Context,
	t *trainer.Trainer,
	kind string,
	arch nn.Architecture,
	logger *zap.SugaredLogger,
) (func(report trainer.Report, runErr error) error, error) {
	if f.History == "" {
		return func(_ trainer.Report, runErr error) error { return runErr }, nil
	}
	store, err := runlog.Open(f.History)
	if err != nil {
		return nil, err
	}
	runID, err := store.StartRun(ctx, runlog.Run{
		Kind:       kind,
		Family:     string(arch.Family),
		DataDir:    f.DataDir,
		Classes:    arch.Classes,
		Checkpoint: t.Checkpoint(),
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	t.SetRecorder(store.Recorder(runID))
	logger.Infow("recording run", "history", f.History, "run", runID)
	return func(report trainer.Report, runErr error) error {
		defer store.Close()
		// An interrupted run is still closed.
		var err = store.FinishRun(context.WithoutCancel(ctx), runID, report.BestEpoch, report.BestAccuracy, runErr)
		if runErr != nil {
			if err != nil {
				logger.Warnw("finish run", "run", runID, "error", err)
			}
			return runErr
		}
		return err
	}, nil
}

type trainCmd struct {
	TrainFlags
}

func (c *trainCmd) run(ctx context.Context, logger *zap.SugaredLogger) error {
	cfg, err := c.config(nn.FreezeNone, trainCheckpoint)
	if err != nil {
		return err
	}
	var fs = afero.NewOsFs()
	train, test, err := scanSplit(fs, c.DataDir)
	if err != nil {
		return err
	}

	var model *nn.Model
	var arch nn.Architecture
	if c.Init != "" {
		var info nn.CheckpointInfo
		model, info, err = nn.LoadCheckpoint(fs, c.Init)
		if err != nil {
			return err
		}
		arch = info.Arch
		logger.Infow("initialized from snapshot", "path", c.Init, "epoch", info.Epoch)
	} else {
		arch, err = c.architecture()
		if err != nil {
			return err
		}
		model, err = nn.NewModel(arch, rand.New(rand.NewSource(c.Seed)))
		if err != nil {
			return err
		}
	}

	t, err := trainer.New(cfg, fs, logger)
	if err != nil {
		return err
	}
	finish, err := c.history(ctx, t, runlog.KindTrain, arch, logger)
	if err != nil {
		return err
	}
	report, err := t.Train(ctx, model, train, test)
	return finish(report, err)
}

type adaptCmd struct {
	TrainFlags
	From string `arg:"--from,required" help:"snapshot trained on the source domain"`
}

func (c *adaptCmd) run(ctx context.Context, logger *zap.SugaredLogger) error {
	cfg, err := c.config(nn.FreezeLast3, adaptCheckpoint)
	if err != nil {
		return err
	}
	var fs = afero.NewOsFs()
	train, test, err := scanSplit(fs, c.DataDir)
	if err != nil {
		return err
	}
	t, err := trainer.New(cfg, fs, logger)
	if err != nil {
		return err
	}

	_, info, err := nn.LoadCheckpoint(fs, c.From)
	if err != nil {
		return err
	}
	finish, err := c.history(ctx, t, runlog.KindAdapt, info.Arch, logger)
	if err != nil {
		return err
	}
	report, err := t.Adapt(ctx, c.From, train, test)
	if err != nil {
		return finish(report.Report, err)
	}
	logger.Infow("domain adaptation",
		"sourceAccuracy", report.Source.Accuracy,
		"baselineAccuracy", report.BaselineAccuracy,
		"adaptedAccuracy", report.BestAccuracy,
		"bestEpoch", report.BestEpoch)
	return finish(report.Report, nil)
}

type evalCmd struct {
	Checkpoint string `arg:"--checkpoint" default:"best_model.vbn" help:"snapshot to evaluate"`
	DataDir    string `arg:"--data-dir,required" help:"split root"`
	Split      string `arg:"--split" default:"test" help:"subset to evaluate"`
	NumWorkers int    `arg:"--num-workers" default:"2"`
	Threads    int    `arg:"--threads" help:"goroutines; 0 means all CPUs"`
}

func (c *evalCmd) run(ctx context.Context, logger *zap.SugaredLogger) error {
	var fs = afero.NewOsFs()
	model, info, err := nn.LoadCheckpoint(fs, c.Checkpoint)
	if err != nil {
		return err
	}
	folder, err := imagefolder.Scan(fs, filepath.Join(c.DataDir, c.Split))
	if err != nil {
		return err
	}
	var cfg = trainer.DefaultConfig()
	cfg.Workers = c.NumWorkers
	cfg.Threads = threads(c.Threads)
	cfg.Checkpoint = ""
	t, err := trainer.New(cfg, fs, logger)
	if err != nil {
		return err
	}
	loss, accuracy, err := t.Evaluate(ctx, model, folder)
	if err != nil {
		return errors.Wrapf(err, "evaluate %v", c.Checkpoint)
	}
	logger.Infow("evaluation finished",
		"checkpoint", c.Checkpoint,
		"epoch", info.Epoch,
		"recordedAccuracy", info.Accuracy,
		"split", c.Split,
		"images", folder.Len(),
		"loss", loss,
		"accuracy", accuracy)
	return nil
}
