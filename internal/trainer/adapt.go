package trainer

import (
	"context"
	"path/filepath"

	"github.com/ChizhovVadim/vibeid/internal/imagefolder"
	"github.com/ChizhovVadim/vibeid/internal/nn"
	"github.com/pkg/errors"
)

var ErrOverwriteSource = errors.New("checkpoint would overwrite the source snapshot")

type AdaptReport struct {
	Source nn.CheckpointInfo
	// BaselineAccuracy is the accuracy of the unchanged snapshot on the
	// target test subset.
	BaselineAccuracy float64
	BaselineLoss     float64
	Report
}

// Adapt resumes training of the snapshot at from on a target domain. The
// adapted snapshot must go to a different path than from.
func (t *Trainer) Adapt(ctx context.Context, from string, train, test *imagefolder.Folder) (AdaptReport, error) {
	if t.cfg.Checkpoint != "" && filepath.Clean(t.cfg.Checkpoint) == filepath.Clean(from) {
		return AdaptReport{}, errors.Wrapf(ErrOverwriteSource, "%v", from)
	}
	model, info, err := nn.LoadCheckpoint(t.fs, from)
	if err != nil {
		return AdaptReport{}, err
	}
	if err := checkClasses(model, train, test); err != nil {
		return AdaptReport{}, err
	}
	if !sameNames(info.Classes, train.Classes) {
		t.logger.Warnw("target classes differ from snapshot classes",
			"snapshot", info.Classes,
			"target", train.Classes)
	}
	t.logger.Infow("loaded snapshot",
		"path", from,
		"family", info.Arch.Family,
		"epoch", info.Epoch,
		"accuracy", info.Accuracy)

	var result = AdaptReport{Source: info}
	result.BaselineLoss, result.BaselineAccuracy, err = t.Evaluate(ctx, model, test)
	if err != nil {
		return result, errors.Wrap(err, "baseline")
	}
	t.logger.Infow("baseline on target domain",
		"testLoss", result.BaselineLoss,
		"testAccuracy", result.BaselineAccuracy)

	result.Report, err = t.Train(ctx, model, train, test)
	if err != nil {
		return result, err
	}
	t.logger.Infow("adaptation finished",
		"baselineAccuracy", result.BaselineAccuracy,
		"adaptedAccuracy", result.BestAccuracy)
	return result, nil
}

func sameNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
