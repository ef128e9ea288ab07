// Package runlog keeps the history of training runs in a SQLite database.
package runlog

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"time"

	"github.com/ChizhovVadim/vibeid/internal/domain"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	kind TEXT NOT NULL,
	family TEXT NOT NULL,
	data_dir TEXT NOT NULL,
	classes INTEGER NOT NULL,
	checkpoint TEXT NOT NULL,
	started_at INTEGER NOT NULL,
	finished_at INTEGER,
	best_epoch INTEGER,
	best_accuracy REAL,
	failure TEXT
);
CREATE TABLE IF NOT EXISTS epochs (
	run_id INTEGER NOT NULL REFERENCES runs(id),
	epoch INTEGER NOT NULL,
	train_loss REAL NOT NULL,
	train_accuracy REAL NOT NULL,
	test_loss REAL NOT NULL,
	test_accuracy REAL NOT NULL,
	learning_rate REAL NOT NULL,
	PRIMARY KEY (run_id, epoch)
);
`

// Run kinds.
const (
	KindTrain = "train"
	KindAdapt = "adapt"
)

type Run struct {
	ID           int64
	Kind         string
	Family       string
	DataDir      string
	Classes      int
	Checkpoint   string
	StartedAt    time.Time
	FinishedAt   time.Time
	BestEpoch    int
	BestAccuracy float64
	// Error is empty for runs that completed.
	Error string
}

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("history path is required")
	}
	var dsn = filepath.Clean(path) + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite db")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping sqlite db")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create schema")
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// StartRun inserts run and returns its id.
func (s *Store) StartRun(ctx context.Context, run Run) (int64, error) {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO runs (kind, family, data_dir, classes, checkpoint, started_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		run.Kind,
		run.Family,
		run.DataDir,
		run.Classes,
		run.Checkpoint,
		run.StartedAt.UTC().UnixMilli())
	if err != nil {
		return 0, errors.Wrap(err, "start run")
	}
	return res.LastInsertId()
}

func (s *Store) RecordEpoch(ctx context.Context, runID int64, stats domain.EpochStats) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO epochs (run_id, epoch, train_loss, train_accuracy, test_loss, test_accuracy, learning_rate)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID,
		stats.Epoch,
		stats.TrainLoss,
		stats.TrainAccuracy,
		stats.TestLoss,
		stats.TestAccuracy,
		stats.LearningRate)
	if err != nil {
		return errors.Wrapf(err, "record epoch %v of run %v", stats.Epoch, runID)
	}
	return nil
}

// FinishRun closes a run. A non-nil runErr marks the run as failed; the best
// values recorded before the failure are kept.
func (s *Store) FinishRun(ctx context.Context, runID int64, bestEpoch int, bestAccuracy float64, runErr error) error {
	var failure sql.NullString
	if runErr != nil {
		failure = sql.NullString{String: runErr.Error(), Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE runs SET finished_at = ?, best_epoch = ?, best_accuracy = ?, failure = ? WHERE id = ?`,
		time.Now().UTC().UnixMilli(),
		bestEpoch,
		bestAccuracy,
		failure,
		runID)
	if err != nil {
		return errors.Wrap(err, "finish run")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Errorf("run %v not found", runID)
	}
	return nil
}

func (s *Store) Run(ctx context.Context, runID int64) (Run, error) {
	var run Run
	var started int64
	var finished, bestEpoch sql.NullInt64
	var bestAccuracy sql.NullFloat64
	var failure sql.NullString
	err := s.db.QueryRowContext(ctx, `
SELECT id, kind, family, data_dir, classes, checkpoint, started_at, finished_at, best_epoch, best_accuracy, failure
FROM runs WHERE id = ?`, runID).Scan(
		&run.ID,
		&run.Kind,
		&run.Family,
		&run.DataDir,
		&run.Classes,
		&run.Checkpoint,
		&started,
		&finished,
		&bestEpoch,
		&bestAccuracy,
		&failure)
	if err != nil {
		return Run{}, errors.Wrapf(err, "load run %v", runID)
	}
	run.StartedAt = time.UnixMilli(started).UTC()
	if finished.Valid {
		run.FinishedAt = time.UnixMilli(finished.Int64).UTC()
	}
	run.BestEpoch = int(bestEpoch.Int64)
	run.BestAccuracy = bestAccuracy.Float64
	run.Error = failure.String
	return run, nil
}

// Epochs returns the recorded passes of a run in epoch order.
func (s *Store) Epochs(ctx context.Context, runID int64) ([]domain.EpochStats, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT epoch, train_loss, train_accuracy, test_loss, test_accuracy, learning_rate
FROM epochs WHERE run_id = ? ORDER BY epoch`, runID)
	if err != nil {
		return nil, errors.Wrap(err, "query epochs")
	}
	defer rows.Close()

	var result []domain.EpochStats
	for rows.Next() {
		var e domain.EpochStats
		if err := rows.Scan(
			&e.Epoch,
			&e.TrainLoss,
			&e.TrainAccuracy,
			&e.TestLoss,
			&e.TestAccuracy,
			&e.LearningRate); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// Recorder binds the store to one run.
type Recorder struct {
	store *Store
	runID int64
}

func (s *Store) Recorder(runID int64) *Recorder {
	return &Recorder{store: s, runID: runID}
}

func (r *Recorder) RecordEpoch(ctx context.Context, stats domain.EpochStats) error {
	return r.store.RecordEpoch(ctx, r.runID, stats)
}
