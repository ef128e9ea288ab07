package domain

// Event is one labeled footstep segment cut from a raw vibration trace.
type Event struct {
	Signal []float64
	Label  string
}

// EpochStats is what the trainer reports after every pass over the
// training subset.
type EpochStats struct {
	Epoch         int
	TrainLoss     float64
	TrainAccuracy float64
	TestLoss      float64
	TestAccuracy  float64
	LearningRate  float64
}

// Subset names of a split dataset.
const (
	TrainSubset = "train"
	ValSubset   = "val"
	TestSubset  = "test"
)
